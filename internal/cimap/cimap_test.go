// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cimap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapCaseInsensitive(t *testing.T) {
	m := New[string]()
	m.Set("Content-Type", "text/plain")

	v, ok := m.Get("content-type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", v)

	m.Set("CONTENT-TYPE", "text/html")
	v, ok = m.Get("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "text/html", v)
	assert.Equal(t, 1, m.Len())
}

func TestMapDeleteAndClear(t *testing.T) {
	m := New[string]()
	m.Set("charset", "utf-8")
	m.Set("filename", "a.txt")

	m.Delete("CHARSET")
	_, ok := m.Get("charset")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestMapRange(t *testing.T) {
	m := New[string]()
	m.Set("a", "1")
	m.Set("b", "2")

	seen := map[string]string{}
	m.Range(func(k, v string) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, seen)
}

func TestMapGenericSliceValue(t *testing.T) {
	m := New[[]int]()
	m.Set("K", append(m.mustGet("K"), 1))
	m.Set("k", append(m.mustGet("k"), 2))

	v, ok := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, v)
}

func (m *Map[V]) mustGet(key string) V {
	v, _ := m.Get(key)
	return v
}
