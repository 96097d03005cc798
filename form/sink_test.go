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

package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAttribute struct {
	name, value string
	completed   bool
}

func (a *fakeAttribute) Name() string  { return a.name }
func (a *fakeAttribute) Value() string { return a.value }
func (a *fakeAttribute) AddContent(b []byte, isLast bool) error {
	a.value += string(b)
	a.completed = isLast
	return nil
}
func (a *fakeAttribute) Completed() bool                { return a.completed }
func (a *fakeAttribute) SetContentEncoding(Encoding) {}

func TestPartSinkOrderAndLookup(t *testing.T) {
	s := newPartSink()
	s.append(Part{Attribute: &fakeAttribute{name: "a", value: "1"}})
	s.append(Part{Attribute: &fakeAttribute{name: "B", value: "2"}})
	s.append(Part{Attribute: &fakeAttribute{name: "a", value: "3"}})

	all := s.getAll("A")
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].Attribute.Value())
	assert.Equal(t, "3", all[1].Attribute.Value())

	first, ok := s.getFirst("b")
	require.True(t, ok)
	assert.Equal(t, "2", first.Attribute.Value())

	_, ok = s.getFirst("missing")
	assert.False(t, ok)
}

func TestPartSinkIteration(t *testing.T) {
	s := newPartSink()
	assert.False(t, s.hasNext())

	s.append(Part{Attribute: &fakeAttribute{name: "x", value: "1"}})
	s.append(Part{Attribute: &fakeAttribute{name: "y", value: "2"}})

	assert.True(t, s.hasNext())
	p, ok := s.iterate()
	require.True(t, ok)
	assert.Equal(t, "x", p.Name())

	p, ok = s.iterate()
	require.True(t, ok)
	assert.Equal(t, "y", p.Name())

	_, ok = s.iterate()
	assert.False(t, ok)
	assert.False(t, s.hasNext())
}

func TestPartSinkReleaseUnread(t *testing.T) {
	s := newPartSink()
	s.append(Part{Attribute: &fakeAttribute{name: "a"}})
	s.append(Part{Attribute: &fakeAttribute{name: "b"}})
	s.append(Part{Attribute: &fakeAttribute{name: "c"}})

	_, _ = s.iterate() // consume "a"

	unread := s.releaseUnread()
	require.Len(t, unread, 2)
	assert.Equal(t, "b", unread[0].Name())
	assert.Equal(t, "c", unread[1].Name())
}
