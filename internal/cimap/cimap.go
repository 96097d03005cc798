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

// Package cimap provides a generic case-insensitive string-keyed map, used
// for the field-attribute map and the part-sink by-name index. Keys are
// hashed with xxhash the way internal/labels.Labels.Hash hashes a label set,
// folded to lower case first so "Content-Type" and "content-type" land in
// the same bucket.
package cimap

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

type entry[V any] struct {
	key   string // original casing, as first inserted
	value V
}

// Map is a case-insensitive string-keyed map of V. The zero value is ready
// to use. Not safe for concurrent use without external synchronization,
// matching the single-goroutine-per-Decoder contract of the package that
// embeds it.
type Map[V any] struct {
	buckets map[uint64][]entry[V]
}

func New[V any]() *Map[V] {
	return &Map[V]{buckets: make(map[uint64][]entry[V])}
}

func hashKey(key string) uint64 {
	return xxhash.Sum64String(strings.ToLower(key))
}

// Set stores value under key, overwriting any existing value for a
// case-insensitively equal key. The casing of the first insertion is
// preserved for Range.
func (m *Map[V]) Set(key string, value V) {
	if m.buckets == nil {
		m.buckets = make(map[uint64][]entry[V])
	}
	h := hashKey(key)
	bucket := m.buckets[h]
	lower := strings.ToLower(key)
	for i, e := range bucket {
		if strings.ToLower(e.key) == lower {
			bucket[i].value = value
			return
		}
	}
	m.buckets[h] = append(bucket, entry[V]{key: key, value: value})
}

// Get returns the value stored under key (case-insensitive) and whether it
// was present.
func (m *Map[V]) Get(key string) (V, bool) {
	var zero V
	if m.buckets == nil {
		return zero, false
	}
	lower := strings.ToLower(key)
	for _, e := range m.buckets[hashKey(key)] {
		if strings.ToLower(e.key) == lower {
			return e.value, true
		}
	}
	return zero, false
}

// Delete removes key (case-insensitive) if present.
func (m *Map[V]) Delete(key string) {
	if m.buckets == nil {
		return
	}
	h := hashKey(key)
	bucket := m.buckets[h]
	lower := strings.ToLower(key)
	for i, e := range bucket {
		if strings.ToLower(e.key) == lower {
			m.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Clear empties the map in place, retaining its bucket allocation.
func (m *Map[V]) Clear() {
	for h := range m.buckets {
		delete(m.buckets, h)
	}
}

// Len reports the number of keys currently stored.
func (m *Map[V]) Len() int {
	n := 0
	for _, bucket := range m.buckets {
		n += len(bucket)
	}
	return n
}

// Range calls fn for every key/value pair in unspecified order, stopping
// early if fn returns false.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			if !fn(e.key, e.value) {
				return
			}
		}
	}
}
