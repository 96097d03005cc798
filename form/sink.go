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

import "github.com/packetd/formdecode/internal/cimap"

// partSink holds completed parts in two parallel structures: an ordered
// list for iteration, and a case-insensitive by-name multimap for lookup.
type partSink struct {
	ordered []Part
	byName  *cimap.Map[[]Part]
	rank    int // iteration cursor: index of the next unread part
}

func newPartSink() *partSink {
	return &partSink{byName: cimap.New[[]Part]()}
}

// append pushes part onto the ordered list and its by-name bucket.
func (s *partSink) append(p Part) {
	s.ordered = append(s.ordered, p)
	bucket, _ := s.byName.Get(p.Name())
	s.byName.Set(p.Name(), append(bucket, p))
}

// iterate returns the next unread part, advancing rank, or (Part{}, false)
// if the cursor has caught up with the ordered list.
func (s *partSink) iterate() (Part, bool) {
	if s.rank >= len(s.ordered) {
		return Part{}, false
	}
	p := s.ordered[s.rank]
	s.rank++
	return p, true
}

// hasNext reports whether iterate would return a part right now.
func (s *partSink) hasNext() bool {
	return s.rank < len(s.ordered)
}

func (s *partSink) getAll(name string) []Part {
	bucket, _ := s.byName.Get(name)
	out := make([]Part, len(bucket))
	copy(out, bucket)
	return out
}

func (s *partSink) getFirst(name string) (Part, bool) {
	bucket, ok := s.byName.Get(name)
	if !ok || len(bucket) == 0 {
		return Part{}, false
	}
	return bucket[0], true
}

// releaseUnread returns a copy of the parts at index >= rank, handing
// ownership back to the caller (which releases them via the Factory). The
// sink's own list, map and cursor are left unchanged.
func (s *partSink) releaseUnread() []Part {
	if s.rank >= len(s.ordered) {
		return nil
	}
	unread := s.ordered[s.rank:]
	out := make([]Part, len(unread))
	copy(out, unread)
	return out
}
