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

// chunkBuffer is the single growable "undecoded" byte buffer every Offer
// call appends to. It generalizes internal/bufbytes.Bytes (a fixed-capacity
// append-and-truncate buffer) into an unbounded buffer, and borrows
// internal/zerocopy.Buffer's contract for Copy: a returned slice aliases the
// backing array and stays valid only until the next compact or a growing
// append.
//
// Two cursors bound the readable region: readable() == write_idx - read_idx,
// and compact() only ever runs between Offer calls, never mid-parse.
type chunkBuffer struct {
	buf     []byte
	r       int // read_idx
	w       int // write_idx (== len(buf), kept separately for symmetry with r)
	discard int // compaction threshold
}

const defaultDiscardThreshold = 10 << 20 // 10 MiB

func newChunkBuffer() *chunkBuffer {
	return &chunkBuffer{discard: defaultDiscardThreshold}
}

// append copies bytes onto the tail. Amortized O(1) per byte.
func (b *chunkBuffer) append(p []byte) {
	b.buf = append(b.buf, p...)
	b.w = len(b.buf)
}

// readable returns the number of unread bytes currently buffered.
func (b *chunkBuffer) readable() int {
	return b.w - b.r
}

// peekByte returns the byte at read_idx+offset without consuming it.
func (b *chunkBuffer) peekByte(offset int) (byte, bool) {
	idx := b.r + offset
	if idx >= b.w {
		return 0, false
	}
	return b.buf[idx], true
}

// readByte consumes and returns the next byte.
func (b *chunkBuffer) readByte() (byte, bool) {
	c, ok := b.peekByte(0)
	if !ok {
		return 0, false
	}
	b.r++
	return c, true
}

// advance moves read_idx forward by n, bypassing the snapshot/restore
// machinery. Used when a scan has already determined exactly how many bytes
// are safe to consume (e.g. the confirmed-safe prefix in a boundary scan)
// rather than rolling back an all-or-nothing primitive.
func (b *chunkBuffer) advance(n int) {
	b.r += n
	if b.r > b.w {
		b.r = b.w
	}
}

// snapshot captures read_idx for later rollback. Cheap: a single int.
func (b *chunkBuffer) snapshot() int {
	return b.r
}

// restore rewinds read_idx to a previously captured snapshot. Never touches
// write_idx, so bytes appended after the snapshot was taken remain readable.
func (b *chunkBuffer) restore(snap int) {
	b.r = snap
}

// copyRange returns the len bytes starting at start (relative to the start
// of the buffer, not read_idx). The returned slice aliases buf and is only
// valid until the next compact or a growing append, mirroring
// internal/zerocopy.Buffer.Read's zero-copy contract.
func (b *chunkBuffer) copyRange(start, length int) []byte {
	return b.buf[start : start+length]
}

// setDiscardThreshold changes the compaction threshold. A zero or negative
// value disables compaction (readable region only ever grows until Destroy).
func (b *chunkBuffer) setDiscardThreshold(n int) {
	if n < 0 {
		n = 0
	}
	b.discard = n
}

// compact drops [0, read_idx) once write_idx exceeds the discard threshold.
// Must only be called between parsing passes (after a full decode_step
// loop), never mid-parse, since it invalidates any snapshot taken before the
// call and any slice returned by copyRange over the discarded range.
func (b *chunkBuffer) compact() {
	if b.discard <= 0 || b.w <= b.discard {
		return
	}
	if b.r == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.r:b.w])
	b.buf = b.buf[:n]
	b.w = n
	b.r = 0
}

// reset releases all buffered bytes. Used by Destroy.
func (b *chunkBuffer) reset() {
	b.buf = nil
	b.r = 0
	b.w = 0
}
