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

var (
	charCR   = byte('\r')
	charLF   = byte('\n')
	charDash = byte('-')
)

// scanner holds the transactional byte-level parsing primitives.
// Every method takes its snapshot on entry and restores it before returning
// errNotEnoughData, the way internal/splitio.Scanner/Reader avoid copying
// but generalized to support rollback across Offer calls (splitio's Reader
// never needs to un-read, since it always runs over one already-complete
// []byte; ours must, since the byte slice keeps growing underneath it).
type scanner struct {
	buf *chunkBuffer
}

func newScanner(buf *chunkBuffer) *scanner {
	return &scanner{buf: buf}
}

func isISOControl(b byte) bool {
	return b <= 0x1f || b == 0x7f
}

func isASCIIWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// skipControlWhitespace advances over ISO control bytes and ASCII
// whitespace until a non-control, non-whitespace byte is seen, leaving that
// byte unread. Raises errNotEnoughData if the buffer is exhausted first.
func (s *scanner) skipControlWhitespace() error {
	snap := s.buf.snapshot()
	for {
		b, ok := s.buf.peekByte(0)
		if !ok {
			s.buf.restore(snap)
			return errNotEnoughData
		}
		if !isISOControl(b) && !isASCIIWhitespace(b) {
			return nil
		}
		s.buf.readByte()
	}
}

// skipOneLine consumes exactly one CRLF or a single LF at the cursor and
// reports true, or reports false (and restores the cursor) if another byte
// is there. It returns errNotEnoughData, consuming nothing, when the buffer
// ends at the cursor or right after a CR.
func (s *scanner) skipOneLine() (bool, error) {
	snap := s.buf.snapshot()
	b, ok := s.buf.peekByte(0)
	if !ok {
		return false, errNotEnoughData
	}
	if b == charLF {
		s.buf.readByte()
		return true, nil
	}
	if b == charCR {
		nb, ok := s.buf.peekByte(1)
		if !ok {
			s.buf.restore(snap)
			return false, errNotEnoughData
		}
		if nb == charLF {
			s.buf.readByte()
			s.buf.readByte()
			return true, nil
		}
	}
	s.buf.restore(snap)
	return false, nil
}

// readLine reads bytes up to (not including) a CRLF or bare LF terminator,
// decodes them with enc, and returns the line with the terminator consumed.
// A bare CR followed by a non-LF byte is preserved as a literal CR inside
// the line, a tolerance for broken clients.
func (s *scanner) readLine(enc Encoding) (string, error) {
	snap := s.buf.snapshot()

	var raw []byte
	for {
		b, ok := s.buf.peekByte(0)
		if !ok {
			s.buf.restore(snap)
			return "", errNotEnoughData
		}

		if b == charLF {
			s.buf.readByte()
			return decodeBytes(enc, raw)
		}

		if b == charCR {
			nb, ok := s.buf.peekByte(1)
			if !ok {
				s.buf.restore(snap)
				return "", errNotEnoughData
			}
			s.buf.readByte()
			if nb == charLF {
				s.buf.readByte()
				return decodeBytes(enc, raw)
			}
			// Bare CR not followed by LF: tolerated, kept as a literal byte.
			raw = append(raw, charCR)
			continue
		}

		s.buf.readByte()
		raw = append(raw, b)
	}
}

// readDelimiter expects the bytes of boundary at the cursor, optionally
// followed by "--" (a close delimiter), optionally followed by CRLF or a
// bare LF. It returns the matched sequence including any trailing "--". A
// close delimiter's trailing CRLF is optional (a quirk of the Adobe Flash
// uploader); a mismatched boundary prefix raises
// errNotEnoughData so the caller can roll back and retry with more data
// (we cannot yet tell "wrong bytes" from "not enough bytes" until the full
// boundary length is available).
func (s *scanner) readDelimiter(boundary []byte) (matched []byte, closed bool, err error) {
	snap := s.buf.snapshot()

	for i, want := range boundary {
		got, ok := s.buf.peekByte(i)
		if !ok {
			s.buf.restore(snap)
			return nil, false, errNotEnoughData
		}
		if got != want {
			s.buf.restore(snap)
			return nil, false, errNotEnoughData
		}
	}
	for range boundary {
		s.buf.readByte()
	}
	matched = append(matched, boundary...)

	// Optional "--" close marker. We need to see two bytes to rule it out;
	// a single available byte that isn't '-' is enough to rule it in the
	// negative, but a single '-' with nothing after it is ambiguous and
	// must wait for more input.
	b0, ok0 := s.buf.peekByte(0)
	switch {
	case !ok0:
		s.buf.restore(snap)
		return nil, false, errNotEnoughData
	case b0 == charDash:
		b1, ok1 := s.buf.peekByte(1)
		if !ok1 {
			s.buf.restore(snap)
			return nil, false, errNotEnoughData
		}
		if b1 == charDash {
			s.buf.readByte()
			s.buf.readByte()
			matched = append(matched, charDash, charDash)
			closed = true
		}
	}

	// Optional trailing line terminator. skipOneLine returning (false, nil)
	// means a non-terminator byte follows, which is fine: the terminator is
	// optional for both open and close delimiters. skipOneLine returning
	// errNotEnoughData means nothing follows yet, or a bare trailing CR with
	// nothing after it yet; for a close delimiter this is the Adobe Flash
	// uploader quirk
	// (absence of CRLF tolerated), so we accept the match as-is. For an
	// open delimiter we wait for more input before committing, since the
	// header parser that follows needs a clean starting position.
	if _, err := s.skipOneLine(); err != nil {
		if !closed {
			s.buf.restore(snap)
			return nil, false, errNotEnoughData
		}
	}
	return matched, closed, nil
}
