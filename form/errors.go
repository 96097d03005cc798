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
	"github.com/pkg/errors"
)

// errNotEnoughData is the internal rollback signal used by every scanner
// primitive and decode step. It must never escape a public method: every
// caller either retries on the next Offer or converts it into a decision
// ("no progress this round") before returning.
var errNotEnoughData = errors.New("form: not enough data")

// ErrorDataDecoder reports malformed wire input or a failed decode: an
// unknown transfer encoding, a nonsensical header line, a mixed-mode
// sub-part missing filename, nesting mixed inside mixed, a Factory error, an
// Offer after the last chunk, or a panic recovered during Offer. A bare CR
// is not reported here: the scanner keeps it as a literal byte inside a line
// or waits for more data.
type ErrorDataDecoder struct {
	msg string
	err error
}

func (e *ErrorDataDecoder) Error() string {
	if e.err != nil {
		return "form: decode error: " + e.msg + ": " + e.err.Error()
	}
	return "form: decode error: " + e.msg
}

func (e *ErrorDataDecoder) Unwrap() error { return e.err }

func newDecodeError(msg string, args ...any) error {
	return &ErrorDataDecoder{msg: errors.Errorf(msg, args...).Error()}
}

func wrapDecodeError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &ErrorDataDecoder{msg: msg, err: err}
}

// HeaderError is raised at construction time: a missing or malformed
// Content-Type/boundary.
type HeaderError struct {
	msg string
}

func (e *HeaderError) Error() string { return "form: header error: " + e.msg }

func newHeaderError(msg string, args ...any) error {
	return &HeaderError{msg: errors.Errorf(msg, args...).Error()}
}

// ErrEndOfData is returned by Decoder.Next when called after the decoder has
// reached PreEpilogue or Epilogue and the iteration cursor has already
// consumed every produced part.
var ErrEndOfData = errors.New("form: end of data")

// ErrDestroyed is returned by every public Decoder method once Destroy has
// been called.
var ErrDestroyed = errors.New("form: decoder destroyed")

// isNotEnoughData reports whether err is the internal short-read signal.
// Used by engine.run and by this package's tests; collaborators never see it.
func isNotEnoughData(err error) bool {
	return errors.Is(err, errNotEnoughData)
}
