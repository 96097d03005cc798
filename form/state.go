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
	"bytes"
	"strconv"
	"strings"

	"github.com/packetd/formdecode/internal/cimap"
	"github.com/packetd/formdecode/logger"
)

type stateKind int

const (
	stateNotStarted stateKind = iota
	statePreamble
	stateHeaderDelimiter
	stateDisposition
	stateField
	stateFileUpload
	stateMixedDelimiter
	stateMixedDisposition
	stateMixedFileUpload
	statePreEpilogue
	stateEpilogue
)

func (s stateKind) String() string {
	switch s {
	case stateNotStarted:
		return "not_started"
	case statePreamble:
		return "preamble"
	case stateHeaderDelimiter:
		return "header_delimiter"
	case stateDisposition:
		return "disposition"
	case stateField:
		return "field"
	case stateFileUpload:
		return "file_upload"
	case stateMixedDelimiter:
		return "mixed_delimiter"
	case stateMixedDisposition:
		return "mixed_disposition"
	case stateMixedFileUpload:
		return "mixed_file_upload"
	case statePreEpilogue:
		return "pre_epilogue"
	case stateEpilogue:
		return "epilogue"
	default:
		return "unknown"
	}
}

// engine drives the multipart grammar over a chunkBuffer. It holds at most
// one of {currentAttr, currentFile} non-nil at any quiescent moment.
// NotStarted and Preamble are part of the named state space but never
// entered in practice: construction seeds state directly at
// HeaderDelimiter, and the preamble is skipped by the first delimiter
// search.
type engine struct {
	buf     *chunkBuffer
	scanner *scanner

	state stateKind

	outerBoundary []byte
	innerBoundary []byte

	attrs *cimap.Map[string]

	defaultEncoding Encoding

	currentAttr Attribute
	currentFile FileUpload

	factory Factory
	request any

	sink *partSink

	isLastChunk bool
}

func newEngine(outerBoundary []byte, defaultEncoding Encoding, factory Factory, request any) *engine {
	buf := newChunkBuffer()
	return &engine{
		buf:             buf,
		scanner:         newScanner(buf),
		state:           stateHeaderDelimiter,
		outerBoundary:   outerBoundary,
		attrs:           cimap.New[string](),
		defaultEncoding: defaultEncoding,
		factory:         factory,
		request:         request,
		sink:            newPartSink(),
	}
}

// run drives decode_step repeatedly until no further progress is possible
// (errNotEnoughData) or the grammar reaches PreEpilogue/Epilogue. A real
// decode or header error aborts the pass immediately.
func (e *engine) run() error {
	for {
		var err error
		prev := e.state
		switch e.state {
		case stateHeaderDelimiter:
			err = e.stepHeaderDelimiter()
		case stateDisposition:
			err = e.stepDisposition()
		case stateField:
			err = e.stepField()
		case stateFileUpload:
			err = e.stepFileUpload()
		case stateMixedDelimiter:
			err = e.stepMixedDelimiter()
		case stateMixedDisposition:
			err = e.stepMixedDisposition()
		case stateMixedFileUpload:
			err = e.stepMixedFileUpload()
		case statePreEpilogue:
			if e.isLastChunk {
				e.state = stateEpilogue
			}
			return nil
		case stateEpilogue:
			return nil
		default:
			return nil
		}
		if err != nil {
			if isNotEnoughData(err) {
				return nil
			}
			return err
		}
		if e.state != prev {
			logger.Debugf("form: state %v -> %v", prev, e.state)
		}
	}
}

func (e *engine) stepHeaderDelimiter() error {
	_, closed, err := e.readDelimiterSkippingJunk(e.outerBoundary)
	if err != nil {
		return err
	}
	if closed {
		e.state = statePreEpilogue
		return nil
	}
	e.attrs.Clear()
	e.state = stateDisposition
	return nil
}

func (e *engine) stepDisposition() error {
	if err := e.parseHeaderBlock(); err != nil {
		return err
	}

	ct, _ := e.attrs.Get("Content-Type")
	boundary, hasBoundary := e.attrs.Get("boundary")
	if hasBoundary && strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "multipart/mixed") {
		e.innerBoundary = []byte(boundary)
		// The container's own Content-Type/boundary have served their
		// purpose; dropping them lets each sub-part's headers speak for
		// themselves (and keeps the nested-mixed check below honest).
		e.attrs.Delete("Content-Type")
		e.attrs.Delete("boundary")
		e.state = stateMixedDelimiter
		return nil
	}

	if filename, ok := e.attrs.Get("filename"); ok && filename != "" {
		if err := e.beginFileUpload(filename); err != nil {
			return err
		}
		e.state = stateFileUpload
		return nil
	}

	if err := e.beginField(); err != nil {
		return err
	}
	e.state = stateField
	return nil
}

func (e *engine) stepField() error {
	content, terminated, err := scanBoundaryContent(e.buf, e.outerBoundary)
	if len(content) > 0 || terminated {
		if addErr := e.currentAttr.AddContent(content, terminated); addErr != nil {
			return wrapDecodeError(addErr, "attribute add_content")
		}
	}
	if err != nil {
		return err
	}
	e.sink.append(Part{Attribute: e.currentAttr})
	observePartDecoded(false)
	e.currentAttr = nil
	e.state = stateHeaderDelimiter
	return nil
}

func (e *engine) stepFileUpload() error {
	content, terminated, err := scanBoundaryContent(e.buf, e.outerBoundary)
	if len(content) > 0 || terminated {
		if addErr := e.currentFile.AddContent(content, terminated); addErr != nil {
			return wrapDecodeError(addErr, "file_upload add_content")
		}
	}
	if err != nil {
		return err
	}
	e.sink.append(Part{File: e.currentFile})
	observePartDecoded(true)
	e.currentFile = nil
	e.state = stateHeaderDelimiter
	return nil
}

func (e *engine) stepMixedDelimiter() error {
	_, closed, err := e.readDelimiterSkippingJunk(e.innerBoundary)
	if err != nil {
		return err
	}
	if closed {
		// Cleanup on exit from mixed mode: the outer part context is
		// otherwise preserved (e.g. "name" survives), only the
		// sub-part-scoped keys are dropped.
		for _, k := range []string{"charset", "Content-Length", "Content-Transfer-Encoding", "Content-Type", "filename"} {
			e.attrs.Delete(k)
		}
		e.innerBoundary = nil
		e.state = stateHeaderDelimiter
		return nil
	}
	// The outer field context (notably "name") is deliberately NOT cleared
	// here: every sub-part in the batch is filed under the outer field name,
	// and its own headers overlay the map entry by entry.
	e.state = stateMixedDisposition
	return nil
}

func (e *engine) stepMixedDisposition() error {
	if err := e.parseHeaderBlock(); err != nil {
		return err
	}

	// Only one level of nesting is permitted: a sub-part inside
	// multipart/mixed declaring its own nested multipart/mixed boundary is
	// a decode error, not a second level of nesting.
	ct, _ := e.attrs.Get("Content-Type")
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "multipart/mixed") {
		return newDecodeError("nested multipart/mixed inside multipart/mixed is not supported")
	}

	// Mixed mode requires filename; its absence is a decode error. The
	// plain-field branch (stepDisposition) tolerates a missing filename,
	// an intentional asymmetry.
	filename, ok := e.attrs.Get("filename")
	if !ok || filename == "" {
		return newDecodeError("mixed sub-part missing filename")
	}
	if err := e.beginMixedFileUpload(filename); err != nil {
		return err
	}
	e.state = stateMixedFileUpload
	return nil
}

func (e *engine) stepMixedFileUpload() error {
	content, terminated, err := scanBoundaryContent(e.buf, e.innerBoundary)
	if len(content) > 0 || terminated {
		if addErr := e.currentFile.AddContent(content, terminated); addErr != nil {
			return wrapDecodeError(addErr, "file_upload add_content")
		}
	}
	if err != nil {
		return err
	}
	e.sink.append(Part{File: e.currentFile})
	observePartDecoded(true)
	e.currentFile = nil
	e.state = stateMixedDelimiter
	return nil
}

// readDelimiterSkippingJunk skips control/whitespace bytes before matching
// the delimiter, which is what makes a blank-line preamble (or stray blank
// lines between parts) disappear: the state machine starts at
// HeaderDelimiter and never needs a dedicated Preamble step. A preamble
// holding any other byte is not skipped: the delimiter match fails with
// errNotEnoughData on every pass and the decoder makes no further progress.
// On errNotEnoughData the cursor is
// rolled back past the skipped junk too, so a retry with more data sees the
// exact position this call entered with.
func (e *engine) readDelimiterSkippingJunk(boundary []byte) (matched []byte, closed bool, err error) {
	snap := e.buf.snapshot()
	if err := e.scanner.skipControlWhitespace(); err != nil {
		return nil, false, err
	}
	matched, closed, err = e.scanner.readDelimiter(append([]byte("--"), boundary...))
	if err != nil {
		e.buf.restore(snap)
		return nil, false, err
	}
	return matched, closed, nil
}

// parseHeaderBlock reads header lines into attrs until a blank line, or
// returns errNotEnoughData (with the buffer rolled back to its position on
// entry) if the block isn't fully available yet.
func (e *engine) parseHeaderBlock() error {
	snap := e.buf.snapshot()
	for {
		line, err := e.scanner.readLine(e.defaultEncoding)
		if err != nil {
			e.buf.restore(snap)
			return err
		}
		if line == "" {
			return nil
		}
		hf, ok := parseHeaderLine(line)
		if !ok {
			return newDecodeError("nonsensical header line: %q", line)
		}
		e.applyHeaderField(hf)
	}
}

// applyHeaderField folds one parsed header line into the field-attribute
// map: key=value tokens are stored under their cleaned key; a bare leading
// token (a header's own value, e.g. "form-data" or "text/plain") is stored
// under the header's own name.
func (e *engine) applyHeaderField(hf headerField) {
	for i, tok := range hf.tokens {
		if tok == "" {
			continue
		}
		if key, val, hasValue := splitParamToken(tok); hasValue {
			cleanKey := cleanString(key)
			var cleanVal string
			if strings.EqualFold(cleanKey, "filename") {
				cleanVal = cleanFilename(val)
			} else {
				cleanVal = cleanString(val)
			}
			e.attrs.Set(cleanKey, cleanVal)
			continue
		}
		if i == 0 {
			e.attrs.Set(hf.name, cleanString(tok))
		}
	}
}

func (e *engine) beginField() error {
	name, _ := e.attrs.Get("name")
	size := declaredSize(e.attrs)

	attr, err := e.factory.CreateAttribute(e.request, name, size)
	if err != nil {
		return wrapDecodeError(err, "create_attribute")
	}
	attr.SetContentEncoding(e.resolveCharset())
	e.currentAttr = attr
	return nil
}

// beginFileUpload and beginMixedFileUpload share one implementation: the
// mixed-vs-plain distinction (whether a missing filename is an error) is
// already resolved by the caller before either is invoked.
func (e *engine) beginFileUpload(filename string) error {
	return e.beginFileUploadCommon(filename)
}

func (e *engine) beginMixedFileUpload(filename string) error {
	return e.beginFileUploadCommon(filename)
}

func (e *engine) beginFileUploadCommon(filename string) error {
	name, _ := e.attrs.Get("name")
	size := declaredSize(e.attrs)

	contentType, ok := e.attrs.Get("Content-Type")
	if !ok || contentType == "" {
		contentType = defaultContentType
	}

	transfer := Transfer7Bit
	if raw, ok := e.attrs.Get("Content-Transfer-Encoding"); ok && raw != "" {
		t, ok2 := parseTransferMechanism(raw)
		if !ok2 {
			return newDecodeError("unknown content-transfer-encoding %q", raw)
		}
		transfer = t
	}

	charset := e.resolveCharset()

	file, err := e.factory.CreateFileUpload(e.request, name, filename, contentType, transfer, charset, size)
	if err != nil {
		return wrapDecodeError(err, "create_file_upload")
	}
	file.SetContentEncoding(charset)
	e.currentFile = file
	return nil
}

// resolveCharset downgrades an unrecognized charset label to the decoder's
// default encoding rather than erroring (Design Notes Open Question:
// unrecognized charset labels are tolerated, not fatal).
func (e *engine) resolveCharset() Encoding {
	label, ok := e.attrs.Get("charset")
	if !ok || label == "" {
		return e.defaultEncoding
	}
	enc, ok := normalizeEncoding(label)
	if !ok {
		return e.defaultEncoding
	}
	return enc
}

func declaredSize(attrs *cimap.Map[string]) int64 {
	raw, ok := attrs.Get("Content-Length")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// scanBoundaryContent loads a field or file body: it scans for the earliest
// occurrence of CRLF--boundary or LF--boundary, appending confirmed-safe
// bytes and leaving the read cursor positioned at the start of "--boundary"
// once the full delimiter is found.
//
// This intentionally never consults Content-Length for early termination;
// it always boundary-scans, and a declared size mismatch is not flagged
// here.
func scanBoundaryContent(buf *chunkBuffer, boundary []byte) (content []byte, terminated bool, err error) {
	start := buf.snapshot()
	readable := buf.copyRange(start, buf.readable())

	lfPattern := delimiterLFPattern(boundary)
	idx := bytes.Index(readable, lfPattern)
	if idx >= 0 {
		delimStart := idx
		if idx > 0 && readable[idx-1] == charCR {
			delimStart = idx - 1
		}
		content = cloneBytes(readable[:delimStart])
		buf.advance(idx + 1) // position right after the LF, at "--boundary"
		return content, true, nil
	}

	patterns := [][]byte{delimiterCRLFPattern(boundary), lfPattern}
	overlap := longestPatternPrefixSuffixOverlap(readable, patterns)
	safeLen := len(readable) - overlap
	if safeLen > 0 {
		content = cloneBytes(readable[:safeLen])
		buf.advance(safeLen)
	}
	return content, false, errNotEnoughData
}

func delimiterLFPattern(boundary []byte) []byte {
	p := make([]byte, 0, len(boundary)+3)
	p = append(p, charLF, charDash, charDash)
	return append(p, boundary...)
}

func delimiterCRLFPattern(boundary []byte) []byte {
	p := make([]byte, 0, len(boundary)+4)
	p = append(p, charCR, charLF, charDash, charDash)
	return append(p, boundary...)
}

// longestPatternPrefixSuffixOverlap returns the length of the longest
// suffix of data that equals a prefix of one of patterns, capped at
// len(pattern)-1 (a full match is handled by the caller separately). This
// is the "hold back ambiguous tail bytes" half of the streaming boundary
// scan: those bytes might complete a delimiter once more data arrives and
// must not be emitted as content yet.
func longestPatternPrefixSuffixOverlap(data []byte, patterns [][]byte) int {
	maxOverlap := 0
	for _, p := range patterns {
		limit := len(p) - 1
		if limit > len(data) {
			limit = len(data)
		}
		for k := limit; k > 0; k-- {
			if bytes.Equal(data[len(data)-k:], p[:k]) {
				if k > maxOverlap {
					maxOverlap = k
				}
				break
			}
		}
	}
	return maxOverlap
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
