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

// Package form implements an incremental, streaming decoder for HTTP
// multipart/form-data request bodies (RFC 7578 / RFC 2046), including the
// legacy nested multipart/mixed sub-part form some browsers use for file
// batches. Bytes arrive in arbitrary chunks via Offer; Decoder turns them
// into an ordered sequence of Parts without buffering the full body and
// without re-scanning bytes it has already consumed.
package form

import (
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/packetd/formdecode/internal/rescue"
	"github.com/packetd/formdecode/internal/tracekit"
	"github.com/packetd/formdecode/logger"
)

// Decoder is the public entry point. One instance belongs to one logical
// request; it is not safe for concurrent use (single-threaded cooperative
// model, one decoder per connection context).
type Decoder struct {
	engine *engine

	destroyed  bool
	isLastSeen bool
	traceID    string
}

// New constructs a Decoder from request headers (any http.Header-shaped
// value works; Content-Type supplies the boundary and an optional
// traceparent header supplies the trace id) and a default text encoding used
// when no charset parameter overrides it. It fails with a *HeaderError if
// Content-Type isn't multipart or is missing a boundary.
func New(factory Factory, header http.Header, defaultEncoding Encoding) (*Decoder, error) {
	ct := header.Get("Content-Type")
	boundary, err := parseBoundary(ct)
	if err != nil {
		return nil, err
	}

	// The decoder itself is the per-request token handed to the factory:
	// factories key their tracking structures by it, so it must be unique
	// per request and hashable (http.Header, being a map, is neither).
	d := &Decoder{}
	d.engine = newEngine(boundary, defaultEncoding, factory, d)
	if tid, ok := tracekit.TraceIDFromHTTPHeader(header); ok {
		d.traceID = tid.String()
	}
	return d, nil
}

// parseBoundary extracts the boundary parameter from a Content-Type header
// value, requiring a multipart media type.
func parseBoundary(contentType string) ([]byte, error) {
	if contentType == "" {
		return nil, newHeaderError("missing Content-Type")
	}
	parts := strings.Split(contentType, ";")
	media := strings.ToLower(strings.TrimSpace(parts[0]))
	if !strings.HasPrefix(media, "multipart/") {
		return nil, newHeaderError("not a multipart Content-Type: %q", contentType)
	}

	for _, p := range parts[1:] {
		key, val, ok := splitParamToken(strings.TrimSpace(p))
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), "boundary") {
			b := cleanFilename(strings.TrimSpace(val)) // tolerates a quoted boundary
			if b == "" {
				return nil, newHeaderError("empty boundary in Content-Type: %q", contentType)
			}
			return []byte(b), nil
		}
	}
	return nil, newHeaderError("no boundary in Content-Type: %q", contentType)
}

// Offer appends chunk to the decoder's buffer and drives the parser as far
// as it can go, producing zero or more new completed parts. isLast flags
// the final chunk of the body; once set, further Offer calls are a
// programmer error and return an error instead of panicking.
func (d *Decoder) Offer(chunk []byte, isLast bool) (err error) {
	if d.destroyed {
		return ErrDestroyed
	}
	if d.isLastSeen {
		return newDecodeError("offer called after is_last_chunk was already set")
	}

	defer func() {
		if r := recover(); r != nil {
			for _, fn := range rescue.PanicHandlers {
				fn(r)
			}
			err = newDecodeError("panic during offer: %v", r)
		}
	}()

	timer := prometheus.NewTimer(offerLatency)
	defer timer.ObserveDuration()

	bytesOffered.Add(float64(len(chunk)))
	d.engine.buf.append(chunk)
	if isLast {
		d.isLastSeen = true
		d.engine.isLastChunk = true
	}

	if runErr := d.engine.run(); runErr != nil {
		logger.Warnf("form: decode error trace=%s state=%v: %v", d.traceID, d.engine.state, runErr)
		decodeErrors.WithLabelValues(d.engine.state.String()).Inc()
		return runErr
	}

	d.engine.buf.compact()
	return nil
}

// Next returns the next completed part after the iteration cursor, or
// (Part{}, nil) if none is available yet and the body isn't finished.
// Once the body has finished (PreEpilogue/Epilogue reached) and every part
// has already been returned, Next reports ErrEndOfData instead.
func (d *Decoder) Next() (Part, error) {
	if d.destroyed {
		return Part{}, ErrDestroyed
	}
	p, ok := d.engine.sink.iterate()
	if ok {
		return p, nil
	}
	if d.engine.state == statePreEpilogue || d.engine.state == stateEpilogue {
		return Part{}, ErrEndOfData
	}
	return Part{}, nil
}

// HasNext reports whether Next would return a part right now.
func (d *Decoder) HasNext() bool {
	if d.destroyed {
		return false
	}
	return d.engine.sink.hasNext()
}

// GetAll returns every completed part with the given name, in wire order.
func (d *Decoder) GetAll(name string) []Part {
	if d.destroyed {
		return nil
	}
	return d.engine.sink.getAll(name)
}

// GetFirst returns the first completed part with the given name, if any.
func (d *Decoder) GetFirst(name string) (Part, bool) {
	if d.destroyed {
		return Part{}, false
	}
	return d.engine.sink.getFirst(name)
}

// CurrentPartial returns the part currently being filled (not yet
// terminated by a delimiter), or (Part{}, false) if none is in progress.
func (d *Decoder) CurrentPartial() (Part, bool) {
	if d.destroyed {
		return Part{}, false
	}
	switch {
	case d.engine.currentAttr != nil:
		return Part{Attribute: d.engine.currentAttr}, true
	case d.engine.currentFile != nil:
		return Part{File: d.engine.currentFile}, true
	default:
		return Part{}, false
	}
}

// SetDiscardThreshold changes the chunk buffer's compaction threshold.
func (d *Decoder) SetDiscardThreshold(n int) {
	if d.destroyed {
		return
	}
	d.engine.buf.setDiscardThreshold(n)
}

// Destroy releases all unread parts (handing them back to the Factory for
// cleanup) and any retained buffer bytes. Idempotent: a second call returns
// ErrDestroyed without releasing anything further. A failure releasing one
// part (e.g. a temp-file removal error) does not stop the others: every
// failure is aggregated with go-multierror and returned together.
func (d *Decoder) Destroy() error {
	if d.destroyed {
		return ErrDestroyed
	}
	d.destroyed = true

	var result *multierror.Error
	for _, p := range d.engine.sink.releaseUnread() {
		if err := d.engine.factory.Release(p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := d.engine.factory.ReleaseAll(d.engine.request); err != nil {
		result = multierror.Append(result, err)
	}
	d.engine.buf.reset()
	return result.ErrorOrNil()
}
