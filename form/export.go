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
	"io"

	"github.com/gogo/protobuf/proto"
	"github.com/goccy/go-json"
	"github.com/golang/snappy"
)

// ExportFormat selects the wire shape WriteParts uses.
type ExportFormat int

const (
	// ExportBinary writes a length-prefixed stream of protobuf-wire-encoded
	// parts, one per Part, field-compatible with a standard protoc-generated
	// reader that declares the same field numbers.
	ExportBinary ExportFormat = iota
	// ExportJSONLines writes one JSON object per Part, newline-delimited.
	ExportJSONLines
)

// exportedPart is the shared record shape for both export formats. A
// FileUpload contributes only its name, filename and content type; its
// content bytes are never exported. An Attribute contributes its name and
// value.
type exportedPart struct {
	Name        string `json:"name"`
	IsFile      bool   `json:"is_file"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Value       string `json:"value,omitempty"`
}

func toExportedPart(p Part) exportedPart {
	if p.IsFile() {
		return exportedPart{
			Name:        p.Name(),
			IsFile:      true,
			Filename:    p.File.Filename(),
			ContentType: p.File.ContentType(),
		}
	}
	return exportedPart{
		Name:  p.Name(),
		Value: p.Attribute.Value(),
	}
}

// Protobuf field numbers for the binary export wire format.
const (
	fieldName        = 1
	fieldIsFile      = 2
	fieldFilename    = 3
	fieldContentType = 4
	fieldValue       = 5
)

func marshalPartBinary(p Part) ([]byte, error) {
	buf := proto.NewBuffer(nil)
	ep := toExportedPart(p)

	if err := buf.EncodeVarint(uint64(fieldName)<<3 | 2); err != nil {
		return nil, err
	}
	if err := buf.EncodeStringBytes(ep.Name); err != nil {
		return nil, err
	}

	if ep.IsFile {
		if err := buf.EncodeVarint(uint64(fieldIsFile)<<3 | 0); err != nil {
			return nil, err
		}
		if err := buf.EncodeVarint(1); err != nil {
			return nil, err
		}
		if err := buf.EncodeVarint(uint64(fieldFilename)<<3 | 2); err != nil {
			return nil, err
		}
		if err := buf.EncodeStringBytes(ep.Filename); err != nil {
			return nil, err
		}
		if err := buf.EncodeVarint(uint64(fieldContentType)<<3 | 2); err != nil {
			return nil, err
		}
		if err := buf.EncodeStringBytes(ep.ContentType); err != nil {
			return nil, err
		}
	} else {
		if err := buf.EncodeVarint(uint64(fieldValue)<<3 | 2); err != nil {
			return nil, err
		}
		if err := buf.EncodeStringBytes(ep.Value); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// WriteParts serializes parts to w in the given format. If compress is true
// and format is ExportBinary, each record is snappy-compressed independently
// (the same per-frame scheme controller/exporter/sinker/metrics uses for its
// remote-write payloads) so a partially-written stream can still be resynced
// framed by length prefixes.
func WriteParts(w io.Writer, parts []Part, format ExportFormat, compress bool) error {
	switch format {
	case ExportJSONLines:
		enc := json.NewEncoder(w)
		for _, p := range parts {
			if err := enc.Encode(toExportedPart(p)); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, p := range parts {
			b, err := marshalPartBinary(p)
			if err != nil {
				return err
			}
			if compress {
				b = snappy.Encode(nil, b)
			}
			if err := writeFrame(w, b); err != nil {
				return err
			}
		}
		return nil
	}
}

// writeFrame writes a 4-byte big-endian length prefix followed by b.
func writeFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	n := len(b)
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
