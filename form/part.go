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

// TransferMechanism is the declared Content-Transfer-Encoding of a part
// body. Only the three values the wire format recognizes are represented;
// the decoder never performs the actual transfer decoding (base64,
// quoted-printable) — it only records what was declared.
type TransferMechanism string

const (
	Transfer7Bit   TransferMechanism = "7bit"
	Transfer8Bit   TransferMechanism = "8bit"
	TransferBinary TransferMechanism = "binary"
)

func parseTransferMechanism(s string) (TransferMechanism, bool) {
	switch normalizeToken(s) {
	case "7bit":
		return Transfer7Bit, true
	case "8bit":
		return Transfer8Bit, true
	case "binary":
		return TransferBinary, true
	default:
		return "", false
	}
}

func normalizeToken(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}

const defaultContentType = "application/octet-stream"

// Attribute is a simple name/value form field. Implementations are supplied
// by a Factory; the decoder only calls AddContent/SetContentEncoding.
type Attribute interface {
	Name() string
	Value() string
	AddContent(b []byte, isLast bool) error
	Completed() bool
	SetContentEncoding(enc Encoding)
}

// FileUpload is a file-valued form field. Its identity is stable across many
// Offer calls: the decoder accumulates into the same instance until the
// closing delimiter is found.
type FileUpload interface {
	Name() string
	Filename() string
	ContentType() string
	TransferMechanism() TransferMechanism
	Charset() Encoding
	AddContent(b []byte, isLast bool) error
	Completed() bool
	SetContentEncoding(enc Encoding)
}

// Part is the sum type produced by the decoder: exactly one of Attribute or
// File is non-nil.
type Part struct {
	Attribute Attribute
	File      FileUpload
}

// Name returns the part's field name, regardless of variant.
func (p Part) Name() string {
	if p.File != nil {
		return p.File.Name()
	}
	if p.Attribute != nil {
		return p.Attribute.Name()
	}
	return ""
}

// IsFile reports whether this Part is the FileUpload variant.
func (p Part) IsFile() bool { return p.File != nil }

// Factory constructs Attribute/FileUpload instances and owns their
// lifecycle (including spill-to-disk policy), and is the only collaborator
// the decoder depends on besides the raw byte stream. Release/ReleaseAll
// return error rather than swallowing it: a single bad temp-file removal
// must not hide failures releasing the other parts of the same request, so
// implementations are expected to aggregate (e.g. with go-multierror)
// instead of stopping at the first failure.
type Factory interface {
	CreateAttribute(req any, name string, size int64) (Attribute, error)
	CreateFileUpload(req any, name, filename, contentType string, transfer TransferMechanism, charset Encoding, size int64) (FileUpload, error)
	Release(p Part) error
	ReleaseAll(req any) error
}
