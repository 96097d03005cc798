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
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encoding names a text encoding a part's declared charset resolves to.
// Only the handful of encodings that show up on real multipart/form-data
// traffic are recognized; anything else falls back to the decoder's default
// encoding rather than erroring.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingUSASCII     Encoding = "us-ascii"
	EncodingISO88591    Encoding = "iso-8859-1"
	EncodingWindows1252 Encoding = "windows-1252"
)

var encodingAliases = map[string]Encoding{
	"utf-8":        EncodingUTF8,
	"utf8":         EncodingUTF8,
	"us-ascii":     EncodingUSASCII,
	"ascii":        EncodingUSASCII,
	"iso-8859-1":   EncodingISO88591,
	"latin1":       EncodingISO88591,
	"windows-1252": EncodingWindows1252,
	"cp1252":       EncodingWindows1252,
}

// normalizeEncoding resolves a charset label (case-insensitive) to a known
// Encoding. ok is false when the label is unrecognized.
func normalizeEncoding(label string) (Encoding, bool) {
	enc, ok := encodingAliases[strings.ToLower(strings.TrimSpace(label))]
	return enc, ok
}

func (e Encoding) decoder() encoding.Encoding {
	switch e {
	case EncodingISO88591:
		return charmap.ISO8859_1
	case EncodingWindows1252:
		return charmap.Windows1252
	default:
		return nil // UTF-8 / US-ASCII are byte-identical to a Go string
	}
}

// decodeBytes converts raw header/line bytes into text under e. UTF-8 and
// US-ASCII are passed through verbatim (US-ASCII is a subset of UTF-8); the
// single-byte code pages go through golang.org/x/text/encoding/charmap.
func decodeBytes(e Encoding, b []byte) (string, error) {
	dec := e.decoder()
	if dec == nil {
		return string(b), nil
	}
	out, err := dec.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
