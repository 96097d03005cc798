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

import "strings"

// headerField is one parsed "Name: v1; p2=v2" line: a name and its ordered
// list of raw parameter tokens, not yet cleaned.
type headerField struct {
	name   string
	tokens []string
}

// parseHeaderLine parses one raw header line: split once on the first ':', then
// split the value on ';' (quote-aware) if it contains one, else on ','.
func parseHeaderLine(line string) (headerField, bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return headerField{}, false
	}
	name := strings.TrimSpace(line[:idx])
	value := line[idx+1:]

	var raw []string
	if containsUnquoted(value, ';') {
		raw = splitRespectingQuotes(value, ';')
	} else {
		raw = splitRespectingQuotes(value, ',')
	}

	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		tokens = append(tokens, strings.TrimSpace(t))
	}
	return headerField{name: name, tokens: tokens}, true
}

// containsUnquoted reports whether sep occurs in s outside of a
// double-quoted run.
func containsUnquoted(s string, sep byte) bool {
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && inQuotes && i+1 < len(s):
			i++
		case c == '"':
			inQuotes = !inQuotes
		case c == sep && !inQuotes:
			return true
		}
	}
	return false
}

// splitRespectingQuotes splits s on sep, treating double-quoted runs (with \
// as the escape character, affecting only \ and the following byte) as
// opaque.
func splitRespectingQuotes(s string, sep byte) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && inQuotes && i+1 < len(s):
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == sep && !inQuotes:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

// cleanString normalizes a header parameter token: each ':', ',', '=',
// ';' and horizontal tab becomes a single space; '"' is deleted outright;
// the result is then trimmed. Note this deletes quotes rather than
// interpreting escapes.
func cleanString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case ':', ',', '=', ';', '\t':
			b.WriteByte(' ')
		case '"':
			// dropped outright
		default:
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String())
}

// cleanFilename implements the filename exception: strip one layer of
// surrounding quotes via a direct [1, len-1] substring rather than
// clean_string, preserving interior characters including spaces. If s isn't
// at least a pair of quotes, it is returned as-is (trimmed).
func cleanFilename(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitParamToken splits a "key=value" parameter token into key and value
// on the first unquoted '=', so values with '=' inside quotes survive
// intact. hasValue is false for a bare token with no unquoted '=' (e.g. the
// leading "form-data" marker in a Content-Disposition line).
func splitParamToken(tok string) (key, value string, hasValue bool) {
	inQuotes := false
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		switch {
		case c == '\\' && inQuotes && i+1 < len(tok):
			i++
		case c == '"':
			inQuotes = !inQuotes
		case c == '=' && !inQuotes:
			return tok[:i], tok[i+1:], true
		}
	}
	return tok, "", false
}
