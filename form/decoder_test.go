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
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memAttribute and memFileUpload are minimal in-memory Factory products
// used across this package's tests, standing in for the real spill-aware
// implementation in factory.go.
type memAttribute struct {
	name  string
	value []byte
	done  bool
}

func (a *memAttribute) Name() string  { return a.name }
func (a *memAttribute) Value() string { return string(a.value) }
func (a *memAttribute) AddContent(b []byte, isLast bool) error {
	a.value = append(a.value, b...)
	a.done = isLast
	return nil
}
func (a *memAttribute) Completed() bool             { return a.done }
func (a *memAttribute) SetContentEncoding(Encoding) {}

type memFileUpload struct {
	name, filename, contentType string
	transfer                    TransferMechanism
	charset                     Encoding
	content                     []byte
	done                        bool
}

func (f *memFileUpload) Name() string                         { return f.name }
func (f *memFileUpload) Filename() string                     { return f.filename }
func (f *memFileUpload) ContentType() string                  { return f.contentType }
func (f *memFileUpload) TransferMechanism() TransferMechanism { return f.transfer }
func (f *memFileUpload) Charset() Encoding                    { return f.charset }
func (f *memFileUpload) AddContent(b []byte, isLast bool) error {
	f.content = append(f.content, b...)
	f.done = isLast
	return nil
}
func (f *memFileUpload) Completed() bool             { return f.done }
func (f *memFileUpload) SetContentEncoding(e Encoding) { f.charset = e }

type memFactory struct {
	released []Part
}

func (mf *memFactory) CreateAttribute(_ any, name string, _ int64) (Attribute, error) {
	return &memAttribute{name: name}, nil
}

func (mf *memFactory) CreateFileUpload(_ any, name, filename, contentType string, transfer TransferMechanism, charset Encoding, _ int64) (FileUpload, error) {
	return &memFileUpload{name: name, filename: filename, contentType: contentType, transfer: transfer, charset: charset}, nil
}

func (mf *memFactory) Release(p Part) error { mf.released = append(mf.released, p); return nil }
func (mf *memFactory) ReleaseAll(_ any) error { return nil }

func newTestDecoder(t *testing.T, boundary string) (*Decoder, *memFactory) {
	t.Helper()
	h := http.Header{}
	h.Set("Content-Type", `multipart/form-data; boundary=`+boundary)
	f := &memFactory{}
	d, err := New(f, h, EncodingUTF8)
	require.NoError(t, err)
	return d, f
}

func drain(t *testing.T, d *Decoder) []Part {
	t.Helper()
	var out []Part
	for d.HasNext() {
		p, err := d.Next()
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

// Scenario 1: simple text field.
func TestDecoderSimpleTextField(t *testing.T) {
	body := "--ABC\r\nContent-Disposition: form-data; name=\"k\"\r\n\r\nhello\r\n--ABC--\r\n"
	d, _ := newTestDecoder(t, "ABC")
	require.NoError(t, d.Offer([]byte(body), true))

	parts := drain(t, d)
	require.Len(t, parts, 1)
	assert.Equal(t, "k", parts[0].Name())
	assert.Equal(t, "hello", parts[0].Attribute.Value())
}

// Scenario 2: two fields, LF-only line endings.
func TestDecoderTwoFieldsLFOnly(t *testing.T) {
	body := "--ABC\nContent-Disposition: form-data; name=\"a\"\n\n1\n" +
		"--ABC\nContent-Disposition: form-data; name=\"b\"\n\n2\n--ABC--\n"
	d, _ := newTestDecoder(t, "ABC")
	require.NoError(t, d.Offer([]byte(body), true))

	parts := drain(t, d)
	require.Len(t, parts, 2)
	assert.Equal(t, "a", parts[0].Name())
	assert.Equal(t, "1", parts[0].Attribute.Value())
	assert.Equal(t, "b", parts[1].Name())
	assert.Equal(t, "2", parts[1].Attribute.Value())
}

// Scenario 3: file upload.
func TestDecoderFileUpload(t *testing.T) {
	body := "--ABC\r\nContent-Disposition: form-data; name=\"f\"; filename=\"f.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\nAB\r\nCD\r\n--ABC--\r\n"
	d, _ := newTestDecoder(t, "ABC")
	require.NoError(t, d.Offer([]byte(body), true))

	parts := drain(t, d)
	require.Len(t, parts, 1)
	require.True(t, parts[0].IsFile())
	assert.Equal(t, "f.txt", parts[0].File.Filename())
	assert.Equal(t, "text/plain", parts[0].File.ContentType())
	assert.Equal(t, "AB\r\nCD", string(parts[0].File.(*memFileUpload).content))
}

// Scenario 4: chunked delivery, split inside the closing delimiter.
func TestDecoderChunkedAcrossDelimiter(t *testing.T) {
	body := "--ABC\r\nContent-Disposition: form-data; name=\"k\"\r\n\r\nhello\r\n--ABC--\r\n"
	split := 61 // first chunk ends with "--A" of the closing "--ABC--"
	require.Less(t, split, len(body))

	d, _ := newTestDecoder(t, "ABC")
	require.NoError(t, d.Offer([]byte(body[:split]), false))
	require.NoError(t, d.Offer([]byte(body[split:]), true))

	parts := drain(t, d)
	require.Len(t, parts, 1)
	assert.Equal(t, "k", parts[0].Name())
	assert.Equal(t, "hello", parts[0].Attribute.Value())
}

// Scenario 5: multipart/mixed nested, two sub-parts then a continuing field.
func TestDecoderMixedNested(t *testing.T) {
	body := "--ABC\r\n" +
		"Content-Disposition: form-data; name=\"files\"\r\n" +
		"Content-Type: multipart/mixed; boundary=XYZ\r\n\r\n" +
		"--XYZ\r\nContent-Disposition: attachment; filename=\"a.txt\"\r\n\r\nAAA\r\n" +
		"--XYZ\r\nContent-Disposition: attachment; filename=\"b.txt\"\r\n\r\nBBB\r\n" +
		"--XYZ--\r\n" +
		"--ABC\r\nContent-Disposition: form-data; name=\"after\"\r\n\r\nok\r\n" +
		"--ABC--\r\n"
	d, _ := newTestDecoder(t, "ABC")
	require.NoError(t, d.Offer([]byte(body), true))

	parts := drain(t, d)
	require.Len(t, parts, 3)
	assert.True(t, parts[0].IsFile())
	assert.Equal(t, "a.txt", parts[0].File.Filename())
	assert.True(t, parts[1].IsFile())
	assert.Equal(t, "b.txt", parts[1].File.Filename())
	assert.False(t, parts[2].IsFile())
	assert.Equal(t, "after", parts[2].Name())
	assert.Equal(t, "ok", parts[2].Attribute.Value())
}

// Scenario 6: close delimiter without a trailing CRLF.
func TestDecoderCloseDelimiterNoTrailingCRLF(t *testing.T) {
	body := "--ABC\r\nContent-Disposition: form-data; name=\"k\"\r\n\r\nhello\r\n--ABC--"
	d, _ := newTestDecoder(t, "ABC")
	require.NoError(t, d.Offer([]byte(body), true))

	parts := drain(t, d)
	require.Len(t, parts, 1)
	assert.Equal(t, "hello", parts[0].Attribute.Value())
}

func TestDecoderMissingBoundaryIsHeaderError(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data")
	_, err := New(&memFactory{}, h, EncodingUTF8)
	require.Error(t, err)
	var headerErr *HeaderError
	assert.ErrorAs(t, err, &headerErr)
}

func TestDecoderDestroyReleasesUnread(t *testing.T) {
	body := "--ABC\r\nContent-Disposition: form-data; name=\"k\"\r\n\r\nhello\r\n--ABC--\r\n"
	d, f := newTestDecoder(t, "ABC")
	require.NoError(t, d.Offer([]byte(body), true))

	require.NoError(t, d.Destroy())
	require.Len(t, f.released, 1)

	_, err := d.Next()
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.ErrorIs(t, d.Destroy(), ErrDestroyed)
}

// A Factory that fails to release every part must not let one failure hide
// another: Destroy aggregates all of them instead of stopping at the first.
type failingReleaseFactory struct {
	memFactory
}

func (f *failingReleaseFactory) Release(p Part) error {
	return fmt.Errorf("release failed for %q", p.Name())
}

func TestDecoderDestroyAggregatesReleaseFailures(t *testing.T) {
	body := "--ABC\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n" +
		"--ABC\r\nContent-Disposition: form-data; name=\"b\"\r\n\r\n2\r\n--ABC--\r\n"

	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary=ABC")
	f := &failingReleaseFactory{}
	d, err := New(f, h, EncodingUTF8)
	require.NoError(t, err)
	require.NoError(t, d.Offer([]byte(body), true))

	destroyErr := d.Destroy()
	require.Error(t, destroyErr)
	assert.Contains(t, destroyErr.Error(), `"a"`)
	assert.Contains(t, destroyErr.Error(), `"b"`)
}

// Chunking independence: every byte-by-byte partition of a body yields the
// same part list as a single Offer call.
func TestDecoderChunkingIndependence(t *testing.T) {
	body := "--ABC\r\nContent-Disposition: form-data; name=\"k\"\r\n\r\nhello world\r\n--ABC--\r\n"

	d, _ := newTestDecoder(t, "ABC")
	require.NoError(t, d.Offer([]byte(body), true))
	want := drain(t, d)

	d2, _ := newTestDecoder(t, "ABC")
	for i := 0; i < len(body); i++ {
		require.NoError(t, d2.Offer([]byte{body[i]}, i == len(body)-1))
	}
	got := drain(t, d2)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Name(), got[i].Name())
		assert.Equal(t, want[i].Attribute.Value(), got[i].Attribute.Value())
	}
}
