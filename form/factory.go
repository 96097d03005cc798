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
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/valyala/bytebufferpool"

	"github.com/packetd/formdecode/internal/fasttime"
)

// DiskFactoryConfig configures DiskFactory. Decoded from an Options map via
// common.Options.Decode the way the rest of this repository's components
// take their configuration.
type DiskFactoryConfig struct {
	// MaxMemory is the number of bytes a file upload may accumulate
	// in-memory before DiskFactory spills it to a temp file. Attributes
	// are never spilled.
	MaxMemory int64 `config:"maxMemory" mapstructure:"maxMemory"`
	// TempDir is where spill files are created. Empty means os.TempDir().
	TempDir string `config:"tempDir" mapstructure:"tempDir"`
}

func (c DiskFactoryConfig) tempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}

// DiskFactory is the default Factory: attribute values live in a pooled
// in-memory buffer (bytebufferpool), and file uploads spill to a uuid-named
// temp file once they cross MaxMemory bytes. It tracks every product it
// creates per request so ReleaseAll can sweep them on Destroy.
type DiskFactory struct {
	cfg DiskFactoryConfig

	mu      sync.Mutex
	tracked map[any][]Part
}

func NewDiskFactory(cfg DiskFactoryConfig) *DiskFactory {
	return &DiskFactory{cfg: cfg, tracked: make(map[any][]Part)}
}

func (f *DiskFactory) CreateAttribute(req any, name string, _ int64) (Attribute, error) {
	if name == "" {
		return nil, newDecodeError("attribute name must not be empty")
	}
	a := &diskAttribute{name: name, buf: bytebufferpool.Get()}
	f.track(req, Part{Attribute: a})
	return a, nil
}

func (f *DiskFactory) CreateFileUpload(req any, name, filename, contentType string, transfer TransferMechanism, charset Encoding, _ int64) (FileUpload, error) {
	if name == "" {
		return nil, newDecodeError("file_upload name must not be empty")
	}
	if filename == "" {
		return nil, newDecodeError("file_upload filename must not be empty")
	}
	fu := &diskFileUpload{
		name:        name,
		filename:    filename,
		contentType: contentType,
		transfer:    transfer,
		charset:     charset,
		cfg:         f.cfg,
		createdUnix: fasttime.UnixTimestamp(),
		buf:         bytebufferpool.Get(),
	}
	f.track(req, Part{File: fu})
	return fu, nil
}

func (f *DiskFactory) track(req any, p Part) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[req] = append(f.tracked[req], p)
}

// Release returns p's resources to the pool (and deletes its spill file, if
// any), without touching the per-request tracking set.
func (f *DiskFactory) Release(p Part) error {
	switch {
	case p.Attribute != nil:
		if a, ok := p.Attribute.(*diskAttribute); ok {
			return a.release()
		}
	case p.File != nil:
		if fu, ok := p.File.(*diskFileUpload); ok {
			return fu.release()
		}
	}
	return nil
}

// ReleaseAll releases every product ever created for req and forgets it. A
// failed release (e.g. a temp file already removed out-of-band) does not
// stop the rest: every failure is aggregated and returned together.
func (f *DiskFactory) ReleaseAll(req any) error {
	f.mu.Lock()
	parts := f.tracked[req]
	delete(f.tracked, req)
	f.mu.Unlock()

	var result *multierror.Error
	for _, p := range parts {
		if err := f.Release(p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

type diskAttribute struct {
	name    string
	buf     *bytebufferpool.ByteBuffer
	done    bool
	encoded Encoding
}

func (a *diskAttribute) Name() string  { return a.name }
func (a *diskAttribute) Value() string { return a.buf.String() }

func (a *diskAttribute) AddContent(b []byte, isLast bool) error {
	if len(b) > 0 {
		if _, err := a.buf.Write(b); err != nil {
			return err
		}
	}
	a.done = isLast
	return nil
}

func (a *diskAttribute) Completed() bool                { return a.done }
func (a *diskAttribute) SetContentEncoding(e Encoding) { a.encoded = e }

func (a *diskAttribute) release() error {
	bytebufferpool.Put(a.buf)
	return nil
}

// diskFileUpload accumulates into an in-memory buffer until it crosses
// cfg.MaxMemory, at which point its contents are flushed to a uuid-named
// temp file and every subsequent AddContent call appends there instead.
type diskFileUpload struct {
	name, filename, contentType string
	transfer                    TransferMechanism
	charset                     Encoding
	cfg                         DiskFactoryConfig
	createdUnix                 int64

	buf      *bytebufferpool.ByteBuffer
	spillF   *os.File
	spillLen int64
	done     bool
}

func (f *diskFileUpload) Name() string                        { return f.name }
func (f *diskFileUpload) Filename() string                    { return f.filename }
func (f *diskFileUpload) ContentType() string                 { return f.contentType }
func (f *diskFileUpload) TransferMechanism() TransferMechanism { return f.transfer }
func (f *diskFileUpload) Charset() Encoding                    { return f.charset }
func (f *diskFileUpload) Completed() bool                      { return f.done }
func (f *diskFileUpload) SetContentEncoding(e Encoding)        { f.charset = e }

func (f *diskFileUpload) AddContent(b []byte, isLast bool) error {
	if len(b) > 0 {
		if err := f.write(b); err != nil {
			return err
		}
	}
	f.done = isLast
	return nil
}

func (f *diskFileUpload) write(b []byte) error {
	if f.spillF == nil && f.cfg.MaxMemory > 0 && int64(f.buf.Len())+int64(len(b)) > f.cfg.MaxMemory {
		if err := f.spillToDisk(); err != nil {
			return err
		}
	}
	if f.spillF != nil {
		n, err := f.spillF.Write(b)
		f.spillLen += int64(n)
		return err
	}
	_, err := f.buf.Write(b)
	return err
}

func (f *diskFileUpload) spillToDisk() error {
	name := filepath.Join(f.cfg.tempDir(), "formdecode-"+uuid.New().String()+".part")
	spillF, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := spillF.Write(f.buf.B); err != nil {
		spillF.Close()
		return err
	}
	f.spillLen = int64(f.buf.Len())
	f.spillF = spillF
	bytebufferpool.Put(f.buf)
	f.buf = nil
	fileSpills.Inc()
	return nil
}

// SpillPath returns the path of the backing temp file, or "" if the upload
// never crossed MaxMemory and still lives entirely in memory.
func (f *diskFileUpload) SpillPath() string {
	if f.spillF == nil {
		return ""
	}
	return f.spillF.Name()
}

func (f *diskFileUpload) release() error {
	if f.spillF != nil {
		name := f.spillF.Name()
		var result *multierror.Error
		if err := f.spillF.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := os.Remove(name); err != nil {
			result = multierror.Append(result, err)
		}
		return result.ErrorOrNil()
	}
	if f.buf != nil {
		bytebufferpool.Put(f.buf)
	}
	return nil
}
