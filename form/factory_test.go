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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskFactoryAttributeStaysInMemory(t *testing.T) {
	f := NewDiskFactory(DiskFactoryConfig{MaxMemory: 1024})
	req := &struct{}{}

	a, err := f.CreateAttribute(req, "k", -1)
	require.NoError(t, err)
	require.NoError(t, a.AddContent([]byte("hello"), true))
	assert.Equal(t, "hello", a.Value())
	assert.True(t, a.Completed())

	f.ReleaseAll(req)
}

func TestDiskFactoryRejectsEmptyNames(t *testing.T) {
	f := NewDiskFactory(DiskFactoryConfig{})
	req := &struct{}{}

	_, err := f.CreateAttribute(req, "", -1)
	assert.Error(t, err)

	_, err = f.CreateFileUpload(req, "", "f.txt", "text/plain", Transfer7Bit, EncodingUTF8, -1)
	assert.Error(t, err)

	_, err = f.CreateFileUpload(req, "field", "", "text/plain", Transfer7Bit, EncodingUTF8, -1)
	assert.Error(t, err)
}

func TestDiskFactoryFileUploadStaysInMemoryUnderThreshold(t *testing.T) {
	f := NewDiskFactory(DiskFactoryConfig{MaxMemory: 1024, TempDir: t.TempDir()})
	req := &struct{}{}

	fu, err := f.CreateFileUpload(req, "file", "a.txt", "text/plain", Transfer7Bit, EncodingUTF8, -1)
	require.NoError(t, err)
	require.NoError(t, fu.AddContent([]byte("small"), true))

	df := fu.(*diskFileUpload)
	assert.Equal(t, "", df.SpillPath())

	f.ReleaseAll(req)
}

func TestDiskFactoryFileUploadSpillsPastThreshold(t *testing.T) {
	dir := t.TempDir()
	f := NewDiskFactory(DiskFactoryConfig{MaxMemory: 4, TempDir: dir})
	req := &struct{}{}

	fu, err := f.CreateFileUpload(req, "file", "a.txt", "application/octet-stream", TransferBinary, EncodingUTF8, -1)
	require.NoError(t, err)

	require.NoError(t, fu.AddContent([]byte("abcdefgh"), false))
	require.NoError(t, fu.AddContent([]byte("ijkl"), true))

	df := fu.(*diskFileUpload)
	path := df.SpillPath()
	require.NotEmpty(t, path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijkl", string(contents))

	f.ReleaseAll(req)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDiskFactoryReleaseRemovesSpillFileEvenWithoutReleaseAll(t *testing.T) {
	dir := t.TempDir()
	f := NewDiskFactory(DiskFactoryConfig{MaxMemory: 1, TempDir: dir})
	req := &struct{}{}

	fu, err := f.CreateFileUpload(req, "file", "a.bin", "application/octet-stream", TransferBinary, EncodingUTF8, -1)
	require.NoError(t, err)
	require.NoError(t, fu.AddContent([]byte("xx"), true))

	path := fu.(*diskFileUpload).SpillPath()
	require.NotEmpty(t, path)

	f.Release(Part{File: fu})
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDiskFactoryTempDirDefaultsToOSTempDir(t *testing.T) {
	var cfg DiskFactoryConfig
	assert.Equal(t, os.TempDir(), cfg.tempDir())
}
