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
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/valyala/bytebufferpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/packetd/formdecode/common"
)

// MongoFactoryConfig configures MongoFactory, decoded from an Options map
// via common.Options.Decode.
type MongoFactoryConfig struct {
	// MaxMemory is the in-memory threshold past which a file upload spills
	// into GridFS instead of staying in a pooled buffer.
	MaxMemory int64 `config:"maxMemory" mapstructure:"maxMemory"`
	// Bucket names the GridFS bucket files are written under.
	Bucket string `config:"bucket" mapstructure:"bucket"`
}

func NewMongoFactoryConfig(opts common.Options) (MongoFactoryConfig, error) {
	cfg := MongoFactoryConfig{Bucket: "formdecode"}
	if err := opts.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MongoFactory is a Factory whose file uploads spill to GridFS rather than a
// local disk, so a decoder running on one node can have its large uploads
// retrieved by another. Attributes remain in-memory regardless of backend:
// they're bounded by form field sizes, never worth a round trip.
type MongoFactory struct {
	cfg    MongoFactoryConfig
	bucket *gridfs.Bucket

	mu      sync.Mutex
	tracked map[any][]Part
}

func NewMongoFactory(db *mongo.Database, cfg MongoFactoryConfig) (*MongoFactory, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(cfg.Bucket))
	if err != nil {
		return nil, err
	}
	return &MongoFactory{cfg: cfg, bucket: bucket, tracked: make(map[any][]Part)}, nil
}

func (f *MongoFactory) CreateAttribute(req any, name string, _ int64) (Attribute, error) {
	if name == "" {
		return nil, newDecodeError("attribute name must not be empty")
	}
	a := &diskAttribute{name: name, buf: bytebufferpool.Get()}
	f.track(req, Part{Attribute: a})
	return a, nil
}

func (f *MongoFactory) CreateFileUpload(req any, name, filename, contentType string, transfer TransferMechanism, charset Encoding, _ int64) (FileUpload, error) {
	if name == "" {
		return nil, newDecodeError("file_upload name must not be empty")
	}
	if filename == "" {
		return nil, newDecodeError("file_upload filename must not be empty")
	}
	fu := &mongoFileUpload{
		name:        name,
		filename:    filename,
		contentType: contentType,
		transfer:    transfer,
		charset:     charset,
		cfg:         f.cfg,
		bucket:      f.bucket,
		objectName:  uuid.New().String() + "-" + filename,
		buf:         bytebufferpool.Get(),
	}
	f.track(req, Part{File: fu})
	return fu, nil
}

func (f *MongoFactory) track(req any, p Part) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[req] = append(f.tracked[req], p)
}

func (f *MongoFactory) Release(p Part) error {
	switch {
	case p.Attribute != nil:
		if a, ok := p.Attribute.(*diskAttribute); ok {
			return a.release()
		}
	case p.File != nil:
		if fu, ok := p.File.(*mongoFileUpload); ok {
			return fu.release()
		}
	}
	return nil
}

func (f *MongoFactory) ReleaseAll(req any) error {
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

// mongoFileUpload mirrors diskFileUpload's in-memory-then-spill shape, but
// spills into a GridFS upload stream instead of an *os.File.
type mongoFileUpload struct {
	name, filename, contentType string
	transfer                    TransferMechanism
	charset                     Encoding
	cfg                         MongoFactoryConfig
	bucket                      *gridfs.Bucket
	objectName                  string

	buf      *bytebufferpool.ByteBuffer
	stream   *gridfs.UploadStream
	uploaded bool
	done     bool
}

func (f *mongoFileUpload) Name() string                        { return f.name }
func (f *mongoFileUpload) Filename() string                    { return f.filename }
func (f *mongoFileUpload) ContentType() string                 { return f.contentType }
func (f *mongoFileUpload) TransferMechanism() TransferMechanism { return f.transfer }
func (f *mongoFileUpload) Charset() Encoding                    { return f.charset }
func (f *mongoFileUpload) Completed() bool                      { return f.done }
func (f *mongoFileUpload) SetContentEncoding(e Encoding)        { f.charset = e }

func (f *mongoFileUpload) AddContent(b []byte, isLast bool) error {
	if len(b) > 0 {
		if err := f.write(b); err != nil {
			return err
		}
	}
	f.done = isLast
	if isLast && f.stream != nil {
		if err := f.stream.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (f *mongoFileUpload) write(b []byte) error {
	if f.stream == nil && f.cfg.MaxMemory > 0 && int64(f.buf.Len())+int64(len(b)) > f.cfg.MaxMemory {
		if err := f.openStream(); err != nil {
			return err
		}
	}
	if f.stream != nil {
		_, err := f.stream.Write(b)
		return err
	}
	_, err := f.buf.Write(b)
	return err
}

func (f *mongoFileUpload) openStream() error {
	meta := bson.M{"contentType": f.contentType, "name": f.name}
	stream, err := f.bucket.OpenUploadStream(f.objectName, options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return err
	}
	if _, err := stream.Write(f.buf.B); err != nil {
		return err
	}
	f.stream = stream
	bytebufferpool.Put(f.buf)
	f.buf = nil
	f.uploaded = true
	fileSpills.Inc()
	return nil
}

// ObjectName returns the GridFS filename the upload was (or would be)
// written under; FileID returns the driver-assigned id once spilled.
func (f *mongoFileUpload) ObjectName() string { return f.objectName }
func (f *mongoFileUpload) FileID() any {
	if f.stream == nil {
		return nil
	}
	return f.stream.FileID
}

func (f *mongoFileUpload) release() error {
	if f.uploaded && f.stream != nil {
		return f.bucket.Delete(f.stream.FileID)
	}
	if f.buf != nil {
		bytebufferpool.Put(f.buf)
	}
	return nil
}
