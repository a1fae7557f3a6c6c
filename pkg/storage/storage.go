// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrUnavailable wraps every failure caused by the backend itself
	// (connection refused, timeouts, I/O errors).
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned by Stat for unknown ids.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidBucket is returned by Put for bucket labels that are not a
	// single safe name.
	ErrInvalidBucket = errors.New("invalid bucket name")
)

// Object is an accepted upload handed to a Store.
type Object struct {
	// Name is the client-supplied file name. It is recorded as metadata
	// only and never used to build a storage path.
	Name        string
	ContentType string
	Bucket      string
	Content     []byte
}

// FileMetadata defines the structure for storing file information.
// This is the canonical definition used across the application.
type FileMetadata struct {
	ID          string    `json:"id" bson:"_id"`
	Filename    string    `json:"filename" bson:"filename"`
	ContentType string    `json:"contentType" bson:"contentType"`
	Size        int64     `json:"size" bson:"size"`
	Bucket      string    `json:"bucket" bson:"bucket"`
	StoragePath string    `json:"storagePath" bson:"storagePath"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// Store persists accepted files. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put stores obj and returns an opaque object id.
	Put(ctx context.Context, obj *Object) (string, error)

	// Stat returns the metadata recorded for id.
	Stat(ctx context.Context, id string) (*FileMetadata, error)

	// Close releases connections held by the store.
	Close() error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetaStore defines the interface for file metadata persistence.
// This allows for decoupling the blob store from the metadata backend.
type MetaStore interface {
	// SaveFileMeta saves the file metadata with a given key.
	SaveFileMeta(ctx context.Context, key string, metadata *FileMetadata) error

	// GetFileMeta retrieves file metadata by its key.
	GetFileMeta(ctx context.Context, key string) (*FileMetadata, error)

	// Close closes the metadata backend connection.
	Close() error
}

var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// ValidBucket reports whether name can be used as a bucket label by every
// backend (S3 naming rules, which are also a safe single path element).
func ValidBucket(name string) bool {
	return bucketName.MatchString(name)
}

func newMetadata(id string, obj *Object, storagePath string) *FileMetadata {
	return &FileMetadata{
		ID:          id,
		Filename:    obj.Name,
		ContentType: obj.ContentType,
		Size:        int64(len(obj.Content)),
		Bucket:      obj.Bucket,
		StoragePath: storagePath,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func checkObject(obj *Object) error {
	if obj == nil {
		return errors.New("object cannot be nil")
	}
	if !ValidBucket(obj.Bucket) {
		return fmt.Errorf("%w: %q", ErrInvalidBucket, obj.Bucket)
	}
	return nil
}
