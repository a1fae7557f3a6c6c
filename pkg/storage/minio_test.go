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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of S3 calls MinioStore makes.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string]bool
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	path := strings.Trim(r.URL.Path, "/")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+path)

	bucketOnly := !strings.Contains(path, "/")
	switch {
	case r.Method == http.MethodHead && bucketOnly:
		if !f.buckets[path] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && bucketOnly:
		f.buckets[path] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		f.objects[path] = true
		w.Header().Set("ETag", `"9b2cf535f27731c974343645a3985328"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) seen(req string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == req {
			return true
		}
	}
	return false
}

func (f *fakeS3) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// memoryMeta is a MetaStore kept in a map, with an injectable save error.
type memoryMeta struct {
	mu      sync.Mutex
	saved   map[string]*FileMetadata
	saveErr error
}

func newMemoryMeta() *memoryMeta {
	return &memoryMeta{saved: make(map[string]*FileMetadata)}
}

func (m *memoryMeta) SaveFileMeta(_ context.Context, key string, metadata *FileMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[key] = metadata
	return nil
}

func (m *memoryMeta) GetFileMeta(_ context.Context, key string) (*FileMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.saved[key]
	if !ok {
		return nil, ErrNotFound
	}
	return meta, nil
}

func (m *memoryMeta) Close() error {
	return nil
}

func newMinioTestStore(t *testing.T, buckets ...string) (*MinioStore, *fakeS3, *memoryMeta) {
	t.Helper()
	s3 := &fakeS3{buckets: make(map[string]bool), objects: make(map[string]bool)}
	for _, b := range buckets {
		s3.buckets[b] = true
	}
	srv := httptest.NewServer(s3)
	t.Cleanup(srv.Close)

	meta := newMemoryMeta()
	store, err := NewMinioStore(MinioConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	}, meta)
	require.NoError(t, err)
	return store, s3, meta
}

func TestMinioStore_Put(t *testing.T) {
	ctx := context.Background()

	t.Run("stores object and metadata", func(t *testing.T) {
		store, s3, meta := newMinioTestStore(t, "uploads")

		id, err := store.Put(ctx, newObject())
		require.NoError(t, err)
		assert.True(t, s3.seen("PUT uploads/"+id))
		assert.Contains(t, meta.saved, id)

		got, err := store.Stat(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "uploads/"+id, got.StoragePath)
		assert.Equal(t, "text/plain", got.ContentType)

		_, err = store.Put(ctx, newObject())
		require.NoError(t, err)
		assert.Equal(t, 1, s3.count("HEAD uploads"), "bucket existence is cached")
	})

	t.Run("creates a missing bucket", func(t *testing.T) {
		store, s3, _ := newMinioTestStore(t)

		_, err := store.Put(ctx, newObject())
		require.NoError(t, err)
		assert.True(t, s3.seen("PUT uploads"))
	})

	t.Run("metadata failure removes the object", func(t *testing.T) {
		store, s3, meta := newMinioTestStore(t, "uploads")
		meta.saveErr = errors.New("dial tcp: connection refused")

		id, err := store.Put(ctx, newObject())
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Empty(t, id)
		assert.Empty(t, meta.saved)

		assert.Equal(t, 1, s3.count("PUT uploads/"))
		assert.Equal(t, 1, s3.count("DELETE uploads/"))
		assert.Empty(t, s3.objects)
	})

	t.Run("invalid bucket never reaches the server", func(t *testing.T) {
		store, s3, _ := newMinioTestStore(t)
		obj := newObject()
		obj.Bucket = "../etc"

		_, err := store.Put(ctx, obj)
		assert.ErrorIs(t, err, ErrInvalidBucket)
		assert.Empty(t, s3.requests)
	})
}

func TestNewMinioStore(t *testing.T) {
	_, err := NewMinioStore(MinioConfig{}, newMemoryMeta())
	assert.EqualError(t, err, "minio endpoint is not set")

	_, err = NewMinioStore(MinioConfig{Endpoint: "localhost:9000"}, nil)
	assert.EqualError(t, err, "minio store requires a metadata store")
}
