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
	"bytes"
	"context"
	"sync"

	"github.com/fawa-io/fileanalyse/pkg/util"
)

type memoryObject struct {
	meta    FileMetadata
	content []byte
}

// MemoryStore keeps objects in process memory. Useful for development and
// tests; contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memoryObject)}
}

func (m *MemoryStore) Put(ctx context.Context, obj *Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkObject(obj); err != nil {
		return "", err
	}
	id := util.NewObjectKey()
	meta := newMetadata(id, obj, obj.Bucket+"/"+id)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = &memoryObject{meta: *meta, content: bytes.Clone(obj.Content)}
	return id, nil
}

func (m *MemoryStore) Stat(ctx context.Context, id string) (*FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	meta := o.meta
	return &meta, nil
}

// Content returns a copy of the stored bytes for id.
func (m *MemoryStore) Content(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(o.content), nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryStore) Close() error {
	return nil
}
