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
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const metaKeyPrefix = "fileanalyse:meta:"

// DragonflyStorage implements MetaStore using Dragonfly/Redis.
type DragonflyStorage struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewDragonflyStorage connects to addr and checks the connection. A zero
// ttl keeps metadata until it is deleted.
func NewDragonflyStorage(ctx context.Context, addr, password string, ttl time.Duration) (*DragonflyStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0, // use default DB
	})
	// Check the connection.
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("connect dragonfly", err)
	}
	return &DragonflyStorage{client: client, ttl: ttl}, nil
}

// SaveFileMeta implements the MetaStore interface.
func (d *DragonflyStorage) SaveFileMeta(ctx context.Context, key string, metadata *FileMetadata) error {
	if metadata == nil {
		return errors.New("metadata cannot be nil")
	}
	jsonMetadata, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	if err := d.client.Set(ctx, metaKeyPrefix+key, jsonMetadata, d.ttl).Err(); err != nil {
		return unavailable("save metadata", err)
	}
	return nil
}

// GetFileMeta implements the MetaStore interface.
func (d *DragonflyStorage) GetFileMeta(ctx context.Context, key string) (*FileMetadata, error) {
	val, err := d.client.Get(ctx, metaKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get metadata", err)
	}

	var metadata FileMetadata
	if err := json.Unmarshal([]byte(val), &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

func (d *DragonflyStorage) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping dragonfly", err)
	}
	return nil
}

func (d *DragonflyStorage) Close() error {
	if c, ok := d.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
