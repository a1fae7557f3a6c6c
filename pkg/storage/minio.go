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
	"errors"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fawa-io/fileanalyse/pkg/util"
)

// MinioConfig holds the connection settings for a MinIO/S3 endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region    string
}

// MinioStore writes object bytes to MinIO and their metadata to a MetaStore.
type MinioStore struct {
	client *minio.Client
	meta   MetaStore

	// buckets caches the names already known to exist.
	buckets sync.Map
}

// NewMinioStore creates a MinIO client. Buckets are created on first use.
func NewMinioStore(cfg MinioConfig, meta MetaStore) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is not set")
	}
	if meta == nil {
		return nil, errors.New("minio store requires a metadata store")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client, meta: meta}, nil
}

func (m *MinioStore) Put(ctx context.Context, obj *Object) (string, error) {
	if err := checkObject(obj); err != nil {
		return "", err
	}
	if err := m.ensureBucket(ctx, obj.Bucket); err != nil {
		return "", err
	}

	id := util.NewObjectKey()
	_, err := m.client.PutObject(ctx, obj.Bucket, id, bytes.NewReader(obj.Content), int64(len(obj.Content)),
		minio.PutObjectOptions{ContentType: obj.ContentType})
	if err != nil {
		return "", unavailable("put object", err)
	}

	if err := m.meta.SaveFileMeta(ctx, id, newMetadata(id, obj, obj.Bucket+"/"+id)); err != nil {
		if rmErr := m.client.RemoveObject(ctx, obj.Bucket, id, minio.RemoveObjectOptions{}); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
		if errors.Is(err, ErrUnavailable) {
			return "", err
		}
		return "", unavailable("save metadata", err)
	}
	return id, nil
}

func (m *MinioStore) Stat(ctx context.Context, id string) (*FileMetadata, error) {
	return m.meta.GetFileMeta(ctx, id)
}

// Ping checks that the MinIO endpoint answers and, when the metadata store
// supports it, that the metadata backend does too.
func (m *MinioStore) Ping(ctx context.Context) error {
	if _, err := m.client.ListBuckets(ctx); err != nil {
		return unavailable("ping minio", err)
	}
	if p, ok := m.meta.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (m *MinioStore) Close() error {
	return m.meta.Close()
}

func (m *MinioStore) ensureBucket(ctx context.Context, bucket string) error {
	if _, ok := m.buckets.Load(bucket); ok {
		return nil
	}
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return unavailable("check bucket", err)
	}
	if !exists {
		err = m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return unavailable("make bucket", err)
		}
	}
	m.buckets.Store(bucket, struct{}{})
	return nil
}
