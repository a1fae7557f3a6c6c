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
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fawa-io/fileanalyse/pkg/util"
)

const metaDirName = "_meta"

// DiskStore writes objects to <root>/<bucket>/<id> and their metadata to
// <root>/_meta/<id>.json. Paths are built from server-generated ids and
// validated bucket labels only.
type DiskStore struct {
	root string
}

// NewDiskStore creates root if needed and returns a store rooted there.
func NewDiskStore(root string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := util.EnsureDir(filepath.Join(abs, metaDirName)); err != nil {
		return nil, unavailable("create upload dir", err)
	}
	return &DiskStore{root: abs}, nil
}

func (d *DiskStore) Put(ctx context.Context, obj *Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkObject(obj); err != nil {
		return "", err
	}

	id := util.NewObjectKey()
	bucketDir := filepath.Join(d.root, obj.Bucket)
	if err := util.EnsureDir(bucketDir); err != nil {
		return "", unavailable("create bucket dir", err)
	}

	contentPath := filepath.Join(bucketDir, id)
	if err := writeFileAtomic(contentPath, obj.Content); err != nil {
		return "", unavailable("write object", err)
	}

	meta := newMetadata(id, obj, filepath.Join(obj.Bucket, id))
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(d.metaPath(id), data); err != nil {
		if rmErr := os.Remove(contentPath); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
		return "", unavailable("write metadata", err)
	}
	return id, nil
}

func (d *DiskStore) Stat(ctx context.Context, id string) (*FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !util.IsObjectKey(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(d.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("read metadata", err)
	}
	var meta FileMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (d *DiskStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(d.root); err != nil {
		return unavailable("stat upload dir", err)
	}
	return nil
}

func (d *DiskStore) Close() error {
	return nil
}

func (d *DiskStore) metaPath(id string) string {
	return filepath.Join(d.root, metaDirName, id+".json")
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it into place so readers never observe partial content.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
