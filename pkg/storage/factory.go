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
	"fmt"
	"strings"
	"time"
)

// Driver names accepted by New.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverDisk   = "disk"
	DriverMongo  = "mongo"
	DriverMinio  = "minio"
)

// Config selects and configures a Store backend.
type Config struct {
	Driver        string        `mapstructure:"driver"`
	Bucket        string        `mapstructure:"bucket"`
	Dir           string        `mapstructure:"dir"`
	MongoURI      string        `mapstructure:"mongoURI"`
	MongoDatabase string        `mapstructure:"mongoDatabase"`
	MinioEndpoint string        `mapstructure:"minioEndpoint"`
	MinioAccess   string        `mapstructure:"minioAccessKey"`
	MinioSecret   string        `mapstructure:"minioSecretKey"`
	MinioUseSSL   bool          `mapstructure:"minioUseSSL"`
	MinioRegion   string        `mapstructure:"minioRegion"`
	RedisAddr     string        `mapstructure:"redisAddr"`
	RedisPassword string        `mapstructure:"redisPassword"`
	MetaTTL       time.Duration `mapstructure:"metaTTL"`
}

// New builds the Store named by cfg.Driver. It returns a nil Store and a
// nil error for DriverNone, meaning accepted files are not persisted.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Bucket != "" && !ValidBucket(cfg.Bucket) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBucket, cfg.Bucket)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverNone:
		return nil, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverDisk:
		return NewDiskStore(cfg.Dir)
	case DriverMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case DriverMinio:
		meta, err := NewDragonflyStorage(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.MetaTTL)
		if err != nil {
			return nil, err
		}
		store, err := NewMinioStore(MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccess,
			SecretKey: cfg.MinioSecret,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
		}, meta)
		if err != nil {
			_ = meta.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: '%s'", cfg.Driver)
	}
}
