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
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/fawa-io/fileanalyse/pkg/util"
)

const metaCollectionName = "filemeta"

// gridFSBucket is the part of *gridfs.Bucket the store writes through.
type gridFSBucket interface {
	UploadFromStreamWithID(fileID interface{}, filename string, source io.Reader, opts ...*options.UploadOptions) error
	DeleteContext(ctx context.Context, fileID interface{}) error
}

// metaCollection is the part of *mongo.Collection the store writes through.
type metaCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

// MongoStore writes object bytes to a GridFS bucket and their metadata to
// the filemeta collection of the same database.
type MongoStore struct {
	client  *mongo.Client
	meta    metaCollection
	buckets func(ctx context.Context, name string) (gridFSBucket, error)
}

// NewMongoStore connects to uri and pings the primary. The database named in
// uri wins over database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, err
	}
	if cs.Database != "" {
		database = cs.Database
	}
	if database == "" {
		return nil, errors.New("mongo database name is not set")
	}

	client, err := mongo.Connect(ctx,
		options.Client().ApplyURI(cs.String()),
		options.Client().SetConnectTimeout(10*time.Second),
		options.Client().SetServerSelectionTimeout(10*time.Second),
	)
	if err != nil {
		return nil, unavailable("connect mongodb", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unavailable("ping mongodb", err)
	}
	db := client.Database(database)
	return &MongoStore{
		client:  client,
		meta:    db.Collection(metaCollectionName),
		buckets: gridFSOpener(db),
	}, nil
}

// gridFSOpener opens the named GridFS bucket of db, bounding writes by the
// context deadline.
func gridFSOpener(db *mongo.Database) func(context.Context, string) (gridFSBucket, error) {
	return func(ctx context.Context, name string) (gridFSBucket, error) {
		bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(name))
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			if err := bucket.SetWriteDeadline(deadline); err != nil {
				return nil, err
			}
		}
		return bucket, nil
	}
}

func (m *MongoStore) Put(ctx context.Context, obj *Object) (string, error) {
	if err := checkObject(obj); err != nil {
		return "", err
	}

	bucket, err := m.buckets(ctx, obj.Bucket)
	if err != nil {
		return "", unavailable("open gridfs bucket", err)
	}

	id := util.NewObjectKey()
	upload := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: obj.ContentType}})
	if err := bucket.UploadFromStreamWithID(id, obj.Name, bytes.NewReader(obj.Content), upload); err != nil {
		return "", unavailable("upload gridfs", err)
	}

	meta := newMetadata(id, obj, obj.Bucket+".files/"+id)
	if _, err := m.meta.InsertOne(ctx, meta); err != nil {
		if delErr := bucket.DeleteContext(ctx, id); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return "", unavailable("insert metadata", err)
	}
	return id, nil
}

func (m *MongoStore) Stat(ctx context.Context, id string) (*FileMetadata, error) {
	var meta FileMetadata
	err := m.meta.FindOne(ctx, bson.M{"_id": id}).Decode(&meta)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find metadata", err)
	}
	return &meta, nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("ping mongodb", err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
