// Copyright 2025 Pathmapd Authors
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

package physical

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"pathmapd/internal/common"
	"pathmapd/internal/config"
)

// ObjectStore keeps blobs in an object-store bucket. The storage
// token is the object key, sharded with the same two-level prefix as
// the file store.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore connects and ensures the bucket exists.
func NewObjectStore(cfg config.ObjectStore) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store %s: %w", cfg.Endpoint, err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *ObjectStore) GetFileInfo(fileSystem, p string) FileInfo {
	id := common.RandomFileID()
	return FileInfo{
		FileID:      id,
		FileStorage: path.Join(id[:level1DirLength], id[level1DirLength:level1DirLength+level2DirLength], id),
	}
}

// objectWriter streams into PutObject through a pipe; Close reports
// the upload result.
type objectWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *objectWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *objectWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (s *ObjectStore) GetOutputStream(info FileInfo) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := s.client.PutObject(context.Background(), s.bucket, info.FileStorage, pr, -1,
			minio.PutObjectOptions{ContentType: "application/octet-stream"})
		if err != nil {
			pr.CloseWithError(err)
		}
		done <- err
	}()
	return &objectWriter{pw: pw, done: done}, nil
}

func (s *ObjectStore) GetInputStream(storage string) (io.ReadCloser, error) {
	ctx := context.Background()
	obj, err := s.client.GetObject(ctx, s.bucket, storage, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			log.Debugf("Target object not exists, key: %s", storage)
			return nil, nil
		}
		return nil, err
	}
	return obj, nil
}

func (s *ObjectStore) Delete(info FileInfo) bool {
	err := s.client.RemoveObject(context.Background(), s.bucket, info.FileStorage, minio.RemoveObjectOptions{})
	if err != nil {
		log.WithError(err).Errorf("Failed to delete object: %s", info.FileStorage)
		return false
	}
	return true
}
