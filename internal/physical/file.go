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
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"pathmapd/internal/common"
)

const (
	level1DirLength = 2
	level2DirLength = 2
)

// FileStore keeps blobs in a flat file tree under baseDir, sharded
// into two directory levels derived from the blob ID prefix.
type FileStore struct {
	baseDir string
}

// NewFileStore returns a store rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func storageDir(fileID string) string {
	return filepath.Join(fileID[:level1DirLength], fileID[level1DirLength:level1DirLength+level2DirLength])
}

func (s *FileStore) GetFileInfo(fileSystem, path string) FileInfo {
	id := common.RandomFileID()
	return FileInfo{
		FileID:      id,
		FileStorage: filepath.Join(storageDir(id), id),
	}
}

func (s *FileStore) GetOutputStream(info FileInfo) (io.WriteCloser, error) {
	target := filepath.Join(s.baseDir, info.FileStorage)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}
	return os.Create(target)
}

func (s *FileStore) GetInputStream(storage string) (io.ReadCloser, error) {
	target := filepath.Join(s.baseDir, storage)
	f, err := os.Open(target)
	if os.IsNotExist(err) {
		log.Debugf("Target file not exists, file: %s", target)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil
	}
	return f, nil
}

func (s *FileStore) Delete(info FileInfo) bool {
	target := filepath.Join(s.baseDir, info.FileStorage)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Errorf("Failed to delete file: %s", target)
		return false
	}
	return true
}
