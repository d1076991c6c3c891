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

package pathdb

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathmapd/internal/physical"
)

// memBlobStore is a physical.Store remembering which storage tokens
// were deleted.
type memBlobStore struct {
	mu      sync.Mutex
	deleted []string
	fail    bool
}

func (b *memBlobStore) GetFileInfo(fileSystem, path string) physical.FileInfo {
	return physical.FileInfo{}
}

func (b *memBlobStore) GetOutputStream(physical.FileInfo) (io.WriteCloser, error) {
	return nil, nil
}

func (b *memBlobStore) GetInputStream(string) (io.ReadCloser, error) {
	return nil, nil
}

func (b *memBlobStore) Delete(info physical.FileInfo) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return false
	}
	b.deleted = append(b.deleted, info.FileStorage)
	return true
}

func (b *memBlobStore) deletedStorages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

func TestSweepReclaimsOrphanedBlob(t *testing.T) {
	db, store := newTestDB(t, Options{})
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	db.now = func() time.Time { return base }

	insertFile(t, db, "fs", "/a.txt", "F1", 5, "st1", "C1")
	db.sync()
	_, err := db.Delete(ctx, "fs", "/a.txt", false)
	require.NoError(t, err)
	db.sync()

	db.now = func() time.Time { return base.Add(time.Second) }
	blobs := &memBlobStore{}
	sweeper := NewSweeper(db, blobs, 0)

	reclaimed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)
	assert.Equal(t, []string{"st1"}, blobs.deletedStorages())

	// Queue entry and the race-detection reverse-map row are gone.
	assert.Equal(t, 0, store.reclaimCount("st1"))
	store.mu.Lock()
	_, reverseKept := store.reverse["F1"]
	store.mu.Unlock()
	assert.False(t, reverseKept)

	// A second sweep finds nothing.
	reclaimed, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
}

func TestSweepAbortsWhenBlobReReferenced(t *testing.T) {
	db, store := newTestDB(t, Options{})
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	db.now = func() time.Time { return base }

	insertFile(t, db, "fs", "/a.txt", "F1", 5, "st1", "C1")
	db.sync()
	_, err := db.Delete(ctx, "fs", "/a.txt", false)
	require.NoError(t, err)
	db.sync()

	// A racing insert re-added a reference after the blob was
	// enqueued. The sweep must keep the bytes and drop the stale
	// queue entry.
	require.NoError(t, store.AddReversePath(ctx, "F1", "fs2:/b.txt"))

	db.now = func() time.Time { return base.Add(time.Second) }
	blobs := &memBlobStore{}
	sweeper := NewSweeper(db, blobs, 0)

	reclaimed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
	assert.Empty(t, blobs.deletedStorages())
	assert.Equal(t, 0, store.reclaimCount("st1"))
}

func TestSweepKeepsEntryOnPhysicalDeleteFailure(t *testing.T) {
	db, store := newTestDB(t, Options{})
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	db.now = func() time.Time { return base }

	insertFile(t, db, "fs", "/a.txt", "F1", 5, "st1", "")
	db.sync()
	_, err := db.Delete(ctx, "fs", "/a.txt", false)
	require.NoError(t, err)
	db.sync()

	db.now = func() time.Time { return base.Add(time.Second) }
	blobs := &memBlobStore{fail: true}
	sweeper := NewSweeper(db, blobs, 0)

	reclaimed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
	// Entry survives for the next sweep.
	assert.Equal(t, 1, store.reclaimCount("st1"))

	blobs.fail = false
	reclaimed, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)
}
