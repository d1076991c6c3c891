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
	"time"

	log "github.com/sirupsen/logrus"

	"pathmapd/internal/physical"
)

// Sweeper drives the reclamation lifecycle: list orphaned blobs past
// the grace period, re-check the reverse map, delete the bytes, and
// drop the queue entry. Running it at least once per hour covers
// every hour-of-day partition.
type Sweeper struct {
	db    *PathDB
	blobs physical.Store
	batch int
}

// NewSweeper builds a sweeper deleting through the given physical
// store. batch caps entries per sweep (<= 0 means unbounded).
func NewSweeper(db *PathDB, blobs physical.Store, batch int) *Sweeper {
	return &Sweeper{db: db, blobs: blobs, batch: batch}
}

// Run sweeps on the given interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			log.WithError(err).Error("Reclaim sweep failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce processes the current partition once and returns the
// number of blobs physically reclaimed.
//
// A blob whose reverse map is non-empty again was re-referenced after
// being enqueued (a delete racing an insert); its stale queue entry
// is dropped and the bytes stay. Double enqueues are harmless: the
// second pass finds the blob already gone and still clears its row.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	entries, err := s.db.ListOrphanedFiles(ctx, s.batch)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, entry := range entries {
		paths, err := s.db.GetPathsByFileID(ctx, entry.FileID)
		if err != nil {
			return reclaimed, err
		}
		if len(paths) > 0 {
			log.Infof("Blob re-referenced, abort reclaim, fileId: %s, paths: %d", entry.FileID, len(paths))
			if err := s.db.RemoveFromReclaim(ctx, entry); err != nil {
				return reclaimed, err
			}
			continue
		}

		if !s.blobs.Delete(physical.FileInfo{FileID: entry.FileID, FileStorage: entry.Storage}) {
			log.Warnf("Physical delete failed, keep reclaim entry, fileId: %s, storage: %s", entry.FileID, entry.Storage)
			continue
		}
		// The emptied reverse-map row was kept for race detection;
		// reclamation has now run, so clear it with the queue entry.
		if err := s.db.store.DeleteReverseMap(ctx, entry.FileID); err != nil {
			return reclaimed, err
		}
		if err := s.db.RemoveFromReclaim(ctx, entry); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	if reclaimed > 0 {
		log.Infof("Reclaimed %d blobs", reclaimed)
	}
	return reclaimed, nil
}
