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
)

// Store is the index-store contract the engine drives. Implementations
// own statement preparation and consistency levels; the engine owns
// the multi-table protocol built on top.
//
// Reads that back a read-after-write decision (ExistsExact, ExistsIn,
// and the reverse-map reduction in RemoveReversePath) run at QUORUM;
// everything else uses the store default.
type Store interface {
	// Path map table. GetPathMap returns (nil, nil) when the row is
	// missing.
	GetPathMap(ctx context.Context, fileSystem, parentPath, filename string) (*PathMap, error)
	SavePathMap(ctx context.Context, entry *PathMap) error
	DeletePathMap(ctx context.Context, fileSystem, parentPath, filename string) error
	ListPathMaps(ctx context.Context, fileSystem, parentPath string) ([]*PathMap, error)
	CountPathMaps(ctx context.Context, fileSystem, parentPath string) (int64, error)
	// ExistsExact counts rows at the exact primary key (QUORUM).
	ExistsExact(ctx context.Context, fileSystem, parentPath, filename string) (bool, error)
	// ExistsIn probes (parentPath, filenames...) with an IN list
	// (QUORUM) and returns the first matching filename.
	ExistsIn(ctx context.Context, fileSystem, parentPath string, filenames []string) (string, bool, error)
	UpdateExpiration(ctx context.Context, fileSystem, parentPath, filename string, expiration time.Time) error
	// FilesystemsContaining returns the subset of candidates holding
	// the exact (parentPath, filename) row. Result order is whatever
	// the store yields; callers needing candidate order filter.
	FilesystemsContaining(ctx context.Context, candidates []string, parentPath, filename string) (map[string]struct{}, error)

	// Checksum index.
	GetFileChecksum(ctx context.Context, checksum string) (*FileChecksum, error)
	SaveFileChecksum(ctx context.Context, checksum *FileChecksum) error
	DeleteFileChecksum(ctx context.Context, checksum string) error

	// Reverse map. Removal runs at QUORUM so a concurrent orphan
	// check observes it.
	AddReversePath(ctx context.Context, fileID, marshalledPath string) error
	RemoveReversePath(ctx context.Context, fileID, marshalledPath string) error
	GetReversePaths(ctx context.Context, fileID string) ([]string, error)
	DeleteReverseMap(ctx context.Context, fileID string) error

	// Filesystem counters. Increment with negative deltas decrements.
	IncrementFilesystem(ctx context.Context, fileSystem string, fileCount, size int64) error
	GetFilesystem(ctx context.Context, fileSystem string) (*Filesystem, error)
	ListFilesystems(ctx context.Context) ([]*Filesystem, error)
	DeleteFilesystem(ctx context.Context, fileSystem string) error

	// Reclaim queue.
	SaveReclaim(ctx context.Context, reclaim *Reclaim) error
	ListReclaim(ctx context.Context, partition int, before time.Time, limit int) ([]*Reclaim, error)
	DeleteReclaim(ctx context.Context, reclaim *Reclaim) error

	// Proxy sites.
	IsProxySite(ctx context.Context, site string) (bool, error)
	ListProxySites(ctx context.Context) ([]string, error)
	SaveProxySite(ctx context.Context, site string) error
	DeleteProxySite(ctx context.Context, site string) error
	TruncateProxySites(ctx context.Context) error

	Close() error
}
