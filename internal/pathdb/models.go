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
	"strings"
	"time"
)

// FileType classifies path map entries. Directories are entries whose
// filename ends in "/" and carry no file ID.
type FileType int

const (
	// TypeNone means the path does not exist.
	TypeNone FileType = iota
	// TypeAny matches both files and directories.
	TypeAny
	// TypeFile matches blob-backed entries only.
	TypeFile
	// TypeDir matches directory entries only.
	TypeDir
)

func (t FileType) String() string {
	switch t {
	case TypeAny:
		return "any"
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	default:
		return "none"
	}
}

// PathMap is one row of the path map table: a single path within a
// filesystem and the blob (if any) behind it.
type PathMap struct {
	FileSystem  string
	ParentPath  string
	Filename    string
	FileID      string // empty for directories
	FileStorage string
	Size        int64
	Creation    time.Time
	Expiration  *time.Time
	Checksum    string
}

// Path reconstructs the full path of the entry.
func (p *PathMap) Path() string {
	return strings.TrimSuffix(p.ParentPath, "/") + "/" + p.Filename
}

// IsDir reports whether the entry is a directory.
func (p *PathMap) IsDir() bool {
	return strings.HasSuffix(p.Filename, "/")
}

func (p *PathMap) matches(fileType FileType) bool {
	switch fileType {
	case TypeDir:
		return p.IsDir()
	case TypeFile:
		return !p.IsDir()
	default:
		return true
	}
}

// FileChecksum points at the canonical blob for a given content
// digest. A row exists iff at least one path map entry references its
// file ID.
type FileChecksum struct {
	Checksum string
	FileID   string
	Storage  string
}

// Filesystem carries the per-filesystem aggregate counters. Size
// counts only bytes attributable to primary (non-duplicate) inserts.
type Filesystem struct {
	FileSystem string
	FileCount  int64
	Size       int64
}

// Reclaim is one entry of the deferred-reclamation queue, partitioned
// by hour-of-day of the deletion time.
type Reclaim struct {
	Partition int
	Deletion  time.Time
	FileID    string
	Storage   string
	Checksum  string
}

// reclaimPartition buckets a deletion timestamp into one of 24
// hour-of-day partitions.
func reclaimPartition(t time.Time) int {
	return t.Hour()
}
