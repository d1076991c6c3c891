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

// Package pathdb maps hierarchical path names within named
// filesystems to content-addressed blobs held in an external physical
// store. One logical write touches the path map, the checksum index,
// the reverse map, and the filesystem counters. The path map row and
// the checksum lookup (plus the checksum row on a miss) are handled on
// the caller's goroutine; directory materialization, reverse-map and
// counter updates, and reclaim enqueues run on a bounded background
// executor.
package pathdb

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"pathmapd/internal/common"
)

// Options tunes a PathDB instance.
type Options struct {
	// GCGracePeriodHours is the minimum age of a reclaim entry before
	// ListOrphanedFiles returns it. Zero or negative disables the
	// delay.
	GCGracePeriodHours int
	// Workers and QueueSize bound the background executor.
	Workers   int
	QueueSize int
}

// PathDB is the path map engine. All mutations of the checksum index,
// reverse map, filesystem counters, and reclaim queue are issued from
// here, never by external callers.
type PathDB struct {
	store Store
	jobs  *executor
	grace time.Duration

	now func() time.Time

	proxyMu     sync.Mutex
	proxyCache  map[string]struct{}
	proxyLoaded bool
}

// New builds a PathDB over the given store.
func New(store Store, opts Options) *PathDB {
	return &PathDB{
		store:      store,
		jobs:       newExecutor(opts.Workers, opts.QueueSize),
		grace:      time.Duration(opts.GCGracePeriodHours) * time.Hour,
		now:        time.Now,
		proxyCache: make(map[string]struct{}),
	}
}

// Close drains the background executor, then closes the store.
func (db *PathDB) Close() error {
	db.jobs.close()
	return db.store.Close()
}

// Exists reports whether the path names a file, a directory, or
// nothing. The root is always a directory. A path without a trailing
// "/" probes both the file row and the directory row.
func (db *PathDB) Exists(ctx context.Context, fileSystem, path string) (FileType, error) {
	if path == common.RootDir {
		return TypeDir, nil
	}
	parent, pok := common.ParentPath(path)
	name, nok := common.Filename(path)
	if !pok || !nok {
		return TypeNone, nil
	}

	names := []string{name}
	if !strings.HasSuffix(name, "/") {
		names = append(names, name+"/")
	}
	matched, found, err := db.store.ExistsIn(ctx, fileSystem, parent, names)
	if err != nil {
		return TypeNone, err
	}
	if !found {
		log.Tracef("%s not exists in fileSystem %s", path, fileSystem)
		return TypeNone, nil
	}
	if strings.HasSuffix(matched, "/") {
		return TypeDir, nil
	}
	return TypeFile, nil
}

// ExistsFile reports whether a file row exists at exactly
// (parentPath, filename). Unlike Exists it does not also probe the
// directory row for a path without a trailing "/", and it reads at
// QUORUM.
func (db *PathDB) ExistsFile(ctx context.Context, fileSystem, path string) (bool, error) {
	parent, pok := common.ParentPath(path)
	name, nok := common.Filename(path)
	if !pok || !nok {
		return false, nil
	}
	return db.store.ExistsExact(ctx, fileSystem, parent, name)
}

// IsDirectory reports whether a directory row exists for the path.
func (db *PathDB) IsDirectory(ctx context.Context, fileSystem, path string) (bool, error) {
	if path == common.RootDir {
		return true, nil
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	parent, pok := common.ParentPath(path)
	name, nok := common.Filename(path)
	if !pok || !nok {
		return false, nil
	}
	_, found, err := db.store.ExistsIn(ctx, fileSystem, parent, []string{name})
	return found, err
}

// IsFile reports whether a file row exists for the path.
func (db *PathDB) IsFile(ctx context.Context, fileSystem, path string) (bool, error) {
	if strings.HasSuffix(path, "/") {
		return false, nil
	}
	parent, pok := common.ParentPath(path)
	name, nok := common.Filename(path)
	if !pok || !nok {
		return false, nil
	}
	_, found, err := db.store.ExistsIn(ctx, fileSystem, parent, []string{name})
	return found, err
}

// List returns the direct children of a directory, filtered by file
// type.
func (db *PathDB) List(ctx context.Context, fileSystem, path string, fileType FileType) ([]*PathMap, error) {
	entries, err := db.store.ListPathMaps(ctx, fileSystem, common.NormalizeParentPath(path))
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.matches(fileType) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecursive walks the subtree under path and returns up to limit
// matching entries (limit <= 0 means unbounded).
func (db *PathDB) ListRecursive(ctx context.Context, fileSystem, path string, limit int, fileType FileType) ([]*PathMap, error) {
	var out []*PathMap
	err := db.Traverse(ctx, fileSystem, path, limit, fileType, func(entry *PathMap) {
		out = append(out, entry)
	})
	return out, err
}

// GetPathMap returns the raw entry for the path, without any
// expiration check. Missing rows and invalid paths yield (nil, nil).
func (db *PathDB) GetPathMap(ctx context.Context, fileSystem, path string) (*PathMap, error) {
	parent, pok := common.ParentPath(path)
	name, nok := common.Filename(path)
	if !pok || !nok {
		log.Debugf("getPathMap, fileSystem: %s, invalid path: %s", fileSystem, path)
		return nil, nil
	}
	return db.store.GetPathMap(ctx, fileSystem, parent, name)
}

// GetFileLength returns the stored size, or -1 if the path is absent.
func (db *PathDB) GetFileLength(ctx context.Context, fileSystem, path string) (int64, error) {
	entry, err := db.GetPathMap(ctx, fileSystem, path)
	if err != nil {
		return -1, err
	}
	if entry == nil {
		return -1, nil
	}
	return entry.Size, nil
}

// GetFileLastModified returns the creation time in epoch millis, or
// -1 for missing paths and directories.
func (db *PathDB) GetFileLastModified(ctx context.Context, fileSystem, path string) (int64, error) {
	entry, err := db.GetPathMap(ctx, fileSystem, path)
	if err != nil {
		return -1, err
	}
	if entry == nil || entry.FileID == "" {
		return -1, nil
	}
	return entry.Creation.UnixMilli(), nil
}

// GetStorageFile returns the physical location token for the path.
// An expired entry is deleted on read and reported as absent;
// expiration has no other trigger.
func (db *PathDB) GetStorageFile(ctx context.Context, fileSystem, path string) (string, error) {
	entry, err := db.GetPathMap(ctx, fileSystem, path)
	if err != nil || entry == nil {
		return "", err
	}
	if entry.Expiration != nil && entry.Expiration.Before(db.now()) {
		log.Infof("File expired, fileSystem: %s, path: %s, expiration: %s", fileSystem, path, entry.Expiration)
		if _, err := db.Delete(ctx, fileSystem, path, false); err != nil {
			return "", err
		}
		return "", nil
	}
	return entry.FileStorage, nil
}

// Expire sets the expiration timestamp on an entry.
func (db *PathDB) Expire(ctx context.Context, fileSystem, path string, expiration time.Time) error {
	log.Debugf("Set file expiration, fileSystem: %s, path: %s, expiration: %s", fileSystem, path, expiration)
	parent, pok := common.ParentPath(path)
	name, nok := common.Filename(path)
	if !pok || !nok {
		return common.ErrInvalidPath
	}
	return db.store.UpdateExpiration(ctx, fileSystem, parent, name, expiration)
}

// MakeDirs materializes the directory entry for path and its
// ancestors. When the directory row for path already exists nothing
// is written and the ancestors are not checked; otherwise the row and
// every ancestor row are written, present ones included. Idempotent;
// concurrent calls converge by last-writer-wins on identical rows.
func (db *PathDB) MakeDirs(ctx context.Context, fileSystem, path string) error {
	log.Debugf("Make dir, fileSystem: %s, path: %s", fileSystem, path)
	if path == common.RootDir {
		return nil
	}
	path = common.NormalizeParentPath(path)

	parent, pok := common.ParentPath(path)
	name, nok := common.Filename(path)
	if !pok || !nok {
		return common.ErrInvalidPath
	}

	if _, found, err := db.store.ExistsIn(ctx, fileSystem, parent, []string{name}); err != nil {
		return err
	} else if found {
		log.Debugf("Dir already exists, fileSystem: %s, path: %s", fileSystem, path)
		return nil
	}

	creation := db.now()
	entries := []*PathMap{{
		FileSystem: fileSystem,
		ParentPath: parent,
		Filename:   name,
		Creation:   creation,
	}}
	entries = append(entries, common.ParentsBottomUp(parent, func(p, f string) *PathMap {
		return &PathMap{FileSystem: fileSystem, ParentPath: p, Filename: f, Creation: creation}
	})...)

	for _, e := range entries {
		if err := db.store.SavePathMap(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Insert upserts a path map entry and runs the dedup protocol. The
// primary row write is synchronous; directory materialization,
// reverse-map and counter updates, and redundant-blob reclamation run
// in the background.
func (db *PathDB) Insert(ctx context.Context, fileSystem, path string, creation time.Time,
	expiration *time.Time, fileID string, size int64, fileStorage, checksum string) error {
	parent, pok := common.ParentPath(path)
	name, nok := common.Filename(path)
	if !pok || !nok {
		return common.ErrInvalidPath
	}
	return db.insert(ctx, &PathMap{
		FileSystem:  fileSystem,
		ParentPath:  parent,
		Filename:    name,
		FileID:      fileID,
		FileStorage: fileStorage,
		Size:        size,
		Creation:    creation,
		Expiration:  expiration,
		Checksum:    checksum,
	})
}

func (db *PathDB) insert(ctx context.Context, entry *PathMap) error {
	log.Debugf("Insert: %s:%s%s", entry.FileSystem, entry.ParentPath, entry.Filename)

	fileSystem := entry.FileSystem
	parent := entry.ParentPath
	db.jobs.submit("makeDirs", func() error {
		return db.MakeDirs(context.Background(), fileSystem, parent)
	})

	path := common.Normalize(parent, entry.Filename)
	prev, err := db.store.GetPathMap(ctx, fileSystem, parent, entry.Filename)
	if err != nil {
		return err
	}
	if prev != nil {
		if _, err := db.Delete(ctx, fileSystem, path, false); err != nil {
			return err
		}
	}

	isDuplicate := false
	if entry.Checksum != "" {
		existing, err := db.store.GetFileChecksum(ctx, entry.Checksum)
		if err != nil {
			return err
		}
		if existing != nil {
			log.Debugf("File checksum exists, use existing file: %s", existing.Storage)
			isDuplicate = true
			callerStorage := entry.FileStorage
			checksum := entry.Checksum
			entry.FileStorage = existing.Storage
			entry.FileID = existing.FileID
			// The caller already wrote its own blob; queue it for
			// reclamation under a tombstone key when it is not the
			// canonical one.
			if callerStorage != existing.Storage {
				tombstoneID := common.RandomFileID()
				db.jobs.submit("reclaim-duplicate", func() error {
					return db.reclaim(context.Background(), tombstoneID, callerStorage, checksum)
				})
			}
		} else {
			log.Debugf("File checksum not exists, mark current file as primary: %s", entry.Checksum)
			if err := db.store.SaveFileChecksum(ctx, &FileChecksum{
				Checksum: entry.Checksum,
				FileID:   entry.FileID,
				Storage:  entry.FileStorage,
			}); err != nil {
				return err
			}
		}
	}

	if err := db.store.SavePathMap(ctx, entry); err != nil {
		return err
	}

	fileID := entry.FileID
	size := entry.Size
	db.jobs.submit("post-insert", func() error {
		return db.postInsertion(context.Background(), fileSystem, path, fileID, size, isDuplicate)
	})

	log.Debugf("Insert finished: %s", entry.Filename)
	return nil
}

// postInsertion adds the reverse-map reference and bumps the
// filesystem counters. Duplicates share a blob so they contribute no
// additional bytes.
func (db *PathDB) postInsertion(ctx context.Context, fileSystem, path, fileID string, size int64, isDuplicate bool) error {
	if err := db.store.AddReversePath(ctx, fileID, common.Marshall(fileSystem, path)); err != nil {
		return err
	}
	if isDuplicate {
		size = 0
	}
	return db.store.IncrementFilesystem(ctx, fileSystem, 1, size)
}

// Delete removes the entry at path. Missing entries succeed
// (idempotent delete). Deleting a non-empty directory requires force
// and never cascades. Reference-count maintenance and reclamation run
// in the background.
func (db *PathDB) Delete(ctx context.Context, fileSystem, path string, force bool) (bool, error) {
	entry, err := db.GetPathMap(ctx, fileSystem, path)
	if err != nil {
		return false, err
	}
	if entry == nil && !strings.HasSuffix(path, "/") {
		// No file row; the path may name a directory.
		entry, err = db.GetPathMap(ctx, fileSystem, path+"/")
		if err != nil {
			return false, err
		}
	}
	if entry == nil {
		log.Debugf("File not exists, %s:%s", fileSystem, path)
		return true, nil
	}

	if entry.FileID == "" {
		empty, err := db.isEmptyDirectory(ctx, fileSystem, path)
		if err != nil {
			return false, err
		}
		if !force && !empty {
			log.Warnf("Can not delete non-empty directory, %s:%s", fileSystem, path)
			return false, nil
		}
		log.Infof("Delete dir (force: %t), %s:%s", force, fileSystem, path)
		return true, db.store.DeletePathMap(ctx, entry.FileSystem, entry.ParentPath, entry.Filename)
	}

	log.Infof("Delete pathMap, %s:%s", fileSystem, path)
	if err := db.store.DeletePathMap(ctx, entry.FileSystem, entry.ParentPath, entry.Filename); err != nil {
		return false, err
	}

	db.jobs.submit("post-delete", func() error {
		return db.postDeletion(context.Background(), fileSystem, path, entry)
	})
	return true, nil
}

// postDeletion removes the reverse-map reference, and when the blob
// has no references left deletes its checksum row, queues it for
// reclamation, and settles the counters. The emptied reverse-map row
// itself is kept until reclamation runs, as a race-detection artifact.
func (db *PathDB) postDeletion(ctx context.Context, fileSystem, path string, entry *PathMap) error {
	fileID := entry.FileID
	if err := db.store.RemoveReversePath(ctx, fileID, common.Marshall(fileSystem, path)); err != nil {
		return err
	}
	paths, err := db.store.GetReversePaths(ctx, fileID)
	if err != nil {
		return err
	}

	if len(paths) > 0 {
		// Other paths still share the blob.
		return db.store.IncrementFilesystem(ctx, fileSystem, -1, 0)
	}

	if entry.Checksum != "" {
		log.Debugf("Delete file checksum, %s", entry.Checksum)
		if err := db.store.DeleteFileChecksum(ctx, entry.Checksum); err != nil {
			return err
		}
	}
	if err := db.reclaim(ctx, fileID, entry.FileStorage, entry.Checksum); err != nil {
		return err
	}
	return db.store.IncrementFilesystem(ctx, fileSystem, -1, -entry.Size)
}

func (db *PathDB) isEmptyDirectory(ctx context.Context, fileSystem, path string) (bool, error) {
	count, err := db.store.CountPathMaps(ctx, fileSystem, common.NormalizeParentPath(path))
	if err != nil {
		return false, err
	}
	empty := count <= 0
	log.Tracef("Dir '%s' empty=%t in fileSystem '%s'", path, empty, fileSystem)
	return empty, nil
}

func (db *PathDB) reclaim(ctx context.Context, fileID, fileStorage, checksum string) error {
	deletion := db.now()
	reclaim := &Reclaim{
		Partition: reclaimPartition(deletion),
		Deletion:  deletion,
		FileID:    fileID,
		Storage:   fileStorage,
		Checksum:  checksum,
	}
	log.Debugf("Reclaim, fileId: %s, storage: %s", fileID, fileStorage)
	return db.store.SaveReclaim(ctx, reclaim)
}

// Copy creates a metadata-only copy: the destination shares the
// source's file ID, storage token, checksum, and size. An existing
// destination is deleted first. No bytes move.
func (db *PathDB) Copy(ctx context.Context, fromFileSystem, fromPath, toFileSystem, toPath string) (bool, error) {
	return db.copy(ctx, fromFileSystem, fromPath, toFileSystem, toPath, nil, nil)
}

// CopyAt is Copy with the destination's creation and expiration
// overridden.
func (db *PathDB) CopyAt(ctx context.Context, fromFileSystem, fromPath, toFileSystem, toPath string,
	creation time.Time, expiration *time.Time) (bool, error) {
	return db.copy(ctx, fromFileSystem, fromPath, toFileSystem, toPath, &creation, expiration)
}

func (db *PathDB) copy(ctx context.Context, fromFileSystem, fromPath, toFileSystem, toPath string,
	creation, expiration *time.Time) (bool, error) {
	source, err := db.GetPathMap(ctx, fromFileSystem, fromPath)
	if err != nil {
		return false, err
	}
	if source == nil {
		log.Warnf("Source not found, %s:%s", fromFileSystem, fromPath)
		return false, nil
	}

	target, err := db.GetPathMap(ctx, toFileSystem, toPath)
	if err != nil {
		return false, err
	}
	if target != nil {
		log.Infof("Target already exists, delete it. %s:%s", toFileSystem, toPath)
		if _, err := db.Delete(ctx, toFileSystem, toPath, false); err != nil {
			return false, err
		}
	}

	toParent, pok := common.ParentPath(toPath)
	toName, nok := common.Filename(toPath)
	if !pok || !nok {
		return false, common.ErrInvalidPath
	}

	entry := &PathMap{
		FileSystem:  toFileSystem,
		ParentPath:  toParent,
		Filename:    toName,
		FileID:      source.FileID,
		FileStorage: source.FileStorage,
		Size:        source.Size,
		Creation:    source.Creation,
		Expiration:  source.Expiration,
		Checksum:    source.Checksum,
	}
	if creation != nil {
		entry.Creation = *creation
		entry.Expiration = expiration
	}
	return true, db.insert(ctx, entry)
}

// ListOrphanedFiles returns reclaim entries from the current
// hour-of-day partition older than the grace period, up to limit
// (limit <= 0 means unbounded). A sweeper polling at least once per
// hour covers every partition.
func (db *PathDB) ListOrphanedFiles(ctx context.Context, limit int) ([]*Reclaim, error) {
	cur := db.now()
	threshold := cur
	if db.grace > 0 {
		threshold = cur.Add(-db.grace)
	}
	entries, err := db.store.ListReclaim(ctx, reclaimPartition(cur), threshold, limit)
	if err != nil {
		return nil, err
	}
	log.Infof("List orphaned files, cur: %s, threshold: %s, limit: %d, size: %d", cur, threshold, limit, len(entries))
	return entries, nil
}

// RemoveFromReclaim drops a reclaim entry once its blob is gone.
func (db *PathDB) RemoveFromReclaim(ctx context.Context, reclaim *Reclaim) error {
	return db.store.DeleteReclaim(ctx, reclaim)
}

// GetFilesystem returns the counters row, or nil when absent.
func (db *PathDB) GetFilesystem(ctx context.Context, fileSystem string) (*Filesystem, error) {
	return db.store.GetFilesystem(ctx, fileSystem)
}

// GetFilesystems lists all filesystems with their counters.
func (db *PathDB) GetFilesystems(ctx context.Context) ([]*Filesystem, error) {
	return db.store.ListFilesystems(ctx)
}

// PurgeFilesystem removes the counters row of an empty filesystem.
// Non-empty filesystems are left untouched.
func (db *PathDB) PurgeFilesystem(ctx context.Context, fs *Filesystem) error {
	if fs.FileCount != 0 {
		log.Warnf("Refuse to purge non-empty filesystem %s, fileCount: %d", fs.FileSystem, fs.FileCount)
		return nil
	}
	log.Infof("Purge filesystem: %s", fs.FileSystem)
	return db.store.DeleteFilesystem(ctx, fs.FileSystem)
}

// GetFileChecksum returns the canonical blob row for a checksum, or
// nil when absent.
func (db *PathDB) GetFileChecksum(ctx context.Context, checksum string) (*FileChecksum, error) {
	return db.store.GetFileChecksum(ctx, checksum)
}

// GetPathsByFileID returns the marshalled (filesystem, path) pairs
// referencing a blob.
func (db *PathDB) GetPathsByFileID(ctx context.Context, fileID string) ([]string, error) {
	return db.store.GetReversePaths(ctx, fileID)
}

// GetFileSystemContaining returns the subset of candidates holding
// the path.
func (db *PathDB) GetFileSystemContaining(ctx context.Context, candidates []string, path string) (map[string]struct{}, error) {
	log.Debugf("Get fileSystem containing path %s, candidates: %v", path, candidates)
	if path == common.RootDir {
		return map[string]struct{}{}, nil
	}
	parent, pok := common.ParentPath(path)
	name, nok := common.Filename(path)
	if !pok || !nok {
		return map[string]struct{}{}, nil
	}
	return db.store.FilesystemsContaining(ctx, candidates, parent, name)
}

// GetFirstFileSystemContaining returns the first candidate, in the
// caller's order, that contains the path. The store's IN query does
// not preserve order, so the result set is filtered against the
// candidate list.
func (db *PathDB) GetFirstFileSystemContaining(ctx context.Context, candidates []string, path string) (string, error) {
	found, err := db.GetFileSystemContaining(ctx, candidates, path)
	if err != nil {
		return "", err
	}
	for _, candidate := range candidates {
		if _, ok := found[candidate]; ok {
			return candidate, nil
		}
	}
	return "", nil
}
