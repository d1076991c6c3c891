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
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store used to drive the engine in tests.
// Listing orders rows by filename like the real table's clustering
// order.
type memStore struct {
	mu          sync.Mutex
	pathmaps    map[string]map[string]PathMap // fs "\x00" parentpath -> filename -> row
	checksums   map[string]FileChecksum
	reverse     map[string]map[string]struct{}
	filesystems map[string]*Filesystem
	reclaims    []Reclaim
	proxies     map[string]struct{}
}

func newMemStore() *memStore {
	return &memStore{
		pathmaps:    make(map[string]map[string]PathMap),
		checksums:   make(map[string]FileChecksum),
		reverse:     make(map[string]map[string]struct{}),
		filesystems: make(map[string]*Filesystem),
		proxies:     make(map[string]struct{}),
	}
}

func pmKey(fileSystem, parentPath string) string {
	return fileSystem + "\x00" + parentPath
}

func (m *memStore) GetPathMap(_ context.Context, fileSystem, parentPath, filename string) (*PathMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.pathmaps[pmKey(fileSystem, parentPath)][filename]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (m *memStore) SavePathMap(_ context.Context, entry *PathMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pmKey(entry.FileSystem, entry.ParentPath)
	if m.pathmaps[key] == nil {
		m.pathmaps[key] = make(map[string]PathMap)
	}
	m.pathmaps[key][entry.Filename] = *entry
	return nil
}

func (m *memStore) DeletePathMap(_ context.Context, fileSystem, parentPath, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pathmaps[pmKey(fileSystem, parentPath)], filename)
	return nil
}

func (m *memStore) ListPathMaps(_ context.Context, fileSystem, parentPath string) ([]*PathMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.pathmaps[pmKey(fileSystem, parentPath)]
	names := make([]string, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*PathMap, 0, len(names))
	for _, name := range names {
		cp := rows[name]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) CountPathMaps(_ context.Context, fileSystem, parentPath string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pathmaps[pmKey(fileSystem, parentPath)])), nil
}

func (m *memStore) ExistsExact(_ context.Context, fileSystem, parentPath, filename string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pathmaps[pmKey(fileSystem, parentPath)][filename]
	return ok, nil
}

func (m *memStore) ExistsIn(_ context.Context, fileSystem, parentPath string, filenames []string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.pathmaps[pmKey(fileSystem, parentPath)]
	// Natural clustering order, not argument order.
	sorted := append([]string(nil), filenames...)
	sort.Strings(sorted)
	for _, name := range sorted {
		if _, ok := rows[name]; ok {
			return name, true, nil
		}
	}
	return "", false, nil
}

func (m *memStore) UpdateExpiration(_ context.Context, fileSystem, parentPath, filename string, expiration time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.pathmaps[pmKey(fileSystem, parentPath)]
	row, ok := rows[filename]
	if !ok {
		return nil
	}
	row.Expiration = &expiration
	rows[filename] = row
	return nil
}

func (m *memStore) FilesystemsContaining(_ context.Context, candidates []string, parentPath, filename string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[string]struct{})
	for _, fs := range candidates {
		if _, ok := m.pathmaps[pmKey(fs, parentPath)][filename]; ok {
			found[fs] = struct{}{}
		}
	}
	return found, nil
}

func (m *memStore) GetFileChecksum(_ context.Context, checksum string) (*FileChecksum, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.checksums[checksum]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (m *memStore) SaveFileChecksum(_ context.Context, checksum *FileChecksum) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checksums[checksum.Checksum] = *checksum
	return nil
}

func (m *memStore) DeleteFileChecksum(_ context.Context, checksum string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checksums, checksum)
	return nil
}

func (m *memStore) AddReversePath(_ context.Context, fileID, marshalledPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reverse[fileID] == nil {
		m.reverse[fileID] = make(map[string]struct{})
	}
	m.reverse[fileID][marshalledPath] = struct{}{}
	return nil
}

func (m *memStore) RemoveReversePath(_ context.Context, fileID, marshalledPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reverse[fileID], marshalledPath)
	return nil
}

func (m *memStore) GetReversePaths(_ context.Context, fileID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.reverse[fileID]))
	for p := range m.reverse[fileID] {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *memStore) DeleteReverseMap(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reverse, fileID)
	return nil
}

func (m *memStore) IncrementFilesystem(_ context.Context, fileSystem string, fileCount, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs := m.filesystems[fileSystem]
	if fs == nil {
		fs = &Filesystem{FileSystem: fileSystem}
		m.filesystems[fileSystem] = fs
	}
	fs.FileCount += fileCount
	fs.Size += size
	return nil
}

func (m *memStore) GetFilesystem(_ context.Context, fileSystem string) (*Filesystem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.filesystems[fileSystem]
	if !ok {
		return nil, nil
	}
	cp := *fs
	return &cp, nil
}

func (m *memStore) ListFilesystems(_ context.Context) ([]*Filesystem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.filesystems))
	for name := range m.filesystems {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Filesystem, 0, len(names))
	for _, name := range names {
		cp := *m.filesystems[name]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) DeleteFilesystem(_ context.Context, fileSystem string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.filesystems, fileSystem)
	return nil
}

func (m *memStore) SaveReclaim(_ context.Context, reclaim *Reclaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaims = append(m.reclaims, *reclaim)
	return nil
}

func (m *memStore) ListReclaim(_ context.Context, partition int, before time.Time, limit int) ([]*Reclaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Reclaim
	for i := range m.reclaims {
		r := m.reclaims[i]
		if r.Partition != partition || !r.Deletion.Before(before) {
			continue
		}
		cp := r
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) DeleteReclaim(_ context.Context, reclaim *Reclaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.reclaims {
		if r.Partition == reclaim.Partition && r.Deletion.Equal(reclaim.Deletion) && r.FileID == reclaim.FileID {
			m.reclaims = append(m.reclaims[:i], m.reclaims[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) IsProxySite(_ context.Context, site string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.proxies[site]
	return ok, nil
}

func (m *memStore) ListProxySites(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.proxies))
	for site := range m.proxies {
		out = append(out, site)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) SaveProxySite(_ context.Context, site string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxies[site] = struct{}{}
	return nil
}

func (m *memStore) DeleteProxySite(_ context.Context, site string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.proxies, site)
	return nil
}

func (m *memStore) TruncateProxySites(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxies = make(map[string]struct{})
	return nil
}

func (m *memStore) Close() error { return nil }

// reclaimCount reports queue entries pointing at the given storage.
func (m *memStore) reclaimCount(storage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reclaims {
		if r.Storage == storage {
			n++
		}
	}
	return n
}
