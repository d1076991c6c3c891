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
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"

	"pathmapd/internal/config"
)

// CassandraStore implements Store over a Cassandra keyspace. All
// calls pass through a session guard that lazily (re)establishes the
// session and retries exactly once when no host is available.
type CassandraStore struct {
	cfg config.Cassandra

	mu      sync.Mutex
	session *gocql.Session

	stmts statements
}

// statements holds the CQL text per operation, keyspace-qualified
// once at startup. gocql prepares and caches them per session.
type statements struct {
	existFile        string // QUORUM
	existIn          string // QUORUM
	list             string
	listCheckEmpty   string
	getPathMap       string
	savePathMap      string
	deletePathMap    string
	updateExpiration string
	containing       string

	getChecksum    string
	saveChecksum   string
	deleteChecksum string

	reverseIncrement string
	reverseReduction string // QUORUM
	reverseGet       string
	reverseDelete    string

	filesystemUpdate string
	filesystemGet    string
	filesystemList   string
	filesystemDelete string

	reclaimSave       string
	reclaimList       string
	reclaimListLimit  string
	reclaimDelete     string

	proxySiteGet      string
	proxySiteList     string
	proxySiteSave     string
	proxySiteDelete   string
	proxySiteTruncate string
}

// NewCassandraStore connects, runs the idempotent schema DDL, and
// returns a ready store.
func NewCassandraStore(cfg config.Cassandra) (*CassandraStore, error) {
	s := &CassandraStore{cfg: cfg}
	s.prepareStatements()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensureSessionLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CassandraStore) prepareStatements() {
	ks := s.cfg.Keyspace
	s.stmts = statements{
		existFile:        fmt.Sprintf("SELECT count(*) FROM %s.pathmap WHERE filesystem=? AND parentpath=? AND filename=?", ks),
		existIn:          fmt.Sprintf("SELECT filename FROM %s.pathmap WHERE filesystem=? AND parentpath=? AND filename IN ? LIMIT 1", ks),
		list:             fmt.Sprintf("SELECT filesystem, parentpath, filename, fileid, filestorage, size, creation, expiration, checksum FROM %s.pathmap WHERE filesystem=? AND parentpath=?", ks),
		listCheckEmpty:   fmt.Sprintf("SELECT count(*) FROM %s.pathmap WHERE filesystem=? AND parentpath=?", ks),
		getPathMap:       fmt.Sprintf("SELECT filesystem, parentpath, filename, fileid, filestorage, size, creation, expiration, checksum FROM %s.pathmap WHERE filesystem=? AND parentpath=? AND filename=?", ks),
		savePathMap:      fmt.Sprintf("INSERT INTO %s.pathmap (filesystem, parentpath, filename, fileid, filestorage, size, creation, expiration, checksum) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", ks),
		deletePathMap:    fmt.Sprintf("DELETE FROM %s.pathmap WHERE filesystem=? AND parentpath=? AND filename=?", ks),
		updateExpiration: fmt.Sprintf("UPDATE %s.pathmap SET expiration=? WHERE filesystem=? AND parentpath=? AND filename=?", ks),
		containing:       fmt.Sprintf("SELECT filesystem FROM %s.pathmap WHERE filesystem IN ? AND parentpath=? AND filename=?", ks),

		getChecksum:    fmt.Sprintf("SELECT checksum, fileid, storage FROM %s.filechecksum WHERE checksum=?", ks),
		saveChecksum:   fmt.Sprintf("INSERT INTO %s.filechecksum (checksum, fileid, storage) VALUES (?, ?, ?)", ks),
		deleteChecksum: fmt.Sprintf("DELETE FROM %s.filechecksum WHERE checksum=?", ks),

		reverseIncrement: fmt.Sprintf("UPDATE %s.reversemap SET paths = paths + ? WHERE fileid=?", ks),
		reverseReduction: fmt.Sprintf("UPDATE %s.reversemap SET paths = paths - ? WHERE fileid=?", ks),
		reverseGet:       fmt.Sprintf("SELECT paths FROM %s.reversemap WHERE fileid=?", ks),
		reverseDelete:    fmt.Sprintf("DELETE FROM %s.reversemap WHERE fileid=?", ks),

		filesystemUpdate: fmt.Sprintf("UPDATE %s.filesystem SET filecount=filecount+?, size=size+? WHERE filesystem=?", ks),
		filesystemGet:    fmt.Sprintf("SELECT filesystem, filecount, size FROM %s.filesystem WHERE filesystem=?", ks),
		filesystemList:   fmt.Sprintf("SELECT filesystem, filecount, size FROM %s.filesystem", ks),
		filesystemDelete: fmt.Sprintf("DELETE FROM %s.filesystem WHERE filesystem=?", ks),

		reclaimSave:      fmt.Sprintf("INSERT INTO %s.reclaim (partition, deletion, fileid, storage, checksum) VALUES (?, ?, ?, ?, ?)", ks),
		reclaimList:      fmt.Sprintf("SELECT partition, deletion, fileid, storage, checksum FROM %s.reclaim WHERE partition=? AND deletion<?", ks),
		reclaimListLimit: fmt.Sprintf("SELECT partition, deletion, fileid, storage, checksum FROM %s.reclaim WHERE partition=? AND deletion<? LIMIT ?", ks),
		reclaimDelete:    fmt.Sprintf("DELETE FROM %s.reclaim WHERE partition=? AND deletion=? AND fileid=?", ks),

		proxySiteGet:      fmt.Sprintf("SELECT site FROM %s.proxysites WHERE site=?", ks),
		proxySiteList:     fmt.Sprintf("SELECT site FROM %s.proxysites", ks),
		proxySiteSave:     fmt.Sprintf("INSERT INTO %s.proxysites (site) VALUES (?)", ks),
		proxySiteDelete:   fmt.Sprintf("DELETE FROM %s.proxysites WHERE site=?", ks),
		proxySiteTruncate: fmt.Sprintf("TRUNCATE %s.proxysites", ks),
	}
}

// ensureSessionLocked returns the live session, establishing it and
// re-running the schema DDL when absent or closed. Caller holds mu.
func (s *CassandraStore) ensureSessionLocked() (*gocql.Session, error) {
	if s.session != nil && !s.session.Closed() {
		return s.session, nil
	}
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}

	cluster := gocql.NewCluster(s.cfg.Host)
	cluster.Port = s.cfg.Port
	cluster.Consistency = gocql.One
	cluster.ReconnectInterval = time.Duration(s.cfg.ReconnectDelayMS) * time.Millisecond
	if s.cfg.Username != "" && s.cfg.Password != "" {
		log.Debugf("Connect with credentials, user: %s, pass: ****", s.cfg.Username)
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: s.cfg.Username,
			Password: s.cfg.Password,
		}
	}

	log.Debugf("Connecting to Cassandra, host: %s, port: %d", s.cfg.Host, s.cfg.Port)
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect cassandra %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}

	if err := s.createSchema(session); err != nil {
		session.Close()
		return nil, err
	}
	s.session = session
	return session, nil
}

// createSchema runs the idempotent keyspace and table DDL.
func (s *CassandraStore) createSchema(session *gocql.Session) error {
	ks := s.cfg.Keyspace
	ddl := []string{
		fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
			ks, s.cfg.ReplicationFactor),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.pathmap (filesystem varchar, parentpath varchar, filename varchar, fileid varchar, filestorage varchar, size bigint, creation timestamp, expiration timestamp, checksum varchar, PRIMARY KEY ((filesystem, parentpath), filename))", ks),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.reversemap (fileid varchar, paths set<varchar>, PRIMARY KEY (fileid))", ks),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.reclaim (partition int, deletion timestamp, fileid varchar, storage varchar, checksum varchar, PRIMARY KEY (partition, deletion, fileid))", ks),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.filechecksum (checksum varchar, fileid varchar, storage varchar, PRIMARY KEY (checksum))", ks),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.filesystem (filesystem varchar, filecount counter, size counter, PRIMARY KEY (filesystem))", ks),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.proxysites (site varchar, PRIMARY KEY (site))", ks),
	}
	for _, stmt := range ddl {
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// isNoHostAvailable reports the connectivity failure the shim retries.
func isNoHostAvailable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gocql.ErrNoConnections) ||
		errors.Is(err, gocql.ErrNoConnectionsStarted) ||
		strings.Contains(err.Error(), "no hosts available")
}

// run executes fn through the session guard: establish the session if
// needed, and on a no-host failure tear down, re-establish, and retry
// exactly once. A second failure propagates.
func (s *CassandraStore) run(fn func(session *gocql.Session) error) error {
	return retry.Do(
		func() error {
			s.mu.Lock()
			session, err := s.ensureSessionLocked()
			s.mu.Unlock()
			if err != nil {
				return err
			}
			return fn(session)
		},
		retry.Attempts(2),
		retry.Delay(0),
		retry.RetryIf(isNoHostAvailable),
		retry.OnRetry(func(_ uint, err error) {
			log.WithError(err).Error("Cannot connect to host, reconnect once more with new session")
			s.recycle()
		}),
		retry.LastErrorOnly(true),
	)
}

// recycle drops the current session so the next call rebuilds it.
func (s *CassandraStore) recycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
}

// Close shuts the session down.
func (s *CassandraStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		log.Info("Close cassandra session")
		s.session.Close()
		s.session = nil
	}
	return nil
}

func scanPathMap(scan func(dest ...interface{}) error) (*PathMap, error) {
	var (
		entry      PathMap
		expiration time.Time
	)
	err := scan(&entry.FileSystem, &entry.ParentPath, &entry.Filename, &entry.FileID,
		&entry.FileStorage, &entry.Size, &entry.Creation, &expiration, &entry.Checksum)
	if err != nil {
		return nil, err
	}
	if !expiration.IsZero() {
		entry.Expiration = &expiration
	}
	return &entry, nil
}

func (s *CassandraStore) GetPathMap(ctx context.Context, fileSystem, parentPath, filename string) (*PathMap, error) {
	var entry *PathMap
	err := s.run(func(session *gocql.Session) error {
		q := session.Query(s.stmts.getPathMap, fileSystem, parentPath, filename).WithContext(ctx)
		defer q.Release()
		got, err := scanPathMap(q.Scan)
		if errors.Is(err, gocql.ErrNotFound) {
			return nil
		}
		entry = got
		return err
	})
	return entry, err
}

func (s *CassandraStore) SavePathMap(ctx context.Context, entry *PathMap) error {
	var expiration interface{}
	if entry.Expiration != nil {
		expiration = *entry.Expiration
	}
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.savePathMap,
			entry.FileSystem, entry.ParentPath, entry.Filename, entry.FileID,
			entry.FileStorage, entry.Size, entry.Creation, expiration, entry.Checksum).
			WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) DeletePathMap(ctx context.Context, fileSystem, parentPath, filename string) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.deletePathMap, fileSystem, parentPath, filename).
			WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) ListPathMaps(ctx context.Context, fileSystem, parentPath string) ([]*PathMap, error) {
	var entries []*PathMap
	err := s.run(func(session *gocql.Session) error {
		entries = entries[:0]
		iter := session.Query(s.stmts.list, fileSystem, parentPath).WithContext(ctx).Iter()
		for {
			entry, err := scanPathMap(func(dest ...interface{}) error {
				if !iter.Scan(dest...) {
					return gocql.ErrNotFound
				}
				return nil
			})
			if err != nil {
				break
			}
			entries = append(entries, entry)
		}
		return iter.Close()
	})
	return entries, err
}

func (s *CassandraStore) CountPathMaps(ctx context.Context, fileSystem, parentPath string) (int64, error) {
	var count int64
	err := s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.listCheckEmpty, fileSystem, parentPath).
			WithContext(ctx).Scan(&count)
	})
	return count, err
}

func (s *CassandraStore) ExistsExact(ctx context.Context, fileSystem, parentPath, filename string) (bool, error) {
	var count int64
	err := s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.existFile, fileSystem, parentPath, filename).
			WithContext(ctx).Consistency(gocql.Quorum).Scan(&count)
	})
	return count > 0, err
}

func (s *CassandraStore) ExistsIn(ctx context.Context, fileSystem, parentPath string, filenames []string) (string, bool, error) {
	var (
		matched string
		found   bool
	)
	err := s.run(func(session *gocql.Session) error {
		err := session.Query(s.stmts.existIn, fileSystem, parentPath, filenames).
			WithContext(ctx).Consistency(gocql.Quorum).Scan(&matched)
		if errors.Is(err, gocql.ErrNotFound) {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	return matched, found, err
}

func (s *CassandraStore) UpdateExpiration(ctx context.Context, fileSystem, parentPath, filename string, expiration time.Time) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.updateExpiration, expiration, fileSystem, parentPath, filename).
			WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) FilesystemsContaining(ctx context.Context, candidates []string, parentPath, filename string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	err := s.run(func(session *gocql.Session) error {
		iter := session.Query(s.stmts.containing, candidates, parentPath, filename).
			WithContext(ctx).Iter()
		var fs string
		for iter.Scan(&fs) {
			found[fs] = struct{}{}
		}
		return iter.Close()
	})
	return found, err
}

func (s *CassandraStore) GetFileChecksum(ctx context.Context, checksum string) (*FileChecksum, error) {
	var row *FileChecksum
	err := s.run(func(session *gocql.Session) error {
		var got FileChecksum
		err := session.Query(s.stmts.getChecksum, checksum).WithContext(ctx).
			Scan(&got.Checksum, &got.FileID, &got.Storage)
		if errors.Is(err, gocql.ErrNotFound) {
			return nil
		}
		if err == nil {
			row = &got
		}
		return err
	})
	return row, err
}

func (s *CassandraStore) SaveFileChecksum(ctx context.Context, checksum *FileChecksum) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.saveChecksum, checksum.Checksum, checksum.FileID, checksum.Storage).
			WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) DeleteFileChecksum(ctx context.Context, checksum string) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.deleteChecksum, checksum).WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) AddReversePath(ctx context.Context, fileID, marshalledPath string) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.reverseIncrement, []string{marshalledPath}, fileID).
			WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) RemoveReversePath(ctx context.Context, fileID, marshalledPath string) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.reverseReduction, []string{marshalledPath}, fileID).
			WithContext(ctx).Consistency(gocql.Quorum).Exec()
	})
}

func (s *CassandraStore) GetReversePaths(ctx context.Context, fileID string) ([]string, error) {
	var paths []string
	err := s.run(func(session *gocql.Session) error {
		err := session.Query(s.stmts.reverseGet, fileID).WithContext(ctx).Scan(&paths)
		if errors.Is(err, gocql.ErrNotFound) {
			return nil
		}
		return err
	})
	return paths, err
}

func (s *CassandraStore) DeleteReverseMap(ctx context.Context, fileID string) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.reverseDelete, fileID).WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) IncrementFilesystem(ctx context.Context, fileSystem string, fileCount, size int64) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.filesystemUpdate, fileCount, size, fileSystem).
			WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) GetFilesystem(ctx context.Context, fileSystem string) (*Filesystem, error) {
	var row *Filesystem
	err := s.run(func(session *gocql.Session) error {
		var got Filesystem
		err := session.Query(s.stmts.filesystemGet, fileSystem).WithContext(ctx).
			Scan(&got.FileSystem, &got.FileCount, &got.Size)
		if errors.Is(err, gocql.ErrNotFound) {
			return nil
		}
		if err == nil {
			row = &got
		}
		return err
	})
	return row, err
}

func (s *CassandraStore) ListFilesystems(ctx context.Context) ([]*Filesystem, error) {
	var rows []*Filesystem
	err := s.run(func(session *gocql.Session) error {
		rows = rows[:0]
		iter := session.Query(s.stmts.filesystemList).WithContext(ctx).Iter()
		var row Filesystem
		for iter.Scan(&row.FileSystem, &row.FileCount, &row.Size) {
			cp := row
			rows = append(rows, &cp)
		}
		return iter.Close()
	})
	return rows, err
}

func (s *CassandraStore) DeleteFilesystem(ctx context.Context, fileSystem string) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.filesystemDelete, fileSystem).WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) SaveReclaim(ctx context.Context, reclaim *Reclaim) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.reclaimSave,
			reclaim.Partition, reclaim.Deletion, reclaim.FileID, reclaim.Storage, reclaim.Checksum).
			WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) ListReclaim(ctx context.Context, partition int, before time.Time, limit int) ([]*Reclaim, error) {
	var rows []*Reclaim
	err := s.run(func(session *gocql.Session) error {
		rows = rows[:0]
		var q *gocql.Query
		if limit > 0 {
			q = session.Query(s.stmts.reclaimListLimit, partition, before, limit)
		} else {
			q = session.Query(s.stmts.reclaimList, partition, before)
		}
		iter := q.WithContext(ctx).Iter()
		var row Reclaim
		for iter.Scan(&row.Partition, &row.Deletion, &row.FileID, &row.Storage, &row.Checksum) {
			cp := row
			rows = append(rows, &cp)
		}
		return iter.Close()
	})
	return rows, err
}

func (s *CassandraStore) DeleteReclaim(ctx context.Context, reclaim *Reclaim) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.reclaimDelete, reclaim.Partition, reclaim.Deletion, reclaim.FileID).
			WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) IsProxySite(ctx context.Context, site string) (bool, error) {
	var found bool
	err := s.run(func(session *gocql.Session) error {
		var got string
		err := session.Query(s.stmts.proxySiteGet, site).WithContext(ctx).Scan(&got)
		if errors.Is(err, gocql.ErrNotFound) {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	return found, err
}

func (s *CassandraStore) ListProxySites(ctx context.Context) ([]string, error) {
	var sites []string
	err := s.run(func(session *gocql.Session) error {
		sites = sites[:0]
		iter := session.Query(s.stmts.proxySiteList).WithContext(ctx).Iter()
		var site string
		for iter.Scan(&site) {
			sites = append(sites, site)
		}
		return iter.Close()
	})
	return sites, err
}

func (s *CassandraStore) SaveProxySite(ctx context.Context, site string) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.proxySiteSave, site).WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) DeleteProxySite(ctx context.Context, site string) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.proxySiteDelete, site).WithContext(ctx).Exec()
	})
}

func (s *CassandraStore) TruncateProxySites(ctx context.Context) error {
	return s.run(func(session *gocql.Session) error {
		return session.Query(s.stmts.proxySiteTruncate).WithContext(ctx).Exec()
	})
}
