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

	log "github.com/sirupsen/logrus"
)

// Proxy-site CRUD plus an in-memory cache. The cache loads lazily on
// first use and save/delete/truncate keep it coherent.

// IsProxySite checks the store directly.
func (db *PathDB) IsProxySite(ctx context.Context, site string) (bool, error) {
	return db.store.IsProxySite(ctx, site)
}

// GetProxySiteList lists all sites from the store.
func (db *PathDB) GetProxySiteList(ctx context.Context) ([]string, error) {
	return db.store.ListProxySites(ctx)
}

// SaveProxySite persists a site and adds it to the cache.
func (db *PathDB) SaveProxySite(ctx context.Context, site string) error {
	log.Debugf("ProxySite, %s", site)
	if err := db.store.SaveProxySite(ctx, site); err != nil {
		return err
	}
	db.proxyMu.Lock()
	if db.proxyLoaded {
		db.proxyCache[site] = struct{}{}
	}
	db.proxyMu.Unlock()
	return nil
}

// DeleteProxySite removes a site from the store and the cache.
func (db *PathDB) DeleteProxySite(ctx context.Context, site string) error {
	log.Debugf("Delete proxySite, %s", site)
	if err := db.store.DeleteProxySite(ctx, site); err != nil {
		return err
	}
	db.proxyMu.Lock()
	delete(db.proxyCache, site)
	db.proxyMu.Unlock()
	return nil
}

// DeleteAllProxySites truncates the table and empties the cache.
func (db *PathDB) DeleteAllProxySites(ctx context.Context) error {
	if err := db.store.TruncateProxySites(ctx); err != nil {
		return err
	}
	db.proxyMu.Lock()
	db.proxyCache = make(map[string]struct{})
	db.proxyMu.Unlock()
	return nil
}

// ProxySitesCache returns the warm site set, loading it from the
// store on first use.
func (db *PathDB) ProxySitesCache(ctx context.Context) ([]string, error) {
	db.proxyMu.Lock()
	defer db.proxyMu.Unlock()
	if !db.proxyLoaded {
		sites, err := db.store.ListProxySites(ctx)
		if err != nil {
			return nil, err
		}
		for _, site := range sites {
			db.proxyCache[site] = struct{}{}
		}
		db.proxyLoaded = true
	}
	out := make([]string, 0, len(db.proxyCache))
	for site := range db.proxyCache {
		out = append(out, site)
	}
	sort.Strings(out)
	return out, nil
}
