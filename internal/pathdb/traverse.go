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

	log "github.com/sirupsen/logrus"

	"pathmapd/internal/common"
)

// Traverse walks the subtree rooted at path in pre-order, passing
// non-root entries that match fileType to consumer. A positive limit
// stops the walk after that many entries. Traversal from "/" uses a
// nil root sentinel; a missing root entry is a no-op.
//
// The walk keeps an explicit LIFO of frontier entries: each directory
// pop issues one list query and pushes the children.
func (db *PathDB) Traverse(ctx context.Context, fileSystem, path string, limit int,
	fileType FileType, consumer func(*PathMap)) error {
	log.Debugf("Traverse fileSystem: %s, path: %s", fileSystem, path)

	var root *PathMap // nil = fake root for "/"
	if path != common.RootDir {
		dirPath := common.NormalizeParentPath(path)
		parent, pok := common.ParentPath(dirPath)
		name, nok := common.Filename(dirPath)
		if !pok || !nok {
			return nil
		}
		entry, err := db.store.GetPathMap(ctx, fileSystem, parent, name)
		if err != nil {
			return err
		}
		if entry == nil {
			log.Debugf("Root not found, fileSystem: %s, parentPath: %s, filename: %s", fileSystem, parent, name)
			return nil
		}
		root = entry
	}

	count := 0
	stack := []*PathMap{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur != root && cur.matches(fileType) {
			consumer(cur)
			count++
			if limit > 0 && count >= limit {
				log.Infof("Reach result set limit %d", limit)
				return nil
			}
		}
		if cur != root && !cur.IsDir() {
			continue
		}

		parentPath := common.RootDir
		if cur != nil {
			parentPath = common.Normalize(cur.ParentPath, cur.Filename)
		}
		children, err := db.store.ListPathMaps(ctx, fileSystem, parentPath)
		if err != nil {
			return err
		}
		// Reverse push keeps the store's listing order on pop.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return nil
}
