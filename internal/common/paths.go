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

package common

import (
	"strings"

	"github.com/google/uuid"
)

// RootDir is the implicit filesystem root. It is never stored as a
// path map row.
const RootDir = "/"

// Directory entries keep a trailing "/" on their filename; parent
// paths always carry a trailing "/". The root's parent is absent.

// Normalize joins a parent path and a filename with a single "/",
// collapsing duplicate separators at the seam. The filename's own
// trailing "/" (directory marker) is preserved.
func Normalize(parent, filename string) string {
	if filename == "" {
		return parent
	}
	return strings.TrimSuffix(parent, "/") + "/" + strings.TrimPrefix(filename, "/")
}

// ParentPath returns everything up to and including the last "/"
// before the final path component, or "/" for top-level entries.
// Returns ok=false for the root and unrooted paths.
func ParentPath(path string) (string, bool) {
	if path == "" || path == RootDir {
		return "", false
	}
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		return "", false
	}
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "", false
	}
	if idx == 0 {
		return RootDir, true
	}
	return trimmed[:idx+1], true
}

// Filename returns the final path component. Directory paths (ending
// in "/") keep the trailing "/" on the returned name. Returns
// ok=false for the root.
func Filename(path string) (string, bool) {
	if path == "" || path == RootDir {
		return "", false
	}
	isDir := strings.HasSuffix(path, "/")
	trimmed := strings.TrimSuffix(path, "/")
	name := trimmed[strings.LastIndex(trimmed, "/")+1:]
	if name == "" {
		return "", false
	}
	if isDir {
		name += "/"
	}
	return name, true
}

// NormalizeParentPath ensures the trailing "/" used as the prefix key
// for list queries.
func NormalizeParentPath(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// Marshall produces the stable "filesystem:path" element stored in
// reverse-map sets.
func Marshall(fileSystem, path string) string {
	return fileSystem + ":" + path
}

// Unmarshall is the inverse of Marshall. The path portion may itself
// contain ":" so only the first separator splits.
func Unmarshall(marshalled string) (fileSystem, path string, ok bool) {
	fileSystem, path, ok = strings.Cut(marshalled, ":")
	return fileSystem, path, ok
}

// ParentsBottomUp produces the directory entries required to
// materialize the given parent path, from the deepest directory up
// to (but not including) the root, through the caller's factory.
func ParentsBottomUp[T any](parentPath string, factory func(parent, filename string) T) []T {
	var out []T
	cur := NormalizeParentPath(parentPath)
	for cur != RootDir {
		parent, pok := ParentPath(cur)
		name, nok := Filename(cur)
		if !pok || !nok {
			break
		}
		out = append(out, factory(parent, name))
		cur = parent
	}
	return out
}

// RandomFileID produces an opaque 32-char hex token. The first 4
// characters are used by the physical store as a two-level sharding
// prefix.
func RandomFileID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
