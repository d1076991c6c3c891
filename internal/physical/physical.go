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

// Package physical holds the blob stores the index points into. The
// index treats the storage token as an opaque string; only the store
// that minted it can interpret it.
package physical

import "io"

// FileInfo names a blob: the opaque ID the index tracks and the
// storage token locating the bytes.
type FileInfo struct {
	FileID      string
	FileStorage string
}

// Store is the physical blob store contract the index consumes.
type Store interface {
	// GetFileInfo mints a fresh blob location for a logical path.
	GetFileInfo(fileSystem, path string) FileInfo
	// GetOutputStream opens the blob for writing.
	GetOutputStream(info FileInfo) (io.WriteCloser, error)
	// GetInputStream opens the blob named by a storage token; nil
	// reader with nil error means the blob is absent.
	GetInputStream(storage string) (io.ReadCloser, error)
	// Delete removes the blob, reporting success. Deleting an absent
	// blob succeeds.
	Delete(info FileInfo) bool
}
