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

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pathmapd/internal/pathdb"
)

var (
	lsRecursive bool
	lsLimit     int
	lsType      string
)

var lsCmd = &cobra.Command{
	Use:   "ls <filesystem> <path>",
	Short: "List entries under a path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileType := pathdb.TypeAny
		switch lsType {
		case "all", "":
		case "file":
			fileType = pathdb.TypeFile
		case "dir":
			fileType = pathdb.TypeDir
		default:
			return fmt.Errorf("unknown type %q (want all, file, or dir)", lsType)
		}

		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		var entries []*pathdb.PathMap
		if lsRecursive {
			entries, err = db.ListRecursive(ctx, args[0], args[1], lsLimit, fileType)
		} else {
			entries, err = db.List(ctx, args[0], args[1], fileType)
		}
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				fmt.Printf("%s\n", entry.Path())
			} else {
				fmt.Printf("%s\t%d\t%s\n", entry.Path(), entry.Size, entry.FileID)
			}
		}
		return nil
	},
}

func init() {
	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "walk the subtree")
	lsCmd.Flags().IntVar(&lsLimit, "limit", 0, "stop after N entries (recursive only)")
	lsCmd.Flags().StringVar(&lsType, "type", "all", "filter: all, file, or dir")
	rootCmd.AddCommand(lsCmd)
}
