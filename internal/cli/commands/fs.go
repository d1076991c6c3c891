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
)

var fsCmd = &cobra.Command{
	Use:   "fs",
	Short: "Filesystem administration",
}

var fsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List filesystems with their counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		filesystems, err := db.GetFilesystems(context.Background())
		if err != nil {
			return err
		}
		for _, fs := range filesystems {
			fmt.Printf("%s\tfiles=%d\tsize=%d\n", fs.FileSystem, fs.FileCount, fs.Size)
		}
		return nil
	},
}

var fsGetCmd = &cobra.Command{
	Use:   "get <filesystem>",
	Short: "Show one filesystem's counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fs, err := db.GetFilesystem(context.Background(), args[0])
		if err != nil {
			return err
		}
		if fs == nil {
			return fmt.Errorf("filesystem %q not found", args[0])
		}
		fmt.Printf("%s\tfiles=%d\tsize=%d\n", fs.FileSystem, fs.FileCount, fs.Size)
		return nil
	},
}

var fsPurgeCmd = &cobra.Command{
	Use:   "purge <filesystem>",
	Short: "Remove an empty filesystem's counters row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		fs, err := db.GetFilesystem(ctx, args[0])
		if err != nil {
			return err
		}
		if fs == nil {
			return nil
		}
		if fs.FileCount != 0 {
			return fmt.Errorf("filesystem %q is not empty (fileCount=%d)", fs.FileSystem, fs.FileCount)
		}
		return db.PurgeFilesystem(ctx, fs)
	},
}

func init() {
	fsCmd.AddCommand(fsListCmd, fsGetCmd, fsPurgeCmd)
	rootCmd.AddCommand(fsCmd)
}
