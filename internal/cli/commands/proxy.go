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

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Proxy site administration",
}

var proxyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proxy sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		sites, err := db.GetProxySiteList(context.Background())
		if err != nil {
			return err
		}
		for _, site := range sites {
			fmt.Println(site)
		}
		return nil
	},
}

var proxyAddCmd = &cobra.Command{
	Use:   "add <site>",
	Short: "Register a proxy site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.SaveProxySite(context.Background(), args[0])
	},
}

var proxyRemoveCmd = &cobra.Command{
	Use:   "remove <site>",
	Short: "Remove a proxy site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.DeleteProxySite(context.Background(), args[0])
	},
}

var proxyTruncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Remove all proxy sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.DeleteAllProxySites(context.Background())
	},
}

func init() {
	proxyCmd.AddCommand(proxyListCmd, proxyAddCmd, proxyRemoveCmd, proxyTruncateCmd)
	rootCmd.AddCommand(proxyCmd)
}
