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
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pathmapd/internal/config"
	"pathmapd/internal/pathdb"
	"pathmapd/internal/physical"
)

var (
	sweepInterval time.Duration
	sweepBatch    int
	sweepOnce     bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim orphaned blobs past the grace period",
	Long: `Lists reclaim-queue entries older than the grace period, re-checks
the reverse map, and deletes unreferenced blobs from the physical
store. Run at least once per hour to cover every partition.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		blobs, err := physicalStore(cfg)
		if err != nil {
			return err
		}
		sweeper := pathdb.NewSweeper(db, blobs, sweepBatch)

		if sweepOnce {
			reclaimed, err := sweeper.SweepOnce(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("reclaimed %d blobs\n", reclaimed)
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err = sweeper.Run(ctx, sweepInterval)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// physicalStore picks the configured blob backend: object store when
// an endpoint is set, the file tree otherwise.
func physicalStore(cfg *config.Config) (physical.Store, error) {
	if cfg.ObjectStore.Endpoint != "" {
		return physical.NewObjectStore(cfg.ObjectStore)
	}
	if cfg.FileStore.BaseDir == "" {
		return nil, fmt.Errorf("no physical store configured (set file_store.base_dir or object_store.endpoint)")
	}
	return physical.NewFileStore(cfg.FileStore.BaseDir), nil
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepInterval, "interval", 10*time.Minute, "sweep interval")
	sweepCmd.Flags().IntVar(&sweepBatch, "batch", 1000, "max entries per sweep (0 = unbounded)")
	sweepCmd.Flags().BoolVar(&sweepOnce, "once", false, "sweep once and exit")
	rootCmd.AddCommand(sweepCmd)
}
