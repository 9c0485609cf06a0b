package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stormlight/almanac/internal/cachedb"
	"github.com/stormlight/almanac/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted snapshot state",
	Long: `Show the local snapshot cache: partition and entity counts plus the
revision counters recorded at the last successful sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager(configPath).Load()
		if err != nil {
			return err
		}
		if cfg.CachePath == "" {
			fmt.Fprintln(os.Stderr, "No cache_path configured; nothing to report")
			return nil
		}

		db, err := cachedb.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.InitSchema(); err != nil {
			return err
		}
		stats, err := db.Stats()
		if err != nil {
			return err
		}

		fmt.Printf("Snapshot:    %s\n", cfg.CachePath)
		fmt.Printf("Partitions:  %d\n", stats.Partitions)
		fmt.Printf("Entities:    %d\n", stats.Entities)
		fmt.Printf("Revision:    %d (stream A %d, stream B %d)\n",
			stats.Revisions.Combined, stats.Revisions.StreamA, stats.Revisions.StreamB)
		if !stats.SavedAt.IsZero() {
			fmt.Printf("Saved at:    %s\n", stats.SavedAt.Local())
		}
		return nil
	},
}
