package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stormlight/almanac/internal/config"
)

var refreshMonths int

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "One-shot sync of the current date range",
	Long: `Fetch the current date range from the remote service and persist a
fresh snapshot, without starting the daemon or the push channel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager(configPath).Load()
		if err != nil {
			return err
		}

		logger := log.New(os.Stderr, "[almanac] ", log.LstdFlags)
		eng, db, err := buildEngine(cfg, logger)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		now := time.Now()
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, refreshMonths, 0)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		entities, err := eng.EnsureRangeLoaded(ctx, start, end)
		if err != nil {
			return err
		}
		if err := eng.Refresh(ctx); err != nil {
			return err
		}

		snap := eng.Snapshot()
		fmt.Printf("Synced %d entities, %d tasks (revision %d)\n",
			len(entities), len(snap.Tasks), snap.Revisions.Combined)
		return nil
	},
}

func init() {
	refreshCmd.Flags().IntVar(&refreshMonths, "months", 1, "number of months to load, starting from this month")
}
