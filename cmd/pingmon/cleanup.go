package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type cleanupStore interface {
	PurgeResultsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Vacuum(ctx context.Context) error
}

func executeCleanup(cmd *cobra.Command, db cleanupStore, olderThanDays int) error {
	out := cmd.OutOrStdout()
	ctx := context.Background()

	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	removed, err := db.PurgeResultsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purging old results: %w", err)
	}
	if err := db.Vacuum(ctx); err != nil {
		return fmt.Errorf("compacting database: %w", err)
	}

	fmt.Fprintf(out, "Removed %d check results older than %d days.\n", removed, olderThanDays)
	return nil
}
