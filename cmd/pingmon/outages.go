package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/pingmon/internal/storage"
)

type outageStore interface {
	Outages(ctx context.Context, f storage.OutageFilter) ([]storage.OutageEvent, error)
}

type outageOptions struct {
	activeOnly bool
	host       string
	limit      int
}

func executeOutages(cmd *cobra.Command, db outageStore, opts outageOptions) error {
	out := cmd.OutOrStdout()
	events, err := db.Outages(context.Background(), storage.OutageFilter{
		HostAddress: opts.host,
		ActiveOnly:  opts.activeOnly,
		Limit:       opts.limit,
	})
	if err != nil {
		return fmt.Errorf("querying outages: %w", err)
	}

	if len(events) == 0 {
		fmt.Fprintln(out, "No outage events recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHOST\tSTARTED\tENDED\tDURATION\tFAILED\tNOTES")
	for _, ev := range events {
		ended := "—"
		duration := "ongoing"
		if ev.Closed() {
			ended = ev.EndTime.Local().Format("2006-01-02 15:04:05")
			if ev.DurationSeconds != nil {
				duration = time.Duration(*ev.DurationSeconds * float64(time.Second)).Round(time.Second).String()
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			ev.ID,
			ev.HostName,
			ev.StartTime.Local().Format("2006-01-02 15:04:05"),
			ended,
			duration,
			ev.ChecksFailed,
			ev.Notes,
		)
	}
	w.Flush()
	return nil
}
