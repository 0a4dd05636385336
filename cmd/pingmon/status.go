package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/pingmon/internal/storage"
)

type statusStore interface {
	LatestResults(ctx context.Context) ([]storage.CheckResult, error)
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	results, err := db.LatestResults(context.Background())
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No check history. Run 'pingmon serve' or 'pingmon check' first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tADDRESS\tSTATUS\tSUCCESS\tAVG RTT\tLAST CHECKED")
	for _, c := range results {
		status := "up"
		if c.SuccessRate == 0 {
			status = "down"
		}
		rtt := "—"
		if c.AvgLatency != nil {
			rtt = fmt.Sprintf("%.1fms", *c.AvgLatency)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\t%s\n",
			c.HostName,
			c.HostAddress,
			status,
			c.SuccessRate,
			rtt,
			c.Timestamp.Local().Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
	return nil
}
