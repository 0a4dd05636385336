package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/pingmon/internal/config"
	"github.com/hazz-dev/pingmon/internal/probe"
)

type prober interface {
	Probe(ctx context.Context, host config.Host) probe.Result
}

func executeCheck(cmd *cobra.Command, cfg *config.Config) error {
	return runChecks(cmd.OutOrStdout(), cfg, probe.New(cfg.PingCount, cfg.Timeout.Duration))
}

func runChecks(out io.Writer, cfg *config.Config, p prober) error {
	results := make([]probe.Result, len(cfg.Hosts))
	var wg sync.WaitGroup

	for i, host := range cfg.Hosts {
		wg.Add(1)
		go func(i int, host config.Host) {
			defer wg.Done()
			results[i] = p.Probe(context.Background(), host)
		}(i, host)
	}
	wg.Wait()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tADDRESS\tSTATUS\tSUCCESS\tAVG RTT\tERROR")
	allUp := true
	for _, r := range results {
		status := "up"
		if r.SuccessRate == 0 {
			status = "down"
			allUp = false
		}
		rtt := "—"
		if r.AvgLatency != nil {
			rtt = fmt.Sprintf("%.1fms", *r.AvgLatency)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\t%s\n",
			r.HostName,
			r.HostAddress,
			status,
			r.SuccessRate,
			rtt,
			r.Error,
		)
	}
	w.Flush()

	if !allUp {
		return fmt.Errorf("one or more hosts are down")
	}
	return nil
}
