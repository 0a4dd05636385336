// Package monitor drives the periodic check cycle for each configured host.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazz-dev/pingmon/internal/config"
	"github.com/hazz-dev/pingmon/internal/probe"
)

// Store defines the storage operations required by the monitor.
type Store interface {
	InsertResult(ctx context.Context, r probe.Result) error
	PurgeResultsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tracker applies check results to outage state.
type Tracker interface {
	Process(ctx context.Context, r probe.Result) error
	SyncActiveHosts(ctx context.Context, activeAddresses []string) (int64, error)
}

// Prober runs one reachability check against a host.
type Prober interface {
	Probe(ctx context.Context, host config.Host) probe.Result
}

// Monitor runs checks for each host in its own goroutine and feeds the
// results through storage and outage tracking.
type Monitor struct {
	cfg     *config.Config
	store   Store
	tracker Tracker
	prober  Prober
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a Monitor. Pass nil logger to use the default.
func New(cfg *config.Config, store Store, tracker Tracker, prober Prober, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		prober:  prober,
		logger:  logger,
	}
}

// Start reconciles outage state against the configured host set, then
// spawns one goroutine per host plus a retention maintenance loop. It is
// non-blocking once the initial sync has run.
func (m *Monitor) Start(ctx context.Context) error {
	if _, err := m.tracker.SyncActiveHosts(ctx, m.cfg.Addresses()); err != nil {
		return fmt.Errorf("syncing active hosts: %w", err)
	}

	for _, host := range m.cfg.Hosts {
		m.wg.Add(1)
		go m.runHost(ctx, host)
	}

	if m.cfg.RetentionDays > 0 {
		m.wg.Add(1)
		go m.runMaintenance(ctx)
	}
	return nil
}

// Wait blocks until all monitor goroutines have exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) runHost(ctx context.Context, host config.Host) {
	defer m.wg.Done()

	// Check immediately, then on the interval.
	m.runCheck(ctx, host)

	ticker := time.NewTicker(m.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCheck(ctx, host)
		}
	}
}

func (m *Monitor) runCheck(ctx context.Context, host config.Host) {
	result := m.prober.Probe(ctx, host)

	if result.SuccessRate == 0 {
		m.logger.Warn("check failed",
			"host", host.Name,
			"address", host.Address,
			"error", result.Error,
		)
	} else {
		avgMs := 0.0
		if result.AvgLatency != nil {
			avgMs = *result.AvgLatency
		}
		m.logger.Info("check result",
			"host", host.Name,
			"address", host.Address,
			"success_rate", result.SuccessRate,
			"avg_latency_ms", avgMs,
		)
	}

	if err := m.store.InsertResult(ctx, result); err != nil {
		m.logger.Error("storing check result", "address", host.Address, "error", err)
	}

	if err := m.tracker.Process(ctx, result); err != nil {
		m.logger.Error("updating outage state", "address", host.Address, "error", err)
	}
}

func (m *Monitor) runMaintenance(ctx context.Context) {
	defer m.wg.Done()

	m.purgeOld(ctx)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.purgeOld(ctx)
		}
	}
}

func (m *Monitor) purgeOld(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	n, err := m.store.PurgeResultsBefore(ctx, cutoff)
	if err != nil {
		m.logger.Error("purging old results", "error", err)
		return
	}
	if n > 0 {
		m.logger.Info("purged old check results", "count", n, "cutoff", cutoff)
	}
}
