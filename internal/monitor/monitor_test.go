package monitor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hazz-dev/pingmon/internal/config"
	"github.com/hazz-dev/pingmon/internal/monitor"
	"github.com/hazz-dev/pingmon/internal/probe"
)

type mockProber struct {
	mu   sync.Mutex
	rate float64
}

func (p *mockProber) Probe(ctx context.Context, host config.Host) probe.Result {
	p.mu.Lock()
	rate := p.rate
	p.mu.Unlock()

	r := probe.Result{
		HostName:        host.Name,
		HostAddress:     host.Address,
		Timestamp:       time.Now().UTC(),
		PacketsSent:     5,
		PacketsReceived: int(rate / 20),
		SuccessRate:     rate,
	}
	if r.PacketsReceived > 0 {
		lat := 10.0
		r.MinLatency, r.AvgLatency, r.MaxLatency = &lat, &lat, &lat
	}
	return r
}

type mockStore struct {
	mu        sync.Mutex
	results   []probe.Result
	purges    int
	insertErr error
}

func (s *mockStore) InsertResult(ctx context.Context, r probe.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.insertErr
}

func (s *mockStore) PurgeResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purges++
	return 0, nil
}

func (s *mockStore) resultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func (s *mockStore) purgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purges
}

type mockTracker struct {
	mu        sync.Mutex
	processed []probe.Result
	synced    [][]string
	syncErr   error
}

func (t *mockTracker) Process(ctx context.Context, r probe.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed = append(t.processed, r)
	return nil
}

func (t *mockTracker) SyncActiveHosts(ctx context.Context, addrs []string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.synced = append(t.synced, addrs)
	return 0, t.syncErr
}

func (t *mockTracker) processedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processed)
}

func testConfig(interval time.Duration, hosts ...config.Host) *config.Config {
	return &config.Config{
		Hosts:     hosts,
		PingCount: 5,
		Interval:  config.Duration{Duration: interval},
		Timeout:   config.Duration{Duration: time.Second},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestMonitor_ImmediateCheckPerHost(t *testing.T) {
	cfg := testConfig(time.Hour,
		config.Host{Name: "A", Address: "10.0.0.1"},
		config.Host{Name: "B", Address: "10.0.0.2"},
	)
	store := &mockStore{}
	tr := &mockTracker{}
	m := monitor.New(cfg, store, tr, &mockProber{rate: 100}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return store.resultCount() >= 2 }, "never stored both immediate checks")
	waitFor(t, func() bool { return tr.processedCount() >= 2 }, "never processed both immediate checks")

	cancel()
	m.Wait()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.synced) != 1 {
		t.Fatalf("expected 1 startup sync, got %d", len(tr.synced))
	}
	if len(tr.synced[0]) != 2 {
		t.Errorf("expected sync with both addresses, got %v", tr.synced[0])
	}
}

func TestMonitor_ChecksOnInterval(t *testing.T) {
	cfg := testConfig(20*time.Millisecond, config.Host{Name: "A", Address: "10.0.0.1"})
	store := &mockStore{}
	m := monitor.New(cfg, store, &mockTracker{}, &mockProber{rate: 100}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return store.resultCount() >= 3 }, "never reached 3 checks on interval")

	cancel()
	m.Wait()
}

func TestMonitor_SyncFailureAborts(t *testing.T) {
	cfg := testConfig(time.Hour, config.Host{Name: "A", Address: "10.0.0.1"})
	store := &mockStore{}
	tr := &mockTracker{syncErr: errors.New("database locked")}
	m := monitor.New(cfg, store, tr, &mockProber{rate: 100}, discardLogger())

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail when the startup sync fails")
	}
	if store.resultCount() != 0 {
		t.Errorf("expected no checks after failed start, got %d", store.resultCount())
	}
}

func TestMonitor_MaintenancePurgesOnStart(t *testing.T) {
	cfg := testConfig(time.Hour, config.Host{Name: "A", Address: "10.0.0.1"})
	cfg.RetentionDays = 30
	store := &mockStore{}
	m := monitor.New(cfg, store, &mockTracker{}, &mockProber{rate: 100}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return store.purgeCount() >= 1 }, "maintenance never purged")

	cancel()
	m.Wait()
}

func TestMonitor_ZeroRetentionSkipsMaintenance(t *testing.T) {
	cfg := testConfig(time.Hour, config.Host{Name: "A", Address: "10.0.0.1"})
	cfg.RetentionDays = 0
	store := &mockStore{}
	m := monitor.New(cfg, store, &mockTracker{}, &mockProber{rate: 100}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return store.resultCount() >= 1 }, "first check never ran")
	if store.purgeCount() != 0 {
		t.Errorf("expected no purges with retention disabled, got %d", store.purgeCount())
	}

	cancel()
	m.Wait()
}

func TestMonitor_StopsOnCancel(t *testing.T) {
	cfg := testConfig(10*time.Millisecond, config.Host{Name: "A", Address: "10.0.0.1"})
	store := &mockStore{}
	m := monitor.New(cfg, store, &mockTracker{}, &mockProber{rate: 0}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return store.resultCount() >= 1 }, "first check never ran")
	cancel()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}
