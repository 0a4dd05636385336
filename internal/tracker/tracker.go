// Package tracker maintains the per-host outage state machine: a host is
// Up while it has no open outage event and Down while exactly one is open.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazz-dev/pingmon/internal/probe"
	"github.com/hazz-dev/pingmon/internal/storage"
)

// EventStore defines the storage operations required by the tracker.
type EventStore interface {
	ActiveOutage(ctx context.Context, hostAddress string) (*storage.OutageEvent, error)
	CreateOutage(ctx context.Context, hostName, hostAddress string, startTime time.Time, notes string) (int64, error)
	UpdateOutageCounts(ctx context.Context, id int64, checksFailed, checksDuringOutage int64) error
	CloseOutage(ctx context.Context, id int64, endTime time.Time, recoveryRate *float64, notes string) error
	CloseOutagesForRemovedHosts(ctx context.Context, activeAddresses []string) (int64, error)
}

// ChangeFunc is invoked on outage transitions. closed is false when an
// outage opens and true when one closes.
type ChangeFunc func(ev storage.OutageEvent, closed bool)

// Tracker applies check results to outage events. Transitions for one host
// are serialized by a per-host lock; different hosts proceed in parallel.
type Tracker struct {
	store    EventStore
	logger   *slog.Logger
	onChange ChangeFunc

	mu    sync.Mutex
	hosts map[string]*sync.Mutex
}

// New creates a Tracker. Pass nil logger to use the default.
func New(store EventStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		hosts:  make(map[string]*sync.Mutex),
	}
}

// SetOnChange sets the callback invoked after an outage opens or closes.
func (t *Tracker) SetOnChange(fn ChangeFunc) {
	t.onChange = fn
}

// Process applies one check result to its host's outage state. A total
// failure opens an outage or extends the open one; any reply closes the
// open outage; a healthy host with no open outage is a no-op.
func (t *Tracker) Process(ctx context.Context, r probe.Result) error {
	lock := t.hostLock(r.HostAddress)
	lock.Lock()
	defer lock.Unlock()

	active, err := t.store.ActiveOutage(ctx, r.HostAddress)
	if err != nil {
		return fmt.Errorf("checking active outage for %q: %w", r.HostAddress, err)
	}

	if r.SuccessRate == 0 {
		if active == nil {
			return t.openOutage(ctx, r)
		}
		return t.extendOutage(ctx, active)
	}
	if active == nil {
		return nil
	}
	return t.closeOutage(ctx, active, r)
}

// SyncActiveHosts closes open outage events for hosts no longer in the
// monitored set and returns how many were closed. An empty set closes all
// open events. Run at startup so events for removed hosts do not stay open
// forever.
func (t *Tracker) SyncActiveHosts(ctx context.Context, activeAddresses []string) (int64, error) {
	n, err := t.store.CloseOutagesForRemovedHosts(ctx, activeAddresses)
	if err != nil {
		return 0, fmt.Errorf("closing outages for removed hosts: %w", err)
	}
	if n > 0 {
		t.logger.Info("closed outages for removed hosts", "count", n)
	}
	return n, nil
}

func (t *Tracker) hostLock(addr string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.hosts[addr]
	if !ok {
		lock = &sync.Mutex{}
		t.hosts[addr] = lock
	}
	return lock
}

func (t *Tracker) openOutage(ctx context.Context, r probe.Result) error {
	id, err := t.store.CreateOutage(ctx, r.HostName, r.HostAddress, r.Timestamp, "")
	if err != nil {
		return fmt.Errorf("opening outage for %q: %w", r.HostAddress, err)
	}

	t.logger.Warn("outage started",
		"host", r.HostName,
		"address", r.HostAddress,
		"start", r.Timestamp,
	)

	t.notify(storage.OutageEvent{
		ID:                 id,
		HostName:           r.HostName,
		HostAddress:        r.HostAddress,
		StartTime:          r.Timestamp,
		ChecksFailed:       1,
		ChecksDuringOutage: 1,
		EventType:          storage.EventTypeStart,
	}, false)
	return nil
}

func (t *Tracker) extendOutage(ctx context.Context, active *storage.OutageEvent) error {
	err := t.store.UpdateOutageCounts(ctx, active.ID, active.ChecksFailed+1, active.ChecksDuringOutage+1)
	if err != nil {
		return fmt.Errorf("extending outage %d: %w", active.ID, err)
	}

	t.logger.Debug("outage continuing",
		"host", active.HostName,
		"address", active.HostAddress,
		"checks_failed", active.ChecksFailed+1,
	)
	return nil
}

func (t *Tracker) closeOutage(ctx context.Context, active *storage.OutageEvent, r probe.Result) error {
	rate := r.SuccessRate
	notes := fmt.Sprintf("recovered with %.1f%% success rate", rate)

	err := t.store.CloseOutage(ctx, active.ID, r.Timestamp, &rate, notes)
	if errors.Is(err, storage.ErrAlreadyClosed) {
		// Someone closed the event underneath us; the host is Up either
		// way, so log and move on.
		t.logger.Warn("outage was already closed", "id", active.ID, "address", r.HostAddress)
		return nil
	}
	if err != nil {
		return fmt.Errorf("closing outage %d: %w", active.ID, err)
	}

	duration := r.Timestamp.Sub(active.StartTime).Seconds()
	t.logger.Info("outage ended",
		"host", r.HostName,
		"address", r.HostAddress,
		"duration_seconds", duration,
		"recovery_rate", rate,
	)

	closed := *active
	closed.EndTime = &r.Timestamp
	closed.DurationSeconds = &duration
	closed.RecoverySuccessRate = &rate
	closed.EventType = storage.EventTypeEnd
	closed.Notes = notes
	t.notify(closed, true)
	return nil
}

func (t *Tracker) notify(ev storage.OutageEvent, closed bool) {
	if t.onChange != nil {
		t.onChange(ev, closed)
	}
}
