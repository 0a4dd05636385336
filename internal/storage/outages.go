package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Event type values for OutageEvent.EventType. An event starts as
// outage_start and flips to outage_end when closed.
const (
	EventTypeStart = "outage_start"
	EventTypeEnd   = "outage_end"
)

// RemovedNote marks outage events closed because the host left the
// monitored set rather than because it recovered.
const RemovedNote = "host removed from monitoring configuration"

// OutageEvent records one continuous span of totally failed checks for a
// host. An open event has no end time; the schema enforces at most one
// open event per host address.
type OutageEvent struct {
	ID                  int64      `json:"id"`
	HostName            string     `json:"host_name"`
	HostAddress         string     `json:"host_address"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             *time.Time `json:"end_time"`
	DurationSeconds     *float64   `json:"duration_seconds"`
	ChecksFailed        int64      `json:"checks_failed"`
	ChecksDuringOutage  int64      `json:"checks_during_outage"`
	RecoverySuccessRate *float64   `json:"recovery_success_rate"`
	EventType           string     `json:"event_type"`
	Notes               string     `json:"notes"`
}

// Closed reports whether the event has an end time.
func (e *OutageEvent) Closed() bool {
	return e.EndTime != nil
}

// OutageFilter narrows an outage event listing. Zero values mean no
// filtering on that dimension.
type OutageFilter struct {
	HostAddress string
	Start       time.Time
	End         time.Time
	ActiveOnly  bool
	Limit       int
}

// OutageStats aggregates outage events whose start time falls in a window.
// Duration sums cover closed events only since open events have none.
type OutageStats struct {
	TotalOutages         int64   `json:"total_outages"`
	ActiveOutages        int64   `json:"active_outages"`
	AvgDurationSeconds   float64 `json:"avg_duration_seconds"`
	TotalDowntimeSeconds float64 `json:"total_downtime_seconds"`
}

const selectOutage = `SELECT id, host_name, host_address, start_time, end_time, duration_seconds, checks_failed, checks_during_outage, recovery_success_rate, event_type, notes FROM outage_events`

// CreateOutage opens a new outage event and returns its id. The counters
// start at 1 for the check that triggered it. A unique index rejects a
// second open event for the same host.
func (d *DB) CreateOutage(ctx context.Context, hostName, hostAddress string, startTime time.Time, notes string) (int64, error) {
	if hostAddress == "" {
		return 0, &ValidationError{Field: "host_address", Reason: "must not be empty"}
	}
	if startTime.IsZero() {
		return 0, &ValidationError{Field: "start_time", Reason: "must be set"}
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO outage_events (host_name, host_address, start_time, notes) VALUES (?, ?, ?, ?)`,
		hostName, hostAddress, formatTime(startTime), notes,
	)
	if err != nil {
		return 0, fmt.Errorf("creating outage for %q: %w", hostAddress, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading outage id for %q: %w", hostAddress, err)
	}
	return id, nil
}

// ActiveOutage returns the open outage event for a host, or nil if the host
// is currently up.
func (d *DB) ActiveOutage(ctx context.Context, hostAddress string) (*OutageEvent, error) {
	row := d.db.QueryRowContext(ctx,
		selectOutage+` WHERE host_address = ? AND end_time IS NULL`, hostAddress)
	ev, err := scanOutage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active outage for %q: %w", hostAddress, err)
	}
	return ev, nil
}

// UpdateOutageCounts sets the failure counters on an open outage event.
// Returns ErrNotFound when id does not reference an open event.
func (d *DB) UpdateOutageCounts(ctx context.Context, id int64, checksFailed, checksDuringOutage int64) error {
	if checksFailed < 0 || checksDuringOutage < 0 {
		return &ValidationError{Field: "checks", Reason: "counters must not be negative"}
	}

	res, err := d.db.ExecContext(ctx,
		`UPDATE outage_events SET checks_failed = ?, checks_during_outage = ? WHERE id = ? AND end_time IS NULL`,
		checksFailed, checksDuringOutage, id,
	)
	if err != nil {
		return fmt.Errorf("updating outage %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating outage %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseOutage marks an outage event closed at endTime, deriving its
// duration from the start time and flipping the event type. recoveryRate
// is nil for closes not driven by a successful check, such as host
// removal. Closing an event that is already closed returns
// ErrAlreadyClosed; closes are never silently reapplied.
func (d *DB) CloseOutage(ctx context.Context, id int64, endTime time.Time, recoveryRate *float64, notes string) error {
	if endTime.IsZero() {
		return &ValidationError{Field: "end_time", Reason: "must be set"}
	}
	if recoveryRate != nil && (*recoveryRate < 0 || *recoveryRate > 100) {
		return &ValidationError{Field: "recovery_success_rate", Reason: "must be between 0 and 100"}
	}

	end := formatTime(endTime)
	res, err := d.db.ExecContext(ctx, `
		UPDATE outage_events
		SET end_time = ?,
		    duration_seconds = (julianday(?) - julianday(start_time)) * 86400.0,
		    recovery_success_rate = ?,
		    event_type = ?,
		    notes = ?
		WHERE id = ? AND end_time IS NULL`,
		end, end, recoveryRate, EventTypeEnd, notes, id,
	)
	if err != nil {
		return fmt.Errorf("closing outage %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("closing outage %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	err = d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM outage_events WHERE id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking outage %d: %w", id, err)
	}
	if exists {
		return ErrAlreadyClosed
	}
	return ErrNotFound
}

// CloseOutagesForRemovedHosts closes every open outage event whose host is
// not in activeAddresses, marking the notes so removal-closes stay
// distinguishable from recoveries. An empty active set closes all open
// events. Returns the number of events closed; repeat calls with the same
// set close zero more.
func (d *DB) CloseOutagesForRemovedHosts(ctx context.Context, activeAddresses []string) (int64, error) {
	now := formatTime(time.Now().UTC())
	query := `
		UPDATE outage_events
		SET end_time = ?,
		    duration_seconds = (julianday(?) - julianday(start_time)) * 86400.0,
		    event_type = ?,
		    notes = ?
		WHERE end_time IS NULL`
	args := []any{now, now, EventTypeEnd, RemovedNote}
	if len(activeAddresses) > 0 {
		query += ` AND host_address NOT IN (?` + strings.Repeat(", ?", len(activeAddresses)-1) + `)`
		for _, addr := range activeAddresses {
			args = append(args, addr)
		}
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("closing outages for removed hosts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("closing outages for removed hosts: %w", err)
	}
	return n, nil
}

// Outages returns outage events matching the filter, most recent start
// time first.
func (d *DB) Outages(ctx context.Context, f OutageFilter) ([]OutageEvent, error) {
	var conds []string
	var args []any
	if f.HostAddress != "" {
		conds = append(conds, "host_address = ?")
		args = append(args, f.HostAddress)
	}
	if f.ActiveOnly {
		conds = append(conds, "end_time IS NULL")
	}
	if !f.Start.IsZero() {
		conds = append(conds, "start_time >= ?")
		args = append(args, formatTime(f.Start))
	}
	if !f.End.IsZero() {
		conds = append(conds, "start_time <= ?")
		args = append(args, formatTime(f.End))
	}

	query := selectOutage
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outages: %w", err)
	}
	defer rows.Close()
	return scanOutages(rows)
}

// OutageStatistics aggregates outage events whose start time falls in
// [start, end]. An empty hostAddress covers all hosts; zero bounds leave
// that side of the window open.
func (d *DB) OutageStatistics(ctx context.Context, hostAddress string, start, end time.Time) (OutageStats, error) {
	query := `
		SELECT COUNT(*),
		       SUM(CASE WHEN end_time IS NULL THEN 1 ELSE 0 END),
		       COALESCE(AVG(duration_seconds), 0),
		       COALESCE(SUM(duration_seconds), 0)
		FROM outage_events`
	var conds []string
	var args []any
	if hostAddress != "" {
		conds = append(conds, "host_address = ?")
		args = append(args, hostAddress)
	}
	if !start.IsZero() {
		conds = append(conds, "start_time >= ?")
		args = append(args, formatTime(start))
	}
	if !end.IsZero() {
		conds = append(conds, "start_time <= ?")
		args = append(args, formatTime(end))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var s OutageStats
	var active sql.NullInt64
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&s.TotalOutages, &active, &s.AvgDurationSeconds, &s.TotalDowntimeSeconds,
	)
	if err != nil {
		return OutageStats{}, fmt.Errorf("aggregating outage statistics: %w", err)
	}
	s.ActiveOutages = active.Int64
	return s, nil
}

func scanOutage(row scanner) (*OutageEvent, error) {
	var ev OutageEvent
	var start string
	var end sql.NullString
	var duration, recovery sql.NullFloat64
	err := row.Scan(&ev.ID, &ev.HostName, &ev.HostAddress, &start, &end, &duration,
		&ev.ChecksFailed, &ev.ChecksDuringOutage, &recovery, &ev.EventType, &ev.Notes)
	if err != nil {
		return nil, err
	}
	t, err := parseTime(start)
	if err != nil {
		return nil, err
	}
	ev.StartTime = t
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return nil, err
		}
		ev.EndTime = &t
	}
	if duration.Valid {
		ev.DurationSeconds = &duration.Float64
	}
	if recovery.Valid {
		ev.RecoverySuccessRate = &recovery.Float64
	}
	return &ev, nil
}

func scanOutages(rows *sql.Rows) ([]OutageEvent, error) {
	var events []OutageEvent
	for rows.Next() {
		ev, err := scanOutage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning outage row: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outage rows: %w", err)
	}
	return events, nil
}
