package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazz-dev/pingmon/internal/probe"
)

// CheckResult is a stored probe outcome. Latency fields are nil when no
// packet came back.
type CheckResult struct {
	ID              int64     `json:"id"`
	HostName        string    `json:"host_name"`
	HostAddress     string    `json:"host_address"`
	Timestamp       time.Time `json:"timestamp"`
	PacketsSent     int       `json:"packets_sent"`
	PacketsReceived int       `json:"packets_received"`
	SuccessRate     float64   `json:"success_rate"`
	MinLatency      *float64  `json:"min_latency"`
	AvgLatency      *float64  `json:"avg_latency"`
	MaxLatency      *float64  `json:"max_latency"`
}

// Host identifies a monitored host as recorded in check history.
type Host struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Stats aggregates a host's check results over a time window. Latency
// aggregates are nil when the window holds no successful check.
type Stats struct {
	TotalChecks    int64    `json:"total_checks"`
	AvgSuccessRate float64  `json:"avg_success_rate"`
	MinSuccessRate float64  `json:"min_success_rate"`
	MaxSuccessRate float64  `json:"max_success_rate"`
	AvgLatency     *float64 `json:"avg_latency"`
	MinLatency     *float64 `json:"min_latency"`
	MaxLatency     *float64 `json:"max_latency"`
}

const selectResult = `SELECT id, host_name, host_address, timestamp, packets_sent, packets_received, success_rate, min_latency, avg_latency, max_latency FROM check_results`

// InsertResult validates and persists a probe result. The success rate is
// derived from the packet counts at insert time so stored rows always agree
// with them.
func (d *DB) InsertResult(ctx context.Context, r probe.Result) error {
	if err := validateResult(r); err != nil {
		return err
	}

	rate := float64(r.PacketsReceived) / float64(r.PacketsSent) * 100
	var minL, avgL, maxL any
	if r.PacketsReceived > 0 {
		minL, avgL, maxL = *r.MinLatency, *r.AvgLatency, *r.MaxLatency
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO check_results (host_name, host_address, timestamp, packets_sent, packets_received, success_rate, min_latency, avg_latency, max_latency)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.HostName,
		r.HostAddress,
		formatTime(r.Timestamp),
		r.PacketsSent,
		r.PacketsReceived,
		rate,
		minL, avgL, maxL,
	)
	if err != nil {
		return fmt.Errorf("inserting check result for %q: %w", r.HostAddress, err)
	}
	return nil
}

func validateResult(r probe.Result) error {
	if r.HostAddress == "" {
		return &ValidationError{Field: "host_address", Reason: "must not be empty"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "must be set"}
	}
	if r.PacketsSent < 1 {
		return &ValidationError{Field: "packets_sent", Reason: "must be at least 1"}
	}
	if r.PacketsReceived < 0 {
		return &ValidationError{Field: "packets_received", Reason: "must not be negative"}
	}
	if r.PacketsReceived > r.PacketsSent {
		return &ValidationError{Field: "packets_received", Reason: "exceeds packets sent"}
	}
	if r.PacketsReceived == 0 {
		if r.MinLatency != nil || r.AvgLatency != nil || r.MaxLatency != nil {
			return &ValidationError{Field: "latency", Reason: "must be absent when no packets were received"}
		}
		return nil
	}
	if r.MinLatency == nil || r.AvgLatency == nil || r.MaxLatency == nil {
		return &ValidationError{Field: "latency", Reason: "required when packets were received"}
	}
	if *r.MinLatency < 0 {
		return &ValidationError{Field: "min_latency", Reason: "must not be negative"}
	}
	if *r.MinLatency > *r.AvgLatency || *r.AvgLatency > *r.MaxLatency {
		return &ValidationError{Field: "latency", Reason: "min/avg/max must be ordered"}
	}
	return nil
}

// LatestResults returns the most recent check result for each host that has
// ever been checked, ordered by host name.
func (d *DB) LatestResults(ctx context.Context) ([]CheckResult, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, host_name, host_address, timestamp, packets_sent, packets_received, success_rate, min_latency, avg_latency, max_latency
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY host_address ORDER BY timestamp DESC, id DESC) AS rn
			FROM check_results
		)
		WHERE rn = 1
		ORDER BY host_name, host_address
	`)
	if err != nil {
		return nil, fmt.Errorf("querying latest results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// Results returns a host's check results within [start, end], oldest first.
// A zero start means unbounded past and a zero end means now.
func (d *DB) Results(ctx context.Context, hostAddress string, start, end time.Time) ([]CheckResult, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	query := selectResult + ` WHERE host_address = ? AND timestamp <= ?`
	args := []any{hostAddress, formatTime(end)}
	if !start.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, formatTime(start))
	}
	query += ` ORDER BY timestamp, id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results for %q: %w", hostAddress, err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// MonitoredHosts returns every host address present in check history, each
// with the host name from its most recent result, sorted by name. Hosts
// removed from the configuration remain listed as long as their history
// survives retention.
func (d *DB) MonitoredHosts(ctx context.Context) ([]Host, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT host_name, host_address
		FROM (
			SELECT host_name, host_address, ROW_NUMBER() OVER (PARTITION BY host_address ORDER BY timestamp DESC, id DESC) AS rn
			FROM check_results
		)
		WHERE rn = 1
		ORDER BY host_name, host_address
	`)
	if err != nil {
		return nil, fmt.Errorf("querying monitored hosts: %w", err)
	}
	defer rows.Close()

	var hosts []Host
	for rows.Next() {
		var h Host
		if err := rows.Scan(&h.Name, &h.Address); err != nil {
			return nil, fmt.Errorf("scanning host row: %w", err)
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating host rows: %w", err)
	}
	return hosts, nil
}

// PurgeResultsBefore deletes check results with a timestamp strictly before
// cutoff and reports how many rows were removed. Outage events are a
// separate record and are never purged.
func (d *DB) PurgeResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM check_results WHERE timestamp < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purging check results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged results: %w", err)
	}
	return n, nil
}

// Statistics aggregates a host's check results over [start, end]. Latency
// aggregates skip all-failed checks, which store no latency. A window with
// no checks yields zero counts and nil latencies.
func (d *DB) Statistics(ctx context.Context, hostAddress string, start, end time.Time) (Stats, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	query := `
		SELECT COUNT(*),
		       COALESCE(AVG(success_rate), 0),
		       COALESCE(MIN(success_rate), 0),
		       COALESCE(MAX(success_rate), 0),
		       AVG(avg_latency),
		       MIN(min_latency),
		       MAX(max_latency)
		FROM check_results
		WHERE host_address = ? AND timestamp <= ?`
	args := []any{hostAddress, formatTime(end)}
	if !start.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, formatTime(start))
	}

	var s Stats
	var avgL, minL, maxL sql.NullFloat64
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&s.TotalChecks,
		&s.AvgSuccessRate, &s.MinSuccessRate, &s.MaxSuccessRate,
		&avgL, &minL, &maxL,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregating statistics for %q: %w", hostAddress, err)
	}
	if avgL.Valid {
		s.AvgLatency = &avgL.Float64
	}
	if minL.Valid {
		s.MinLatency = &minL.Float64
	}
	if maxL.Valid {
		s.MaxLatency = &maxL.Float64
	}
	return s, nil
}

func scanResult(row scanner) (*CheckResult, error) {
	var r CheckResult
	var ts string
	var minL, avgL, maxL sql.NullFloat64
	err := row.Scan(&r.ID, &r.HostName, &r.HostAddress, &ts, &r.PacketsSent, &r.PacketsReceived, &r.SuccessRate, &minL, &avgL, &maxL)
	if err != nil {
		return nil, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	r.Timestamp = t
	if minL.Valid {
		r.MinLatency = &minL.Float64
	}
	if avgL.Valid {
		r.AvgLatency = &avgL.Float64
	}
	if maxL.Valid {
		r.MaxLatency = &maxL.Float64
	}
	return &r, nil
}

func scanResults(rows *sql.Rows) ([]CheckResult, error) {
	var results []CheckResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning check result row: %w", err)
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating check result rows: %w", err)
	}
	return results, nil
}
