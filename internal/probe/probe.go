// Package probe runs ICMP reachability checks by shelling out to the
// system ping binary and parsing its statistics summary.
package probe

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/hazz-dev/pingmon/internal/config"
)

// CommandExecutor abstracts os/exec for testability.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// Result is the outcome of a single multi-packet probe. The latency fields
// are nil when no packet came back. Error carries diagnostic detail for
// logging and is never persisted.
type Result struct {
	HostName        string
	HostAddress     string
	Timestamp       time.Time
	PacketsSent     int
	PacketsReceived int
	SuccessRate     float64
	MinLatency      *float64
	AvgLatency      *float64
	MaxLatency      *float64
	Error           string
}

// Pinger probes hosts with the system ping command.
type Pinger struct {
	count    int
	timeout  time.Duration
	executor CommandExecutor
}

// New creates a Pinger that sends count packets per probe and waits up to
// timeout for each reply.
func New(count int, timeout time.Duration) *Pinger {
	return &Pinger{count: count, timeout: timeout, executor: &osExecutor{}}
}

// NewWithExecutor creates a Pinger with a custom executor (for testing).
func NewWithExecutor(count int, timeout time.Duration, exec CommandExecutor) *Pinger {
	return &Pinger{count: count, timeout: timeout, executor: exec}
}

var (
	packetsRegex = regexp.MustCompile(`(\d+) packets transmitted, (\d+)(?: packets)? received`)
	rttRegex     = regexp.MustCompile(`(?:rtt|round-trip) min/avg/max(?:/(?:mdev|stddev))? = ([\d.]+)/([\d.]+)/([\d.]+)`)
)

// Probe pings the host once and reports packet counts and latency
// statistics. An unreachable host yields a zero success rate, not an error:
// ping exits non-zero on total loss but its statistics block still parses.
func (p *Pinger) Probe(ctx context.Context, host config.Host) Result {
	result := Result{
		HostName:    host.Name,
		HostAddress: host.Address,
		Timestamp:   time.Now().UTC(),
		PacketsSent: p.count,
	}

	timeoutSec := int(math.Ceil(p.timeout.Seconds()))
	if timeoutSec < 1 {
		timeoutSec = 1
	}

	// ping paces one packet per second; bound the whole run, not just
	// each reply wait.
	budget := time.Duration(p.count)*time.Second + p.timeout + 2*time.Second
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var args []string
	if runtime.GOOS == "darwin" {
		args = []string{"-c", strconv.Itoa(p.count), "-t", strconv.Itoa(timeoutSec), host.Address}
	} else {
		args = []string{"-c", strconv.Itoa(p.count), "-W", strconv.Itoa(timeoutSec), host.Address}
	}

	stdout, _, err := p.executor.Run(ctx, "ping", args...)

	sent, received, ok := parsePackets(stdout)
	if !ok || received > sent {
		if err != nil {
			result.Error = fmt.Sprintf("ping %s: %v", host.Address, err)
		} else {
			result.Error = "could not parse packet statistics from ping output"
		}
		return result
	}
	if sent > 0 {
		result.PacketsSent = sent
	}
	if received == 0 {
		result.Error = fmt.Sprintf("no reply from %s", host.Address)
		return result
	}

	minMs, avgMs, maxMs, ok := parseRTT(stdout)
	if !ok {
		result.Error = "could not parse round-trip statistics from ping output"
		return result
	}

	result.PacketsReceived = received
	result.SuccessRate = float64(received) / float64(sent) * 100
	result.MinLatency = &minMs
	result.AvgLatency = &avgMs
	result.MaxLatency = &maxMs
	return result
}

func parsePackets(out []byte) (sent, received int, ok bool) {
	m := packetsRegex.FindSubmatch(out)
	if m == nil {
		return 0, 0, false
	}
	sent, _ = strconv.Atoi(string(m[1]))
	received, _ = strconv.Atoi(string(m[2]))
	return sent, received, true
}

func parseRTT(out []byte) (minMs, avgMs, maxMs float64, ok bool) {
	m := rttRegex.FindSubmatch(out)
	if m == nil {
		return 0, 0, 0, false
	}
	minMs, _ = strconv.ParseFloat(string(m[1]), 64)
	avgMs, _ = strconv.ParseFloat(string(m[2]), 64)
	maxMs, _ = strconv.ParseFloat(string(m[3]), 64)
	return minMs, avgMs, maxMs, true
}
