package alert

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hazz-dev/pingmon/internal/storage"
)

// Alerter sends webhook notifications when outages open or close.
type Alerter struct {
	webhookURL string
	cooldown   time.Duration
	client     *http.Client
	lastAlert  map[string]time.Time
	mu         sync.Mutex
	logger     *slog.Logger
}

// New creates a new Alerter. Pass nil logger to use the default logger.
func New(webhookURL string, cooldown time.Duration, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		lastAlert:  make(map[string]time.Time),
		logger:     logger,
	}
}

type webhookPayload struct {
	HostName            string   `json:"host_name"`
	HostAddress         string   `json:"host_address"`
	Event               string   `json:"event"`
	StartTime           string   `json:"start_time"`
	EndTime             string   `json:"end_time,omitempty"`
	DurationSeconds     *float64 `json:"duration_seconds,omitempty"`
	RecoverySuccessRate *float64 `json:"recovery_success_rate,omitempty"`
	Notes               string   `json:"notes,omitempty"`
	Source              string   `json:"source"`
}

// Notify sends a webhook for an outage transition unless the host is still
// inside its cooldown window. Its signature matches the tracker's change
// callback, so it can be wired directly.
func (a *Alerter) Notify(ev storage.OutageEvent, closed bool) {
	a.mu.Lock()
	last, exists := a.lastAlert[ev.HostAddress]
	if exists && time.Since(last) < a.cooldown {
		a.mu.Unlock()
		a.logger.Info("alert suppressed by cooldown", "address", ev.HostAddress)
		return
	}
	a.lastAlert[ev.HostAddress] = time.Now()
	a.mu.Unlock()

	event := storage.EventTypeStart
	if closed {
		event = storage.EventTypeEnd
	}

	// Send asynchronously so Notify doesn't block the check pipeline.
	go a.send(ev, event)
}

func (a *Alerter) send(ev storage.OutageEvent, event string) {
	payload := webhookPayload{
		HostName:            ev.HostName,
		HostAddress:         ev.HostAddress,
		Event:               event,
		StartTime:           ev.StartTime.UTC().Format(time.RFC3339),
		DurationSeconds:     ev.DurationSeconds,
		RecoverySuccessRate: ev.RecoverySuccessRate,
		Notes:               ev.Notes,
		Source:              "pingmon",
	}
	if ev.EndTime != nil {
		payload.EndTime = ev.EndTime.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("marshaling webhook payload", "address", ev.HostAddress, "error", err)
		return
	}

	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Error("sending webhook", "address", ev.HostAddress, "url", a.webhookURL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("webhook returned non-2xx status",
			"address", ev.HostAddress,
			"status", resp.StatusCode,
		)
	}
}
