// Package server exposes the HTTP API for host status, check history,
// and outage events.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hazz-dev/pingmon/internal/config"
	"github.com/hazz-dev/pingmon/internal/storage"
)

// Store defines the storage queries the server needs.
type Store interface {
	LatestResults(ctx context.Context) ([]storage.CheckResult, error)
	Results(ctx context.Context, hostAddress string, start, end time.Time) ([]storage.CheckResult, error)
	MonitoredHosts(ctx context.Context) ([]storage.Host, error)
	Statistics(ctx context.Context, hostAddress string, start, end time.Time) (storage.Stats, error)
	ActiveOutage(ctx context.Context, hostAddress string) (*storage.OutageEvent, error)
	Outages(ctx context.Context, f storage.OutageFilter) ([]storage.OutageEvent, error)
	OutageStatistics(ctx context.Context, hostAddress string, start, end time.Time) (storage.OutageStats, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	store  Store
	hosts  []config.Host
	router chi.Router
	logger *slog.Logger
}

// New creates a new Server and registers all routes.
func New(store Store, hosts []config.Host, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		hosts:  hosts,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.AllowAll().Handler)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/hosts", s.handleListHosts)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/hosts/{address}/results", s.handleHostResults)
	r.Get("/api/hosts/{address}/statistics", s.handleHostStatistics)
	r.Get("/api/outages", s.handleListOutages)
	r.Get("/api/outages/statistics", s.handleOutageStatistics)
	r.Get("/api/live", s.handleLive)
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Request helpers ---

const maxLimit = 1000

// parseWindow reads the optional RFC 3339 start/end query parameters.
func parseWindow(r *http.Request) (start, end time.Time, err error) {
	if v := r.URL.Query().Get("start"); v != "" {
		start, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid start parameter")
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		end, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid end parameter")
		}
	}
	return start, end, nil
}

// parseLimit reads the optional limit query parameter, clamped to maxLimit.
// Zero means no limit.
func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid limit parameter")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

// hostKnown reports whether the address is configured or has stored results.
func (s *Server) hostKnown(ctx context.Context, address string) (bool, error) {
	for _, h := range s.hosts {
		if h.Address == address {
			return true, nil
		}
	}
	hosts, err := s.store.MonitoredHosts(ctx)
	if err != nil {
		return false, err
	}
	for _, h := range hosts {
		if h.Address == address {
			return true, nil
		}
	}
	return false, nil
}

// --- Status snapshot ---

// Success-rate thresholds for classifying a host's most recent check.
const (
	healthyThreshold  = 95.0
	degradedThreshold = 80.0
)

func statusWord(successRate float64) string {
	switch {
	case successRate >= healthyThreshold:
		return "healthy"
	case successRate >= degradedThreshold:
		return "degraded"
	default:
		return "down"
	}
}

type hostStatus struct {
	Name         string               `json:"name"`
	Address      string               `json:"address"`
	Status       string               `json:"status"`
	SuccessRate  float64              `json:"success_rate"`
	AvgLatencyMs *float64             `json:"avg_latency_ms"`
	LastChecked  *time.Time           `json:"last_checked"`
	ActiveOutage *storage.OutageEvent `json:"active_outage,omitempty"`
}

type statusSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Hosts       []hostStatus `json:"hosts"`
}

// buildSnapshot joins the configured hosts with their latest stored results.
// Hosts without any results report status "unknown".
func (s *Server) buildSnapshot(ctx context.Context) (statusSnapshot, error) {
	latest, err := s.store.LatestResults(ctx)
	if err != nil {
		return statusSnapshot{}, err
	}

	byAddress := make(map[string]storage.CheckResult, len(latest))
	for _, res := range latest {
		byAddress[res.HostAddress] = res
	}

	hosts := make([]hostStatus, 0, len(s.hosts))
	for _, h := range s.hosts {
		hs := hostStatus{
			Name:    h.Name,
			Address: h.Address,
			Status:  "unknown",
		}
		if res, ok := byAddress[h.Address]; ok {
			hs.Status = statusWord(res.SuccessRate)
			hs.SuccessRate = res.SuccessRate
			hs.AvgLatencyMs = res.AvgLatency
			t := res.Timestamp
			hs.LastChecked = &t
			if hs.Status == "down" {
				ev, err := s.store.ActiveOutage(ctx, h.Address)
				if err != nil {
					return statusSnapshot{}, err
				}
				hs.ActiveOutage = ev
			}
		}
		hosts = append(hosts, hs)
	}

	return statusSnapshot{
		GeneratedAt: time.Now().UTC(),
		Hosts:       hosts,
	}, nil
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.store.MonitoredHosts(r.Context())
	if err != nil {
		s.logger.Error("MonitoredHosts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.buildSnapshot(r.Context())
	if err != nil {
		s.logger.Error("status snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type resultsResponse struct {
	Results []storage.CheckResult `json:"results"`
	Total   int                   `json:"total"`
}

func (s *Server) handleHostResults(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.store.Results(r.Context(), address, start, end)
	if err != nil {
		s.logger.Error("Results", "address", address, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(results) == 0 {
		known, err := s.hostKnown(r.Context(), address)
		if err != nil {
			s.logger.Error("MonitoredHosts", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !known {
			writeError(w, http.StatusNotFound, "host not found")
			return
		}
	}

	total := len(results)
	if limit > 0 && len(results) > limit {
		// Keep the most recent rows without disturbing chronological order.
		results = results[len(results)-limit:]
	}

	writeJSON(w, http.StatusOK, resultsResponse{
		Results: results,
		Total:   total,
	})
}

func (s *Server) handleHostStatistics(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	known, err := s.hostKnown(r.Context(), address)
	if err != nil {
		s.logger.Error("MonitoredHosts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !known {
		writeError(w, http.StatusNotFound, "host not found")
		return
	}

	stats, err := s.store.Statistics(r.Context(), address, start, end)
	if err != nil {
		s.logger.Error("Statistics", "address", address, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListOutages(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := storage.OutageFilter{
		HostAddress: r.URL.Query().Get("host"),
		Start:       start,
		End:         end,
		Limit:       limit,
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active parameter")
			return
		}
		filter.ActiveOnly = active
	}

	outages, err := s.store.Outages(r.Context(), filter)
	if err != nil {
		s.logger.Error("Outages", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, outages)
}

func (s *Server) handleOutageStatistics(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := s.store.OutageStatistics(r.Context(), r.URL.Query().Get("host"), start, end)
	if err != nil {
		s.logger.Error("OutageStatistics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the underlying connection.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
