package streams

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
	"github.com/murrou-cell/stremio-zamunda/internal/metrics"
)

type queryHealth struct {
	consecutiveFailures int
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastResults         int
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// healthTracker keeps per-query-kind tracker statistics. It never blocks
// queries: a failing tracker only degrades that query to an empty result.
type healthTracker struct {
	mu    sync.Mutex
	state map[string]*queryHealth
}

func newHealthTracker() *healthTracker {
	return &healthTracker{state: make(map[string]*queryHealth)}
}

func (h *healthTracker) record(kind string, results int, err error, latency time.Duration, now time.Time) {
	if h == nil || kind == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.state[kind]
	if state == nil {
		state = &queryHealth{}
		h.state[kind] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.ProviderRequestDuration.WithLabelValues(kind).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.lastSuccessAt = now
		state.lastResults = results
		metrics.ProviderRequestsTotal.WithLabelValues(kind, "ok").Inc()
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()
	state.lastResults = 0

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(kind, status).Inc()
}

func (h *healthTracker) diagnostics() []domain.QueryDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()

	items := make([]domain.QueryDiagnostics, 0, len(h.state))
	for kind, state := range h.state {
		item := domain.QueryDiagnostics{
			Query:               kind,
			ConsecutiveFailures: state.consecutiveFailures,
			LastError:           state.lastError,
			LastLatencyMS:       state.lastLatency.Milliseconds(),
			LastTimeout:         state.lastTimeout,
			LastResults:         state.lastResults,
			TotalRequests:       state.totalRequests,
			TotalFailures:       state.totalFailures,
			TimeoutCount:        state.timeoutCount,
		}
		if !state.lastSuccessAt.IsZero() {
			lastSuccessAt := state.lastSuccessAt
			item.LastSuccessAt = &lastSuccessAt
		}
		if !state.lastFailureAt.IsZero() {
			lastFailureAt := state.lastFailureAt
			item.LastFailureAt = &lastFailureAt
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Query < items[j].Query
	})
	return items
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}
