package observability

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Per-check budget. An op CLI probe that cannot answer in this time is
// treated as failed rather than allowed to stall the readiness endpoint.
const healthCheckTimeout = 3 * time.Second

// Readiness failure messages are served over HTTP; cap them so a verbose
// op stderr cannot be replayed wholesale through the diagnostics port.
const maxCheckMessage = 200

// HealthChecker aggregates readiness from named dependency checks. The
// serve command registers an op reachability probe here; the diagnostics
// server exposes the results.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]func(ctx context.Context) error
	logger *slog.Logger
}

// HealthStatus is the JSON response for health/readiness endpoints.
type HealthStatus struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the status of a single dependency check.
type CheckResult struct {
	Status  string `json:"status"`            // "ok" or "fail"
	Message string `json:"message,omitempty"` // Truncated error on failure.
}

// NewHealthChecker creates a HealthChecker with no checks registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]func(ctx context.Context) error),
		logger: logger,
	}
}

// AddCheck registers a named readiness check, replacing any previous check
// with the same name.
func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// CheckHealth returns liveness status. Always "ok" while the process runs.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: "ok"}
}

// CheckReady runs every registered check and returns aggregate readiness:
// "ok" only if all checks pass, "degraded" otherwise. Each check gets its
// own timeout so one hung dependency cannot starve the rest.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]func(ctx context.Context) error, len(names))
	for _, name := range names {
		checks[name] = h.checks[name]
	}
	h.mu.RUnlock()

	if len(checks) == 0 {
		return HealthStatus{Status: "ok"}
	}

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult, len(checks)),
	}

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := checks[name](checkCtx)
		cancel()

		if err == nil {
			status.Checks[name] = CheckResult{Status: "ok"}
			continue
		}

		status.Status = "degraded"
		msg := err.Error()
		if len(msg) > maxCheckMessage {
			msg = msg[:maxCheckMessage]
		}
		status.Checks[name] = CheckResult{Status: "fail", Message: msg}
		if h.logger != nil {
			h.logger.Warn("readiness check failed",
				slog.String("check", name),
				slog.String("error", msg),
			)
		}
	}

	return status
}
