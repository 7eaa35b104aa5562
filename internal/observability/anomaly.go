package observability

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jkaninda/mlinzi/internal/config"
)

// AnomalyDetector watches op invocation outcomes over a sliding window and
// logs loudly when failure patterns cross configured thresholds. Two
// signals matter for a credential broker: a high overall error rate per
// verb, and any burst of authentication failures on the service-account
// token.
type AnomalyDetector struct {
	mu        sync.Mutex
	errors    map[string]*slidingWindow
	successes map[string]*slidingWindow
	authFails *slidingWindow
	cfg       *config.AnomalyConfig
	logger    *slog.Logger
}

type slidingWindow struct {
	entries []time.Time
	window  time.Duration
}

// NewAnomalyDetector creates an anomaly detector from config.
func NewAnomalyDetector(cfg *config.AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	d := &AnomalyDetector{
		errors:    make(map[string]*slidingWindow),
		successes: make(map[string]*slidingWindow),
		cfg:       cfg,
		logger:    logger,
	}
	d.authFails = &slidingWindow{window: d.windowDuration()}
	return d
}

func (a *AnomalyDetector) windowDuration() time.Duration {
	secs := a.cfg.WindowSeconds
	if secs <= 0 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}

// RecordSuccess records a successful op invocation for the given verb.
func (a *AnomalyDetector) RecordSuccess(verb string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.getOrCreateWindow(a.successes, verb).add()
}

// RecordError records a failed op invocation for the given verb.
func (a *AnomalyDetector) RecordError(verb string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.getOrCreateWindow(a.errors, verb).add()
	a.checkErrorRate(verb)
}

// RecordAuthFailure records an authentication failure. Repeated auth
// failures within the window mean the token is expired, revoked, or being
// probed, and warrant an alert independent of the overall error rate.
func (a *AnomalyDetector) RecordAuthFailure(verb string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.getOrCreateWindow(a.errors, verb).add()
	a.authFails.add()
	a.checkAuthFailures()
	a.checkErrorRate(verb)
}

// checkErrorRate checks if the error rate exceeds the configured threshold.
// Must be called with a.mu held.
func (a *AnomalyDetector) checkErrorRate(verb string) {
	threshold := a.cfg.ErrorRateThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	errors := a.getOrCreateWindow(a.errors, verb).count()
	successes := a.getOrCreateWindow(a.successes, verb).count()
	total := errors + successes

	if total < 5 {
		return // Not enough data.
	}

	rate := float64(errors) / float64(total)
	if rate > threshold && a.logger != nil {
		a.logger.Warn("anomaly detected: high op error rate",
			slog.String("verb", verb),
			slog.Float64("error_rate", rate),
			slog.Float64("threshold", threshold),
			slog.Int("errors", errors),
			slog.Int("total", total),
		)
	}
}

// checkAuthFailures alerts on repeated authentication failures.
// Must be called with a.mu held.
func (a *AnomalyDetector) checkAuthFailures() {
	threshold := a.cfg.AuthFailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	if count := a.authFails.count(); count >= threshold && a.logger != nil {
		a.logger.Warn("anomaly detected: repeated authentication failures",
			slog.Int("failures", count),
			slog.Int("threshold", threshold),
			slog.Duration("window", a.windowDuration()),
		)
	}
}

func (a *AnomalyDetector) getOrCreateWindow(m map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := m[key]
	if !ok {
		w = &slidingWindow{window: a.windowDuration()}
		m[key] = w
	}
	return w
}

// add appends an entry and prunes expired ones.
func (w *slidingWindow) add() {
	now := time.Now()
	w.entries = append(w.entries, now)
	w.prune(now)
}

// count returns the number of entries within the window.
func (w *slidingWindow) count() int {
	w.prune(time.Now())
	return len(w.entries)
}

// prune removes entries older than the window duration.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
