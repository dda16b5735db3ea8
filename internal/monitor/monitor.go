// Package monitor implements the C7 monitoring aggregator: in-memory
// counters updated on every operation plus cooldown-throttled threshold
// alerts appended to a dedicated stream (spec §4.7).
//
// Counter shape is grounded on the retrieval pack's
// other_examples/170d2a94_..._pricing_chain.go.go (a prometheus.CounterVec
// keyed by outcome label for a pricing-lookup chain); exposition is
// grounded on the teacher's cmd/api/main.go::createHTTPServer, which
// registers promhttp.Handler() at /metrics against the default Prometheus
// registry. Record* and Observe* calls update in-memory atomics and
// prometheus counters (ObserveUsage also reads the daily usage counter from
// the store) and evaluate thresholds inline. When an alert fires, at most
// once per key per cooldown, its billing:alerts append runs synchronously
// in the calling goroutine with a 2-second timeout; a failed append is
// logged and never returned to the caller.
package monitor

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelpejol/beam/internal/money"
	"github.com/kelpejol/beam/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Thresholds carries the five configurable signal thresholds of §4.7.
type Thresholds struct {
	ErrorRate             float64
	LowBalanceUSD         money.Amount
	HighUsageTokensPerDay int64
	ReservationTTLSeconds int64
	AlertCooldown         time.Duration
}

// Aggregator is the process-wide monitoring component. It satisfies
// billing.Recorder structurally (no import of billing here, per Go's
// accept-interfaces-on-the-consumer-side convention).
type Aggregator struct {
	st  store.Store
	log zerolog.Logger

	mu         sync.RWMutex
	thresholds Thresholds

	total      int64
	successful int64
	failed     int64

	totalCharges      money.Amount
	totalReservations int64
	totalCommits      int64

	lastAlert map[string]time.Time
	alertMu   sync.Mutex

	Registry  *prometheus.Registry
	opCounter *prometheus.CounterVec
}

// New builds an Aggregator with its own Prometheus registry (rather than
// the global DefaultRegisterer, so multiple Aggregators — one per test —
// never collide on MustRegister). cmd/billingd wires Registry into the
// /metrics handler the same way the teacher wires promhttp.Handler() at
// /metrics against the default registry.
func New(st store.Store, thresholds Thresholds, log zerolog.Logger) *Aggregator {
	if thresholds.AlertCooldown == 0 {
		thresholds.AlertCooldown = 3600 * time.Second
	}

	reg := prometheus.NewRegistry()
	opCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beam_billing_operations_total",
		Help: "Count of billing core operations by type and outcome.",
	}, []string{"op", "outcome"})
	reg.MustRegister(opCounter)

	return &Aggregator{
		st:           st,
		log:          log,
		thresholds:   thresholds,
		totalCharges: money.Zero(),
		lastAlert:    make(map[string]time.Time),
		Registry:     reg,
		opCounter:    opCounter,
	}
}

// RecordResult implements billing.Recorder.
func (a *Aggregator) RecordResult(op string, success bool) {
	atomic.AddInt64(&a.total, 1)
	outcome := "failure"
	if success {
		atomic.AddInt64(&a.successful, 1)
		outcome = "success"
		switch op {
		case "reserve":
			atomic.AddInt64(&a.totalReservations, 1)
		case "commit":
			atomic.AddInt64(&a.totalCommits, 1)
		}
	} else {
		atomic.AddInt64(&a.failed, 1)
	}
	a.opCounter.WithLabelValues(op, outcome).Inc()

	a.evaluateErrorRate()
}

// RecordCharge implements billing.Recorder: adds amount to total_charges on
// every successful Charge/Commit (§4.7).
func (a *Aggregator) RecordCharge(amount money.Amount) {
	a.mu.Lock()
	a.totalCharges = a.totalCharges.Add(amount)
	a.mu.Unlock()
}

// ObserveBalance implements billing.Recorder: evaluated on read, per user
// (§4.7's low-balance signal).
func (a *Aggregator) ObserveBalance(userID string, balance money.Amount) {
	a.mu.RLock()
	threshold := a.thresholds.LowBalanceUSD
	a.mu.RUnlock()

	if balance.LessThan(threshold) {
		a.maybeAlert("low_balance:"+userID, "balance below threshold for user "+userID)
	}
}

// ObserveUsage implements billing.Recorder: evaluated on read, per user
// (§4.7's high-usage signal). tokensDelta is the increment just applied;
// the caller is responsible for the 24h counter living in the store.
func (a *Aggregator) ObserveUsage(userID string, tokensDelta int64) {
	a.mu.RLock()
	threshold := a.thresholds.HighUsageTokensPerDay
	a.mu.RUnlock()

	today := time.Now().UTC().Format("2006-01-02")
	total, err := a.st.CounterGet(context.Background(), "usage:daily:"+today, userID)
	if err != nil {
		return
	}
	if total > threshold {
		a.maybeAlert("high_usage:"+userID, "usage above threshold for user "+userID)
	}
}

// EvaluateReservationTTL checks the configured reservation TTL against the
// threshold (§4.7). Called once at startup with the server's configured
// TTL, since the TTL itself is static configuration, not a per-operation
// observation.
func (a *Aggregator) EvaluateReservationTTL(configuredTTLSeconds int64) {
	a.mu.RLock()
	threshold := a.thresholds.ReservationTTLSeconds
	a.mu.RUnlock()

	if configuredTTLSeconds < threshold {
		a.maybeAlert("reservation_ttl", "configured reservation TTL below threshold")
	}
}

func (a *Aggregator) evaluateErrorRate() {
	total := atomic.LoadInt64(&a.total)
	failed := atomic.LoadInt64(&a.failed)
	if total == 0 {
		return
	}

	a.mu.RLock()
	threshold := a.thresholds.ErrorRate
	a.mu.RUnlock()

	rate := float64(failed) / float64(total)
	if rate > threshold {
		a.maybeAlert("error_rate", "error rate above threshold")
	}
}

// maybeAlert emits an alert if the per-key cooldown has elapsed. The
// billing:alerts append runs in the caller's goroutine with a 2-second
// timeout; an append failure is logged, not returned.
func (a *Aggregator) maybeAlert(key, message string) {
	a.alertMu.Lock()
	last, seen := a.lastAlert[key]
	now := time.Now()
	if seen && now.Sub(last) < a.thresholds.AlertCooldown {
		a.alertMu.Unlock()
		return
	}
	a.lastAlert[key] = now
	a.alertMu.Unlock()

	snapshot := a.Snapshot()
	entry := store.StreamEntry{
		"message":        message,
		"timestamp":      now.Format(time.RFC3339),
		"total":          strconv.FormatInt(snapshot.Total, 10),
		"successful":     strconv.FormatInt(snapshot.Successful, 10),
		"failed":         strconv.FormatInt(snapshot.Failed, 10),
		"total_charges":  snapshot.TotalCharges.String(),
		"total_reserves": strconv.FormatInt(snapshot.TotalReservations, 10),
		"total_commits":  strconv.FormatInt(snapshot.TotalCommits, 10),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.st.StreamAppend(ctx, "billing:alerts", entry); err != nil {
		a.log.Warn().Err(err).Str("alert_key", key).Msg("billing:alerts append failed")
	}
}

// Metrics is a read-only snapshot of the aggregator's counters, for the
// GetMetrics/GetStats RPCs.
type Metrics struct {
	Total             int64
	Successful        int64
	Failed            int64
	TotalCharges      money.Amount
	TotalReservations int64
	TotalCommits      int64
}

// Snapshot returns the current counters.
func (a *Aggregator) Snapshot() Metrics {
	a.mu.RLock()
	charges := a.totalCharges
	a.mu.RUnlock()

	return Metrics{
		Total:             atomic.LoadInt64(&a.total),
		Successful:        atomic.LoadInt64(&a.successful),
		Failed:            atomic.LoadInt64(&a.failed),
		TotalCharges:      charges,
		TotalReservations: atomic.LoadInt64(&a.totalReservations),
		TotalCommits:      atomic.LoadInt64(&a.totalCommits),
	}
}

// Alerts returns up to count recent alerts from billing:alerts.
func (a *Aggregator) Alerts(ctx context.Context, count int64) ([]store.StreamEntry, error) {
	return a.st.StreamRange(ctx, "billing:alerts", count)
}

// UpdateThresholds replaces the threshold configuration (administrative
// RPC UpdateThresholds, §4.8).
func (a *Aggregator) UpdateThresholds(t Thresholds) {
	if t.AlertCooldown == 0 {
		t.AlertCooldown = a.thresholds.AlertCooldown
	}
	a.mu.Lock()
	a.thresholds = t
	a.mu.Unlock()
}
