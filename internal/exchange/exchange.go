// Package exchange implements the C4 exchange-rate table: a
// currency-to-USD-base mapping with an hourly background refresher
// (spec §4.4).
//
// No direct teacher analogue exists (Kelpejol-consonant-engine has no
// multi-currency support), so the background-refresh lifecycle is
// grounded on the teacher's own periodic-ticker idiom in
// internal/sync/sync.go (StartPeriodicSync's ticker + stopCh + Error-logged
// failure handling), generalized from a 5-minute PostgreSQL-drift sync to
// an hourly external-feed poll with 60s retry backoff.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kelpejol/beam/internal/errs"
	"github.com/kelpejol/beam/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const storeKey = "exchange:current"

// pinned currencies can never be removed (spec §4.4).
var pinned = map[string]bool{"USD": true, "USDT": true}

// Feed fetches fresh rates from the external exchange-rate provider. Real
// feed integration is out of scope (spec §1: "the external exchange-rate
// and pricing feeds" are interface contracts only); callers supply a Feed
// implementation appropriate to their deployment.
type Feed interface {
	FetchRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

type snapshot struct {
	Rates       map[string]string `json:"rates"`
	LastUpdated time.Time         `json:"last_updated"`
}

// Table is the process-wide exchange-rate component.
type Table struct {
	mu  sync.RWMutex
	cur snapshot

	st     store.Store
	feed   Feed
	log    zerolog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Load reads exchange:current from the store, falling back to the pinned
// defaults (USD=1, USDT=1) if absent.
func Load(ctx context.Context, st store.Store, feed Feed, log zerolog.Logger) (*Table, error) {
	t := &Table{st: st, feed: feed, log: log, stopCh: make(chan struct{})}

	raw, err := st.GetString(ctx, storeKey)
	if err == store.ErrNotFound {
		t.cur = snapshot{
			Rates:       map[string]string{"USD": "1", "USDT": "1"},
			LastUpdated: time.Time{},
		}
		return t, nil
	}
	if err != nil {
		return nil, errs.External("load exchange snapshot", err)
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, errs.External("corrupt exchange:current snapshot", err)
	}
	t.cur = snap
	return t, nil
}

// Rate returns the currency's rate against the base, a validation error if
// the currency is unknown.
func (t *Table) Rate(currency string) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	raw, ok := t.cur.Rates[currency]
	if !ok {
		return decimal.Zero, errs.Validation(fmt.Sprintf("unknown currency %q", currency))
	}
	return decimal.NewFromString(raw)
}

// Snapshot returns every currency and its rate plus the last-refresh time.
func (t *Table) Snapshot() (map[string]string, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cp := make(map[string]string, len(t.cur.Rates))
	for k, v := range t.cur.Rates {
		cp[k] = v
	}
	return cp, t.cur.LastUpdated
}

func (t *Table) persist(ctx context.Context) error {
	raw, err := json.Marshal(t.cur)
	if err != nil {
		return errs.External("marshal exchange snapshot", err)
	}
	return t.st.SetString(ctx, storeKey, string(raw))
}

// AddCurrency adds or overwrites a currency/rate pair and persists.
func (t *Table) AddCurrency(ctx context.Context, currency string, rate decimal.Decimal) error {
	t.mu.Lock()
	t.cur.Rates[currency] = rate.String()
	t.cur.LastUpdated = time.Now()
	snap := t.cur
	t.mu.Unlock()

	if err := t.persistSnapshot(ctx, snap); err != nil {
		return err
	}
	return nil
}

// RemoveCurrency removes a currency, rejected for USD/USDT (spec §4.4).
func (t *Table) RemoveCurrency(ctx context.Context, currency string) error {
	if pinned[currency] {
		return errs.Validation(fmt.Sprintf("currency %q cannot be removed", currency))
	}

	t.mu.Lock()
	delete(t.cur.Rates, currency)
	t.cur.LastUpdated = time.Now()
	snap := t.cur
	t.mu.Unlock()

	return t.persistSnapshot(ctx, snap)
}

// UpdateRate changes a single currency's rate. Pinned currencies can be
// rewritten too only to 1 — attempting anything else is rejected, since the
// spec requires USD/USDT fixed at 1.
func (t *Table) UpdateRate(ctx context.Context, currency string, rate decimal.Decimal) error {
	if pinned[currency] && !rate.Equal(decimal.NewFromInt(1)) {
		return errs.Validation(fmt.Sprintf("currency %q is pinned to 1", currency))
	}
	return t.AddCurrency(ctx, currency, rate)
}

func (t *Table) persistSnapshot(ctx context.Context, snap snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return errs.External("marshal exchange snapshot", err)
	}
	if err := t.st.SetString(ctx, storeKey, string(raw)); err != nil {
		return errs.External("persist exchange snapshot", err)
	}
	return nil
}

// Refresh pulls fresh rates from the feed and persists them, keeping USD
// and USDT pinned to 1 regardless of what the feed reports. On feed
// failure, the previous snapshot is kept in place (spec §4.4: "failures
// fall back to the previous snapshot").
func (t *Table) Refresh(ctx context.Context) error {
	rates, err := t.feed.FetchRates(ctx)
	if err != nil {
		return errs.External("exchange feed fetch failed", err)
	}

	next := snapshot{
		Rates:       make(map[string]string, len(rates)+2),
		LastUpdated: time.Now(),
	}
	for currency, rate := range rates {
		next.Rates[currency] = rate.String()
	}
	next.Rates["USD"] = "1"
	next.Rates["USDT"] = "1"

	if err := t.persistSnapshot(ctx, next); err != nil {
		return err
	}

	t.mu.Lock()
	t.cur = next
	t.mu.Unlock()
	return nil
}

// StartPeriodicRefresh starts a background goroutine that refreshes the
// table every interval, retrying after 60s on failure — the exchange
// analogue of the teacher's StartPeriodicSync.
func (t *Table) StartPeriodicRefresh(interval, retryBackoff time.Duration) {
	if interval == 0 {
		interval = time.Hour
	}
	if retryBackoff == 0 {
		retryBackoff = 60 * time.Second
	}

	t.log.Info().Dur("interval", interval).Msg("starting periodic exchange-rate refresh")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.refreshWithRetry(retryBackoff)
			case <-t.stopCh:
				t.log.Info().Msg("periodic exchange-rate refresh stopped")
				return
			}
		}
	}()
}

func (t *Table) refreshWithRetry(backoff time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := t.Refresh(ctx); err != nil {
		t.log.Error().Err(err).Msg("exchange-rate refresh failed, retrying after backoff")
		select {
		case <-time.After(backoff):
			retryCtx, retryCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer retryCancel()
			if err := t.Refresh(retryCtx); err != nil {
				t.log.Error().Err(err).Msg("exchange-rate refresh retry failed, keeping previous snapshot")
			}
		case <-t.stopCh:
		}
	}
}

// Stop halts the background refresher.
func (t *Table) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}
