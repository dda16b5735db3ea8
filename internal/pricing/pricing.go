// Package pricing implements the C3 pricing table: a model/endpoint lookup
// and the single authoritative cost formula used by both Reserve and
// Commit (spec §4.3).
//
// Grounded on the teacher's ledger.pricingCache (a sync.Map loaded from
// Postgres at startup, refreshed on cache miss) but generalized to the
// spec's rw-mutex/copy-on-write snapshot discipline (§9's instruction for
// process-wide mutable state) since hot-swapping the whole table through
// an administrative RPC is a harder requirement than the teacher's
// per-key cache-aside lookup.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kelpejol/beam/internal/errs"
	"github.com/kelpejol/beam/internal/money"
	"github.com/kelpejol/beam/internal/store"
	"github.com/shopspring/decimal"
)

const storeKey = "pricing:current"

// ModelPrice holds the three per-million-token rates a model can carry.
// Embedding models only populate EmbedPerM; chat models populate the other
// two. Both may be set for a model that serves both endpoints.
type ModelPrice struct {
	ChatInputPerM  decimal.Decimal `json:"chat_input_per_m,omitempty"`
	ChatOutputPerM decimal.Decimal `json:"chat_output_per_m,omitempty"`
	EmbedPerM      decimal.Decimal `json:"embed_per_m,omitempty"`
}

// snapshot is the immutable table-plus-metadata unit swapped atomically by
// Update (spec §9's copy-on-write discipline).
type snapshot struct {
	SourceTag   string                `json:"source_tag"`
	LastUpdated time.Time             `json:"last_updated"`
	Table       map[string]ModelPrice `json:"table"`
}

// Table is the process-wide pricing component (§4.3). Reads take the
// current snapshot under a read lock; Update swaps in a new one wholesale
// after persisting it, so every in-flight Lookup observes either the old
// or the new table in full, never a partial mutation (closes P3).
type Table struct {
	mu  sync.RWMutex
	cur snapshot
	st  store.Store
}

// defaultTable is the built-in fallback loaded when the store has no
// pricing:current key yet — a conservative placeholder set, never the
// source's undocumented 10/30/0.13 fallback bug that spec §9 calls out.
func defaultTable() map[string]ModelPrice {
	return map[string]ModelPrice{
		"gpt-4o": {
			ChatInputPerM:  decimal.NewFromInt(5),
			ChatOutputPerM: decimal.NewFromInt(15),
		},
		"gpt-4o-mini": {
			ChatInputPerM:  decimal.NewFromFloat(0.15),
			ChatOutputPerM: decimal.NewFromFloat(0.6),
		},
		"text-embedding-3-large": {
			EmbedPerM: decimal.NewFromFloat(0.13),
		},
	}
}

// Load reads pricing:current from the store, falling back to the built-in
// default if absent (spec §4.3).
func Load(ctx context.Context, st store.Store) (*Table, error) {
	t := &Table{st: st}

	raw, err := st.GetString(ctx, storeKey)
	if err == store.ErrNotFound {
		t.cur = snapshot{
			SourceTag:   "built-in-default",
			LastUpdated: time.Time{},
			Table:       defaultTable(),
		}
		return t, nil
	}
	if err != nil {
		return nil, errs.External("load pricing snapshot", err)
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, errs.Pricing("corrupt pricing:current snapshot: " + err.Error())
	}
	t.cur = snap
	return t, nil
}

// Lookup returns the rates for model/endpoint, PricingError on miss — the
// rewrite never silently substitutes a default (spec §4.3, §9).
func (t *Table) Lookup(model, endpoint string) (ModelPrice, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.cur.Table[model]
	if !ok {
		return ModelPrice{}, errs.Pricing(fmt.Sprintf("unknown model %q", model))
	}
	switch endpoint {
	case "chat":
		if p.ChatInputPerM.IsZero() && p.ChatOutputPerM.IsZero() {
			return ModelPrice{}, errs.Pricing(fmt.Sprintf("model %q has no chat pricing", model))
		}
	case "embed":
		if p.EmbedPerM.IsZero() {
			return ModelPrice{}, errs.Pricing(fmt.Sprintf("model %q has no embed pricing", model))
		}
	default:
		return ModelPrice{}, errs.Pricing(fmt.Sprintf("unknown endpoint %q", endpoint))
	}
	return p, nil
}

// ComputeCost implements the one authoritative formula of §4.3, shared by
// Reserve and Commit so both observe bit-identical results for the same
// inputs and snapshot (P3).
func (t *Table) ComputeCost(model, endpoint string, inputTokens, outputTokens int64) (money.Amount, error) {
	p, err := t.Lookup(model, endpoint)
	if err != nil {
		return money.Zero(), err
	}

	var cost money.Amount
	switch endpoint {
	case "chat":
		cost = money.PerMillion(inputTokens, p.ChatInputPerM).Add(money.PerMillion(outputTokens, p.ChatOutputPerM))
	case "embed":
		cost = money.PerMillion(inputTokens, p.EmbedPerM)
	}
	return money.QuantizeHalfUp(cost), nil
}

// Metadata returns the (source_tag, last_updated, table) triple spec §4.3
// requires the component to expose, for the GetPricing/GetPricingInfo RPCs.
func (t *Table) Metadata() (sourceTag string, lastUpdated time.Time, table map[string]ModelPrice) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cp := make(map[string]ModelPrice, len(t.cur.Table))
	for k, v := range t.cur.Table {
		cp[k] = v
	}
	return t.cur.SourceTag, t.cur.LastUpdated, cp
}

// Update replaces the whole table, persisting it before it takes effect
// (spec §4.3: "Updates... are persisted before taking effect").
func (t *Table) Update(ctx context.Context, sourceTag string, table map[string]ModelPrice) error {
	snap := snapshot{
		SourceTag:   sourceTag,
		LastUpdated: time.Now(),
		Table:       table,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return errs.Pricing("marshal pricing snapshot: " + err.Error())
	}
	if err := t.st.SetString(ctx, storeKey, string(raw)); err != nil {
		return errs.External("persist pricing snapshot", err)
	}

	t.mu.Lock()
	t.cur = snap
	t.mu.Unlock()
	return nil
}
