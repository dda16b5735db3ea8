// Package billing implements the C6 billing core state machine: Charge,
// Reserve, Commit, GetBalance, AdjustBalance, operating over the reservation
// record as the sole piece of first-class state (spec §4.6).
//
// Grounded on internal/api/balance_service.go's CheckBalance/DeductTokens/
// FinalizeRequest/GetBalance method-body shape (validate → ledger call →
// log → respond), re-expressed against the §4.5 Store interface instead of
// the teacher's concrete *ledger.Ledger, and against a typed Reservation
// struct instead of the teacher's string-keyed Redis hash (§9's "tagged
// records with explicit fields" instruction).
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kelpejol/beam/internal/errs"
	"github.com/kelpejol/beam/internal/exchange"
	"github.com/kelpejol/beam/internal/money"
	"github.com/kelpejol/beam/internal/pricing"
	"github.com/kelpejol/beam/internal/store"
	"github.com/kelpejol/beam/internal/validate"
	"github.com/rs/zerolog"
)

// Recorder is the narrow slice of the monitoring aggregator (C7) the
// billing core needs. Defined here, on the consumer side, per Go's
// accept-interfaces convention — internal/monitor satisfies it without
// billing importing monitor's concrete type.
type Recorder interface {
	RecordResult(op string, success bool)
	RecordCharge(amount money.Amount)
	ObserveBalance(userID string, balance money.Amount)
	ObserveUsage(userID string, tokensDelta int64)
}

// noopRecorder is used when the caller doesn't wire a monitor, so Core
// never has to nil-check on every call.
type noopRecorder struct{}

func (noopRecorder) RecordResult(string, bool)           {}
func (noopRecorder) RecordCharge(money.Amount)           {}
func (noopRecorder) ObserveBalance(string, money.Amount) {}
func (noopRecorder) ObserveUsage(string, int64)          {}

// Auditor is the narrow slice of the Postgres audit mirror (store.AuditMirror)
// the billing core needs, defined on the consumer side so billing never
// imports a concrete mirror type. Record is fire-and-forget: a dropped
// audit row never fails the caller's request, since the substrate (Redis)
// stays the sole source of truth (spec §4.5).
type Auditor interface {
	Record(kind, userID string, fields map[string]interface{})
}

type noopAuditor struct{}

func (noopAuditor) Record(string, string, map[string]interface{}) {}

// Core is the process-wide billing state machine. Ledger state lives
// entirely in st; Core holds no balance or reservation data in memory
// (spec §5: "All ledger state lives in the substrate and is not mirrored
// in process memory").
type Core struct {
	st       store.Store
	pricing  *pricing.Table
	exchange *exchange.Table
	monitor  Recorder
	auditor  Auditor
	log      zerolog.Logger

	reservedTTL  time.Duration
	committedTTL time.Duration
}

// SetAuditor wires a Postgres audit mirror into the core after
// construction (cmd/billingd does this once the mirror has connected).
// Left unwired, audit records are simply dropped.
func (c *Core) SetAuditor(a Auditor) {
	if a == nil {
		a = noopAuditor{}
	}
	c.auditor = a
}

// New builds a Core. monitor may be nil, in which case monitoring is a
// no-op (useful for tests exercising billing logic in isolation).
func New(st store.Store, pt *pricing.Table, et *exchange.Table, monitor Recorder, log zerolog.Logger, reservedTTL, committedTTL time.Duration) *Core {
	if monitor == nil {
		monitor = noopRecorder{}
	}
	if reservedTTL == 0 {
		reservedTTL = 600 * time.Second
	}
	if committedTTL == 0 {
		committedTTL = 86400 * time.Second
	}
	return &Core{
		st:           st,
		pricing:      pt,
		exchange:     et,
		monitor:      monitor,
		auditor:      noopAuditor{},
		log:          log,
		reservedTTL:  reservedTTL,
		committedTTL: committedTTL,
	}
}

// ChargeResult is the return value of Charge.
type ChargeResult struct {
	NewBalance money.Amount
}

// Charge is the fast path for callers that have already priced the
// request (spec §4.6, O4: the server trusts the caller's cost verbatim).
func (c *Core) Charge(ctx context.Context, userID, model string, tokensUsed int64, cost money.Amount) (ChargeResult, error) {
	if err := validate.UserID(userID); err != nil {
		c.monitor.RecordResult("charge", false)
		return ChargeResult{}, errs.Validation(err.Error())
	}
	if err := validate.ModelID(model); err != nil {
		c.monitor.RecordResult("charge", false)
		return ChargeResult{}, errs.Validation(err.Error())
	}
	if err := validate.TokensPositive("tokens_used", tokensUsed); err != nil {
		c.monitor.RecordResult("charge", false)
		return ChargeResult{}, errs.Validation(err.Error())
	}
	if !cost.IsPositive() {
		c.monitor.RecordResult("charge", false)
		return ChargeResult{}, errs.Validation("cost must be strictly positive")
	}

	newBalance, err := c.st.CASDebit(ctx, userID, cost.String())
	if err == store.ErrInsufficientBalance {
		c.monitor.RecordResult("charge", false)
		return ChargeResult{}, errs.Balance("insufficient balance")
	}
	if err != nil {
		c.monitor.RecordResult("charge", false)
		return ChargeResult{}, errs.External("charge debit failed", err)
	}

	bal, _ := money.FromString(newBalance)

	c.appendLog(ctx, "charge", userID, map[string]string{
		"model":       model,
		"cost_usd":    cost.String(),
		"balance_usd": newBalance,
	})
	c.auditor.Record("charge", userID, map[string]interface{}{
		"model":         model,
		"amount":        cost.String(),
		"balance_after": newBalance,
	})
	c.bumpUsage(ctx, userID, model, "direct", tokensUsed)

	c.monitor.RecordResult("charge", true)
	c.monitor.RecordCharge(cost)
	c.monitor.ObserveBalance(userID, bal)

	return ChargeResult{NewBalance: bal}, nil
}

// ReserveResult is the return value of Reserve.
type ReserveResult struct {
	ReservationID    string
	ReservedAmount   money.Amount
	RemainingBalance money.Amount
}

// Reserve computes the estimated cost and atomically debits it while
// creating a reservation record in state "reserved" (spec §4.6). The debit
// and the reservation write succeed or fail together: if the reservation
// create fails after a successful debit, the debit is reversed.
func (c *Core) Reserve(ctx context.Context, userID, requestID, model, endpoint string, inputEstimate, outputEstimate int64) (ReserveResult, error) {
	if err := validate.UserID(userID); err != nil {
		c.monitor.RecordResult("reserve", false)
		return ReserveResult{}, errs.Validation(err.Error())
	}
	if err := validate.ModelID(model); err != nil {
		c.monitor.RecordResult("reserve", false)
		return ReserveResult{}, errs.Validation(err.Error())
	}
	if err := validate.EndpointField(endpoint); err != nil {
		c.monitor.RecordResult("reserve", false)
		return ReserveResult{}, errs.Validation(err.Error())
	}
	if err := validate.TokensPositive("input_estimate", inputEstimate); err != nil {
		c.monitor.RecordResult("reserve", false)
		return ReserveResult{}, errs.Validation(err.Error())
	}
	if err := validate.TokensNonNegative("output_estimate", outputEstimate); err != nil {
		c.monitor.RecordResult("reserve", false)
		return ReserveResult{}, errs.Validation(err.Error())
	}

	if requestID == "" {
		requestID = uuid.New().String()
	}
	reservationID := fmt.Sprintf("res:%s:%s:%d", userID, requestID, time.Now().Unix())

	estimatedCost, err := c.pricing.ComputeCost(model, endpoint, inputEstimate, outputEstimate)
	if err != nil {
		c.monitor.RecordResult("reserve", false)
		return ReserveResult{}, err
	}

	newBalance, err := c.st.CASDebit(ctx, userID, estimatedCost.String())
	if err == store.ErrInsufficientBalance {
		c.monitor.RecordResult("reserve", false)
		return ReserveResult{}, errs.Balance("insufficient balance")
	}
	if err != nil {
		c.monitor.RecordResult("reserve", false)
		return ReserveResult{}, errs.External("reserve debit failed", err)
	}

	r := &store.Reservation{
		ID:                   reservationID,
		UserID:               userID,
		Model:                model,
		Endpoint:             endpoint,
		Status:               store.ReservationReserved,
		InputTokensEstimate:  inputEstimate,
		OutputTokensEstimate: outputEstimate,
		EstimatedCost:        estimatedCost.String(),
		CreatedAt:            time.Now(),
	}
	if err := c.st.ReservationPut(ctx, r, c.reservedTTL); err != nil {
		// reservation write failed after the debit succeeded: reverse it.
		if _, rerr := c.st.CASCredit(ctx, userID, estimatedCost.String()); rerr != nil {
			c.log.Error().Err(rerr).Str("user_id", userID).Msg("failed to reverse debit after reservation conflict")
		}
		c.monitor.RecordResult("reserve", false)
		return ReserveResult{}, errs.Reservation("reservation already exists: " + err.Error())
	}

	bal, _ := money.FromString(newBalance)

	c.appendLog(ctx, "reserve", userID, map[string]string{
		"reservation_id": reservationID,
		"model":          model,
		"endpoint":       endpoint,
		"cost_usd":       estimatedCost.String(),
		"balance_usd":    newBalance,
	})
	c.auditor.Record("reserve", userID, map[string]interface{}{
		"reservation_id": reservationID,
		"model":          model,
		"endpoint":       endpoint,
		"amount":         estimatedCost.String(),
		"balance_after":  newBalance,
	})

	c.monitor.RecordResult("reserve", true)
	c.monitor.ObserveBalance(userID, bal)

	return ReserveResult{
		ReservationID:    reservationID,
		ReservedAmount:   estimatedCost,
		RemainingBalance: bal,
	}, nil
}

// CommitResult is the return value of Commit.
type CommitResult struct {
	FinalCost        money.Amount
	RemainingBalance money.Amount
}

// Commit reconciles estimated vs actual cost and flips the reservation to
// committed. The final balance may never go negative (spec §9 O2); if the
// post-balance would be negative, the Commit is rejected and the
// reservation is left in state "reserved".
func (c *Core) Commit(ctx context.Context, reservationID string, inputActual, outputActual int64) (CommitResult, error) {
	if err := validate.ReservationID(reservationID); err != nil {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.Validation(err.Error())
	}
	if err := validate.TokensPositive("input_actual", inputActual); err != nil {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.Validation(err.Error())
	}
	if err := validate.TokensNonNegative("output_actual", outputActual); err != nil {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.Validation(err.Error())
	}

	r, err := c.st.ReservationGet(ctx, reservationID)
	if err == store.ErrNotFound {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.Reservation("not found")
	}
	if err != nil {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.External("commit reservation read failed", err)
	}
	if r.Status == store.ReservationCommitted {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.Reservation("already committed")
	}

	actualCost, err := c.pricing.ComputeCost(r.Model, r.Endpoint, inputActual, outputActual)
	if err != nil {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, err
	}

	estimatedCost, err := money.FromString(r.EstimatedCost)
	if err != nil {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.External("corrupt reservation estimated_cost", err)
	}

	// credit delta = estimated - actual; negative means an additional debit.
	delta := estimatedCost.Sub(actualCost)

	// ReservationCommit applies delta and flips reserved->committed in one
	// atomic store round trip (closes P4 / invariant 2, §5): two concurrent
	// Commits on reservationID can't both observe "reserved" and both apply
	// delta, since the status check and the credit live in the same CAS.
	newBalance, err := c.st.ReservationCommit(ctx, reservationID, r.UserID, delta.String(), store.ReservationPatch{
		Status:             store.ReservationCommitted,
		InputTokensActual:  inputActual,
		OutputTokensActual: outputActual,
		ActualCost:         actualCost.String(),
	}, c.committedTTL)
	if err == store.ErrReservationConflict {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.Reservation("already committed")
	}
	if err == store.ErrNotFound {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.Reservation("not found")
	}
	if err == store.ErrInsufficientBalance {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.Balance("insufficient balance for commit")
	}
	if err != nil {
		c.monitor.RecordResult("commit", false)
		return CommitResult{}, errs.External("commit failed", err)
	}

	bal, _ := money.FromString(newBalance)

	c.appendLog(ctx, "commit", r.UserID, map[string]string{
		"reservation_id": reservationID,
		"model":          r.Model,
		"endpoint":       r.Endpoint,
		"cost_usd":       actualCost.String(),
		"balance_usd":    newBalance,
	})
	c.auditor.Record("commit", r.UserID, map[string]interface{}{
		"reservation_id": reservationID,
		"model":          r.Model,
		"endpoint":       r.Endpoint,
		"amount":         actualCost.String(),
		"balance_after":  newBalance,
	})
	c.bumpUsage(ctx, r.UserID, r.Model, r.Endpoint, inputActual+outputActual)

	c.monitor.RecordResult("commit", true)
	c.monitor.RecordCharge(actualCost)
	c.monitor.ObserveBalance(r.UserID, bal)

	return CommitResult{FinalCost: actualCost, RemainingBalance: bal}, nil
}

// BalanceView is the return value of GetBalance: the USD balance converted
// to every tracked currency for presentation only.
type BalanceView struct {
	ByCurrency map[string]money.Amount
}

// GetBalance reads the balance and converts it to every currency in the
// exchange table. A missing currency rate yields 0 rather than failing the
// call (spec §4.6).
func (c *Core) GetBalance(ctx context.Context, userID string) (BalanceView, error) {
	if err := validate.UserID(userID); err != nil {
		return BalanceView{}, errs.Validation(err.Error())
	}

	raw, err := c.st.GetBalance(ctx, userID)
	if err != nil {
		return BalanceView{}, errs.External("get balance failed", err)
	}
	usd, err := money.FromString(raw)
	if err != nil {
		return BalanceView{}, errs.External("corrupt balance value", err)
	}

	rates, _ := c.exchange.Snapshot()
	view := BalanceView{ByCurrency: make(map[string]money.Amount, len(rates))}
	for currency := range rates {
		rate, err := c.exchange.Rate(currency)
		if err != nil {
			view.ByCurrency[currency] = money.Zero()
			continue
		}
		view.ByCurrency[currency] = money.QuantizeHalfUp(usd.Mul(rate))
	}

	c.monitor.ObserveBalance(userID, usd)

	return view, nil
}

// AdjustBalance applies an administrative signed delta to a user's balance
// (spec §4.6). Positive amounts are deposits, negative are corrections.
func (c *Core) AdjustBalance(ctx context.Context, userID string, amountUSD money.Amount, reason string) (money.Amount, error) {
	if err := validate.UserID(userID); err != nil {
		return money.Zero(), errs.Validation(err.Error())
	}
	// §4.2's amount predicate is defined over a magnitude (0 < amount <
	// 1_000_000); AdjustBalance's delta is signed, so it's applied to the
	// absolute value. This also rejects amount == 0.
	if err := validate.Amount(amountUSD.Abs().InexactFloat64()); err != nil {
		return money.Zero(), errs.Validation(err.Error())
	}

	newBalance, err := c.st.CASCredit(ctx, userID, amountUSD.String())
	if err == store.ErrInsufficientBalance {
		return money.Zero(), errs.Balance("adjustment would drive balance negative")
	}
	if err != nil {
		return money.Zero(), errs.External("adjust balance failed", err)
	}

	bal, _ := money.FromString(newBalance)

	c.appendAdjustment(ctx, userID, amountUSD.String(), newBalance, reason)
	c.auditor.Record("adjust", userID, map[string]interface{}{
		"amount":        amountUSD.String(),
		"balance_after": newBalance,
	})

	return bal, nil
}

// appendLog records to billing:log; failures are warnings only — the log
// is best-effort observability, never the ledger of record (spec §4.6(c)).
func (c *Core) appendLog(ctx context.Context, op, userID string, fields map[string]string) {
	entry := store.StreamEntry{"op": op, "user_id": userID}
	for k, v := range fields {
		entry[k] = v
	}
	if err := c.st.StreamAppend(ctx, "billing:log", entry); err != nil {
		c.log.Warn().Err(err).Str("op", op).Str("user_id", userID).Msg("billing:log append failed")
	}
}

func (c *Core) appendAdjustment(ctx context.Context, userID, amount, newBalance, reason string) {
	entry := store.StreamEntry{
		"user_id":     userID,
		"amount_usd":  amount,
		"balance_usd": newBalance,
		"reason":      reason,
	}
	if err := c.st.StreamAppend(ctx, "billing:adjustments", entry); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("billing:adjustments append failed")
	}
}

func (c *Core) bumpUsage(ctx context.Context, userID, model, endpoint string, tokens int64) {
	if _, err := c.st.CounterIncr(ctx, fmt.Sprintf("usage:%s:model:%s", userID, model), endpoint, tokens); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("usage counter increment failed")
	}
	today := time.Now().UTC().Format("2006-01-02")
	dailyKey := fmt.Sprintf("usage:daily:%s", today)
	if _, err := c.st.CounterIncr(ctx, dailyKey, model, tokens); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("daily usage counter increment failed")
	}
	// per-user total, same daily hash, field keyed by userID instead of
	// model: this is what ObserveUsage's high-usage check (spec §4.7) reads
	// back via CounterGet(dailyKey, userID).
	if _, err := c.st.CounterIncr(ctx, dailyKey, userID, tokens); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("daily per-user usage counter increment failed")
	}

	c.monitor.ObserveUsage(userID, tokens)
}
