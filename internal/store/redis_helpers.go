package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// debitCompute returns the new balance after subtracting delta from
// current, or ErrInsufficientBalance if current < delta (spec §4.5/§9 O1).
func debitCompute(current, delta string) (string, error) {
	cur, err := decimal.NewFromString(current)
	if err != nil {
		return "", fmt.Errorf("parse current balance %q: %w", current, err)
	}
	d, err := decimal.NewFromString(delta)
	if err != nil {
		return "", fmt.Errorf("parse delta %q: %w", delta, err)
	}
	if cur.LessThan(d) {
		return "", ErrInsufficientBalance
	}
	return cur.Sub(d).String(), nil
}

// creditCompute adds delta (may be negative) to current, failing if the
// result would go negative (used by Commit's final adjustment, §9 O2).
func creditCompute(current, delta string) (string, error) {
	cur, err := decimal.NewFromString(current)
	if err != nil {
		return "", fmt.Errorf("parse current balance %q: %w", current, err)
	}
	d, err := decimal.NewFromString(delta)
	if err != nil {
		return "", fmt.Errorf("parse delta %q: %w", delta, err)
	}
	next := cur.Add(d)
	if next.IsNegative() {
		return "", ErrInsufficientBalance
	}
	return next.String(), nil
}

func reservationToHash(r *Reservation) map[string]interface{} {
	return map[string]interface{}{
		"user_id":                r.UserID,
		"model":                  r.Model,
		"endpoint":               r.Endpoint,
		"status":                 string(r.Status),
		"input_tokens_estimate":  r.InputTokensEstimate,
		"output_tokens_estimate": r.OutputTokensEstimate,
		"estimated_cost":         r.EstimatedCost,
		"input_tokens_actual":    r.InputTokensActual,
		"output_tokens_actual":   r.OutputTokensActual,
		"actual_cost":            r.ActualCost,
		"created_at":             r.CreatedAt.Unix(),
	}
}

func reservationFromHash(id string, m map[string]string) (*Reservation, error) {
	r := &Reservation{
		ID:            id,
		UserID:        m["user_id"],
		Model:         m["model"],
		Endpoint:      m["endpoint"],
		Status:        ReservationStatus(m["status"]),
		EstimatedCost: m["estimated_cost"],
		ActualCost:    m["actual_cost"],
	}
	r.InputTokensEstimate, _ = strconv.ParseInt(m["input_tokens_estimate"], 10, 64)
	r.OutputTokensEstimate, _ = strconv.ParseInt(m["output_tokens_estimate"], 10, 64)
	r.InputTokensActual, _ = strconv.ParseInt(m["input_tokens_actual"], 10, 64)
	r.OutputTokensActual, _ = strconv.ParseInt(m["output_tokens_actual"], 10, 64)
	if ts, err := strconv.ParseInt(m["created_at"], 10, 64); err == nil {
		r.CreatedAt = time.Unix(ts, 0)
	}
	return r, nil
}
