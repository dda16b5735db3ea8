// Package store defines the narrow ledger-substrate interface (spec §4.5)
// and its implementations. The billing core, pricing table, exchange-rate
// table, and monitoring aggregator all depend on this interface, never on
// a concrete Redis or Postgres client directly — per §9's "abstract behind
// the §4.5 interface so the substrate can be swapped and faked for tests".
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by reservation reads/updates and by GetString when
// the key is missing (or, for a reservation, TTL-expired). GetBalance never
// returns it: an absent balance reads as "0" (§3).
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyExists is returned by ReservationPut when the id is already
// taken (spec §4.5: "fails if id already exists").
var ErrAlreadyExists = errors.New("store: already exists")

// ErrInsufficientBalance is returned by CASDebit when current < delta.
var ErrInsufficientBalance = errors.New("store: insufficient balance")

// ErrReservationConflict is returned by ReservationCommit when the
// reservation is no longer in "reserved" status (already committed by a
// concurrent call), closing the race where two Commits on the same id both
// observe "reserved" and both apply the balance delta.
var ErrReservationConflict = errors.New("store: reservation not in reserved state")

// Reservation is the tagged record backing a reservation_id (§9: "model as
// tagged records with explicit fields and a typed status variant" instead
// of the source's string-keyed dictionaries).
type Reservation struct {
	ID       string
	UserID   string
	Model    string
	Endpoint string
	Status   ReservationStatus

	InputTokensEstimate  int64
	OutputTokensEstimate int64
	EstimatedCost        string // decimal literal

	InputTokensActual  int64
	OutputTokensActual int64
	ActualCost         string // decimal literal, set on Commit

	CreatedAt time.Time
}

// ReservationStatus is the typed status variant of §9.
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationCommitted ReservationStatus = "committed"
)

// ReservationPatch carries the fields Commit updates on a Reservation.
type ReservationPatch struct {
	Status             ReservationStatus
	InputTokensActual  int64
	OutputTokensActual int64
	ActualCost         string
}

// StreamEntry is one append to a §6 transaction/adjustment/deposit/alert
// stream: an ordered set of string fields, mirroring Redis XADD field-value
// pairs.
type StreamEntry map[string]string

// Store is the sole persistence surface (§4.5). Balance mutations
// (CASDebit, CASCredit, ReservationCommit) are compare-and-set operations:
// RedisStore computes the new balance in Go and writes it through a Lua
// script only if the live value is unchanged, retrying on a lost race;
// MemoryStore runs every method under one mutex. This closes the
// read-compare-write race the spec calls out in the source (§9 O1).
type Store interface {
	// GetBalance returns the user's balance, "0" if absent (§3).
	GetBalance(ctx context.Context, userID string) (string, error)
	// SetBalance overwrites a balance unconditionally. The billing core never
	// calls it (Reserve, Commit and AdjustBalance go through the CAS
	// methods); tests use it to seed balances.
	SetBalance(ctx context.Context, userID string, amount string) error
	// CASDebit atomically subtracts delta from the user's balance, failing
	// with ErrInsufficientBalance if current < delta (§4.5, closes O1).
	// newBalance is the balance after the debit on success.
	CASDebit(ctx context.Context, userID string, delta string) (newBalance string, err error)
	// CASCredit atomically adds delta (may be negative, i.e. a further
	// debit) to the user's balance, failing with ErrInsufficientBalance if
	// the result would go negative (used by Commit, §9 O2).
	CASCredit(ctx context.Context, userID string, delta string) (newBalance string, err error)

	// ReservationPut creates a new reservation record with the given TTL,
	// failing with ErrAlreadyExists if id is taken.
	ReservationPut(ctx context.Context, r *Reservation, ttl time.Duration) error
	// ReservationGet reads a reservation by id, ErrNotFound if missing or
	// TTL-expired (§3: expired reservations are dropped, not archived).
	ReservationGet(ctx context.Context, id string) (*Reservation, error)
	// ReservationUpdate applies patch to an existing reservation and resets
	// its TTL, failing with ErrNotFound if id is missing.
	ReservationUpdate(ctx context.Context, id string, patch ReservationPatch, newTTL time.Duration) error
	// ReservationCommit atomically transitions a reservation from "reserved"
	// to patch.Status while applying delta to userID's balance in the same
	// round trip, generalizing the teacher's finalizeRequestScript (a single
	// Lua script that checks status and mutates balance together) so the
	// reserved->committed transition and its balance delta can never be
	// split across two Commits racing on the same reservation (closes P4 /
	// invariant 2 in §5). Returns ErrNotFound if id is missing or expired,
	// ErrReservationConflict if status is no longer "reserved", and
	// ErrInsufficientBalance if delta would drive the balance negative.
	ReservationCommit(ctx context.Context, id, userID, delta string, patch ReservationPatch, newTTL time.Duration) (newBalance string, err error)
	// ReservationDelete removes a reservation outright. The billing core
	// does not call it: a Reserve whose reservation write fails reverses its
	// debit with CASCredit instead.
	ReservationDelete(ctx context.Context, id string) error

	// StreamAppend appends an entry to an append-only stream (billing:log,
	// billing:adjustments, billing:deposits, billing:alerts).
	StreamAppend(ctx context.Context, stream string, entry StreamEntry) error
	// StreamRange reads up to count most recent entries from a stream,
	// newest last (used by admin stats/reads only, §4.5 keys_match analogue).
	StreamRange(ctx context.Context, stream string, count int64) ([]StreamEntry, error)

	// CounterIncr atomically increments a field within a hash-keyed counter
	// family (usage:<user>:model:<model>, usage:daily:<date> field=model,
	// usage:daily:<date> field=userID for the per-user total) and returns
	// the new total.
	CounterIncr(ctx context.Context, hashKey, field string, delta int64) (int64, error)
	// CounterGet reads a single counter field, 0 if absent. The monitoring
	// aggregator's high-usage check reads usage:daily:<date> field=userID
	// with this.
	CounterGet(ctx context.Context, hashKey, field string) (int64, error)
	// CounterGetAll reads every field in a counter family, used by admin
	// per-model usage reads and store tests.
	CounterGetAll(ctx context.Context, hashKey string) (map[string]int64, error)

	// GetString / SetString persist small singleton documents — the pricing
	// snapshot (pricing:current) and the exchange-rate snapshot
	// (exchange:current) — as opaque JSON blobs (spec §4.3/§4.4).
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key string, value string) error

	// KeysMatch lists keys under a prefix for admin stats only (§4.5).
	KeysMatch(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying connections.
	Close() error
}
