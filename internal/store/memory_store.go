package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by billing/monitor/rpc unit
// tests, so those packages never need a live Redis to exercise the state
// machine (the teacher has no equivalent since its tests are placeholder
// stubs against the concrete Ledger struct; this closes that gap).
type MemoryStore struct {
	mu           sync.Mutex
	balances     map[string]string
	reservations map[string]*reservationEntry
	streams      map[string][]StreamEntry
	counters     map[string]map[string]int64
	strings      map[string]string
}

type reservationEntry struct {
	r         Reservation
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:     make(map[string]string),
		reservations: make(map[string]*reservationEntry),
		streams:      make(map[string][]StreamEntry),
		counters:     make(map[string]map[string]int64),
		strings:      make(map[string]string),
	}
}

func (m *MemoryStore) GetBalance(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.balances[userID]
	if !ok {
		return "0", nil
	}
	return v, nil
}

func (m *MemoryStore) SetBalance(ctx context.Context, userID string, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = amount
	return nil
}

func (m *MemoryStore) CASDebit(ctx context.Context, userID string, delta string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.balances[userID]
	if !ok {
		current = "0"
	}
	next, err := debitCompute(current, delta)
	if err != nil {
		return "", err
	}
	m.balances[userID] = next
	return next, nil
}

func (m *MemoryStore) CASCredit(ctx context.Context, userID string, delta string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.balances[userID]
	if !ok {
		current = "0"
	}
	next, err := creditCompute(current, delta)
	if err != nil {
		return "", err
	}
	m.balances[userID] = next
	return next, nil
}

func (m *MemoryStore) ReservationPut(ctx context.Context, r *Reservation, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.reservations[r.ID]; ok && time.Now().Before(e.expiresAt) {
		return ErrAlreadyExists
	}
	cp := *r
	m.reservations[r.ID] = &reservationEntry{r: cp, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) ReservationGet(ctx context.Context, id string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.reservations[id]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	cp := e.r
	return &cp, nil
}

func (m *MemoryStore) ReservationUpdate(ctx context.Context, id string, patch ReservationPatch, newTTL time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.reservations[id]
	if !ok || time.Now().After(e.expiresAt) {
		return ErrNotFound
	}
	e.r.Status = patch.Status
	e.r.InputTokensActual = patch.InputTokensActual
	e.r.OutputTokensActual = patch.OutputTokensActual
	e.r.ActualCost = patch.ActualCost
	e.expiresAt = time.Now().Add(newTTL)
	return nil
}

func (m *MemoryStore) ReservationCommit(ctx context.Context, id, userID, delta string, patch ReservationPatch, newTTL time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.reservations[id]
	if !ok || time.Now().After(e.expiresAt) {
		return "", ErrNotFound
	}
	if e.r.Status != ReservationReserved {
		return "", ErrReservationConflict
	}

	current, ok := m.balances[userID]
	if !ok {
		current = "0"
	}
	next, err := creditCompute(current, delta)
	if err != nil {
		return "", err
	}

	m.balances[userID] = next
	e.r.Status = patch.Status
	e.r.InputTokensActual = patch.InputTokensActual
	e.r.OutputTokensActual = patch.OutputTokensActual
	e.r.ActualCost = patch.ActualCost
	e.expiresAt = time.Now().Add(newTTL)
	return next, nil
}

func (m *MemoryStore) ReservationDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reservations, id)
	return nil
}

func (m *MemoryStore) StreamAppend(ctx context.Context, stream string, entry StreamEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[stream] = append(m.streams[stream], entry)
	return nil
}

func (m *MemoryStore) StreamRange(ctx context.Context, stream string, count int64) ([]StreamEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.streams[stream]
	if int64(len(entries)) <= count {
		out := make([]StreamEntry, len(entries))
		copy(out, entries)
		return out, nil
	}
	start := int64(len(entries)) - count
	out := make([]StreamEntry, count)
	copy(out, entries[start:])
	return out, nil
}

func (m *MemoryStore) CounterIncr(ctx context.Context, hashKey, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.counters[hashKey]
	if !ok {
		h = make(map[string]int64)
		m.counters[hashKey] = h
	}
	h[field] += delta
	return h[field], nil
}

func (m *MemoryStore) CounterGet(ctx context.Context, hashKey, field string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.counters[hashKey]
	if !ok {
		return 0, nil
	}
	return h[field], nil
}

func (m *MemoryStore) CounterGetAll(ctx context.Context, hashKey string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.counters[hashKey]
	if !ok {
		return map[string]int64{}, nil
	}
	out := make(map[string]int64, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) GetString(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) SetString(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	return nil
}

func (m *MemoryStore) KeysMatch(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.balances {
		if strings.HasPrefix("balance:"+k, prefix) {
			out = append(out, "balance:"+k)
		}
	}
	for k := range m.strings {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
