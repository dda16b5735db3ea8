package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is the substrate-of-record implementation (spec §4.5/§6):
// balances and reservations live in Redis, debited and updated through Lua
// scripts that generalize the teacher's checkAndReserveScript/
// deductGrainsScript/finalizeRequestScript from int64 grain counters to
// arbitrary-precision decimal-string balances, so the whole read-compare-
// write sequence happens as one atomic round trip (closes O1/O2 in §9).
type RedisStore struct {
	rdb *redis.Client

	casDebitScript          *redis.Script
	casCreditScript         *redis.Script
	reservationCommitScript *redis.Script
}

// NewRedisStore dials Redis and compiles the Lua scripts, mirroring the
// teacher's NewLedger connection-pool tuning.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     50,
		MinIdleConns: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	s := &RedisStore{rdb: rdb}
	s.loadScripts()
	return s, nil
}

// loadScripts compiles the CAS scripts once, reused for every call, per the
// teacher's loadLuaScripts.
func (s *RedisStore) loadScripts() {
	// casDebitScript: compare-and-set of the balance key. The subtraction
	// and the insufficient-balance check happen in Go (debitCompute), since
	// Lua has no decimal arithmetic; the script writes ARGV[2] only if the
	// live value still equals ARGV[1], the balance that computation used.
	s.casDebitScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then current = '0' end
if current ~= ARGV[1] then
    return {0, current}
end
redis.call('SET', KEYS[1], ARGV[2])
return {1, ARGV[2]}
`)

	s.casCreditScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then current = '0' end
if current ~= ARGV[1] then
    return {0, current}
end
redis.call('SET', KEYS[1], ARGV[2])
return {1, ARGV[2]}
`)

	// reservationCommitScript generalizes the teacher's finalizeRequestScript:
	// the reservation's status check and the balance mutation happen inside
	// one Lua call, so two concurrent Commits on the same reservation can't
	// both observe "reserved" and both apply the credit delta (closes P4 /
	// invariant 2, §5). KEYS[1] is the reservation hash, KEYS[2] the balance
	// key. ARGV: [1]=expected current balance, [2]=next balance,
	// [3]=new status, [4]=input_tokens_actual, [5]=output_tokens_actual,
	// [6]=actual_cost, [7]=new TTL seconds.
	s.reservationCommitScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == false then
    return {0, 'not_found', ''}
end
if status ~= 'reserved' then
    return {0, 'conflict', ''}
end
local current = redis.call('GET', KEYS[2])
if current == false then current = '0' end
if current ~= ARGV[1] then
    return {0, 'cas_mismatch', current}
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('HSET', KEYS[1], 'status', ARGV[3], 'input_tokens_actual', ARGV[4], 'output_tokens_actual', ARGV[5], 'actual_cost', ARGV[6])
redis.call('EXPIRE', KEYS[1], ARGV[7])
return {1, 'ok', ARGV[2]}
`)
}

func balanceKey(userID string) string { return fmt.Sprintf("balance:%s", userID) }
func reservationKey(id string) string { return fmt.Sprintf("reservation:%s", id) }

func (s *RedisStore) GetBalance(ctx context.Context, userID string) (string, error) {
	v, err := s.rdb.Get(ctx, balanceKey(userID)).Result()
	if err == redis.Nil {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("get balance: %w", err)
	}
	return v, nil
}

func (s *RedisStore) SetBalance(ctx context.Context, userID string, amount string) error {
	return s.rdb.Set(ctx, balanceKey(userID), amount, 0).Err()
}

// casWrite retries the optimistic read-compute-CAS loop: read current
// balance, ask compute for the new one (or ErrInsufficientBalance), CAS it
// in, retry on a lost race. This is the Go-side generalization of the
// teacher's Lua-only arithmetic, needed because decimal math isn't
// expressible inside a Lua script without a bignum library.
func (s *RedisStore) casWrite(ctx context.Context, script *redis.Script, userID string, compute func(current string) (string, error)) (string, error) {
	key := balanceKey(userID)
	for attempt := 0; attempt < 10; attempt++ {
		current, err := s.GetBalance(ctx, userID)
		if err != nil {
			return "", err
		}
		next, err := compute(current)
		if err != nil {
			return "", err
		}
		res, err := script.Run(ctx, s.rdb, []string{key}, current, next).Result()
		if err != nil {
			return "", fmt.Errorf("cas script: %w", err)
		}
		arr := res.([]interface{})
		if arr[0].(int64) == 1 {
			return next, nil
		}
		// lost the race: re-read the balance and retry
	}
	return "", fmt.Errorf("cas write: exhausted retries for %s", userID)
}

func (s *RedisStore) CASDebit(ctx context.Context, userID string, delta string) (string, error) {
	return s.casWrite(ctx, s.casDebitScript, userID, func(current string) (string, error) {
		return debitCompute(current, delta)
	})
}

func (s *RedisStore) CASCredit(ctx context.Context, userID string, delta string) (string, error) {
	return s.casWrite(ctx, s.casCreditScript, userID, func(current string) (string, error) {
		return creditCompute(current, delta)
	})
}

func (s *RedisStore) ReservationPut(ctx context.Context, r *Reservation, ttl time.Duration) error {
	key := reservationKey(r.ID)
	ok, err := s.rdb.SetNX(ctx, key, "pending", 0).Result()
	if err != nil {
		return fmt.Errorf("reservation setnx: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	fields := reservationToHash(r)
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key) // drop the placeholder string, replace with a hash
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reservation hset: %w", err)
	}
	return nil
}

func (s *RedisStore) ReservationGet(ctx context.Context, id string) (*Reservation, error) {
	m, err := s.rdb.HGetAll(ctx, reservationKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reservation hgetall: %w", err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return reservationFromHash(id, m)
}

func (s *RedisStore) ReservationUpdate(ctx context.Context, id string, patch ReservationPatch, newTTL time.Duration) error {
	key := reservationKey(id)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("reservation exists: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":               string(patch.Status),
		"input_tokens_actual":  patch.InputTokensActual,
		"output_tokens_actual": patch.OutputTokensActual,
		"actual_cost":          patch.ActualCost,
	})
	pipe.Expire(ctx, key, newTTL)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservation update: %w", err)
	}
	return nil
}

// ReservationCommit runs the same optimistic read-compute-CAS loop as
// casWrite, but the CAS and the reservation's reserved->committed status
// check happen together inside reservationCommitScript so the two can never
// be observed or applied separately by a racing Commit.
func (s *RedisStore) ReservationCommit(ctx context.Context, id, userID, delta string, patch ReservationPatch, newTTL time.Duration) (string, error) {
	key := reservationKey(id)
	balKey := balanceKey(userID)
	for attempt := 0; attempt < 10; attempt++ {
		current, err := s.GetBalance(ctx, userID)
		if err != nil {
			return "", err
		}
		next, err := creditCompute(current, delta)
		if err != nil {
			return "", err
		}
		res, err := s.reservationCommitScript.Run(ctx, s.rdb, []string{key, balKey},
			current, next, string(patch.Status), patch.InputTokensActual, patch.OutputTokensActual, patch.ActualCost, int64(newTTL.Seconds()),
		).Result()
		if err != nil {
			return "", fmt.Errorf("reservation commit script: %w", err)
		}
		arr := res.([]interface{})
		ok := arr[0].(int64)
		if ok == 1 {
			return next, nil
		}
		switch arr[1].(string) {
		case "not_found":
			return "", ErrNotFound
		case "conflict":
			return "", ErrReservationConflict
		case "cas_mismatch":
			continue // balance changed since GetBalance, retry with the fresh value
		default:
			return "", fmt.Errorf("reservation commit: unexpected script result %v", arr)
		}
	}
	return "", fmt.Errorf("reservation commit: exhausted retries for %s", id)
}

func (s *RedisStore) ReservationDelete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, reservationKey(id)).Err()
}

func (s *RedisStore) StreamAppend(ctx context.Context, stream string, entry StreamEntry) error {
	values := make(map[string]interface{}, len(entry))
	for k, v := range entry {
		values[k] = v
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Err()
}

func (s *RedisStore) StreamRange(ctx context.Context, stream string, count int64) ([]StreamEntry, error) {
	msgs, err := s.rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("xrevrange: %w", err)
	}
	out := make([]StreamEntry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		entry := make(StreamEntry, len(msgs[i].Values))
		for k, v := range msgs[i].Values {
			entry[k] = fmt.Sprintf("%v", v)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *RedisStore) CounterIncr(ctx context.Context, hashKey, field string, delta int64) (int64, error) {
	return s.rdb.HIncrBy(ctx, hashKey, field, delta).Result()
}

func (s *RedisStore) CounterGet(ctx context.Context, hashKey, field string) (int64, error) {
	v, err := s.rdb.HGet(ctx, hashKey, field).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter get: %w", err)
	}
	return v, nil
}

func (s *RedisStore) CounterGetAll(ctx context.Context, hashKey string) (map[string]int64, error) {
	m, err := s.rdb.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("counter getall: %w", err)
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		var n int64
		fmt.Sscanf(v, "%d", &n)
		out[k] = n
	}
	return out, nil
}

func (s *RedisStore) GetString(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get string: %w", err)
	}
	return v, nil
}

func (s *RedisStore) SetString(ctx context.Context, key string, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) KeysMatch(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
