package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// AuditMirror writes a best-effort durable copy of ledger events to
// PostgreSQL, generalizing the teacher's writeQueue/asyncWriteWorker from
// "PostgreSQL is the source of truth" to "PostgreSQL is an async audit
// trail a human can query after the fact" — the substrate of record is
// Redis (RedisStore), never this mirror. A mirror write failure is logged
// and dropped, never surfaced to the caller and never retried against the
// hot path.
type AuditMirror struct {
	db  *sql.DB
	log zerolog.Logger

	queue chan auditOp
	wg    sync.WaitGroup
}

type auditOp struct {
	kind string // "charge", "reserve", "commit", "adjust"
	data map[string]interface{}
}

// NewAuditMirror connects to Postgres and starts background workers,
// mirroring the teacher's NewLedger worker-pool setup.
func NewAuditMirror(postgresURL string, workers int, logger zerolog.Logger) (*AuditMirror, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("postgres open failed: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	if err := ensureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	m := &AuditMirror{
		db:    db,
		log:   logger,
		queue: make(chan auditOp, 10000),
	}

	if workers <= 0 {
		workers = 4
	}
	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.worker(i)
	}

	return m, nil
}

// ensureSchema creates the audit tables if absent, folding the teacher's
// cmd/seeder migration step into startup since there is no separate
// seeder binary in this module (DESIGN.md: cmd/seeder dropped, folded into
// beam-cli migrate).
func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ledger_events (
	id BIGSERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	user_id TEXT NOT NULL,
	reservation_id TEXT,
	model TEXT,
	endpoint TEXT,
	amount TEXT,
	balance_after TEXT,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS idx_ledger_events_user_id ON ledger_events (user_id)`)
	return err
}

// Record queues an audit row, never blocking the caller (mirrors the
// teacher's select/default non-blocking enqueue).
func (m *AuditMirror) Record(kind, userID string, fields map[string]interface{}) {
	data := map[string]interface{}{"user_id": userID}
	for k, v := range fields {
		data[k] = v
	}
	select {
	case m.queue <- auditOp{kind: kind, data: data}:
	default:
		m.log.Warn().Str("kind", kind).Str("user_id", userID).Msg("audit queue full, dropping event")
	}
}

func (m *AuditMirror) worker(id int) {
	defer m.wg.Done()
	logger := m.log.With().Int("worker_id", id).Logger()

	for op := range m.queue {
		maxRetries := 3
		backoff := 100 * time.Millisecond
		for attempt := 1; attempt <= maxRetries; attempt++ {
			err := m.write(op)
			if err == nil {
				break
			}
			if attempt < maxRetries {
				logger.Warn().Err(err).Str("kind", op.kind).Int("attempt", attempt).Msg("audit write failed, retrying")
				time.Sleep(backoff)
				backoff *= 2
				continue
			}
			logger.Error().Err(err).Str("kind", op.kind).Msg("audit write failed after all retries")
		}
	}
}

func (m *AuditMirror) write(op auditOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.db.ExecContext(ctx, `
INSERT INTO ledger_events (kind, user_id, reservation_id, model, endpoint, amount, balance_after)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		op.kind,
		op.data["user_id"],
		op.data["reservation_id"],
		op.data["model"],
		op.data["endpoint"],
		op.data["amount"],
		op.data["balance_after"],
	)
	return err
}

// VerifyIntegrity compares the mirror's last known balance_after per user
// against the live Redis balance and returns users where they disagree,
// generalizing the teacher's sync.VerifyIntegrity — but in the opposite
// direction: Redis is authoritative here, Postgres is checked against it,
// never the reverse (spec's substrate model flips the teacher's).
func (m *AuditMirror) VerifyIntegrity(ctx context.Context, live Store) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
SELECT DISTINCT ON (user_id) user_id, balance_after
FROM ledger_events
WHERE balance_after IS NOT NULL
ORDER BY user_id, recorded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query latest balances: %w", err)
	}
	defer rows.Close()

	var mismatched []string
	for rows.Next() {
		var userID, mirrored string
		if err := rows.Scan(&userID, &mirrored); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		actual, err := live.GetBalance(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get live balance for %s: %w", userID, err)
		}
		if actual != mirrored {
			mismatched = append(mismatched, userID)
		}
	}
	return mismatched, rows.Err()
}

// Close drains the queue and disconnects.
func (m *AuditMirror) Close() error {
	close(m.queue)
	m.wg.Wait()
	return m.db.Close()
}
