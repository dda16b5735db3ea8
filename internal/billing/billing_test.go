package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kelpejol/beam/internal/errs"
	"github.com/kelpejol/beam/internal/exchange"
	"github.com/kelpejol/beam/internal/money"
	"github.com/kelpejol/beam/internal/pricing"
	"github.com/kelpejol/beam/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noFeed struct{}

func (noFeed) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) { return nil, nil }

type fakeAuditor struct {
	records []fakeAuditRecord
}

type fakeAuditRecord struct {
	kind   string
	userID string
	fields map[string]interface{}
}

func (f *fakeAuditor) Record(kind, userID string, fields map[string]interface{}) {
	f.records = append(f.records, fakeAuditRecord{kind: kind, userID: userID, fields: fields})
}

func newTestCore(t *testing.T, reservedTTL time.Duration) (*Core, store.Store) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()

	pt, err := pricing.Load(ctx, st)
	require.NoError(t, err)

	et, err := exchange.Load(ctx, st, noFeed{}, zerolog.Nop())
	require.NoError(t, err)

	c := New(st, pt, et, nil, zerolog.Nop(), reservedTTL, 86400*time.Second)
	return c, st
}

func TestHappyChatFlow(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)

	require.NoError(t, st.SetBalance(ctx, "u1", "10.00"))

	res, err := c.Reserve(ctx, "u1", "", "gpt-4o", "chat", 1000, 500)
	require.NoError(t, err)
	assert.Equal(t, "0.0125", res.ReservedAmount.String())
	assert.Equal(t, "9.9875", res.RemainingBalance.String())

	cr, err := c.Commit(ctx, res.ReservationID, 950, 480)
	require.NoError(t, err)
	assert.Equal(t, "0.01195", cr.FinalCost.String())
	assert.Equal(t, "9.98805", cr.RemainingBalance.String())
}

func TestInsufficientBalanceOnReserve(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "0.01"))

	_, err := c.Reserve(ctx, "u1", "", "gpt-4o", "chat", 1000, 500)
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindBalance, kind)

	bal, err := st.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "0.01", bal)
}

func TestDoubleCommitRejected(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "10.00"))

	res, err := c.Reserve(ctx, "u1", "", "gpt-4o", "chat", 1000, 500)
	require.NoError(t, err)

	_, err = c.Commit(ctx, res.ReservationID, 950, 480)
	require.NoError(t, err)

	balBefore, err := st.GetBalance(ctx, "u1")
	require.NoError(t, err)

	_, err = c.Commit(ctx, res.ReservationID, 950, 480)
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindReservation, kind)

	balAfter, err := st.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, balBefore, balAfter)
}

func TestEmbedCost(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u2", "1.00"))

	res, err := c.Reserve(ctx, "u2", "", "text-embedding-3-large", "embed", 1_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, "0.13000", res.ReservedAmount.String())
	assert.Equal(t, "0.87000", res.RemainingBalance.String())

	cr, err := c.Commit(ctx, res.ReservationID, 1_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, "0.13000", cr.FinalCost.String())
	assert.Equal(t, "0.87000", cr.RemainingBalance.String())
}

func TestOverUseOnCommitRejectedWhenNegative(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u3", "0.02")) // just enough to reserve, not enough to cover overage

	res, err := c.Reserve(ctx, "u3", "", "gpt-4o", "chat", 1000, 500)
	require.NoError(t, err)

	// massively exceed the estimate so the post-balance would go negative
	_, err = c.Commit(ctx, res.ReservationID, 2_000_000, 1_500_000)
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindBalance, kind)

	// reservation must remain in "reserved" — a retry with a smaller actual
	// usage can still succeed.
	r, err := st.ReservationGet(ctx, res.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, store.ReservationReserved, r.Status)
}

func TestOverUseOnCommitWithinBudget(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "10.00"))

	res, err := c.Reserve(ctx, "u1", "", "gpt-4o", "chat", 1000, 500)
	require.NoError(t, err)

	cr, err := c.Commit(ctx, res.ReservationID, 2000, 1500)
	require.NoError(t, err)
	assert.Equal(t, "0.0325", cr.FinalCost.String())
	assert.Equal(t, "9.9675", cr.RemainingBalance.String())
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 5*time.Millisecond)
	require.NoError(t, st.SetBalance(ctx, "u1", "10.00"))

	res, err := c.Reserve(ctx, "u1", "", "gpt-4o", "chat", 1000, 500)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = c.Commit(ctx, res.ReservationID, 950, 480)
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindReservation, kind)

	// funds remain stranded: balance equals initial - estimated (O3).
	bal, err := st.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "9.9875", bal)
}

func TestChargeFastPath(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "5.00"))

	res, err := c.Charge(ctx, "u1", "gpt-4o", 1000, money.FromFloat(1.23))
	require.NoError(t, err)
	assert.Equal(t, "3.77", res.NewBalance.String())
}

func TestChargeInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "1.00"))

	_, err := c.Charge(ctx, "u1", "gpt-4o", 1000, money.FromFloat(5.00))
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindBalance, kind)
}

func TestAdjustBalance(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "5.00"))

	bal, err := c.AdjustBalance(ctx, "u1", money.FromFloat(10), "promo credit")
	require.NoError(t, err)
	assert.Equal(t, "15", bal.String())

	_, err = c.AdjustBalance(ctx, "u1", money.FromFloat(-100), "correction")
	require.Error(t, err)
}

func TestAdjustBalanceRejectsOutOfRangeAmount(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "5.00"))

	_, err := c.AdjustBalance(ctx, "u1", money.Zero(), "noop")
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindValidation, kind)

	_, err = c.AdjustBalance(ctx, "u1", money.FromFloat(50_000_000), "too big")
	require.Error(t, err)
	kind, ok = errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindValidation, kind)

	// a negative adjustment is checked against its magnitude too.
	_, err = c.AdjustBalance(ctx, "u1", money.FromFloat(-50_000_000), "too big negative")
	require.Error(t, err)
	kind, ok = errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindValidation, kind)

	bal, err := st.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "5.00", bal)
}

func TestCommitDoesNotDoubleChargeOnConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "10.00"))

	res, err := c.Reserve(ctx, "u1", "", "gpt-4o", "chat", 1000, 500)
	require.NoError(t, err)

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Commit(ctx, res.ReservationID, 950, 480)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}
	// exactly one Commit may succeed; the rest must observe the
	// already-committed conflict, never a silently double-applied credit.
	assert.Equal(t, 1, successes)

	bal, err := st.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "9.98805", bal)
}

func TestGetBalanceMultiCurrency(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "10.00"))

	view, err := c.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "10", view.ByCurrency["USD"].String())
	assert.Equal(t, "10", view.ByCurrency["USDT"].String())
}

func TestSetAuditorRecordsEveryOperation(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCore(t, 600*time.Second)
	require.NoError(t, st.SetBalance(ctx, "u1", "100.00"))

	aud := &fakeAuditor{}
	c.SetAuditor(aud)

	_, err := c.Charge(ctx, "u1", "gpt-4o", 100, money.FromFloat(1.00))
	require.NoError(t, err)

	reserveRes, err := c.Reserve(ctx, "u1", "", "gpt-4o", "chat", 1000, 500)
	require.NoError(t, err)

	_, err = c.Commit(ctx, reserveRes.ReservationID, 1000, 500)
	require.NoError(t, err)

	_, err = c.AdjustBalance(ctx, "u1", money.FromFloat(5), "promo")
	require.NoError(t, err)

	require.Len(t, aud.records, 4)
	assert.Equal(t, "charge", aud.records[0].kind)
	assert.Equal(t, "reserve", aud.records[1].kind)
	assert.Equal(t, "commit", aud.records[2].kind)
	assert.Equal(t, "adjust", aud.records[3].kind)
	for _, r := range aud.records {
		assert.Equal(t, "u1", r.userID)
		assert.Contains(t, r.fields, "balance_after")
	}
}
