package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/kelpejol/beam/internal/money"
	"github.com/kelpejol/beam/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThresholds() Thresholds {
	return Thresholds{
		ErrorRate:             0.05,
		LowBalanceUSD:         money.FromFloat(10.00),
		HighUsageTokensPerDay: 1_000_000,
		ReservationTTLSeconds: 300,
		AlertCooldown:         time.Hour,
	}
}

func TestRecordResultCounters(t *testing.T) {
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	a.RecordResult("reserve", true)
	a.RecordResult("commit", true)
	a.RecordResult("charge", false)

	m := a.Snapshot()
	assert.Equal(t, int64(3), m.Total)
	assert.Equal(t, int64(2), m.Successful)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(1), m.TotalReservations)
	assert.Equal(t, int64(1), m.TotalCommits)
}

func TestRecordChargeAccumulates(t *testing.T) {
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	a.RecordCharge(money.FromFloat(1.50))
	a.RecordCharge(money.FromFloat(2.50))

	m := a.Snapshot()
	assert.True(t, m.TotalCharges.Equal(money.FromFloat(4.00)))
}

func TestLowBalanceAlert(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	a.ObserveBalance("u1", money.FromFloat(5.00))

	alerts, err := a.Alerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0]["message"], "balance below threshold")
}

func TestLowBalanceAlertRespectsCooldown(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	a.ObserveBalance("u1", money.FromFloat(5.00))
	a.ObserveBalance("u1", money.FromFloat(4.00)) // still below threshold, but within cooldown

	alerts, err := a.Alerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestNoAlertAboveThreshold(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	a.ObserveBalance("u1", money.FromFloat(50.00))

	alerts, err := a.Alerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestErrorRateAlert(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	// drive error rate above 5%
	for i := 0; i < 19; i++ {
		a.RecordResult("charge", true)
	}
	a.RecordResult("charge", false)
	a.RecordResult("charge", false)

	alerts, err := a.Alerts(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	assert.Contains(t, alerts[0]["message"], "error rate")
}

func TestReservationTTLAlert(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	a.EvaluateReservationTTL(100) // below the 300s threshold

	alerts, err := a.Alerts(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	assert.Contains(t, alerts[0]["message"], "reservation TTL")
}

func TestHighUsageAlert(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	today := time.Now().UTC().Format("2006-01-02")
	_, err := st.CounterIncr(ctx, "usage:daily:"+today, "u1", 2_000_000)
	require.NoError(t, err)

	a.ObserveUsage("u1", 2_000_000)

	alerts, err := a.Alerts(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	assert.Contains(t, alerts[0]["message"], "usage above threshold")
}

func TestNoHighUsageAlertBelowThreshold(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	today := time.Now().UTC().Format("2006-01-02")
	_, err := st.CounterIncr(ctx, "usage:daily:"+today, "u1", 100)
	require.NoError(t, err)

	a.ObserveUsage("u1", 100)

	alerts, err := a.Alerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestUpdateThresholds(t *testing.T) {
	st := store.NewMemoryStore()
	a := New(st, testThresholds(), zerolog.Nop())

	a.UpdateThresholds(Thresholds{
		ErrorRate:             0.5,
		LowBalanceUSD:         money.FromFloat(1.00),
		HighUsageTokensPerDay: 1,
		ReservationTTLSeconds: 10,
	})

	// a balance of 5.00 is no longer "low" under the new 1.00 threshold
	a.ObserveBalance("u2", money.FromFloat(5.00))
	alerts, err := a.Alerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
