package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/kelpejol/beam/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	rates map[string]decimal.Decimal
	err   error
}

func (f *fakeFeed) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rates, nil
}

func TestLoadDefaultsPinned(t *testing.T) {
	st := store.NewMemoryStore()
	tbl, err := Load(context.Background(), st, &fakeFeed{}, zerolog.Nop())
	require.NoError(t, err)

	rate, err := tbl.Rate("USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	rate, err = tbl.Rate("USDT")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestRateUnknownCurrency(t *testing.T) {
	st := store.NewMemoryStore()
	tbl, err := Load(context.Background(), st, &fakeFeed{}, zerolog.Nop())
	require.NoError(t, err)

	_, err = tbl.Rate("XYZ")
	assert.Error(t, err)
}

func TestAddAndUpdateCurrency(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tbl, err := Load(ctx, st, &fakeFeed{}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tbl.AddCurrency(ctx, "EUR", decimal.NewFromFloat(0.92)))
	rate, err := tbl.Rate("EUR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.92)))

	require.NoError(t, tbl.UpdateRate(ctx, "EUR", decimal.NewFromFloat(0.95)))
	rate, err = tbl.Rate("EUR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.95)))
}

func TestRemoveCurrencyRejectedForPinned(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tbl, err := Load(ctx, st, &fakeFeed{}, zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, tbl.RemoveCurrency(ctx, "USD"))
	assert.Error(t, tbl.RemoveCurrency(ctx, "USDT"))

	require.NoError(t, tbl.AddCurrency(ctx, "EUR", decimal.NewFromFloat(0.92)))
	require.NoError(t, tbl.RemoveCurrency(ctx, "EUR"))
	_, err = tbl.Rate("EUR")
	assert.Error(t, err)
}

func TestUpdateRatePinnedMustStayOne(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tbl, err := Load(ctx, st, &fakeFeed{}, zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, tbl.UpdateRate(ctx, "USD", decimal.NewFromFloat(1.1)))
}

func TestRefreshPinsUSDAndUSDTRegardlessOfFeed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	feed := &fakeFeed{rates: map[string]decimal.Decimal{
		"USD": decimal.NewFromFloat(1.05), // feed misreports USD, must be overridden
		"GBP": decimal.NewFromFloat(0.79),
	}}
	tbl, err := Load(ctx, st, feed, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tbl.Refresh(ctx))

	rate, err := tbl.Rate("USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	rate, err = tbl.Rate("GBP")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.79)))
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tbl, err := Load(ctx, st, &fakeFeed{}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tbl.AddCurrency(ctx, "EUR", decimal.NewFromFloat(0.92)))

	failing := &fakeFeed{err: errors.New("feed unreachable")}
	tbl.feed = failing

	err = tbl.Refresh(ctx)
	assert.Error(t, err)

	rate, err := tbl.Rate("EUR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.92)))
}
