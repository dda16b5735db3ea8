package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/kelpejol/beam/internal/auth"
	"github.com/kelpejol/beam/internal/billing"
	"github.com/kelpejol/beam/internal/exchange"
	"github.com/kelpejol/beam/internal/monitor"
	"github.com/kelpejol/beam/internal/pb"
	"github.com/kelpejol/beam/internal/pricing"
	"github.com/kelpejol/beam/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type noFeed struct{}

func (noFeed) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *auth.Authenticator, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	log := zerolog.Nop()

	pt, err := pricing.Load(context.Background(), st)
	require.NoError(t, err)
	et, err := exchange.Load(context.Background(), st, noFeed{}, log)
	require.NoError(t, err)
	mon := monitor.New(st, monitor.Thresholds{ErrorRate: 1, LowBalanceUSD: decimal.NewFromInt(-1)}, log)
	bc := billing.New(st, pt, et, mon, log, time.Minute, time.Hour)
	a := auth.New("test-secret", "admin-secret")

	return New(bc, pt, et, mon, a, log), a, st
}

func authedCtx(t *testing.T, a *auth.Authenticator, userID string) context.Context {
	t.Helper()
	token, err := a.IssueToken(userID, time.Hour)
	require.NoError(t, err)
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(context.Background(), md)
}

func adminCtx() context.Context {
	md := metadata.Pairs("authorization", "admin-secret")
	return metadata.NewIncomingContext(context.Background(), md)
}

func seedBalance(t *testing.T, st store.Store, userID, amount string) {
	t.Helper()
	require.NoError(t, st.SetBalance(context.Background(), userID, amount))
}

func TestChargeRPCHappyPath(t *testing.T) {
	srv, a, st := newTestServer(t)
	seedBalance(t, st, "user-1", "10.00")

	resp, err := srv.Charge(authedCtx(t, a, "user-1"), &pb.ChargeRequest{
		UserID:     "user-1",
		Model:      "gpt-4o",
		TokensUsed: 100,
		CostUSD:    "1.50",
	})
	require.NoError(t, err)
	assert.Equal(t, "8.5", resp.NewBalanceUSD)
}

func TestChargeRPCRejectsUnauthenticated(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, err := srv.Charge(context.Background(), &pb.ChargeRequest{
		UserID: "user-1", Model: "gpt-4o", TokensUsed: 1, CostUSD: "1.00",
	})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestChargeRPCInsufficientBalance(t *testing.T) {
	srv, a, st := newTestServer(t)
	seedBalance(t, st, "user-1", "1.00")

	_, err := srv.Charge(authedCtx(t, a, "user-1"), &pb.ChargeRequest{
		UserID: "user-1", Model: "gpt-4o", TokensUsed: 1, CostUSD: "5.00",
	})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestReserveCommitRPCFlow(t *testing.T) {
	srv, a, st := newTestServer(t)
	seedBalance(t, st, "user-1", "100.00")

	reserveResp, err := srv.Reserve(authedCtx(t, a, "user-1"), &pb.ReserveRequest{
		UserID:         "user-1",
		Model:          "gpt-4o",
		Endpoint:       "chat",
		InputEstimate:  1000,
		OutputEstimate: 500,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reserveResp.ReservationID)

	commitResp, err := srv.Commit(authedCtx(t, a, "user-1"), &pb.CommitRequest{
		ReservationID: reserveResp.ReservationID,
		InputActual:   1000,
		OutputActual:  500,
	})
	require.NoError(t, err)
	assert.Equal(t, reserveResp.ReservedAmount, commitResp.FinalCost)
}

func TestCommitRPCNotFound(t *testing.T) {
	srv, a, _ := newTestServer(t)

	_, err := srv.Commit(authedCtx(t, a, "user-1"), &pb.CommitRequest{
		ReservationID: "res:user-1:missing:1700000000",
		InputActual:   1,
	})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetBalanceRPC(t *testing.T) {
	srv, a, st := newTestServer(t)
	seedBalance(t, st, "user-1", "50.00")

	resp, err := srv.GetBalance(authedCtx(t, a, "user-1"), &pb.GetBalanceRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "50", resp.ByCurrency["USD"])
}

func TestAdjustBalanceRPCRequiresAdmin(t *testing.T) {
	srv, a, st := newTestServer(t)
	seedBalance(t, st, "user-1", "5.00")

	_, err := srv.AdjustBalance(authedCtx(t, a, "user-1"), &pb.AdjustBalanceRequest{
		UserID: "user-1", AmountUSD: "10", Reason: "test",
	})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := srv.AdjustBalance(adminCtx(), &pb.AdjustBalanceRequest{
		UserID: "user-1", AmountUSD: "10", Reason: "test",
	})
	require.NoError(t, err)
	assert.Equal(t, "15", resp.NewBalanceUSD)
}

func TestGetStatsRPCRequiresAdmin(t *testing.T) {
	srv, a, st := newTestServer(t)
	seedBalance(t, st, "user-1", "10.00")

	_, err := srv.GetStats(authedCtx(t, a, "user-1"), &pb.GetStatsRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = srv.Charge(authedCtx(t, a, "user-1"), &pb.ChargeRequest{
		UserID: "user-1", Model: "gpt-4o", TokensUsed: 1, CostUSD: "1.00",
	})
	require.NoError(t, err)

	resp, err := srv.GetStats(adminCtx(), &pb.GetStatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Total)
	assert.Equal(t, int64(1), resp.Successful)
}

func TestGetPricingRPC(t *testing.T) {
	srv, a, _ := newTestServer(t)

	resp, err := srv.GetPricing(authedCtx(t, a, "user-1"), &pb.GetPricingRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "5", resp.ChatInputPerM)
	assert.Equal(t, "15", resp.ChatOutputPerM)
}

func TestGetPricingRPCUnknownModel(t *testing.T) {
	srv, a, _ := newTestServer(t)

	_, err := srv.GetPricing(authedCtx(t, a, "user-1"), &pb.GetPricingRequest{Model: "does-not-exist"})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestUpdatePricingRPCRequiresAdmin(t *testing.T) {
	srv, a, _ := newTestServer(t)

	_, err := srv.UpdatePricing(authedCtx(t, a, "user-1"), &pb.UpdatePricingRequest{
		SourceTag: "manual", Table: map[string]pb.GetPricingResponse{"custom-model": {ChatInputPerM: "1", ChatOutputPerM: "2"}},
	})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := srv.UpdatePricing(adminCtx(), &pb.UpdatePricingRequest{
		SourceTag: "manual", Table: map[string]pb.GetPricingResponse{"custom-model": {ChatInputPerM: "1", ChatOutputPerM: "2"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)

	pricingResp, err := srv.GetPricing(authedCtx(t, a, "user-1"), &pb.GetPricingRequest{Model: "custom-model"})
	require.NoError(t, err)
	assert.Equal(t, "1", pricingResp.ChatInputPerM)
}

func TestExchangeRatesRPC(t *testing.T) {
	srv, a, _ := newTestServer(t)

	resp, err := srv.GetExchangeRates(authedCtx(t, a, "user-1"), &pb.GetExchangeRatesRequest{})
	require.NoError(t, err)
	assert.Equal(t, "1", resp.Rates["USD"])
	assert.Equal(t, "1", resp.Rates["USDT"])
}

func TestAddRemoveCurrencyRPCRequiresAdmin(t *testing.T) {
	srv, a, _ := newTestServer(t)

	_, err := srv.AddCurrency(authedCtx(t, a, "user-1"), &pb.AddCurrencyRequest{Currency: "EUR", Rate: "0.9"})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	addResp, err := srv.AddCurrency(adminCtx(), &pb.AddCurrencyRequest{Currency: "EUR", Rate: "0.9"})
	require.NoError(t, err)
	assert.True(t, addResp.Accepted)

	_, err = srv.RemoveCurrency(adminCtx(), &pb.RemoveCurrencyRequest{Currency: "USD"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	removeResp, err := srv.RemoveCurrency(adminCtx(), &pb.RemoveCurrencyRequest{Currency: "EUR"})
	require.NoError(t, err)
	assert.True(t, removeResp.Accepted)
}

func TestAddCurrencyRPCRejectsInvalidCode(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, err := srv.AddCurrency(adminCtx(), &pb.AddCurrencyRequest{Currency: "12", Rate: "0.9"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = srv.AddCurrency(adminCtx(), &pb.AddCurrencyRequest{Currency: "dollars", Rate: "0.9"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUpdateCurrencyRateRPCRejectsInvalidCode(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, err := srv.UpdateCurrencyRate(adminCtx(), &pb.UpdateCurrencyRateRequest{Currency: "12", Rate: "0.9"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAdjustBalanceRPCRejectsOutOfRangeAmount(t *testing.T) {
	srv, _, st := newTestServer(t)
	seedBalance(t, st, "user-1", "5.00")

	_, err := srv.AdjustBalance(adminCtx(), &pb.AdjustBalanceRequest{
		UserID: "user-1", AmountUSD: "0", Reason: "noop",
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = srv.AdjustBalance(adminCtx(), &pb.AdjustBalanceRequest{
		UserID: "user-1", AmountUSD: "50000000", Reason: "too big",
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUpdateThresholdsRPCRequiresAdmin(t *testing.T) {
	srv, a, _ := newTestServer(t)

	_, err := srv.UpdateThresholds(authedCtx(t, a, "user-1"), &pb.UpdateThresholdsRequest{
		ErrorRate: 0.5, LowBalanceUSD: "1.00", HighUsageTokensPerDay: 1000, ReservationTTLSeconds: 60,
	})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := srv.UpdateThresholds(adminCtx(), &pb.UpdateThresholdsRequest{
		ErrorRate: 0.5, LowBalanceUSD: "1.00", HighUsageTokensPerDay: 1000, ReservationTTLSeconds: 60,
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
}
