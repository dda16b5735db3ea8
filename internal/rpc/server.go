// Package rpc implements the BillingServiceServer: the boundary that
// translates pb messages into billing/pricing/exchange/monitor calls and
// maps errs.Kind to gRPC status codes exactly once (spec §7, §4.8).
//
// Grounded on internal/api/balance_service.go's method-body shape
// (validate auth → call domain component → log → build response), lifted
// from a single *ledger.Ledger dependency onto the C3/C4/C6/C7 components
// this rewrite split that ledger into.
package rpc

import (
	"context"
	"time"

	"github.com/kelpejol/beam/internal/auth"
	"github.com/kelpejol/beam/internal/billing"
	"github.com/kelpejol/beam/internal/errs"
	"github.com/kelpejol/beam/internal/exchange"
	"github.com/kelpejol/beam/internal/money"
	"github.com/kelpejol/beam/internal/monitor"
	"github.com/kelpejol/beam/internal/pb"
	"github.com/kelpejol/beam/internal/pricing"
	"github.com/kelpejol/beam/internal/validate"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server implements pb.BillingServiceServer.
type Server struct {
	billing  *billing.Core
	pricing  *pricing.Table
	exchange *exchange.Table
	monitor  *monitor.Aggregator
	auth     *auth.Authenticator
	log      zerolog.Logger
}

// New builds a Server wiring every component the RPC boundary fans out to.
func New(b *billing.Core, pt *pricing.Table, et *exchange.Table, mon *monitor.Aggregator, a *auth.Authenticator, log zerolog.Logger) *Server {
	return &Server{billing: b, pricing: pt, exchange: et, monitor: mon, auth: a, log: log}
}

// statusFromErr maps errs.Kind to a gRPC status exactly once at the
// boundary (spec §7), coercing any error without a Kind (e.g. a bare
// substrate error that slipped through uncoerced) to INTERNAL.
func statusFromErr(err error) error {
	if err == nil {
		return nil
	}
	kind, ok := errs.As(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	switch kind {
	case errs.KindAuth:
		return status.Error(codes.Unauthenticated, err.Error())
	case errs.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case errs.KindBalance:
		return status.Error(codes.FailedPrecondition, err.Error())
	case errs.KindReservation:
		if err.Error() == "reservation: not found" {
			return status.Error(codes.NotFound, err.Error())
		}
		return status.Error(codes.FailedPrecondition, err.Error())
	case errs.KindPricing:
		return status.Error(codes.FailedPrecondition, err.Error())
	case errs.KindExternal:
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) authenticate(ctx context.Context) (string, error) {
	userID, err := s.auth.ValidateAPIKey(ctx)
	if err != nil {
		return "", errs.Auth(err.Error())
	}
	return userID, nil
}

func (s *Server) authenticateAdmin(ctx context.Context) error {
	if err := s.auth.ValidateAdmin(ctx); err != nil {
		return errs.Auth(err.Error())
	}
	return nil
}

// Charge implements pb.BillingServiceServer.
func (s *Server) Charge(ctx context.Context, req *pb.ChargeRequest) (*pb.ChargeResponse, error) {
	if _, err := s.authenticate(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	cost, err := money.FromString(req.CostUSD)
	if err != nil {
		return nil, statusFromErr(errs.Validation("cost_usd: " + err.Error()))
	}

	res, err := s.billing.Charge(ctx, req.UserID, req.Model, req.TokensUsed, cost)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", req.UserID).Msg("charge failed")
		return nil, statusFromErr(err)
	}

	return &pb.ChargeResponse{NewBalanceUSD: res.NewBalance.String()}, nil
}

// Reserve implements pb.BillingServiceServer.
func (s *Server) Reserve(ctx context.Context, req *pb.ReserveRequest) (*pb.ReserveResponse, error) {
	if _, err := s.authenticate(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	res, err := s.billing.Reserve(ctx, req.UserID, req.RequestID, req.Model, req.Endpoint, req.InputEstimate, req.OutputEstimate)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", req.UserID).Msg("reserve failed")
		return nil, statusFromErr(err)
	}

	return &pb.ReserveResponse{
		ReservationID:    res.ReservationID,
		ReservedAmount:   res.ReservedAmount.String(),
		RemainingBalance: res.RemainingBalance.String(),
	}, nil
}

// Commit implements pb.BillingServiceServer.
func (s *Server) Commit(ctx context.Context, req *pb.CommitRequest) (*pb.CommitResponse, error) {
	if _, err := s.authenticate(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	res, err := s.billing.Commit(ctx, req.ReservationID, req.InputActual, req.OutputActual)
	if err != nil {
		s.log.Warn().Err(err).Str("reservation_id", req.ReservationID).Msg("commit failed")
		return nil, statusFromErr(err)
	}

	return &pb.CommitResponse{
		FinalCost:        res.FinalCost.String(),
		RemainingBalance: res.RemainingBalance.String(),
	}, nil
}

// GetBalance implements pb.BillingServiceServer.
func (s *Server) GetBalance(ctx context.Context, req *pb.GetBalanceRequest) (*pb.GetBalanceResponse, error) {
	if _, err := s.authenticate(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	view, err := s.billing.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, statusFromErr(err)
	}

	out := make(map[string]string, len(view.ByCurrency))
	for currency, amount := range view.ByCurrency {
		out[currency] = amount.String()
	}
	return &pb.GetBalanceResponse{ByCurrency: out}, nil
}

// AdjustBalance implements pb.BillingServiceServer. Administrative: the
// caller must present the preshared admin key in the authorization
// metadata; no bearer token is checked.
func (s *Server) AdjustBalance(ctx context.Context, req *pb.AdjustBalanceRequest) (*pb.AdjustBalanceResponse, error) {
	if err := s.authenticateAdmin(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	amount, err := money.FromString(req.AmountUSD)
	if err != nil {
		return nil, statusFromErr(errs.Validation("amount_usd: " + err.Error()))
	}

	newBalance, err := s.billing.AdjustBalance(ctx, req.UserID, amount, req.Reason)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", req.UserID).Msg("adjust balance failed")
		return nil, statusFromErr(err)
	}

	return &pb.AdjustBalanceResponse{NewBalanceUSD: newBalance.String()}, nil
}

// GetStats implements pb.BillingServiceServer.
func (s *Server) GetStats(ctx context.Context, req *pb.GetStatsRequest) (*pb.GetStatsResponse, error) {
	if err := s.authenticateAdmin(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	m := s.monitor.Snapshot()
	return &pb.GetStatsResponse{
		Total:             m.Total,
		Successful:        m.Successful,
		Failed:            m.Failed,
		TotalChargesUSD:   m.TotalCharges.String(),
		TotalReservations: m.TotalReservations,
		TotalCommits:      m.TotalCommits,
	}, nil
}

// GetMetrics is an alias of GetStats (spec §4.8 lists both names).
func (s *Server) GetMetrics(ctx context.Context, req *pb.GetMetricsRequest) (*pb.GetMetricsResponse, error) {
	return s.GetStats(ctx, req)
}

// GetAlerts implements pb.BillingServiceServer.
func (s *Server) GetAlerts(ctx context.Context, req *pb.GetAlertsRequest) (*pb.GetAlertsResponse, error) {
	if err := s.authenticateAdmin(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	count := req.Count
	if count <= 0 {
		count = 50
	}
	entries, err := s.monitor.Alerts(ctx, count)
	if err != nil {
		return nil, statusFromErr(errs.External("read alerts", err))
	}

	out := make([]pb.AlertEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, pb.AlertEntry{
			Message:         e["message"],
			Timestamp:       e["timestamp"],
			MetricsSnapshot: e["total_charges"],
		})
	}
	return &pb.GetAlertsResponse{Alerts: out}, nil
}

// UpdateThresholds implements pb.BillingServiceServer.
func (s *Server) UpdateThresholds(ctx context.Context, req *pb.UpdateThresholdsRequest) (*pb.UpdateThresholdsResponse, error) {
	if err := s.authenticateAdmin(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	lowBalance, err := money.FromString(req.LowBalanceUSD)
	if err != nil {
		return nil, statusFromErr(errs.Validation("low_balance_usd: " + err.Error()))
	}

	s.monitor.UpdateThresholds(monitor.Thresholds{
		ErrorRate:             req.ErrorRate,
		LowBalanceUSD:         lowBalance,
		HighUsageTokensPerDay: req.HighUsageTokensPerDay,
		ReservationTTLSeconds: req.ReservationTTLSeconds,
		AlertCooldown:         3600 * time.Second,
	})
	return &pb.UpdateThresholdsResponse{Accepted: true}, nil
}

// GetPricing implements pb.BillingServiceServer.
func (s *Server) GetPricing(ctx context.Context, req *pb.GetPricingRequest) (*pb.GetPricingResponse, error) {
	if _, err := s.authenticate(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	_, _, table := s.pricing.Metadata()
	p, ok := table[req.Model]
	if !ok {
		return nil, statusFromErr(errs.Pricing("unknown model " + req.Model))
	}
	return modelPriceToPB(p), nil
}

// GetPricingInfo implements pb.BillingServiceServer.
func (s *Server) GetPricingInfo(ctx context.Context, req *pb.GetPricingInfoRequest) (*pb.GetPricingInfoResponse, error) {
	if _, err := s.authenticate(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	sourceTag, lastUpdated, table := s.pricing.Metadata()
	out := make(map[string]pb.GetPricingResponse, len(table))
	for model, p := range table {
		out[model] = *modelPriceToPB(p)
	}
	return &pb.GetPricingInfoResponse{
		SourceTag:   sourceTag,
		LastUpdated: lastUpdated.Format(time.RFC3339),
		Table:       out,
	}, nil
}

// UpdatePricing implements pb.BillingServiceServer. Administrative.
func (s *Server) UpdatePricing(ctx context.Context, req *pb.UpdatePricingRequest) (*pb.UpdatePricingResponse, error) {
	if err := s.authenticateAdmin(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	table := make(map[string]pricing.ModelPrice, len(req.Table))
	for model, p := range req.Table {
		mp, err := pbToModelPrice(p)
		if err != nil {
			return nil, statusFromErr(errs.Validation("table[" + model + "]: " + err.Error()))
		}
		table[model] = mp
	}

	if err := s.pricing.Update(ctx, req.SourceTag, table); err != nil {
		return nil, statusFromErr(err)
	}
	return &pb.UpdatePricingResponse{Accepted: true}, nil
}

// GetExchangeRates implements pb.BillingServiceServer.
func (s *Server) GetExchangeRates(ctx context.Context, req *pb.GetExchangeRatesRequest) (*pb.GetExchangeRatesResponse, error) {
	if _, err := s.authenticate(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	rates, lastUpdated := s.exchange.Snapshot()
	return &pb.GetExchangeRatesResponse{Rates: rates, LastUpdated: lastUpdated.Format(time.RFC3339)}, nil
}

// UpdateExchangeRates implements pb.BillingServiceServer: triggers an
// immediate refresh from the feed rather than accepting caller-supplied
// rates directly, matching spec §4.4's feed-driven refresh model.
// Administrative.
func (s *Server) UpdateExchangeRates(ctx context.Context, req *pb.UpdateExchangeRatesRequest) (*pb.UpdateExchangeRatesResponse, error) {
	if err := s.authenticateAdmin(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	if err := s.exchange.Refresh(ctx); err != nil {
		return nil, statusFromErr(err)
	}
	rates, lastUpdated := s.exchange.Snapshot()
	return &pb.UpdateExchangeRatesResponse{Rates: rates, LastUpdated: lastUpdated.Format(time.RFC3339)}, nil
}

// AddCurrency implements pb.BillingServiceServer. Administrative.
func (s *Server) AddCurrency(ctx context.Context, req *pb.AddCurrencyRequest) (*pb.AddCurrencyResponse, error) {
	if err := s.authenticateAdmin(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	if err := validate.Currency(req.Currency); err != nil {
		return nil, statusFromErr(errs.Validation(err.Error()))
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		return nil, statusFromErr(errs.Validation("rate: " + err.Error()))
	}
	if err := s.exchange.AddCurrency(ctx, req.Currency, rate); err != nil {
		return nil, statusFromErr(err)
	}
	return &pb.AddCurrencyResponse{Accepted: true}, nil
}

// RemoveCurrency implements pb.BillingServiceServer. Administrative.
func (s *Server) RemoveCurrency(ctx context.Context, req *pb.RemoveCurrencyRequest) (*pb.RemoveCurrencyResponse, error) {
	if err := s.authenticateAdmin(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	if err := s.exchange.RemoveCurrency(ctx, req.Currency); err != nil {
		return nil, statusFromErr(err)
	}
	return &pb.RemoveCurrencyResponse{Accepted: true}, nil
}

// UpdateCurrencyRate implements pb.BillingServiceServer. Administrative.
func (s *Server) UpdateCurrencyRate(ctx context.Context, req *pb.UpdateCurrencyRateRequest) (*pb.UpdateCurrencyRateResponse, error) {
	if err := s.authenticateAdmin(ctx); err != nil {
		return nil, statusFromErr(err)
	}

	if err := validate.Currency(req.Currency); err != nil {
		return nil, statusFromErr(errs.Validation(err.Error()))
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		return nil, statusFromErr(errs.Validation("rate: " + err.Error()))
	}
	if err := s.exchange.UpdateRate(ctx, req.Currency, rate); err != nil {
		return nil, statusFromErr(err)
	}
	return &pb.UpdateCurrencyRateResponse{Accepted: true}, nil
}

func modelPriceToPB(p pricing.ModelPrice) *pb.GetPricingResponse {
	out := &pb.GetPricingResponse{}
	if !p.ChatInputPerM.IsZero() {
		out.ChatInputPerM = p.ChatInputPerM.String()
	}
	if !p.ChatOutputPerM.IsZero() {
		out.ChatOutputPerM = p.ChatOutputPerM.String()
	}
	if !p.EmbedPerM.IsZero() {
		out.EmbedPerM = p.EmbedPerM.String()
	}
	return out
}

func pbToModelPrice(p pb.GetPricingResponse) (pricing.ModelPrice, error) {
	var mp pricing.ModelPrice
	var err error
	if p.ChatInputPerM != "" {
		if mp.ChatInputPerM, err = decimal.NewFromString(p.ChatInputPerM); err != nil {
			return mp, err
		}
	}
	if p.ChatOutputPerM != "" {
		if mp.ChatOutputPerM, err = decimal.NewFromString(p.ChatOutputPerM); err != nil {
			return mp, err
		}
	}
	if p.EmbedPerM != "" {
		if mp.EmbedPerM, err = decimal.NewFromString(p.EmbedPerM); err != nil {
			return mp, err
		}
	}
	return mp, nil
}
