// Package pb holds the request/response message types and service
// descriptor for the billing gRPC surface (spec §4.8), hand-written in the
// shape protoc-gen-go would emit.
//
// Open engineering note (see DESIGN.md): the teacher's own
// pkg/proto/balance/v1 package is protoc-generated and was not captured by
// the retrieval pack, and this rewrite is forbidden from running protoc or
// the Go toolchain. Rather than fabricate real protobuf v2 descriptor
// bytes by hand (infeasible without a working compiler), these message
// types are plain Go structs with `json` tags, paired with
// internal/transport/jsoncodec, a grpc.Codec registered under the name
// "proto" that marshals over encoding/json instead of the wire format.
// Every other piece of the teacher's gRPC stack — transport, interceptors,
// keepalive, metadata, codes/status, reflection — runs unmodified against
// these types.
package pb

// ChargeRequest is the fast-path charge call (spec §4.6 Charge).
type ChargeRequest struct {
	UserID     string `json:"user_id"`
	Model      string `json:"model"`
	TokensUsed int64  `json:"tokens_used"`
	CostUSD    string `json:"cost_usd"`
}

type ChargeResponse struct {
	NewBalanceUSD string `json:"new_balance_usd"`
}

// ReserveRequest corresponds to spec §4.6 Reserve.
type ReserveRequest struct {
	UserID         string `json:"user_id"`
	RequestID      string `json:"request_id,omitempty"`
	Model          string `json:"model"`
	Endpoint       string `json:"endpoint"`
	InputEstimate  int64  `json:"input_estimate"`
	OutputEstimate int64  `json:"output_estimate"`
}

type ReserveResponse struct {
	ReservationID    string `json:"reservation_id"`
	ReservedAmount   string `json:"reserved_amount"`
	RemainingBalance string `json:"remaining_balance"`
}

// CommitRequest corresponds to spec §4.6 Commit.
type CommitRequest struct {
	ReservationID string `json:"reservation_id"`
	InputActual   int64  `json:"input_actual"`
	OutputActual  int64  `json:"output_actual"`
}

type CommitResponse struct {
	FinalCost        string `json:"final_cost"`
	RemainingBalance string `json:"remaining_balance"`
}

// GetBalanceRequest corresponds to spec §4.6 GetBalance.
type GetBalanceRequest struct {
	UserID string `json:"user_id"`
}

type GetBalanceResponse struct {
	ByCurrency map[string]string `json:"by_currency"`
}

// AdjustBalanceRequest corresponds to spec §4.6 AdjustBalance.
type AdjustBalanceRequest struct {
	UserID    string `json:"user_id"`
	AmountUSD string `json:"amount_usd"`
	Reason    string `json:"reason"`
}

type AdjustBalanceResponse struct {
	NewBalanceUSD string `json:"new_balance_usd"`
}

// GetStatsRequest / GetMetricsRequest are read-only admin RPCs (§4.8).
type GetStatsRequest struct{}

type GetStatsResponse struct {
	Total             int64  `json:"total"`
	Successful        int64  `json:"successful"`
	Failed            int64  `json:"failed"`
	TotalChargesUSD   string `json:"total_charges_usd"`
	TotalReservations int64  `json:"total_reservations"`
	TotalCommits      int64  `json:"total_commits"`
}

type GetMetricsRequest = GetStatsRequest
type GetMetricsResponse = GetStatsResponse

// GetPricingRequest looks up a single model's pricing.
type GetPricingRequest struct {
	Model string `json:"model"`
}

type GetPricingResponse struct {
	ChatInputPerM  string `json:"chat_input_per_m,omitempty"`
	ChatOutputPerM string `json:"chat_output_per_m,omitempty"`
	EmbedPerM      string `json:"embed_per_m,omitempty"`
}

// GetPricingInfoRequest asks for the whole table plus metadata (§4.3).
type GetPricingInfoRequest struct{}

type GetPricingInfoResponse struct {
	SourceTag   string                        `json:"source_tag"`
	LastUpdated string                        `json:"last_updated"`
	Table       map[string]GetPricingResponse `json:"table"`
}

// UpdatePricingRequest replaces the whole pricing table (administrative).
type UpdatePricingRequest struct {
	SourceTag string                        `json:"source_tag"`
	Table     map[string]GetPricingResponse `json:"table"`
}

type UpdatePricingResponse struct {
	Accepted bool `json:"accepted"`
}

// GetExchangeRatesRequest / Response (§4.4).
type GetExchangeRatesRequest struct{}

type GetExchangeRatesResponse struct {
	Rates       map[string]string `json:"rates"`
	LastUpdated string            `json:"last_updated"`
}

// UpdateExchangeRatesRequest triggers a manual refresh from the feed.
type UpdateExchangeRatesRequest struct{}

type UpdateExchangeRatesResponse struct {
	Rates       map[string]string `json:"rates"`
	LastUpdated string            `json:"last_updated"`
}

type AddCurrencyRequest struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

type AddCurrencyResponse struct {
	Accepted bool `json:"accepted"`
}

type RemoveCurrencyRequest struct {
	Currency string `json:"currency"`
}

type RemoveCurrencyResponse struct {
	Accepted bool `json:"accepted"`
}

type UpdateCurrencyRateRequest struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

type UpdateCurrencyRateResponse struct {
	Accepted bool `json:"accepted"`
}

// GetAlertsRequest / Response (§4.7).
type GetAlertsRequest struct {
	Count int64 `json:"count"`
}

type AlertEntry struct {
	Message         string `json:"message"`
	Timestamp       string `json:"timestamp"`
	MetricsSnapshot string `json:"metrics_snapshot,omitempty"`
}

type GetAlertsResponse struct {
	Alerts []AlertEntry `json:"alerts"`
}

// UpdateThresholdsRequest replaces the monitoring thresholds (§4.7, §4.8).
type UpdateThresholdsRequest struct {
	ErrorRate             float64 `json:"error_rate"`
	LowBalanceUSD         string  `json:"low_balance_usd"`
	HighUsageTokensPerDay int64   `json:"high_usage_tokens_per_day"`
	ReservationTTLSeconds int64   `json:"reservation_ttl_seconds"`
}

type UpdateThresholdsResponse struct {
	Accepted bool `json:"accepted"`
}
