package pb

import (
	"context"

	"google.golang.org/grpc"
)

// BillingServiceServer is the server-side interface for every RPC in
// spec §4.8's surface, in the shape protoc-gen-go-grpc would emit.
type BillingServiceServer interface {
	Charge(context.Context, *ChargeRequest) (*ChargeResponse, error)
	Reserve(context.Context, *ReserveRequest) (*ReserveResponse, error)
	Commit(context.Context, *CommitRequest) (*CommitResponse, error)
	GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceResponse, error)
	AdjustBalance(context.Context, *AdjustBalanceRequest) (*AdjustBalanceResponse, error)

	GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error)
	GetMetrics(context.Context, *GetMetricsRequest) (*GetMetricsResponse, error)
	GetAlerts(context.Context, *GetAlertsRequest) (*GetAlertsResponse, error)
	UpdateThresholds(context.Context, *UpdateThresholdsRequest) (*UpdateThresholdsResponse, error)

	GetPricing(context.Context, *GetPricingRequest) (*GetPricingResponse, error)
	GetPricingInfo(context.Context, *GetPricingInfoRequest) (*GetPricingInfoResponse, error)
	UpdatePricing(context.Context, *UpdatePricingRequest) (*UpdatePricingResponse, error)

	GetExchangeRates(context.Context, *GetExchangeRatesRequest) (*GetExchangeRatesResponse, error)
	UpdateExchangeRates(context.Context, *UpdateExchangeRatesRequest) (*UpdateExchangeRatesResponse, error)
	AddCurrency(context.Context, *AddCurrencyRequest) (*AddCurrencyResponse, error)
	RemoveCurrency(context.Context, *RemoveCurrencyRequest) (*RemoveCurrencyResponse, error)
	UpdateCurrencyRate(context.Context, *UpdateCurrencyRateRequest) (*UpdateCurrencyRateResponse, error)
}

// RegisterBillingServiceServer registers srv against the given grpc.Server,
// mirroring the protoc-gen-go-grpc generated function of the same name.
func RegisterBillingServiceServer(s grpc.ServiceRegistrar, srv BillingServiceServer) {
	s.RegisterService(&BillingService_ServiceDesc, srv)
}

func _BillingService_Charge_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ChargeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).Charge(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/Charge"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).Charge(ctx, req.(*ChargeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_Reserve_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReserveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).Reserve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/Reserve"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).Reserve(ctx, req.(*ReserveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_Commit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CommitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).Commit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/Commit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).Commit(ctx, req.(*CommitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_GetBalance_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetBalanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/GetBalance"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).GetBalance(ctx, req.(*GetBalanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_AdjustBalance_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AdjustBalanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).AdjustBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/AdjustBalance"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).AdjustBalance(ctx, req.(*AdjustBalanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_GetStats_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/GetStats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).GetStats(ctx, req.(*GetStatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_GetMetrics_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetMetricsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).GetMetrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/GetMetrics"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).GetMetrics(ctx, req.(*GetMetricsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_GetAlerts_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetAlertsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).GetAlerts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/GetAlerts"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).GetAlerts(ctx, req.(*GetAlertsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_UpdateThresholds_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpdateThresholdsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).UpdateThresholds(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/UpdateThresholds"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).UpdateThresholds(ctx, req.(*UpdateThresholdsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_GetPricing_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetPricingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).GetPricing(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/GetPricing"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).GetPricing(ctx, req.(*GetPricingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_GetPricingInfo_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetPricingInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).GetPricingInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/GetPricingInfo"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).GetPricingInfo(ctx, req.(*GetPricingInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_UpdatePricing_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpdatePricingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).UpdatePricing(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/UpdatePricing"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).UpdatePricing(ctx, req.(*UpdatePricingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_GetExchangeRates_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetExchangeRatesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).GetExchangeRates(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/GetExchangeRates"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).GetExchangeRates(ctx, req.(*GetExchangeRatesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_UpdateExchangeRates_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpdateExchangeRatesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).UpdateExchangeRates(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/UpdateExchangeRates"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).UpdateExchangeRates(ctx, req.(*UpdateExchangeRatesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_AddCurrency_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AddCurrencyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).AddCurrency(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/AddCurrency"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).AddCurrency(ctx, req.(*AddCurrencyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_RemoveCurrency_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RemoveCurrencyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).RemoveCurrency(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/RemoveCurrency"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).RemoveCurrency(ctx, req.(*RemoveCurrencyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_UpdateCurrencyRate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpdateCurrencyRateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).UpdateCurrencyRate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beam.billing.v1.BillingService/UpdateCurrencyRate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BillingServiceServer).UpdateCurrencyRate(ctx, req.(*UpdateCurrencyRateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// BillingService_ServiceDesc is the grpc.ServiceDesc for BillingService, in
// the shape protoc-gen-go-grpc emits.
var BillingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "beam.billing.v1.BillingService",
	HandlerType: (*BillingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Charge", Handler: _BillingService_Charge_Handler},
		{MethodName: "Reserve", Handler: _BillingService_Reserve_Handler},
		{MethodName: "Commit", Handler: _BillingService_Commit_Handler},
		{MethodName: "GetBalance", Handler: _BillingService_GetBalance_Handler},
		{MethodName: "AdjustBalance", Handler: _BillingService_AdjustBalance_Handler},
		{MethodName: "GetStats", Handler: _BillingService_GetStats_Handler},
		{MethodName: "GetMetrics", Handler: _BillingService_GetMetrics_Handler},
		{MethodName: "GetAlerts", Handler: _BillingService_GetAlerts_Handler},
		{MethodName: "UpdateThresholds", Handler: _BillingService_UpdateThresholds_Handler},
		{MethodName: "GetPricing", Handler: _BillingService_GetPricing_Handler},
		{MethodName: "GetPricingInfo", Handler: _BillingService_GetPricingInfo_Handler},
		{MethodName: "UpdatePricing", Handler: _BillingService_UpdatePricing_Handler},
		{MethodName: "GetExchangeRates", Handler: _BillingService_GetExchangeRates_Handler},
		{MethodName: "UpdateExchangeRates", Handler: _BillingService_UpdateExchangeRates_Handler},
		{MethodName: "AddCurrency", Handler: _BillingService_AddCurrency_Handler},
		{MethodName: "RemoveCurrency", Handler: _BillingService_RemoveCurrency_Handler},
		{MethodName: "UpdateCurrencyRate", Handler: _BillingService_UpdateCurrencyRate_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "beam/billing/v1/billing.proto",
}
