package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ConsumerHealthService is reported SERVING while the processing consumer runs.
const ConsumerHealthService = "orders.ProcessingConsumer"

// LifecycleServiceName is the gRPC service exposing the lifecycle commands.
// Requests and responses are the protobuf well-known wrapper types:
//
//	Create(StringValue createdBy) returns (Int64Value orderId)
//	StartProcessing / Cancel / Complete(Int64Value orderId) returns (BoolValue)
const LifecycleServiceName = "orders.OrderLifecycle"

// LifecycleService is the lifecycle engine as seen over gRPC.
type LifecycleService interface {
	Create(ctx context.Context, createdBy string) (int64, error)
	StartProcessing(ctx context.Context, orderID int64) (bool, error)
	Cancel(ctx context.Context, orderID int64) (bool, error)
	Complete(ctx context.Context, orderID int64) (bool, error)
}

var lifecycleServiceDesc = grpc.ServiceDesc{
	ServiceName: LifecycleServiceName,
	HandlerType: (*LifecycleService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: createHandler},
		orderCommand("StartProcessing", LifecycleService.StartProcessing),
		orderCommand("Cancel", LifecycleService.Cancel),
		orderCommand("Complete", LifecycleService.Complete),
	},
	Streams: []grpc.StreamDesc{},
}

// NewGRPCServer builds the gRPC server with the error interceptor, the
// lifecycle service and the standard health service installed.
func NewGRPCServer(healthServer *health.Server, orders LifecycleService) *grpc.Server {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryErrorInterceptor))
	server.RegisterService(&lifecycleServiceDesc, orders)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	return server
}

func createHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		orderID, err := srv.(LifecycleService).Create(ctx, req.(*wrapperspb.StringValue).GetValue())
		if err != nil {
			return nil, err
		}
		return wrapperspb.Int64(orderID), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + LifecycleServiceName + "/Create"}
	return interceptor(ctx, in, info, handler)
}

// orderCommand describes a method taking an order id and returning whether
// the transition took effect.
func orderCommand(name string, call func(LifecycleService, context.Context, int64) (bool, error)) grpc.MethodDesc {
	fullMethod := "/" + LifecycleServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(wrapperspb.Int64Value)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				ok, err := call(srv.(LifecycleService), ctx, req.(*wrapperspb.Int64Value).GetValue())
				if err != nil {
					return nil, err
				}
				return wrapperspb.Bool(ok), nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, handler)
		},
	}
}
