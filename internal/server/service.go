package server

import (
	"context"

	"github.com/danielpatrickdp/adaptive-dbn/internal/codec"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// networkService is the handler type checked by grpc.Server.RegisterService.
type networkService interface {
	infer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	parents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	unroll(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(networkService, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary adapts a method to grpc's handler signature, running interceptors
// the way generated code does.
func unary(fullMethod string, call unaryFunc) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		svc := srv.(networkService)
		if interceptor == nil {
			return call(svc, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(svc, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: codec.ServiceName,
	HandlerType: (*networkService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: unary(codec.MethodInfer, networkService.infer)},
		{MethodName: "Update", Handler: unary(codec.MethodUpdate, networkService.update)},
		{MethodName: "Parents", Handler: unary(codec.MethodParents, networkService.parents)},
		{MethodName: "Unroll", Handler: unary(codec.MethodUnroll, networkService.unroll)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dbn/v1/network.proto",
}
