package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "chunksort.SortService"

	SortMethod   = "/" + ServiceName + "/Sort"
	VerifyMethod = "/" + ServiceName + "/Verify"
	StatsMethod  = "/" + ServiceName + "/Stats"
)

// SortServiceHandler is the server side of chunksort.SortService.
type SortServiceHandler interface {
	Sort(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Stats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes chunksort.SortService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SortServiceHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sort", Handler: unaryHandler(SortMethod, SortServiceHandler.Sort)},
		{MethodName: "Verify", Handler: unaryHandler(VerifyMethod, SortServiceHandler.Verify)},
		{MethodName: "Stats", Handler: unaryHandler(StatsMethod, SortServiceHandler.Stats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chunksort/sort_service",
}

// Register attaches h to s.
func Register(s grpc.ServiceRegistrar, h SortServiceHandler) {
	s.RegisterService(&ServiceDesc, h)
}

type unaryMethod func(SortServiceHandler, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SortServiceHandler), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SortServiceHandler), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
