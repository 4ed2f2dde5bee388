package plugin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"adi/internal/logging"
	"adi/internal/transformation"
)

const (
	ServiceName     = "adi.v1.TransformService"
	TransformMethod = "/" + ServiceName + "/Transform"
)

// Request fields.
const (
	fieldName   = "name"
	fieldParams = "params"
	fieldResult = "result"
)

// TransformServer answers Transform calls.
type TransformServer interface {
	Transform(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransformServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transform", Handler: transformHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adi/v1/transform.proto",
}

func transformHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransformServer).Transform(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TransformMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TransformServer).Transform(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Functions serves named transform functions.
type Functions map[string]transformation.Func

func (fs Functions) Transform(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := req.GetFields()[fieldName].GetStringValue()
	fn, ok := fs[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "transformation %q is not served here", name)
	}
	params, err := DecodeParams(req.GetFields()[fieldParams].GetStructValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	r, err := fn(ctx, params)
	if err != nil {
		logging.L().Warn("plugin: transform failed", "transformation", name, "err", err)
		return nil, status.Errorf(codes.Unknown, "transformation %q: %v", name, err)
	}
	rv, err := EncodeResult(r)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{fieldResult: rv}}, nil
}
