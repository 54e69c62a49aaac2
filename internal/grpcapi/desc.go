// Package grpcapi serves the scanner operations over gRPC. Messages are
// google.protobuf.Struct values carrying the same fields as the JSON API,
// so scanners need no generated code beyond the well-known types.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "checkin.v1.ScanService"

	methodGetPending   = "/" + ServiceName + "/GetPending"
	methodCompleteItem = "/" + ServiceName + "/CompleteItem"
)

// ScanServer is the server side of checkin.v1.ScanService.
type ScanServer interface {
	GetPending(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var scanServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScanServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetPending", Handler: unaryHandler(methodGetPending, ScanServer.GetPending)},
		{MethodName: "CompleteItem", Handler: unaryHandler(methodCompleteItem, ScanServer.CompleteItem)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkin/v1/scan.proto",
}

func RegisterScanServer(s grpc.ServiceRegistrar, srv ScanServer) {
	s.RegisterService(&scanServiceDesc, srv)
}

type unaryMethod func(ScanServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ScanServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ScanServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ScanClient calls checkin.v1.ScanService.
type ScanClient struct {
	cc grpc.ClientConnInterface
}

func NewScanClient(cc grpc.ClientConnInterface) *ScanClient {
	return &ScanClient{cc: cc}
}

func (c *ScanClient) GetPending(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetPending, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ScanClient) CompleteItem(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodCompleteItem, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
