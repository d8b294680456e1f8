package grpcledger

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GatewayServer is the server API for the ledger Gateway gRPC service.
//
// We intentionally use protobuf well-known types so this package does not
// require a protoc/codegen toolchain.
//
// Proto definition: gateway.proto.
type GatewayServer interface {
	GenesisHash(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	FreeBalance(context.Context, *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resolve(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// UnimplementedGatewayServer can be embedded to have forward compatible implementations.
type UnimplementedGatewayServer struct{}

func (UnimplementedGatewayServer) GenesisHash(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GenesisHash not implemented")
}
func (UnimplementedGatewayServer) FreeBalance(context.Context, *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method FreeBalance not implemented")
}
func (UnimplementedGatewayServer) Submit(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Submit not implemented")
}
func (UnimplementedGatewayServer) Resolve(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Resolve not implemented")
}

// RegisterGatewayServer registers the Gateway service on a gRPC server.
func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&Gateway_ServiceDesc, srv)
}

// GatewayClient is the client API for the ledger Gateway gRPC service.
type GatewayClient interface {
	GenesisHash(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	FreeBalance(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error)
	Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Resolve(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type gatewayClient struct{ cc grpc.ClientConnInterface }

func NewGatewayClient(cc grpc.ClientConnInterface) GatewayClient { return &gatewayClient{cc: cc} }

func (c *gatewayClient) GenesisHash(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/qsb.did.ledger.v1.Gateway/GenesisHash", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) FreeBalance(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error) {
	out := new(wrapperspb.UInt64Value)
	err := c.cc.Invoke(ctx, "/qsb.did.ledger.v1.Gateway/FreeBalance", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/qsb.did.ledger.v1.Gateway/Submit", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) Resolve(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/qsb.did.ledger.v1.Gateway/Resolve", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func _Gateway_GenesisHash_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).GenesisHash(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/qsb.did.ledger.v1.Gateway/GenesisHash"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GatewayServer).GenesisHash(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Gateway_FreeBalance_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).FreeBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/qsb.did.ledger.v1.Gateway/FreeBalance"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GatewayServer).FreeBalance(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Gateway_Submit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/qsb.did.ledger.v1.Gateway/Submit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GatewayServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Gateway_Resolve_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/qsb.did.ledger.v1.Gateway/Resolve"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GatewayServer).Resolve(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Gateway_ServiceDesc is the grpc.ServiceDesc for the Gateway service.
var Gateway_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "qsb.did.ledger.v1.Gateway",
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenesisHash", Handler: _Gateway_GenesisHash_Handler},
		{MethodName: "FreeBalance", Handler: _Gateway_FreeBalance_Handler},
		{MethodName: "Submit", Handler: _Gateway_Submit_Handler},
		{MethodName: "Resolve", Handler: _Gateway_Resolve_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gateway.proto",
}
