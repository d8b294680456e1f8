package grpcledger

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"qsb.qbck.io/did/ledger"
)

// Server exposes a ledger.Gateway over the Gateway gRPC service.
type Server struct {
	UnimplementedGatewayServer
	Gateway ledger.Gateway
}

func (s *Server) GenesisHash(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Gateway == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing gateway")
	}
	h, err := s.Gateway.GenesisHash(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(h), nil
}

func (s *Server) FreeBalance(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	if s == nil || s.Gateway == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing gateway")
	}
	balance, err := s.Gateway.FreeBalance(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.UInt64(balance), nil
}

func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.Gateway == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing gateway")
	}
	call, err := callFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	receipt, err := s.Gateway.Submit(ctx, call)
	if err != nil {
		return nil, mapErr(err)
	}
	return receiptToStruct(receipt)
}

func (s *Server) Resolve(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s == nil || s.Gateway == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing gateway")
	}
	details, err := s.Gateway.Resolve(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return structpb.NewStruct(details)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
