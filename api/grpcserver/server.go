// Package grpcserver exposes the log service over gRPC. Requests and
// responses are protobuf well-known types: records and binary-encoded
// positions travel as BytesValue, so the surface needs no generated stubs.
package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"seglog/service"
	"seglog/wal"
)

const serviceName = "seglog.v1.WAL"

// WALServer is the server-side contract of the seglog.v1.WAL service.
type WALServer interface {
	Append(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Read(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Sync(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// Server adapts LogService to gRPC.
type Server struct {
	svc *service.LogService
}

func NewServer(svc *service.LogService) *Server {
	return &Server{svc: svc}
}

// Register attaches the WAL service to a gRPC server.
func Register(s *grpc.Server, srv WALServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Append writes the request bytes as one record and returns the encoded
// position of its first chunk.
func (s *Server) Append(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	pos, err := s.svc.Append(ctx, req.GetValue())
	if err != nil {
		return nil, statusFromWALError(err)
	}
	return wrapperspb.Bytes(pos.Encode()), nil
}

// Read reassembles the record at the encoded position in the request.
func (s *Server) Read(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	pos, err := wal.DecodeChunkPosition(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	data, err := s.svc.Read(ctx, pos)
	if err != nil {
		return nil, statusFromWALError(err)
	}
	return wrapperspb.Bytes(data), nil
}

// Sync flushes the log to stable storage.
func (s *Server) Sync(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.svc.Sync(ctx); err != nil {
		return nil, statusFromWALError(err)
	}
	return &emptypb.Empty{}, nil
}

func statusFromWALError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wal.ErrSegmentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, wal.ErrOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, wal.ErrCorrupted):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, wal.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
