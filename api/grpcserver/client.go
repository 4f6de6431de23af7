package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"seglog/wal"
)

// Client is a thin typed wrapper over a gRPC connection to the WAL
// service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Append sends data as one record and returns the position the server
// stored it at.
func (c *Client) Append(ctx context.Context, data []byte) (wal.ChunkPosition, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Append", wrapperspb.Bytes(data), out); err != nil {
		return wal.ChunkPosition{}, err
	}
	return wal.DecodeChunkPosition(out.GetValue())
}

// Read fetches the record stored at pos.
func (c *Client) Read(ctx context.Context, pos wal.ChunkPosition) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Read", wrapperspb.Bytes(pos.Encode()), out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Sync asks the server for an fsync barrier.
func (c *Client) Sync(ctx context.Context) error {
	return c.cc.Invoke(ctx, "/"+serviceName+"/Sync", &emptypb.Empty{}, new(emptypb.Empty))
}
