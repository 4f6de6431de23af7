package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"seglog/service"
	"seglog/wal"
)

func dialTestServer(t *testing.T) *Client {
	t.Helper()

	w, err := wal.Open(wal.Options{DirPath: t.TempDir(), SegmentSize: 1 << 20})
	require.NoError(t, err)
	svc := service.NewLogService(zerolog.Nop(), w, nil, nil, service.NewMetrics(prometheus.NewRegistry()))
	t.Cleanup(func() { _ = svc.Close() })

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, NewServer(svc))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn)
}

func TestServer_AppendReadSync(t *testing.T) {
	client := dialTestServer(t)
	ctx := context.Background()

	pos, err := client.Append(ctx, []byte("over the wire"))
	require.NoError(t, err)
	require.Equal(t, uint32(1), pos.SegmentID)

	got, err := client.Read(ctx, pos)
	require.NoError(t, err)
	require.Equal(t, []byte("over the wire"), got)

	require.NoError(t, client.Sync(ctx))
}

func TestServer_ReadUnknownSegment(t *testing.T) {
	client := dialTestServer(t)
	ctx := context.Background()

	_, err := client.Append(ctx, []byte("x"))
	require.NoError(t, err)

	_, err = client.Read(ctx, wal.ChunkPosition{SegmentID: 99})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_ReadOutOfRange(t *testing.T) {
	client := dialTestServer(t)
	ctx := context.Background()

	_, err := client.Append(ctx, []byte("x"))
	require.NoError(t, err)

	_, err = client.Read(ctx, wal.ChunkPosition{SegmentID: 1, BlockNumber: 12})
	require.Equal(t, codes.OutOfRange, status.Code(err))
}
