package client

import (
	"context"
	"fmt"

	"github.com/matheus3301/qchat/internal/rpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client wraps the gRPC connection to a profile daemon.
type Client struct {
	conn    *grpc.ClientConn
	Session *rpc.SessionClient
	Message *rpc.MessageClient
	Chart   *rpc.ChartClient
	Health  healthpb.HealthClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	conn, err := rpc.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		Session: rpc.NewSessionClient(conn),
		Message: rpc.NewMessageClient(conn),
		Chart:   rpc.NewChartClient(conn),
		Health:  healthpb.NewHealthClient(conn),
	}, nil
}

// Ready reports whether the daemon answers its health check with SERVING.
func (c *Client) Ready(ctx context.Context) bool {
	resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
