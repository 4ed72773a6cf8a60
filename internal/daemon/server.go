package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/matheus3301/qchat/internal/api"
	"github.com/matheus3301/qchat/internal/metrics"
	"github.com/matheus3301/qchat/internal/profile"
	"github.com/matheus3301/qchat/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server is the daemon's gRPC endpoint on the profile's Unix socket.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	services []string
	lis      net.Listener
	path     string
	logger   *zap.Logger
}

// NewServer binds the socket and registers the qchat services. A socket file
// left by a dead daemon is replaced; the profile lock guarantees it is stale.
func NewServer(
	p Params,
	logger *zap.Logger,
	sessionSvc *api.SessionService,
	messageSvc *api.MessageService,
	chartSvc *api.ChartService,
) (*Server, error) {
	path := p.SocketPath
	if path == "" {
		path = profile.SocketPath(p.Profile)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = lis.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryLogger(logger)),
		grpc.ChainStreamInterceptor(streamLogger(logger)),
	)
	rpc.RegisterSessionServer(srv, sessionSvc)
	rpc.RegisterMessageServer(srv, messageSvc)
	rpc.RegisterChartServer(srv, chartSvc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	services := []string{
		"",
		rpc.SessionServiceName,
		rpc.MessageServiceName,
		rpc.ChartServiceName,
	}
	for _, name := range services {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return &Server{
		grpc:     srv,
		health:   hs,
		services: services,
		lis:      lis,
		path:     path,
		logger:   logger,
	}, nil
}

// SocketPath returns the bound socket path.
func (s *Server) SocketPath() string { return s.path }

// Start reports SERVING and serves in the background until Stop.
func (s *Server) Start() {
	s.logger.Info("gRPC server starting", zap.String("socket", s.path))
	for _, name := range s.services {
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	go func() {
		if err := s.grpc.Serve(s.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("gRPC server error", zap.Error(err))
		}
	}()
}

// Stop drains in-flight calls. Open streams are cut when ctx ends first.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, closing connections")
		s.grpc.Stop()
		<-done
	}
	_ = os.Remove(s.path)
}

func observe(logger *zap.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	metrics.RPCRequests.WithLabelValues(method, code.String()).Inc()
	logger.Debug("rpc completed",
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(logger, info.FullMethod, start, err)
		return resp, err
	}
}

func streamLogger(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(logger, info.FullMethod, start, err)
		return err
	}
}
