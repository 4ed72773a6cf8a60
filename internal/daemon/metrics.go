package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer exposes /metrics and /healthz over HTTP.
type MetricsServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewRouter builds the metrics router. /healthz reports the open tabs and the
// number of live bus subscriptions (tab engines, watch streams).
func NewRouter(manager *session.Manager, b *bus.Bus, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"profile":  manager.Profile(),
			"tabs":     manager.Tabs(),
			"watchers": b.Subscribers(),
		})
	})
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Debug("request completed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("latency", time.Since(start)),
					zap.String("request_id", chimw.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// NewMetricsServer binds addr. It returns nil when addr is empty.
func NewMetricsServer(addr string, manager *session.Manager, b *bus.Bus, logger *zap.Logger) (*MetricsServer, error) {
	if addr == "" {
		return nil, nil
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &MetricsServer{
		srv: &http.Server{
			Handler:           NewRouter(manager, b, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: l,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (m *MetricsServer) Addr() string { return m.listener.Addr().String() }

// Start serves until Stop. Safe on a nil receiver.
func (m *MetricsServer) Start() {
	if m == nil {
		return
	}
	m.logger.Info("metrics listener starting", zap.String("addr", m.Addr()))
	go func() {
		if err := m.srv.Serve(m.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics listener error", zap.Error(err))
		}
	}()
}

// Stop shuts the listener down. Safe on a nil receiver.
func (m *MetricsServer) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
