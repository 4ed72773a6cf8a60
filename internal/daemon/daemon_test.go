package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/qchat/internal/config"
	"github.com/matheus3301/qchat/internal/lock"
	"github.com/matheus3301/qchat/internal/profile"
	"github.com/matheus3301/qchat/internal/rpc"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
)

// testHome points QCHAT_HOME at a short /tmp path so socket paths stay
// under the 104-char Unix socket limit on macOS.
func testHome(t *testing.T) string {
	t.Helper()
	home, err := os.MkdirTemp("/tmp", "qchat-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(home) })
	t.Setenv(profile.HomeEnv, home)
	return home
}

func startDaemon(t *testing.T, cfg *config.Config) (*Server, *MetricsServer) {
	t.Helper()
	var (
		srv        *Server
		metricsSrv *MetricsServer
	)
	app := fxtest.New(t,
		Module(Params{Profile: "test", Config: cfg, Logger: zap.NewNop()}),
		fx.Populate(&srv, &metricsSrv),
	)
	app.RequireStart()
	t.Cleanup(app.RequireStop)
	return srv, metricsSrv
}

func TestDaemonLifecycle(t *testing.T) {
	testHome(t)
	cfg := config.Default()
	srv, _ := startDaemon(t, cfg)

	if srv.SocketPath() != profile.SocketPath("test") {
		t.Errorf("socket = %q", srv.SocketPath())
	}
	info, err := os.Stat(srv.SocketPath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("socket permission = %o, want 0600", info.Mode().Perm())
	}
	if pid, held := lock.Holder(profile.Dir("test")); !held || pid != os.Getpid() {
		t.Errorf("lock holder = %d, %v", pid, held)
	}

	conn, err := rpc.Dial(srv.SocketPath())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check error = %v", err)
	}
	if health.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health = %v", health.Status)
	}

	sessions := rpc.NewSessionClient(conn)
	st, err := sessions.GetStatus(ctx, &rpc.GetStatusRequest{})
	if err != nil {
		t.Fatalf("GetStatus error = %v", err)
	}
	if st.Profile != "test" || st.Tab != "main" || st.State != "SIGNED_OUT" {
		t.Errorf("status = %+v", st)
	}

	stream, err := sessions.WatchEvents(ctx, &rpc.WatchEventsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	first, err := stream.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if first.Kind != rpc.EventSnapshot || first.State != "SIGNED_OUT" {
		t.Errorf("first event = %+v", first)
	}

	code, err := sessions.SendCode(ctx, &rpc.SendCodeRequest{Phone: "70000001", Name: "Alice"})
	if err != nil {
		t.Fatalf("SendCode error = %v", err)
	}
	if _, err := sessions.Verify(ctx, &rpc.VerifyRequest{Code: code.Code}); err != nil {
		t.Fatalf("Verify error = %v", err)
	}

	messages := rpc.NewMessageClient(conn)
	sent, err := messages.SendMessage(ctx, &rpc.SendMessageRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("SendMessage error = %v", err)
	}
	if sent.Message == nil || sent.Message.FromName != "Alice" {
		t.Errorf("sent = %+v", sent.Message)
	}

	seen := map[string]bool{}
	for !seen["messages_changed"] {
		evt, err := stream.Recv()
		if err != nil {
			t.Fatalf("stream error = %v (seen %v)", err, seen)
		}
		seen[evt.Kind] = true
	}
	if !seen["status_changed"] {
		t.Errorf("no status_changed before messages_changed: %v", seen)
	}

	charts := rpc.NewChartClient(conn)
	_, err = charts.DeleteChart(ctx, &rpc.DeleteChartRequest{ID: "nope"})
	if grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("DeleteChart unknown code = %v", grpcstatus.Code(err))
	}

	snaps, err := charts.WatchCharts(ctx, &rpc.WatchChartsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	initial, err := snaps.Recv()
	if err != nil {
		t.Fatalf("WatchCharts first snapshot error = %v", err)
	}
	if len(initial.Charts) != 0 {
		t.Errorf("initial charts = %+v", initial.Charts)
	}
	created, err := charts.CreateChart(ctx, &rpc.CreateChartRequest{Title: "Sales", Type: "bar", CSV: "a,1\nb,2"})
	if err != nil {
		t.Fatalf("CreateChart error = %v", err)
	}
	next, err := snaps.Recv()
	if err != nil {
		t.Fatalf("WatchCharts update error = %v", err)
	}
	if len(next.Charts) != 1 || next.Charts[0].ID != created.Chart.ID {
		t.Errorf("updated charts = %+v", next.Charts)
	}
}

func TestSecondDaemonRefused(t *testing.T) {
	testHome(t)
	startDaemon(t, config.Default())

	app := fx.New(
		Module(Params{Profile: "test", Config: config.Default(), Logger: zap.NewNop()}),
		fx.NopLogger,
	)
	err := app.Err()
	var held *lock.LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("second daemon err = %v, want LockHeldError", err)
	}
}

func TestMetricsListener(t *testing.T) {
	testHome(t)
	cfg := config.Default()
	cfg.Metrics.Addr = "127.0.0.1:0"
	_, metricsSrv := startDaemon(t, cfg)
	if metricsSrv == nil {
		t.Fatal("metrics server not created")
	}

	base := "http://" + metricsSrv.Addr()
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Status  string   `json:"status"`
		Profile string   `json:"profile"`
		Tabs     []string `json:"tabs"`
		Watchers int      `json:"watchers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if body.Status != "ok" || body.Profile != "test" || len(body.Tabs) != 1 || body.Watchers == 0 {
		t.Errorf("healthz = %+v", body)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(data), "qchat_open_tabs") {
		t.Error("metrics output missing qchat_open_tabs")
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetricsServer("", nil, nil, zap.NewNop())
	if err != nil || m != nil {
		t.Errorf("NewMetricsServer(\"\") = %v, %v", m, err)
	}
	m.Start()
	if err := m.Stop(context.Background()); err != nil {
		t.Error(err)
	}
}

func TestRouterNotFound(t *testing.T) {
	r := NewRouter(nil, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

// TestNewServerCustomSocket verifies NewServer honours Params.SocketPath and
// creates the socket there instead of under the profile directory.
func TestNewServerCustomSocket(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "qchat-sock-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	srv, err := NewServer(Params{Profile: "fxtest", SocketPath: socketPath}, zap.NewNop(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if _, statErr := os.Stat(socketPath); statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}
	srv.Stop(context.Background())
	if _, statErr := os.Stat(socketPath); !os.IsNotExist(statErr) {
		t.Errorf("socket not removed: %v", statErr)
	}
}

func TestNewServerReplacesStaleSocket(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "qchat-sock-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")
	if err := os.WriteFile(socketPath, []byte("stale"), 0600); err != nil {
		t.Fatal(err)
	}

	srv, err := NewServer(Params{Profile: "fxtest", SocketPath: socketPath}, zap.NewNop(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Errorf("mode = %v, want socket", info.Mode())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Stop(ctx)
}
