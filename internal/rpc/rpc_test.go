package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/qchat/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
)

func TestCodecStruct(t *testing.T) {
	var c Codec
	data, err := c.Marshal(&SendCodeRequest{Tab: "main", Phone: "700"})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != `{"tab":"main","phone":"700"}` {
		t.Errorf("Marshal() = %s", got)
	}
	var back SendCodeRequest
	if err := c.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Phone != "700" {
		t.Errorf("back = %+v", back)
	}
	if err := c.Unmarshal([]byte("{"), &back); err == nil {
		t.Error("expected decode error")
	}
}

func TestCodecProto(t *testing.T) {
	var c Codec
	data, err := c.Marshal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "SERVING") {
		t.Errorf("protojson output = %s", data)
	}
	var back healthpb.HealthCheckResponse
	if err := c.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", back.Status)
	}
}

type fakeSession struct {
	events []*Event
}

func (f *fakeSession) OpenTab(_ context.Context, in *OpenTabRequest) (*OpenTabResponse, error) {
	return &OpenTabResponse{Tab: "t-" + in.Name}, nil
}
func (f *fakeSession) CloseTab(context.Context, *CloseTabRequest) (*CloseTabResponse, error) {
	return nil, grpcstatus.Error(codes.NotFound, "no such tab")
}
func (f *fakeSession) GetStatus(_ context.Context, in *GetStatusRequest) (*Status, error) {
	return &Status{Tab: in.Tab, State: "SIGNED_IN", Identity: &store.Identity{Phone: "+1", Name: "A"}}, nil
}
func (f *fakeSession) SendCode(context.Context, *SendCodeRequest) (*SendCodeResponse, error) {
	return &SendCodeResponse{}, nil
}
func (f *fakeSession) Verify(context.Context, *VerifyRequest) (*VerifyResponse, error) {
	return &VerifyResponse{}, nil
}
func (f *fakeSession) CancelLogin(context.Context, *CancelLoginRequest) (*CancelLoginResponse, error) {
	return &CancelLoginResponse{}, nil
}
func (f *fakeSession) Logout(context.Context, *LogoutRequest) (*LogoutResponse, error) {
	return &LogoutResponse{}, nil
}
func (f *fakeSession) SetFocus(context.Context, *SetFocusRequest) (*SetFocusResponse, error) {
	return &SetFocusResponse{}, nil
}
func (f *fakeSession) ListPresence(context.Context, *ListPresenceRequest) (*ListPresenceResponse, error) {
	return &ListPresenceResponse{}, nil
}
func (f *fakeSession) WatchEvents(in *WatchEventsRequest, stream grpc.ServerStreamingServer[Event]) error {
	for _, e := range f.events {
		e.Tab = in.Tab
		if err := stream.Send(e); err != nil {
			return err
		}
	}
	return nil
}

func startServer(t *testing.T, srv SessionServer) *grpc.ClientConn {
	t.Helper()
	tmpDir, err := os.MkdirTemp("/tmp", "qchat-rpc-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	socketPath := filepath.Join(tmpDir, "d.sock")

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	grpcSrv := grpc.NewServer()
	RegisterSessionServer(grpcSrv, srv)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	go func() { _ = grpcSrv.Serve(listener) }()
	t.Cleanup(grpcSrv.Stop)

	conn, err := Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestUnaryOverSocket(t *testing.T) {
	conn := startServer(t, &fakeSession{})
	client := NewSessionClient(conn)
	ctx := context.Background()

	resp, err := client.OpenTab(ctx, &OpenTabRequest{Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Tab != "t-x" {
		t.Errorf("tab = %q", resp.Tab)
	}

	st, err := client.GetStatus(ctx, &GetStatusRequest{Tab: "main"})
	if err != nil {
		t.Fatal(err)
	}
	if st.Tab != "main" || st.Identity == nil || st.Identity.Phone != "+1" {
		t.Errorf("status = %+v", st)
	}

	_, err = client.CloseTab(ctx, &CloseTabRequest{Tab: "nope"})
	if grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("CloseTab code = %v", grpcstatus.Code(err))
	}
}

func TestStreamOverSocket(t *testing.T) {
	conn := startServer(t, &fakeSession{events: []*Event{{Kind: "messages_changed"}, {Kind: "attention", Unread: 2}}})
	stream, err := NewSessionClient(conn).WatchEvents(context.Background(), &WatchEventsRequest{Tab: "main"})
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if evt.Tab != "main" {
			t.Errorf("tab = %q", evt.Tab)
		}
		kinds = append(kinds, evt.Kind)
	}
	if strings.Join(kinds, ",") != "messages_changed,attention" {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestHealthOverJSON(t *testing.T) {
	conn := startServer(t, &fakeSession{})
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health = %v", resp.Status)
	}
}
