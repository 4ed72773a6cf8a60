package api

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/qchat/internal/blob"
	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/config"
	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/session"
	"github.com/matheus3301/qchat/internal/store"
	"github.com/matheus3301/qchat/internal/verify"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func testManager(t *testing.T) *session.Manager {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "qchat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	blobs, err := blob.Open(filepath.Join(dir, "blobs"), nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Attachments.MissingRetries = 1
	cfg.Attachments.MissingIntervalMS = 1

	m := session.NewManager(session.Options{Profile: "test", Config: cfg, DB: db, Blobs: blobs, Bus: bus.New(), Logger: zap.NewNop()})
	if _, err := m.OpenNamed(session.MainTab); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = m.CloseAll()
		_ = blobs.Close()
		_ = db.Close()
	})
	return m
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{session.ErrNotLoggedIn, codes.FailedPrecondition},
		{session.ErrNoPendingCode, codes.FailedPrecondition},
		{verify.ErrInvalidPhone, codes.InvalidArgument},
		{verify.ErrInvalidCode, codes.InvalidArgument},
		{chart.ErrEmptyData, codes.InvalidArgument},
		{verify.ErrCooldown, codes.ResourceExhausted},
		{fmt.Errorf("save messages: %w", store.ErrQuotaExceeded), codes.ResourceExhausted},
		{chart.ErrNotOwner, codes.PermissionDenied},
		{fmt.Errorf("%w: x", session.ErrTabNotFound), codes.NotFound},
		{chart.ErrNotFound, codes.NotFound},
		{context.Canceled, codes.Canceled},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := codeOf(tt.err); got != tt.want {
			t.Errorf("codeOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}

func TestSessionServiceFlow(t *testing.T) {
	m := testManager(t)
	svc := NewSessionService(m)
	msgSvc := NewMessageService(m)
	ctx := context.Background()

	st, err := svc.GetStatus(ctx, &rpc.GetStatusRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if st.Tab != session.MainTab || st.State != "SIGNED_OUT" || st.Profile != "test" {
		t.Errorf("status = %+v", st)
	}

	_, err = msgSvc.SendMessage(ctx, &rpc.SendMessageRequest{Text: "hi"})
	if grpcstatus.Code(err) != codes.FailedPrecondition {
		t.Errorf("send signed out code = %v", grpcstatus.Code(err))
	}

	code, err := svc.SendCode(ctx, &rpc.SendCodeRequest{Phone: "70000001", Name: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	if code.Provider != "local" || code.Code == "" || code.ExpiresAtMS == 0 {
		t.Errorf("send code = %+v", code)
	}
	if _, err := svc.Verify(ctx, &rpc.VerifyRequest{Code: "x"}); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("bad code = %v", err)
	}
	ver, err := svc.Verify(ctx, &rpc.VerifyRequest{Code: code.Code})
	if err != nil {
		t.Fatal(err)
	}
	if ver.Identity.Phone != "+25670000001" {
		t.Errorf("identity = %+v", ver.Identity)
	}

	sent, err := msgSvc.SendMessage(ctx, &rpc.SendMessageRequest{
		Text:        "hello",
		Attachments: []rpc.Upload{{Name: "n.txt", Type: "text/plain", Data: []byte("note")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	list, _ := msgSvc.ListMessages(ctx, &rpc.ListMessagesRequest{})
	if len(list.Messages) != 1 || list.Messages[0].ID != sent.Message.ID {
		t.Errorf("messages = %+v", list.Messages)
	}

	att, err := msgSvc.GetAttachment(ctx, &rpc.GetAttachmentRequest{ID: sent.Message.Attachments[0].ID})
	if err != nil {
		t.Fatal(err)
	}
	if att.Outcome != "found" || string(att.Data) != "note" || att.Name != "n.txt" {
		t.Errorf("attachment = %+v", att)
	}
	missing, err := msgSvc.GetAttachment(ctx, &rpc.GetAttachmentRequest{ID: "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if missing.Outcome != "unavailable" || missing.Error == "" {
		t.Errorf("missing = %+v", missing)
	}

	pres, _ := svc.ListPresence(ctx, &rpc.ListPresenceRequest{})
	if len(pres.Entries) != 1 {
		t.Errorf("presence = %+v", pres.Entries)
	}

	focus, _ := svc.SetFocus(ctx, &rpc.SetFocusRequest{Focused: false})
	if focus.Unread != 0 || focus.Title != "QuickChat — Phone Login Demo" {
		t.Errorf("focus = %+v", focus)
	}

	if _, err := svc.Logout(ctx, &rpc.LogoutRequest{}); err != nil {
		t.Fatal(err)
	}
	st, _ = svc.GetStatus(ctx, &rpc.GetStatusRequest{})
	if st.State != "SIGNED_OUT" || st.Identity != nil {
		t.Errorf("after logout = %+v", st)
	}
}

func TestTabs(t *testing.T) {
	m := testManager(t)
	svc := NewSessionService(m)
	ctx := context.Background()

	opened, err := svc.OpenTab(ctx, &rpc.OpenTabRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.OpenTab(ctx, &rpc.OpenTabRequest{Name: session.MainTab}); grpcstatus.Code(err) != codes.AlreadyExists {
		t.Errorf("duplicate open = %v", err)
	}
	for _, name := range []string{"main.x", "a b", "tab.", fmt.Sprintf("%065d", 0)} {
		if _, err := svc.OpenTab(ctx, &rpc.OpenTabRequest{Name: name}); grpcstatus.Code(err) != codes.InvalidArgument {
			t.Errorf("OpenTab(%q) = %v, want InvalidArgument", name, err)
		}
	}
	st, _ := svc.GetStatus(ctx, &rpc.GetStatusRequest{Tab: opened.Tab})
	if len(st.Tabs) != 2 {
		t.Errorf("tabs = %v", st.Tabs)
	}
	if _, err := svc.CloseTab(ctx, &rpc.CloseTabRequest{Tab: opened.Tab}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetStatus(ctx, &rpc.GetStatusRequest{Tab: opened.Tab}); grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("closed tab status = %v", err)
	}
}

func TestChartService(t *testing.T) {
	m := testManager(t)
	svc := NewChartService(m)
	ctx := context.Background()

	if _, err := svc.CreateChart(ctx, &rpc.CreateChartRequest{Type: "bar", CSV: ""}); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("empty csv = %v", err)
	}
	created, err := svc.CreateChart(ctx, &rpc.CreateChartRequest{Title: "Q1", Type: "line", CSV: "a,1\nb,2"})
	if err != nil {
		t.Fatal(err)
	}
	list, _ := svc.ListCharts(ctx, &rpc.ListChartsRequest{})
	if len(list.Charts) != 1 {
		t.Errorf("charts = %+v", list.Charts)
	}
	exp, err := svc.ExportChart(ctx, &rpc.ExportChartRequest{ID: created.Chart.ID})
	if err != nil {
		t.Fatal(err)
	}
	if exp.FileName != "Q1.png" || len(exp.PNG) == 0 {
		t.Errorf("export = %s (%d bytes)", exp.FileName, len(exp.PNG))
	}
	if _, err := svc.DeleteChart(ctx, &rpc.DeleteChartRequest{ID: created.Chart.ID}); grpcstatus.Code(err) != codes.PermissionDenied {
		t.Errorf("anonymous delete = %v", err)
	}
	if _, err := svc.ExportChart(ctx, &rpc.ExportChartRequest{ID: "nope"}); grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("export unknown = %v", err)
	}
}

func TestCancelLogin(t *testing.T) {
	m := testManager(t)
	svc := NewSessionService(m)
	ctx := context.Background()

	if _, err := svc.SendCode(ctx, &rpc.SendCodeRequest{Phone: "70000002"}); err != nil {
		t.Fatal(err)
	}
	st, _ := svc.GetStatus(ctx, &rpc.GetStatusRequest{})
	if st.State != "AWAITING_CODE" {
		t.Fatalf("state = %s", st.State)
	}
	if _, err := svc.CancelLogin(ctx, &rpc.CancelLoginRequest{}); err != nil {
		t.Fatal(err)
	}
	st, _ = svc.GetStatus(ctx, &rpc.GetStatusRequest{})
	if st.State != "SIGNED_OUT" {
		t.Errorf("state after cancel = %s", st.State)
	}
	if _, err := svc.Verify(ctx, &rpc.VerifyRequest{Code: "123456"}); grpcstatus.Code(err) != codes.FailedPrecondition {
		t.Errorf("verify after cancel = %v", err)
	}
}

// serverStream collects what a server-streaming handler sends.
type serverStream[T any] struct {
	grpc.ServerStream
	ctx  context.Context
	sent chan *T
}

func newServerStream[T any](ctx context.Context) *serverStream[T] {
	return &serverStream[T]{ctx: ctx, sent: make(chan *T, 16)}
}

func (s *serverStream[T]) Context() context.Context { return s.ctx }

func (s *serverStream[T]) Send(m *T) error {
	s.sent <- m
	return nil
}

func TestWatchEndsWhenTabCloses(t *testing.T) {
	m := testManager(t)
	sessions := NewSessionService(m)
	charts := NewChartService(m)
	ctx := context.Background()

	if _, err := sessions.OpenTab(ctx, &rpc.OpenTabRequest{Name: "side"}); err != nil {
		t.Fatal(err)
	}

	events := newServerStream[rpc.Event](ctx)
	eventsDone := make(chan error, 1)
	go func() { eventsDone <- sessions.WatchEvents(&rpc.WatchEventsRequest{Tab: "side"}, events) }()

	lists := newServerStream[rpc.ListChartsResponse](ctx)
	chartsDone := make(chan error, 1)
	go func() { chartsDone <- charts.WatchCharts(&rpc.WatchChartsRequest{Tab: "side"}, lists) }()

	select {
	case ev := <-events.sent:
		if ev.Kind != rpc.EventSnapshot {
			t.Errorf("first event = %q, want snapshot", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot")
	}
	select {
	case <-lists.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no chart list")
	}

	if _, err := sessions.CloseTab(ctx, &rpc.CloseTabRequest{Tab: "side"}); err != nil {
		t.Fatal(err)
	}
	for name, done := range map[string]chan error{"WatchEvents": eventsDone, "WatchCharts": chartsDone} {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("%s returned %v", name, err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("%s still open after CloseTab", name)
		}
	}
}
