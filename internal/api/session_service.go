package api

import (
	"context"
	"time"

	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/session"
	"github.com/matheus3301/qchat/internal/status"
	intsync "github.com/matheus3301/qchat/internal/sync"
	"google.golang.org/grpc"
)

var _ rpc.SessionServer = (*SessionService)(nil)

// SessionService implements qchat.v1.SessionService.
type SessionService struct {
	manager   *session.Manager
	startedAt time.Time
}

// NewSessionService creates a new session service.
func NewSessionService(m *session.Manager) *SessionService {
	return &SessionService{manager: m, startedAt: time.Now()}
}

func (s *SessionService) tab(id string) (*session.Session, error) {
	t, err := s.manager.Get(tabID(id))
	if err != nil {
		return nil, toStatus(err)
	}
	return t, nil
}

func (s *SessionService) OpenTab(_ context.Context, req *rpc.OpenTabRequest) (*rpc.OpenTabResponse, error) {
	var (
		t   *session.Session
		err error
	)
	if req.Name != "" {
		t, err = s.manager.OpenNamed(req.Name)
	} else {
		t, err = s.manager.Open()
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.OpenTabResponse{Tab: t.ID()}, nil
}

func (s *SessionService) CloseTab(_ context.Context, req *rpc.CloseTabRequest) (*rpc.CloseTabResponse, error) {
	if err := s.manager.Close(tabID(req.Tab)); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.CloseTabResponse{}, nil
}

func (s *SessionService) GetStatus(_ context.Context, req *rpc.GetStatusRequest) (*rpc.Status, error) {
	t, err := s.tab(req.Tab)
	if err != nil {
		return nil, err
	}
	info := t.Info()
	return &rpc.Status{
		Profile:  s.manager.Profile(),
		Tab:      info.Tab,
		State:    string(info.State),
		Identity: info.Identity,
		Unread:   info.Unread,
		Focused:  info.Focused,
		Title:    info.Title,
		Messages: info.Messages,
		UptimeMS: time.Since(s.startedAt).Milliseconds(),
		Tabs:     s.manager.Tabs(),
	}, nil
}

func (s *SessionService) SendCode(ctx context.Context, req *rpc.SendCodeRequest) (*rpc.SendCodeResponse, error) {
	t, err := s.tab(req.Tab)
	if err != nil {
		return nil, err
	}
	ch, err := t.SendCode(ctx, req.CountryCode, req.Phone, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &rpc.SendCodeResponse{Phone: ch.Phone, Provider: ch.Provider, Code: ch.Code}
	if !ch.Expires.IsZero() {
		resp.ExpiresAtMS = ch.Expires.UnixMilli()
	}
	return resp, nil
}

func (s *SessionService) Verify(ctx context.Context, req *rpc.VerifyRequest) (*rpc.VerifyResponse, error) {
	t, err := s.tab(req.Tab)
	if err != nil {
		return nil, err
	}
	id, err := t.Verify(ctx, req.Code)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.VerifyResponse{Identity: id}, nil
}

func (s *SessionService) CancelLogin(_ context.Context, req *rpc.CancelLoginRequest) (*rpc.CancelLoginResponse, error) {
	t, err := s.tab(req.Tab)
	if err != nil {
		return nil, err
	}
	t.CancelLogin()
	return &rpc.CancelLoginResponse{}, nil
}

func (s *SessionService) Logout(_ context.Context, req *rpc.LogoutRequest) (*rpc.LogoutResponse, error) {
	t, err := s.tab(req.Tab)
	if err != nil {
		return nil, err
	}
	if err := t.Logout(); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.LogoutResponse{}, nil
}

func (s *SessionService) SetFocus(_ context.Context, req *rpc.SetFocusRequest) (*rpc.SetFocusResponse, error) {
	t, err := s.tab(req.Tab)
	if err != nil {
		return nil, err
	}
	t.SetFocus(req.Focused)
	info := t.Info()
	return &rpc.SetFocusResponse{Unread: info.Unread, Title: info.Title}, nil
}

func (s *SessionService) ListPresence(_ context.Context, req *rpc.ListPresenceRequest) (*rpc.ListPresenceResponse, error) {
	t, err := s.tab(req.Tab)
	if err != nil {
		return nil, err
	}
	return &rpc.ListPresenceResponse{Entries: t.Presence()}, nil
}

func (s *SessionService) WatchEvents(req *rpc.WatchEventsRequest, stream grpc.ServerStreamingServer[rpc.Event]) error {
	t, err := s.tab(req.Tab)
	if err != nil {
		return err
	}
	ch, unsub := t.Watch(64)
	defer unsub()

	info := t.Info()
	if err := stream.Send(&rpc.Event{
		Tab:    t.ID(),
		Kind:   rpc.EventSnapshot,
		AtMS:   time.Now().UnixMilli(),
		Unread: info.Unread,
		Title:  info.Title,
		State:  string(info.State),
	}); err != nil {
		return err
	}

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(toEvent(t.ID(), evt)); err != nil {
				return err
			}
		case <-t.Done():
			return nil
		case <-stream.Context().Done():
			return nil
		}
	}
}

func toEvent(tab string, evt bus.Event) *rpc.Event {
	out := &rpc.Event{
		Tab:  tab,
		Kind: evt.Suffix(),
		AtMS: evt.Timestamp.UnixMilli(),
	}
	switch p := evt.Payload.(type) {
	case intsync.Attention:
		out.Unread, out.Title, out.Flash = p.Unread, p.Title, p.Flash
	case status.StatusChange:
		out.State = string(p.To)
	}
	return out
}
