package api

import (
	"context"

	"github.com/matheus3301/qchat/internal/blob"
	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/session"
	"github.com/matheus3301/qchat/internal/store"
)

var _ rpc.MessageServer = (*MessageService)(nil)

// MessageService implements qchat.v1.MessageService.
type MessageService struct {
	manager *session.Manager
}

// NewMessageService creates a new message service over the tab manager.
func NewMessageService(m *session.Manager) *MessageService {
	return &MessageService{manager: m}
}

func (s *MessageService) ListMessages(_ context.Context, req *rpc.ListMessagesRequest) (*rpc.ListMessagesResponse, error) {
	t, err := s.manager.Get(tabID(req.Tab))
	if err != nil {
		return nil, toStatus(err)
	}
	msgs := t.Messages()
	if msgs == nil {
		msgs = []store.Message{}
	}
	return &rpc.ListMessagesResponse{Messages: msgs}, nil
}

func (s *MessageService) SendMessage(ctx context.Context, req *rpc.SendMessageRequest) (*rpc.SendMessageResponse, error) {
	t, err := s.manager.Get(tabID(req.Tab))
	if err != nil {
		return nil, toStatus(err)
	}
	uploads := make([]session.Upload, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		uploads = append(uploads, session.Upload{Name: a.Name, Type: a.Type, Data: a.Data})
	}
	msg, err := t.Send(ctx, req.Text, uploads)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.SendMessageResponse{Message: msg}, nil
}

// GetAttachment waits for the attachment with the tab's retry policy. A
// missing or unreadable attachment is reported in the outcome, not as an error.
func (s *MessageService) GetAttachment(ctx context.Context, req *rpc.GetAttachmentRequest) (*rpc.GetAttachmentResponse, error) {
	t, err := s.manager.Get(tabID(req.Tab))
	if err != nil {
		return nil, toStatus(err)
	}
	res := t.Attachment(ctx, req.ID)
	resp := &rpc.GetAttachmentResponse{Outcome: res.Outcome.String(), Attempts: res.Attempts}
	if res.Outcome == blob.Found {
		resp.Name = res.Record.Name
		resp.Type = res.Record.Type
		resp.Size = res.Record.Size
		resp.Data = res.Record.Payload
	} else if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp, nil
}
