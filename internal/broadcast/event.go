// Package broadcast carries sync events between tabs of one profile.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/qchat/internal/store"
)

// ChannelName is the broadcast channel every tab joins.
const ChannelName = "quickchat_channel_v1"

// Wire type tags.
const (
	TypeMessage      = "message"
	TypePresence     = "presence"
	TypeRequestState = "request-state"
	TypeSyncMessages = "sync-messages"
)

// ErrUnknownType is returned when decoding an envelope with an unrecognised tag.
var ErrUnknownType = errors.New("broadcast: unknown event type")

// Event is one of MessageEvent, PresenceEvent, RequestStateEvent or SyncMessagesEvent.
type Event interface {
	Type() string
	isEvent()
}

// MessageEvent announces a single new message.
type MessageEvent struct {
	Message store.Message
}

// PresenceEvent carries the sender's whole presence map.
type PresenceEvent struct {
	Presence store.Presence
}

// RequestStateEvent asks every listener to reply with its state.
type RequestStateEvent struct{}

// SyncMessagesEvent carries the sender's whole message log.
type SyncMessagesEvent struct {
	Messages []store.Message
}

func (MessageEvent) Type() string      { return TypeMessage }
func (PresenceEvent) Type() string     { return TypePresence }
func (RequestStateEvent) Type() string { return TypeRequestState }
func (SyncMessagesEvent) Type() string { return TypeSyncMessages }

func (MessageEvent) isEvent()      {}
func (PresenceEvent) isEvent()     {}
func (RequestStateEvent) isEvent() {}
func (SyncMessagesEvent) isEvent() {}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serialises evt as a {"type","payload"} envelope.
func Encode(evt Event) ([]byte, error) {
	var payload any
	switch e := evt.(type) {
	case MessageEvent:
		payload = e.Message
	case PresenceEvent:
		p := e.Presence
		if p == nil {
			p = store.Presence{}
		}
		payload = p
	case RequestStateEvent:
		return json.Marshal(envelope{Type: TypeRequestState})
	case SyncMessagesEvent:
		msgs := e.Messages
		if msgs == nil {
			msgs = []store.Message{}
		}
		payload = msgs
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, evt)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", evt.Type(), err)
	}
	return json.Marshal(envelope{Type: evt.Type(), Payload: raw})
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeMessage:
		var m store.Message
		if err := unmarshalPayload(env.Payload, &m); err != nil {
			return nil, err
		}
		if m.ID == "" {
			return nil, fmt.Errorf("decode message: missing id")
		}
		return MessageEvent{Message: m}, nil
	case TypePresence:
		p := store.Presence{}
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p == nil {
			p = store.Presence{}
		}
		return PresenceEvent{Presence: p}, nil
	case TypeRequestState:
		return RequestStateEvent{}, nil
	case TypeSyncMessages:
		var msgs []store.Message
		if err := unmarshalPayload(env.Payload, &msgs); err != nil {
			return nil, err
		}
		return SyncMessagesEvent{Messages: msgs}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrUnknownType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
