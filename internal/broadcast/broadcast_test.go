package broadcast

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/store"
)

func testLocal(t *testing.T, db *store.DB, b *bus.Bus, origin string) *store.Local {
	t.Helper()
	return store.NewLocal(db, b, origin, 0, nil)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEncodeWireFormat(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		evt  Event
		want string
	}{
		{"request-state", RequestStateEvent{}, `{"type":"request-state"}`},
		{"empty presence", PresenceEvent{}, `{"type":"presence","payload":{}}`},
		{"empty sync", SyncMessagesEvent{}, `{"type":"sync-messages","payload":[]}`},
		{"message", MessageEvent{Message: store.Message{ID: "m1", From: "+1", FromName: "A", Text: "hi", TS: ts, Attachments: []store.AttachmentRef{}}},
			`{"type":"message","payload":{"id":"m1","from":"+1","fromName":"A","text":"hi","ts":"2024-05-01T12:00:00Z","attachments":[]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.evt)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode = %s\nwant     %s", got, tt.want)
			}
		})
	}
}

func TestDecodeKinds(t *testing.T) {
	presence := store.Presence{"+1": {Phone: "+1", Name: "A", LastSeen: 5, Color: "c"}}
	data, _ := Encode(PresenceEvent{Presence: presence})
	evt, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	pe, ok := evt.(PresenceEvent)
	if !ok {
		t.Fatalf("got %T, want PresenceEvent", evt)
	}
	if pe.Presence["+1"] != presence["+1"] {
		t.Errorf("presence = %+v", pe.Presence)
	}

	data, _ = Encode(SyncMessagesEvent{Messages: []store.Message{{ID: "a"}, {ID: "b"}}})
	evt, err = Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if sm := evt.(SyncMessagesEvent); len(sm.Messages) != 2 {
		t.Errorf("messages = %+v", sm.Messages)
	}

	evt, err = Decode([]byte(`{"type":"request-state"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := evt.(RequestStateEvent); !ok {
		t.Errorf("got %T", evt)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		unknown bool
	}{
		{"not json", `nope`, false},
		{"no type", `{"payload":1}`, true},
		{"unknown type", `{"type":"typing"}`, true},
		{"message without id", `{"type":"message","payload":{"text":"x"}}`, false},
		{"bad payload", `{"type":"sync-messages","payload":{"id":1}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrUnknownType) != tt.unknown {
				t.Errorf("errors.Is(ErrUnknownType) = %v, err = %v", !tt.unknown, err)
			}
		})
	}
}

func TestDecodeAcceptsForeignEnvelope(t *testing.T) {
	// Extra fields from other endpoints are ignored.
	raw := map[string]any{
		"type":    "message",
		"payload": map[string]any{"id": "x1", "from": "+2", "text": "yo", "ts": "2024-01-01T00:00:00.000Z", "extra": true},
	}
	data, _ := json.Marshal(raw)
	evt, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if m := evt.(MessageEvent).Message; m.ID != "x1" || m.Text != "yo" {
		t.Errorf("message = %+v", m)
	}
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func expectNone(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case e := <-ch:
		t.Errorf("unexpected event %#v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusChannelSkipsOwnPosts(t *testing.T) {
	b := bus.New()
	a := NewBusChannel(b, ChannelName, "tab-a", nil)
	c := NewBusChannel(b, ChannelName, "tab-b", nil)
	defer a.Close()
	defer c.Close()

	if err := a.Post(RequestStateEvent{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := recv(t, c.Events()).(RequestStateEvent); !ok {
		t.Error("expected request-state on sibling")
	}
	expectNone(t, a.Events())
}

func TestBusChannelIsolatedByName(t *testing.T) {
	b := bus.New()
	a := NewBusChannel(b, ChannelName, "tab-a", nil)
	other := NewBusChannel(b, ChannelName+"_other", "tab-b", nil)
	defer a.Close()
	defer other.Close()

	_ = a.Post(RequestStateEvent{})
	expectNone(t, other.Events())
}

func TestBusChannelClose(t *testing.T) {
	b := bus.New()
	a := NewBusChannel(b, ChannelName, "tab-a", nil)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	_ = a.Close()
	if err := a.Post(RequestStateEvent{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Post after Close = %v, want ErrClosed", err)
	}
	if _, ok := <-a.Events(); ok {
		t.Error("events channel should be closed")
	}
	if b.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", b.Subscribers())
	}
}

func TestStorageChannel(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	la := testLocal(t, db, b, "tab-a")
	lb := testLocal(t, db, b, "tab-b")

	a := Open(ModeStorage, b, la, nil)
	c := Open(ModeStorage, b, lb, nil)
	defer a.Close()
	defer c.Close()

	msg := store.Message{ID: "m1", From: "+1", Text: "hello"}
	if err := a.Post(MessageEvent{Message: msg}); err != nil {
		t.Fatal(err)
	}
	me, ok := recv(t, c.Events()).(MessageEvent)
	if !ok || me.Message.ID != "m1" {
		t.Errorf("got %#v", me)
	}
	expectNone(t, a.Events())

	raw, ok, _ := la.GetItem(store.KeyBroadcast)
	if !ok {
		t.Fatal("qc_broadcast not written")
	}
	if _, err := Decode([]byte(raw)); err != nil {
		t.Errorf("stored envelope undecodable: %v", err)
	}
}

func TestOpenDefaultsToBus(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	ch := Open(Mode("bogus"), b, testLocal(t, db, b, "tab-a"), nil)
	defer ch.Close()
	if _, ok := ch.(*BusChannel); !ok {
		t.Errorf("got %T, want *BusChannel", ch)
	}
}
