package main

import (
	"strings"
	"testing"

	"github.com/matheus3301/qchat/internal/rpc"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		ev   rpc.Event
		want string
	}{
		{rpc.Event{Kind: rpc.EventSnapshot, State: "SIGNED_OUT", Title: "QuickChat"}, "state=SIGNED_OUT"},
		{rpc.Event{Kind: "status_changed", State: "SIGNED_IN"}, "status_changed state=SIGNED_IN"},
		{rpc.Event{Kind: "attention", Unread: 3, Flash: true}, "unread=3 flash=true"},
		{rpc.Event{Kind: "messages_changed"}, "messages_changed"},
	}
	for _, tt := range tests {
		if got := formatEvent(&tt.ev); !strings.Contains(got, tt.want) {
			t.Errorf("formatEvent(%s) = %q, want it to contain %q", tt.ev.Kind, got, tt.want)
		}
	}
}

func TestSocketPathOverride(t *testing.T) {
	old := flagSocket
	t.Cleanup(func() { flagSocket = old })

	flagSocket = "/tmp/custom.sock"
	got, err := socketPath()
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/custom.sock" {
		t.Errorf("expected override, got %q", got)
	}
}
