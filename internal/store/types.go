package store

import (
	"fmt"
	"time"
)

// Local Store keys.
const (
	KeyUser      = "qc_user"
	KeyMessages  = "qc_messages"
	KeyPresence  = "qc_presence"
	KeyCharts    = "qc_charts"
	KeyTestCodes = "qc_test_codes"
	KeyBroadcast = "qc_broadcast"
)

// Identity is the signed-in user of a tab.
type Identity struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// AttachmentRef is the part of an attachment that travels with a message.
type AttachmentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Message is an immutable chat message.
type Message struct {
	ID          string          `json:"id"`
	From        string          `json:"from"`
	FromName    string          `json:"fromName"`
	Text        string          `json:"text"`
	TS          time.Time       `json:"ts"`
	Attachments []AttachmentRef `json:"attachments"`
}

// PresenceEntry is the last heartbeat seen for a phone.
type PresenceEntry struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	LastSeen int64  `json:"lastSeen"` // epoch ms
	Color    string `json:"color"`
}

// Presence maps phone to its latest entry.
type Presence map[string]PresenceEntry

// Clone returns a shallow copy of p.
func (p Presence) Clone() Presence {
	out := make(Presence, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// TestCode is a pending local verification code.
type TestCode struct {
	Code    string `json:"code"`
	Expires int64  `json:"expires"` // epoch ms
	SentAt  int64  `json:"sentAt"`  // epoch ms
}

// ColorFromPhone derives a stable display colour from a phone number.
// The hash wraps at 32 bits.
func ColorFromPhone(phone string) string {
	var h int32
	for _, c := range phone {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("hsl(%ddeg 80%% 55%%)", v%360)
}

// NewIdentity builds an identity with its derived colour.
func NewIdentity(phone, name string) Identity {
	return Identity{Phone: phone, Name: name, Color: ColorFromPhone(phone)}
}

// Entry returns the presence entry for id stamped at now.
func (id Identity) Entry(now time.Time) PresenceEntry {
	return PresenceEntry{
		Phone:    id.Phone,
		Name:     id.Name,
		LastSeen: now.UnixMilli(),
		Color:    id.Color,
	}
}
