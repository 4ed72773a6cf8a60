package bus

import (
	"strings"
	"time"
)

// Event is one notification on the bus. Origin names the publisher (a tab
// id or "storage") so a subscriber can ignore its own writes.
type Event struct {
	Kind      string
	Origin    string
	Timestamp time.Time
	Payload   any
}

// Suffix returns the last dotted segment of Kind, e.g. "attention" for
// "tab.main.attention".
func (e Event) Suffix() string {
	if i := strings.LastIndexByte(e.Kind, '.'); i >= 0 {
		return e.Kind[i+1:]
	}
	return e.Kind
}
