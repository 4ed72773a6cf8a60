package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bus is the daemon's in-process event hub. Kinds are dotted names such as
// "tab.main.attention" or "storage.qc_messages" and subscribers select them
// by prefix. Publish never blocks: a subscriber whose buffer is full misses
// the event.
type Bus struct {
	mu   sync.Mutex // serialises writers of subs
	subs atomic.Pointer[[]*subscriber]
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	b := &Bus{}
	b.subs.Store(&[]*subscriber{})
	return b
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind and
// returns how many of them were skipped because their buffer was full. A
// zero Timestamp is set to now.
func (b *Bus) Publish(evt Event) (dropped int) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	for _, s := range *b.subs.Load() {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			dropped++
		}
	}
	return dropped
}

// Subscribe registers a buffered channel for kinds starting with prefix. The
// returned function unsubscribes and may be called more than once. The
// channel is never closed.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	s := &subscriber{prefix: prefix, ch: make(chan Event, bufSize)}

	b.mu.Lock()
	cur := *b.subs.Load()
	next := make([]*subscriber, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, s)
	b.subs.Store(&next)
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { b.remove(s) })
	}
}

func (b *Bus) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.subs.Load()
	next := make([]*subscriber, 0, len(cur))
	for _, o := range cur {
		if o != s {
			next = append(next, o)
		}
	}
	b.subs.Store(&next)
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	return len(*b.subs.Load())
}
