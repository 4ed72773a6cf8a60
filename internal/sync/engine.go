// Package sync keeps one tab's view of the message log and presence map
// converged with its siblings.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/matheus3301/qchat/internal/broadcast"
	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/metrics"
	"github.com/matheus3301/qchat/internal/store"
	"go.uber.org/zap"
)

// Render notifications published under "tab.<id>.".
const (
	KindMessagesChanged = "messages_changed"
	KindPresenceChanged = "presence_changed"
	KindIdentityChanged = "identity_changed"
	KindAttention       = "attention"
)

// MaxUnread caps the unread counter.
const MaxUnread = 99

// CatchupDelay is when the second startup request-state goes out.
const CatchupDelay = 500 * time.Millisecond

// RetireWindow is how long a tab keeps scrubbing the phone it signed out of
// from presence maps still in flight. It matches the presence live window.
const RetireWindow = 60 * time.Second

// ErrNotSignedIn is returned for operations that need an identity.
var ErrNotSignedIn = errors.New("sync: not signed in")

// TabKind returns the bus kind for a tab notification.
func TabKind(tab, kind string) string {
	return "tab." + tab + "." + kind
}

// Attention is the payload of a KindAttention notification.
type Attention struct {
	Unread int
	Title  string
	Flash  bool
}

// Engine merges incoming broadcast events into the tab's mirror and answers
// state requests. All state is guarded by one mutex.
type Engine struct {
	tab    string
	local  *store.Local
	ch     broadcast.Channel
	bus    *bus.Bus
	logger *zap.Logger

	now          func() time.Time
	catchupDelay time.Duration
	startedAt    time.Time

	mu       stdsync.Mutex
	me       *store.Identity
	log      []store.Message
	ids      map[string]struct{}
	presence store.Presence
	focused  bool
	unread   int
	// retired maps a phone this tab signed out of to the logout time in ms.
	retired map[string]int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates the engine for tab. The tab starts focused.
func NewEngine(tab string, local *store.Local, ch broadcast.Channel, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		tab:          tab,
		local:        local,
		ch:           ch,
		bus:          b,
		logger:       logger.With(zap.String("tab", tab)),
		now:          time.Now,
		catchupDelay: CatchupDelay,
		ids:          make(map[string]struct{}),
		presence:     store.Presence{},
		retired:      make(map[string]int64),
		focused:      true,
	}
}

// Start loads persisted state, announces the tab and begins consuming
// channel events and sibling storage changes.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.startedAt = e.now()
	e.log = e.local.LoadMessages()
	e.ids = make(map[string]struct{}, len(e.log))
	for _, m := range e.log {
		e.ids[m.ID] = struct{}{}
	}
	e.presence = e.local.LoadPresence()
	e.me = e.local.LoadIdentity()
	if e.me != nil {
		if err := e.stampLocked(); err != nil {
			e.logger.Warn("failed to stamp presence on start", zap.Error(err))
		}
	}
	restored, count := e.me != nil, len(e.log)
	e.mu.Unlock()

	changes, stopWatch := e.local.Watch(store.KeyMessages, store.KeyPresence)

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	e.post(broadcast.RequestStateEvent{})
	go e.loop(ctx, changes, stopWatch)

	e.logger.Info("engine started",
		zap.Int("messages", count),
		zap.Bool("signed_in", restored))
	return nil
}

// Stop ends the event loop and waits for it.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) loop(ctx context.Context, changes <-chan store.Change, stopWatch func()) {
	defer close(e.done)
	defer stopWatch()

	catchup := time.NewTimer(e.catchupDelay)
	defer catchup.Stop()

	events := e.ch.Events()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.Handle(evt)
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			e.reload(c.Key)
		case <-catchup.C:
			e.post(broadcast.RequestStateEvent{})
		case <-ctx.Done():
			return
		}
	}
}

// Handle applies one incoming event.
func (e *Engine) Handle(evt broadcast.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev := evt.(type) {
	case broadcast.MessageEvent:
		if !e.insertLocked(ev.Message) {
			return
		}
		metrics.MessagesMerged.WithLabelValues(broadcast.TypeMessage).Inc()
		e.saveMessagesLocked()
		e.publish(KindMessagesChanged, len(e.log))
		e.noticeLocked(ev.Message)

	case broadcast.PresenceEvent:
		stored := e.local.LoadPresence()
		for phone, entry := range ev.Presence {
			stored[phone] = entry
		}
		e.scrubLocked(stored)
		if err := e.local.SavePresence(stored); err != nil {
			e.logger.Warn("failed to persist presence", zap.Error(err))
		}
		e.presence = stored
		e.publish(KindPresenceChanged, len(e.presence))

	case broadcast.RequestStateEvent:
		if e.me != nil {
			e.post(broadcast.PresenceEvent{Presence: e.presence.Clone()})
		}
		e.post(broadcast.SyncMessagesEvent{Messages: e.messagesLocked()})

	case broadcast.SyncMessagesEvent:
		added := 0
		for _, m := range ev.Messages {
			if e.insertLocked(m) {
				added++
			}
		}
		if added == 0 {
			return
		}
		metrics.MessagesMerged.WithLabelValues(broadcast.TypeSyncMessages).Add(float64(added))
		e.saveMessagesLocked()
		e.publish(KindMessagesChanged, len(e.log))

	default:
		e.logger.Warn("unhandled broadcast event", zap.String("type", fmt.Sprintf("%T", evt)))
	}
}

// reload picks up a sibling's write to key. A sibling's own send usually
// lands here before its message broadcast, so new messages get the same
// unread handling as a message event. Messages older than this tab are
// history and are merged silently.
func (e *Engine) reload(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch key {
	case store.KeyMessages:
		var added []store.Message
		for _, m := range e.local.LoadMessages() {
			if e.insertLocked(m) {
				added = append(added, m)
			}
		}
		if len(added) == 0 {
			return
		}
		metrics.MessagesMerged.WithLabelValues("storage").Add(float64(len(added)))
		e.publish(KindMessagesChanged, len(e.log))
		for _, m := range added {
			if !m.TS.Before(e.startedAt) {
				e.noticeLocked(m)
			}
		}
	case store.KeyPresence:
		stored := e.local.LoadPresence()
		if e.scrubLocked(stored) {
			if err := e.local.SavePresence(stored); err != nil {
				e.logger.Warn("failed to persist presence", zap.Error(err))
			}
		}
		e.presence = stored
		e.publish(KindPresenceChanged, len(e.presence))
	}
}

// noticeLocked counts m as unread and raises attention when the tab is in
// the background and m was written by someone else.
func (e *Engine) noticeLocked(m store.Message) {
	if e.focused || (e.me != nil && m.From == e.me.Phone) {
		return
	}
	e.unread = min(MaxUnread, e.unread+1)
	e.publish(KindAttention, Attention{Unread: e.unread, Title: e.titleLocked(), Flash: true})
}

// scrubLocked removes from p the phones this tab signed out of, unless the
// entry was stamped after the logout by a new sign-in. Retirements older
// than RetireWindow are forgotten. It reports whether p changed.
func (e *Engine) scrubLocked(p store.Presence) bool {
	cutoff := e.now().Add(-RetireWindow).UnixMilli()
	changed := false
	for phone, at := range e.retired {
		if at < cutoff {
			delete(e.retired, phone)
			continue
		}
		if e.me != nil && e.me.Phone == phone {
			continue
		}
		if entry, ok := p[phone]; ok && entry.LastSeen <= at {
			delete(p, phone)
			changed = true
		}
	}
	return changed
}

// Login signs the tab in, stamps and announces its presence and asks
// siblings for their state.
func (e *Engine) Login(id store.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.local.SaveIdentity(&id); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	e.me = &id
	delete(e.retired, id.Phone)
	if err := e.stampLocked(); err != nil {
		return fmt.Errorf("save presence: %w", err)
	}
	e.post(broadcast.PresenceEvent{Presence: e.presence.Clone()})
	e.post(broadcast.RequestStateEvent{})
	e.publish(KindIdentityChanged, id)
	e.publish(KindPresenceChanged, len(e.presence))
	e.logger.Info("signed in", zap.String("phone", id.Phone))
	return nil
}

// Logout drops the tab's presence entry, announces the smaller map and
// clears the identity. It is a no-op when signed out.
func (e *Engine) Logout() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.me == nil {
		return nil
	}
	phone := e.me.Phone
	e.retired[phone] = e.now().UnixMilli()

	stored := e.local.LoadPresence()
	delete(stored, phone)
	if err := e.local.SavePresence(stored); err != nil {
		e.logger.Warn("failed to persist presence on logout", zap.Error(err))
	}
	e.presence = stored
	e.post(broadcast.PresenceEvent{Presence: e.presence.Clone()})

	if err := e.local.SaveIdentity(nil); err != nil {
		e.logger.Warn("failed to clear identity", zap.Error(err))
	}
	e.me = nil
	e.publish(KindIdentityChanged, nil)
	e.publish(KindPresenceChanged, len(e.presence))
	e.logger.Info("signed out", zap.String("phone", phone))
	return nil
}

// TouchPresence refreshes the tab's own presence entry and broadcasts the
// map. It does nothing when signed out.
func (e *Engine) TouchPresence(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.me == nil {
		return nil
	}
	if err := e.stampLocked(); err != nil {
		return err
	}
	e.post(broadcast.PresenceEvent{Presence: e.presence.Clone()})
	e.publish(KindPresenceChanged, len(e.presence))
	return nil
}

// AppendLocal records a message composed in this tab and broadcasts it.
// On a failed save the mirror is left unchanged and nothing is broadcast.
func (e *Engine) AppendLocal(msg store.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.me == nil {
		return ErrNotSignedIn
	}
	if !e.insertLocked(msg) {
		return nil
	}
	if err := e.local.SaveMessages(e.log); err != nil {
		e.log = e.log[:len(e.log)-1]
		delete(e.ids, msg.ID)
		return fmt.Errorf("save messages: %w", err)
	}
	metrics.MessagesMerged.WithLabelValues("local").Inc()
	e.post(broadcast.MessageEvent{Message: msg})
	e.publish(KindMessagesChanged, len(e.log))
	return nil
}

// SetFocus records whether the tab is in the foreground. Gaining focus
// clears the unread counter.
func (e *Engine) SetFocus(focused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.focused = focused
	if focused && e.unread > 0 {
		e.unread = 0
		e.publish(KindAttention, Attention{Title: e.titleLocked()})
	}
}

// Identity returns the signed-in identity or nil.
func (e *Engine) Identity() *store.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.me == nil {
		return nil
	}
	id := *e.me
	return &id
}

// Messages returns a copy of the log in append order.
func (e *Engine) Messages() []store.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.messagesLocked()
}

// Presence returns a copy of the presence mirror.
func (e *Engine) Presence() store.Presence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.Clone()
}

// Unread returns the unread counter.
func (e *Engine) Unread() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread
}

// Focused reports whether the tab is in the foreground.
func (e *Engine) Focused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// Title returns the window title for the current unread count.
func (e *Engine) Title() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.titleLocked()
}

func (e *Engine) titleLocked() string {
	if e.unread > 0 {
		return fmt.Sprintf("(%d) QuickChat", e.unread)
	}
	return "QuickChat — Phone Login Demo"
}

func (e *Engine) insertLocked(m store.Message) bool {
	if m.ID == "" {
		return false
	}
	if _, ok := e.ids[m.ID]; ok {
		return false
	}
	e.ids[m.ID] = struct{}{}
	e.log = append(e.log, m)
	return true
}

func (e *Engine) messagesLocked() []store.Message {
	out := make([]store.Message, len(e.log))
	copy(out, e.log)
	return out
}

func (e *Engine) saveMessagesLocked() {
	if err := e.local.SaveMessages(e.log); err != nil {
		e.logger.Warn("failed to persist messages", zap.Error(err))
	}
}

// stampLocked writes the own entry into the stored presence map and adopts
// the result as the mirror.
func (e *Engine) stampLocked() error {
	stored := e.local.LoadPresence()
	e.scrubLocked(stored)
	stored[e.me.Phone] = e.me.Entry(e.now())
	e.presence = stored
	return e.local.SavePresence(stored)
}

func (e *Engine) post(evt broadcast.Event) {
	if err := e.ch.Post(evt); err != nil && !errors.Is(err, broadcast.ErrClosed) {
		e.logger.Warn("broadcast failed", zap.String("type", evt.Type()), zap.Error(err))
	}
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{
		Kind:      TabKind(e.tab, kind),
		Origin:    e.tab,
		Timestamp: e.now(),
		Payload:   payload,
	})
}
