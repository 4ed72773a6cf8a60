package store

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/metrics"
	"go.uber.org/zap"
)

// DefaultQuota is the per-profile storage budget in bytes.
const DefaultQuota = 5 << 20

// KindPrefix prefixes the bus kind of every storage change notification.
const KindPrefix = "storage."

// Change is the payload of a storage notification.
type Change struct {
	Key     string
	Value   string
	Removed bool
}

// Local is one tab's handle on the profile's Local Store. Every write is
// announced on the bus so sibling handles can observe it.
type Local struct {
	db     *DB
	bus    *bus.Bus
	origin string
	quota  int64
	log    *zap.Logger
	now    func() time.Time
}

// NewLocal creates a handle writing as origin. quota <= 0 selects DefaultQuota.
func NewLocal(db *DB, b *bus.Bus, origin string, quota int64, logger *zap.Logger) *Local {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		db:     db,
		bus:    b,
		origin: origin,
		quota:  quota,
		log:    logger,
		now:    time.Now,
	}
}

// Origin returns the identifier stamped on this handle's notifications.
func (l *Local) Origin() string { return l.origin }

// GetItem returns the value stored under key.
func (l *Local) GetItem(key string) (string, bool, error) {
	it, err := l.db.GetItem(key)
	if err != nil || it == nil {
		return "", false, err
	}
	return it.Value, true, nil
}

// SetItem stores value under key and notifies watchers.
func (l *Local) SetItem(key, value string) error {
	_, err := l.db.PutItem(key, value, l.origin, l.now().UnixMilli(), l.quota)
	if err != nil {
		reason := "write"
		if errors.Is(err, ErrQuotaExceeded) {
			reason = "quota"
		}
		metrics.StorageErrors.WithLabelValues(key, reason).Inc()
		return err
	}
	metrics.StorageWrites.WithLabelValues(key).Inc()
	l.notify(Change{Key: key, Value: value})
	return nil
}

// RemoveItem deletes key and notifies watchers if it existed.
func (l *Local) RemoveItem(key string) error {
	existed, err := l.db.DeleteItem(key)
	if err != nil {
		metrics.StorageErrors.WithLabelValues(key, "write").Inc()
		return err
	}
	if existed {
		l.notify(Change{Key: key, Removed: true})
	}
	return nil
}

func (l *Local) notify(c Change) {
	if l.bus == nil {
		return
	}
	if dropped := l.bus.Publish(bus.Event{
		Kind:      KindPrefix + c.Key,
		Origin:    l.origin,
		Timestamp: l.now(),
		Payload:   c,
	}); dropped > 0 {
		metrics.EventsDropped.Add(float64(dropped))
	}
}

// Watch delivers changes to keys made by other handles. No keys means every key.
// The returned stop function closes the channel.
func (l *Local) Watch(keys ...string) (<-chan Change, func()) {
	src, unsub := l.bus.Subscribe(KindPrefix, 64)
	out := make(chan Change, 64)
	done := make(chan struct{})

	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case evt := <-src:
				if evt.Origin == l.origin {
					continue
				}
				c, ok := evt.Payload.(Change)
				if !ok {
					c = Change{Key: strings.TrimPrefix(evt.Kind, KindPrefix)}
				}
				if len(want) > 0 && !want[c.Key] {
					continue
				}
				select {
				case out <- c:
				default:
					metrics.EventsDropped.Inc()
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}

// Load decodes the JSON value under key. Absent, unreadable and malformed
// values all yield the zero value; the latter two are logged.
func Load[T any](l *Local, key string) T {
	var zero T
	raw, ok, err := l.GetItem(key)
	if err != nil {
		l.log.Warn("storage read failed", zap.String("key", key), zap.Error(err))
		return zero
	}
	if !ok {
		return zero
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		metrics.StorageErrors.WithLabelValues(key, "decode").Inc()
		l.log.Warn("malformed stored value, using default", zap.String("key", key), zap.Error(err))
		return zero
	}
	return v
}

// Save encodes v as JSON under key.
func Save[T any](l *Local, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return l.SetItem(key, string(raw))
}

// LoadMessages returns the persisted message log, never nil.
func (l *Local) LoadMessages() []Message {
	msgs := Load[[]Message](l, KeyMessages)
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs
}

// SaveMessages persists the message log.
func (l *Local) SaveMessages(msgs []Message) error {
	return Save(l, KeyMessages, msgs)
}

// LoadPresence returns the persisted presence map, never nil.
func (l *Local) LoadPresence() Presence {
	p := Load[Presence](l, KeyPresence)
	if p == nil {
		p = Presence{}
	}
	return p
}

// SavePresence persists the presence map.
func (l *Local) SavePresence(p Presence) error {
	return Save(l, KeyPresence, p)
}

// LoadIdentity returns the persisted identity, or nil when signed out.
func (l *Local) LoadIdentity() *Identity {
	id := Load[*Identity](l, KeyUser)
	if id != nil && id.Phone == "" {
		return nil
	}
	return id
}

// SaveIdentity persists id; nil clears it.
func (l *Local) SaveIdentity(id *Identity) error {
	if id == nil {
		return l.RemoveItem(KeyUser)
	}
	return Save(l, KeyUser, id)
}
