package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/metrics"
	"github.com/matheus3301/qchat/internal/store"
	"go.uber.org/zap"
)

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("broadcast: channel closed")

// Channel posts events to every other endpoint and receives theirs.
// An endpoint never receives its own posts.
type Channel interface {
	Post(evt Event) error
	Events() <-chan Event
	Close() error
}

// KindPrefix prefixes the bus kind of channel traffic.
const KindPrefix = "channel."

const bufSize = 256

// BusChannel is a named channel over the in-process bus.
type BusChannel struct {
	bus    *bus.Bus
	kind   string
	origin string
	log    *zap.Logger

	out  chan Event
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewBusChannel joins the channel name as origin.
func NewBusChannel(b *bus.Bus, name, origin string, logger *zap.Logger) *BusChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &BusChannel{
		bus:    b,
		kind:   KindPrefix + name,
		origin: origin,
		log:    logger,
		out:    make(chan Event, bufSize),
		done:   make(chan struct{}),
	}
	src, unsub := b.Subscribe(c.kind, bufSize)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsub()
		defer close(c.out)
		for {
			select {
			case <-c.done:
				return
			case evt := <-src:
				if evt.Kind != c.kind || evt.Origin == c.origin {
					continue
				}
				data, ok := evt.Payload.([]byte)
				if !ok {
					continue
				}
				c.deliver(data)
			}
		}
	}()
	return c
}

func (c *BusChannel) deliver(data []byte) {
	e, err := Decode(data)
	if err != nil {
		c.log.Debug("dropping undecodable broadcast", zap.Error(err))
		return
	}
	metrics.EventsReceived.WithLabelValues(e.Type()).Inc()
	select {
	case c.out <- e:
	default:
		metrics.EventsDropped.Inc()
	}
}

// Post encodes evt and publishes it on the channel.
func (c *BusChannel) Post(evt Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	data, err := Encode(evt)
	if err != nil {
		return err
	}
	metrics.EventsPosted.WithLabelValues(evt.Type()).Inc()
	if dropped := c.bus.Publish(bus.Event{
		Kind:      c.kind,
		Origin:    c.origin,
		Timestamp: time.Now(),
		Payload:   data,
	}); dropped > 0 {
		metrics.EventsDropped.Add(float64(dropped))
	}
	return nil
}

// Events returns incoming events. It is closed by Close.
func (c *BusChannel) Events() <-chan Event { return c.out }

// Close leaves the channel.
func (c *BusChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
	return nil
}

// StorageChannel is the fallback endpoint: each post overwrites the
// qc_broadcast key and siblings decode it from the storage notification.
type StorageChannel struct {
	local *store.Local
	log   *zap.Logger

	out  chan Event
	stop func()
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewStorageChannel joins the fallback channel through local.
func NewStorageChannel(local *store.Local, logger *zap.Logger) *StorageChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	changes, stop := local.Watch(store.KeyBroadcast)
	c := &StorageChannel{
		local: local,
		log:   logger,
		out:   make(chan Event, bufSize),
		stop:  stop,
		done:  make(chan struct{}),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.out)
		for ch := range changes {
			if ch.Removed || ch.Value == "" {
				continue
			}
			e, err := Decode([]byte(ch.Value))
			if err != nil {
				c.log.Debug("dropping undecodable broadcast", zap.Error(err))
				continue
			}
			metrics.EventsReceived.WithLabelValues(e.Type()).Inc()
			select {
			case c.out <- e:
			default:
				metrics.EventsDropped.Inc()
			}
		}
	}()
	return c
}

// Post writes the encoded event to qc_broadcast.
func (c *StorageChannel) Post(evt Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	data, err := Encode(evt)
	if err != nil {
		return err
	}
	metrics.EventsPosted.WithLabelValues(evt.Type()).Inc()
	return c.local.SetItem(store.KeyBroadcast, string(data))
}

// Events returns incoming events. It is closed by Close.
func (c *StorageChannel) Events() <-chan Event { return c.out }

// Close stops watching the store.
func (c *StorageChannel) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.stop()
	})
	c.wg.Wait()
	return nil
}

// Mode selects a Channel implementation.
type Mode string

const (
	ModeBus     Mode = "bus"
	ModeStorage Mode = "storage"
)

// Open returns the channel endpoint for mode. Unknown modes fall back to the bus.
func Open(mode Mode, b *bus.Bus, local *store.Local, logger *zap.Logger) Channel {
	if mode == ModeStorage {
		return NewStorageChannel(local, logger)
	}
	return NewBusChannel(b, ChannelName, local.Origin(), logger)
}
