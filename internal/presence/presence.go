// Package presence derives who is online from heartbeat timestamps.
package presence

import (
	"context"
	"sort"
	"time"

	"github.com/matheus3301/qchat/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultInterval is how often a signed-in tab refreshes its own entry.
	DefaultInterval = 10 * time.Second
	// DefaultWindow is how recent a heartbeat must be to count as active.
	DefaultWindow = 60 * time.Second
)

// Active returns entries seen strictly less than window ago, most recent first.
func Active(p store.Presence, now time.Time, window time.Duration) []store.PresenceEntry {
	cutoff := now.UnixMilli() - window.Milliseconds()
	out := make([]store.PresenceEntry, 0, len(p))
	for _, e := range p {
		if e.LastSeen > cutoff {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen != out[j].LastSeen {
			return out[i].LastSeen > out[j].LastSeen
		}
		return out[i].Phone < out[j].Phone
	})
	return out
}

// Beater refreshes the caller's presence entry. It is a no-op when signed out.
type Beater interface {
	TouchPresence(ctx context.Context) error
}

// Tracker drives a Beater on a fixed interval.
type Tracker struct {
	beater   Beater
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTracker creates a heartbeat loop. interval <= 0 selects DefaultInterval.
func NewTracker(b Beater, interval time.Duration, logger *zap.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{beater: b, interval: interval, logger: logger}
}

// Start begins heartbeating until ctx is cancelled or Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.loop(ctx)
}

// Stop stops the loop and waits for it to exit.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
}

func (t *Tracker) loop(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.beater.TouchPresence(ctx); err != nil {
				t.logger.Warn("presence heartbeat failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
