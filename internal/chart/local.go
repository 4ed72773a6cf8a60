package chart

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/qchat/internal/store"
	"go.uber.org/zap"
)

// LocalCollection keeps charts in the profile's Local Store under qc_charts.
type LocalCollection struct {
	local  *store.Local
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	kicks map[int]chan struct{}
	next  int
}

// NewLocalCollection creates a collection over one tab's store handle.
func NewLocalCollection(local *store.Local, logger *zap.Logger) *LocalCollection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalCollection{
		local:  local,
		logger: logger,
		now:    time.Now,
		kicks:  make(map[int]chan struct{}),
	}
}

func (l *LocalCollection) load() []Chart {
	cs := store.Load[[]Chart](l.local, store.KeyCharts)
	if cs == nil {
		cs = []Chart{}
	}
	return cs
}

// List returns the stored charts, newest first.
func (l *LocalCollection) List(_ context.Context) ([]Chart, error) {
	return l.load(), nil
}

// Add prepends c.
func (l *LocalCollection) Add(_ context.Context, c Chart) (Chart, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c.ID = uuid.NewString()
	c.CreatedAt = l.now().UnixMilli()
	cs := append([]Chart{c}, l.load()...)
	if err := store.Save(l.local, store.KeyCharts, cs); err != nil {
		return Chart{}, err
	}
	l.kickLocked()
	return c, nil
}

// Delete removes chart id if requester owns it.
func (l *LocalCollection) Delete(_ context.Context, id, requester string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs := l.load()
	idx := -1
	for i, c := range cs {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	if err := checkOwner(cs[idx], requester); err != nil {
		return err
	}
	cs = append(cs[:idx], cs[idx+1:]...)
	if err := store.Save(l.local, store.KeyCharts, cs); err != nil {
		return err
	}
	l.kickLocked()
	return nil
}

func (l *LocalCollection) kickLocked() {
	for _, k := range l.kicks {
		select {
		case k <- struct{}{}:
		default:
		}
	}
}

// Subscribe emits snapshots on this collection's writes and on writes to
// qc_charts from sibling handles.
func (l *LocalCollection) Subscribe(ctx context.Context) (<-chan []Chart, error) {
	kick := make(chan struct{}, 1)
	kick <- struct{}{}

	l.mu.Lock()
	id := l.next
	l.next++
	l.kicks[id] = kick
	l.mu.Unlock()

	changes, stop := l.local.Watch(store.KeyCharts)
	out := make(chan []Chart, 1)

	go func() {
		defer close(out)
		defer stop()
		defer func() {
			l.mu.Lock()
			delete(l.kicks, id)
			l.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
			select {
			case out <- l.load():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the store handle belongs to the tab.
func (l *LocalCollection) Close() error { return nil }
