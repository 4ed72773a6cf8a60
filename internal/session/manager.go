package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/qchat/internal/blob"
	"github.com/matheus3301/qchat/internal/broadcast"
	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/config"
	"github.com/matheus3301/qchat/internal/metrics"
	"github.com/matheus3301/qchat/internal/presence"
	"github.com/matheus3301/qchat/internal/status"
	"github.com/matheus3301/qchat/internal/store"
	intsync "github.com/matheus3301/qchat/internal/sync"
	"github.com/matheus3301/qchat/internal/verify"
	"go.uber.org/zap"
)

// MainTab is the tab the daemon opens at start and the default target of clients.
const MainTab = "main"

var (
	ErrTabNotFound = errors.New("session: tab not found")
	ErrTabExists   = errors.New("session: tab already open")
	ErrInvalidTab  = errors.New("session: tab id must match ^[A-Za-z0-9_-]{1,64}$")
)

// Tab ids become a bus kind segment ("tab.<id>.") so they cannot hold dots.
var tabRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateTabID reports whether id can name a tab.
func ValidateTabID(id string) error {
	if !tabRegexp.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTab, id)
	}
	return nil
}

// Options configures a Manager. Verifier and Charts are optional shared
// instances; when nil each tab gets a local one over its own store handle.
type Options struct {
	Profile  string
	Config   *config.Config
	DB       *store.DB
	Blobs    *blob.Store
	Bus      *bus.Bus
	Verifier verify.Verifier
	Charts   chart.Collection
	Logger   *zap.Logger
}

// Manager hosts the open tabs of one profile.
type Manager struct {
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	tabs map[string]*Session
}

// NewManager creates a manager. Tabs run until closed or CloseAll.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Bus == nil {
		opts.Bus = bus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:   opts,
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		tabs:   make(map[string]*Session),
	}
}

// Profile returns the profile name.
func (m *Manager) Profile() string { return m.opts.Profile }

// Open starts a tab with a generated id.
func (m *Manager) Open() (*Session, error) {
	return m.OpenNamed(uuid.NewString()[:8])
}

// OpenNamed starts a tab with the given id.
func (m *Manager) OpenNamed(id string) (*Session, error) {
	if err := ValidateTabID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tabs[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTabExists, id)
	}
	if err := m.ctx.Err(); err != nil {
		return nil, err
	}
	s := m.build(id)
	if err := s.start(m.ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start tab %s: %w", id, err)
	}
	m.tabs[id] = s
	metrics.OpenTabs.Inc()
	m.logger.Info("tab opened", zap.String("tab", id))
	return s, nil
}

func (m *Manager) build(id string) *Session {
	cfg := m.opts.Config
	logger := m.logger.With(zap.String("tab", id))

	local := store.NewLocal(m.opts.DB, m.opts.Bus, id, cfg.Store.QuotaBytes, logger)
	ch := broadcast.Open(broadcast.Mode(cfg.Channel.Mode), m.opts.Bus, local, logger)
	engine := intsync.NewEngine(id, local, ch, m.opts.Bus, logger)

	verifier := m.opts.Verifier
	if verifier == nil {
		verifier = verify.NewLocalVerifier(local, logger)
	}
	charts, owns := m.opts.Charts, false
	if charts == nil {
		charts, owns = chart.NewLocalCollection(local, logger), true
	}

	a := cfg.Attachments
	policy := blob.RetryPolicy{
		MissingRetries:  a.MissingRetries,
		MissingInterval: time.Duration(a.MissingIntervalMS) * time.Millisecond,
		ErrorRetries:    a.ErrorRetries,
		ErrorInterval:   time.Duration(a.ErrorIntervalMS) * time.Millisecond,
	}

	return &Session{
		id:            id,
		local:         local,
		ch:            ch,
		engine:        engine,
		tracker:       presence.NewTracker(engine, cfg.HeartbeatInterval(), logger),
		machine:       status.NewMachine(m.opts.Bus, id),
		verifier:      verifier,
		charts:        charts,
		ownsCharts:    owns,
		blobs:         m.opts.Blobs,
		loader:        blob.NewLoader(m.opts.Blobs, policy, logger),
		bus:           m.opts.Bus,
		logger:        logger,
		countryCode:   cfg.Verifier.CountryCode,
		window:        cfg.PresenceWindow(),
		maxAttachment: a.MaxBytes,
		now:           time.Now,
		startedAt:     time.Now(),
		done:          make(chan struct{}),
	}
}

// Get returns an open tab.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTabNotFound, id)
	}
	return s, nil
}

// Tabs returns the open tab ids in order.
func (m *Manager) Tabs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.tabs))
	for id := range m.tabs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops one tab.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.tabs[id]
	delete(m.tabs, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, id)
	}
	metrics.OpenTabs.Dec()
	return s.Close()
}

// CloseAll stops every tab and refuses new ones.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	tabs := m.tabs
	m.tabs = make(map[string]*Session)
	m.mu.Unlock()

	m.cancel()
	var errs []error
	for _, s := range tabs {
		metrics.OpenTabs.Dec()
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
