// Package session coordinates one chat tab: its engine, presence heartbeat,
// sign-in flow, attachments and charts.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/qchat/internal/blob"
	"github.com/matheus3301/qchat/internal/broadcast"
	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/presence"
	"github.com/matheus3301/qchat/internal/status"
	"github.com/matheus3301/qchat/internal/store"
	intsync "github.com/matheus3301/qchat/internal/sync"
	"github.com/matheus3301/qchat/internal/verify"
	"go.uber.org/zap"
)

var (
	ErrNotLoggedIn     = intsync.ErrNotSignedIn
	ErrAlreadyLoggedIn = errors.New("session: already signed in")
	ErrNoPendingCode   = errors.New("session: no code has been sent")
	ErrClosed          = errors.New("session: tab closed")
)

// Upload is an attachment offered with a message.
type Upload struct {
	Name string
	Type string
	Data []byte
}

// Info is a point-in-time view of a tab.
type Info struct {
	Tab       string
	State     status.State
	Identity  *store.Identity
	Unread    int
	Focused   bool
	Title     string
	Messages  int
	StartedAt time.Time
}

type pendingLogin struct {
	phone string
	name  string
}

// Session is one open tab.
type Session struct {
	id       string
	local    *store.Local
	ch       broadcast.Channel
	engine   *intsync.Engine
	tracker  *presence.Tracker
	machine  *status.Machine
	verifier verify.Verifier
	charts   chart.Collection
	blobs    *blob.Store
	loader   *blob.Loader
	bus      *bus.Bus
	logger   *zap.Logger

	countryCode   string
	window        time.Duration
	maxAttachment int64
	ownsCharts    bool
	now           func() time.Time
	startedAt     time.Time

	mu      sync.Mutex
	pending *pendingLogin
	closed  bool
	done    chan struct{}
}

// ID returns the tab id.
func (s *Session) ID() string { return s.id }

// Done is closed when the tab closes.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) start(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return err
	}
	s.tracker.Start(ctx)
	next := status.SignedOut
	if s.engine.Identity() != nil {
		next = status.SignedIn
	}
	return s.machine.Transition(next)
}

func (s *Session) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SendCode starts sign-in for countryCode+digits. The display name is kept
// until the code is verified.
func (s *Session) SendCode(ctx context.Context, countryCode, digits, name string) (verify.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return verify.Challenge{}, err
	}
	if s.engine.Identity() != nil {
		return verify.Challenge{}, ErrAlreadyLoggedIn
	}
	if countryCode == "" {
		countryCode = s.countryCode
	}
	phone, err := verify.NormalizePhone(countryCode, digits)
	if err != nil {
		return verify.Challenge{}, err
	}
	ch, err := s.verifier.SendCode(ctx, phone)
	if err != nil {
		return verify.Challenge{}, err
	}
	s.pending = &pendingLogin{phone: phone, name: verify.SanitizeName(name)}
	if s.machine.Current() != status.AwaitingCode {
		_ = s.machine.Transition(status.AwaitingCode)
	}
	return ch, nil
}

// Verify checks code against the pending sign-in and logs the tab in.
func (s *Session) Verify(ctx context.Context, code string) (store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return store.Identity{}, err
	}
	if s.pending == nil {
		return store.Identity{}, ErrNoPendingCode
	}
	phone, err := s.verifier.VerifyCode(ctx, s.pending.phone, code)
	if err != nil {
		return store.Identity{}, err
	}
	id := store.NewIdentity(phone, s.pending.name)
	if err := s.engine.Login(id); err != nil {
		return store.Identity{}, err
	}
	s.pending = nil
	_ = s.machine.Transition(status.SignedIn)
	return id, nil
}

// CancelLogin abandons a pending code.
func (s *Session) CancelLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return
	}
	s.pending = nil
	_ = s.machine.Transition(status.SignedOut)
}

// Logout signs the tab out. It is a no-op when signed out.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.engine.Identity() == nil {
		return nil
	}
	if err := s.engine.Logout(); err != nil {
		return err
	}
	return s.machine.Transition(status.SignedOut)
}

// Send composes a message from text and uploads. Blank text without uploads
// is ignored and returns nil. Uploads are persisted first; one that cannot be
// stored is logged and left out of the message.
func (s *Session) Send(ctx context.Context, text string, uploads []Upload) (*store.Message, error) {
	if err := s.checkOpenLocked(); err != nil {
		return nil, err
	}
	me := s.engine.Identity()
	if me == nil {
		return nil, ErrNotLoggedIn
	}
	text = strings.TrimSpace(text)
	if text == "" && len(uploads) == 0 {
		return nil, nil
	}

	refs := make([]store.AttachmentRef, 0, len(uploads))
	for _, u := range uploads {
		ref, err := s.persist(ctx, u)
		if err != nil {
			s.logger.Warn("attachment not stored", zap.String("name", u.Name), zap.Error(err))
			continue
		}
		refs = append(refs, ref)
	}

	msg := store.Message{
		ID:          uuid.NewString(),
		From:        me.Phone,
		FromName:    me.Name,
		Text:        text,
		TS:          s.now().UTC(),
		Attachments: refs,
	}
	if err := s.engine.AppendLocal(msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Session) checkOpenLocked() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkOpen()
}

func (s *Session) persist(ctx context.Context, u Upload) (store.AttachmentRef, error) {
	if s.maxAttachment > 0 && int64(len(u.Data)) > s.maxAttachment {
		return store.AttachmentRef{}, fmt.Errorf("%s is %d bytes, limit %d", u.Name, len(u.Data), s.maxAttachment)
	}
	name := u.Name
	if name == "" {
		name = "file"
	}
	id, err := s.blobs.Put(ctx, u.Data, name, u.Type)
	if err != nil {
		return store.AttachmentRef{}, err
	}
	return store.AttachmentRef{ID: id, Name: name, Type: u.Type, Size: int64(len(u.Data))}, nil
}

// Attachment loads an attachment with the tab's retry policy.
func (s *Session) Attachment(ctx context.Context, id string) blob.Result {
	return s.loader.Load(ctx, id)
}

// Messages returns the tab's message log in arrival order.
func (s *Session) Messages() []store.Message { return s.engine.Messages() }

// Presence returns the active users, most recently seen first.
func (s *Session) Presence() []store.PresenceEntry {
	return presence.Active(s.engine.Presence(), s.now(), s.window)
}

// SetFocus marks the tab foreground or background.
func (s *Session) SetFocus(focused bool) { s.engine.SetFocus(focused) }

// Title returns the window title for the tab.
func (s *Session) Title() string { return s.engine.Title() }

// Info snapshots the tab.
func (s *Session) Info() Info {
	return Info{
		Tab:       s.id,
		State:     s.machine.Current(),
		Identity:  s.engine.Identity(),
		Unread:    s.engine.Unread(),
		Focused:   s.engine.Focused(),
		Title:     s.engine.Title(),
		Messages:  len(s.engine.Messages()),
		StartedAt: s.startedAt,
	}
}

// Watch subscribes to the tab's notifications.
func (s *Session) Watch(bufSize int) (<-chan bus.Event, func()) {
	return s.bus.Subscribe("tab."+s.id+".", bufSize)
}

func (s *Session) owner() string {
	if me := s.engine.Identity(); me != nil {
		return me.Phone
	}
	return ""
}

// Charts lists charts newest first.
func (s *Session) Charts(ctx context.Context) ([]chart.Chart, error) {
	return s.charts.List(ctx)
}

// WatchCharts emits the chart list now and after every change until ctx
// ends or the tab closes. The channel is closed either way.
func (s *Session) WatchCharts(ctx context.Context) (<-chan []chart.Chart, error) {
	ctx, cancel := context.WithCancel(ctx)
	snaps, err := s.charts.Subscribe(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	go func() {
		defer cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}()
	return snaps, nil
}

// CreateChart parses csv and stores a chart owned by the signed-in phone,
// or by nobody when signed out.
func (s *Session) CreateChart(ctx context.Context, title, typ, csv string) (chart.Chart, error) {
	c, err := chart.New(title, typ, csv, s.owner())
	if err != nil {
		return chart.Chart{}, err
	}
	return s.charts.Add(ctx, c)
}

// DeleteChart removes a chart owned by the signed-in phone.
func (s *Session) DeleteChart(ctx context.Context, id string) error {
	return s.charts.Delete(ctx, id, s.owner())
}

// ExportChart renders a chart to PNG and returns its download name.
func (s *Session) ExportChart(ctx context.Context, id string) (string, []byte, error) {
	charts, err := s.charts.List(ctx)
	if err != nil {
		return "", nil, err
	}
	for _, c := range charts {
		if c.ID != id {
			continue
		}
		var buf bytes.Buffer
		if err := chart.Export(c, &buf); err != nil {
			return "", nil, fmt.Errorf("export chart: %w", err)
		}
		return c.FileName(), buf.Bytes(), nil
	}
	return "", nil, chart.ErrNotFound
}

// Close stops the tab. The presence entry is left to age out.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pending = nil
	close(s.done)
	s.mu.Unlock()

	s.tracker.Stop()
	s.engine.Stop()
	_ = s.machine.Transition(status.Closed)

	var errs []error
	if err := s.ch.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if s.ownsCharts {
		if err := s.charts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close charts: %w", err))
		}
	}
	s.logger.Info("tab closed")
	return errors.Join(errs...)
}
