package model

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/status"
	"github.com/matheus3301/qchat/internal/store"
	intsync "github.com/matheus3301/qchat/internal/sync"
	"github.com/matheus3301/qchat/internal/tui/client"
)

// Reload is a set of views that need fresh data after an event.
type Reload uint8

const (
	ReloadStatus Reload = 1 << iota
	ReloadMessages
	ReloadPresence
)

// ReloadFor maps a tab event kind to the data it invalidates.
func ReloadFor(kind string) Reload {
	switch kind {
	case rpc.EventSnapshot:
		return ReloadStatus | ReloadMessages | ReloadPresence
	case intsync.KindMessagesChanged:
		return ReloadMessages | ReloadStatus
	case intsync.KindPresenceChanged:
		return ReloadPresence
	case intsync.KindIdentityChanged, status.KindStatusChanged:
		return ReloadStatus | ReloadPresence
	case intsync.KindAttention:
		return ReloadStatus
	default:
		return 0
	}
}

// ViewModel caches one tab's state from the daemon and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client   *client.Client
	tab      string
	status   *rpc.Status
	messages []store.Message
	presence []store.PresenceEntry
	charts   []chart.Chart
	testCode string
	pending  string

	Flash Flash

	refreshCh chan Reload
}

// NewViewModel creates a view model for tab. An empty tab means the main tab.
func NewViewModel(c *client.Client, tab string) *ViewModel {
	return &ViewModel{
		client:    c,
		tab:       tab,
		refreshCh: make(chan Reload, 16),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan Reload {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh(r Reload) {
	select {
	case vm.refreshCh <- r:
	default:
	}
}

// Load fetches the parts of the tab named by r.
func (vm *ViewModel) Load(ctx context.Context, r Reload) error {
	var errs []error
	if r&ReloadStatus != 0 {
		errs = append(errs, vm.loadStatus(ctx))
	}
	if r&ReloadMessages != 0 {
		errs = append(errs, vm.loadMessages(ctx))
	}
	if r&ReloadPresence != 0 {
		errs = append(errs, vm.loadPresence(ctx))
	}
	vm.signalRefresh(r)
	return errors.Join(errs...)
}

func (vm *ViewModel) loadStatus(ctx context.Context) error {
	resp, err := vm.client.Session.GetStatus(ctx, &rpc.GetStatusRequest{Tab: vm.tab})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	if resp.State != string(status.AwaitingCode) {
		vm.testCode, vm.pending = "", ""
	}
	vm.mu.Unlock()
	return nil
}

func (vm *ViewModel) loadMessages(ctx context.Context) error {
	resp, err := vm.client.Message.ListMessages(ctx, &rpc.ListMessagesRequest{Tab: vm.tab})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.messages = resp.Messages
	vm.mu.Unlock()
	return nil
}

func (vm *ViewModel) loadPresence(ctx context.Context) error {
	resp, err := vm.client.Session.ListPresence(ctx, &rpc.ListPresenceRequest{Tab: vm.tab})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.presence = resp.Entries
	vm.mu.Unlock()
	return nil
}

// Watch follows the tab's events and reloads what each invalidates until
// the stream ends. The first event is a snapshot, so the model is fully
// loaded once Watch has received it.
func (vm *ViewModel) Watch(ctx context.Context) error {
	stream, err := vm.client.Session.WatchEvents(ctx, &rpc.WatchEventsRequest{Tab: vm.tab})
	if err != nil {
		return err
	}
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if ev.Kind == intsync.KindAttention && ev.Flash {
			vm.Flash.Info("New message")
		}
		if err := vm.Load(ctx, ReloadFor(ev.Kind)); err != nil {
			vm.Flash.Err(err)
		}
	}
}

// WatchCharts keeps the chart list current until the stream ends.
func (vm *ViewModel) WatchCharts(ctx context.Context) error {
	stream, err := vm.client.Chart.WatchCharts(ctx, &rpc.WatchChartsRequest{Tab: vm.tab})
	if err != nil {
		return err
	}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		vm.mu.Lock()
		vm.charts = resp.Charts
		vm.mu.Unlock()
		vm.signalRefresh(0)
	}
}

// SendCode starts sign-in. With the local verifier the code is kept for display.
func (vm *ViewModel) SendCode(ctx context.Context, countryCode, phone, name string) (*rpc.SendCodeResponse, error) {
	resp, err := vm.client.Session.SendCode(ctx, &rpc.SendCodeRequest{
		Tab:         vm.tab,
		CountryCode: countryCode,
		Phone:       phone,
		Name:        name,
	})
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.testCode, vm.pending = resp.Code, resp.Phone
	vm.mu.Unlock()
	return resp, nil
}

// Verify submits the code for the pending sign-in.
func (vm *ViewModel) Verify(ctx context.Context, code string) (store.Identity, error) {
	resp, err := vm.client.Session.Verify(ctx, &rpc.VerifyRequest{Tab: vm.tab, Code: code})
	if err != nil {
		return store.Identity{}, err
	}
	return resp.Identity, nil
}

// CancelLogin drops the pending code so another phone can be entered.
func (vm *ViewModel) CancelLogin(ctx context.Context) error {
	_, err := vm.client.Session.CancelLogin(ctx, &rpc.CancelLoginRequest{Tab: vm.tab})
	return err
}

// Logout signs the tab out.
func (vm *ViewModel) Logout(ctx context.Context) error {
	_, err := vm.client.Session.Logout(ctx, &rpc.LogoutRequest{Tab: vm.tab})
	return err
}

// SetFocus reports terminal focus so unread counting matches what the user sees.
func (vm *ViewModel) SetFocus(ctx context.Context, focused bool) error {
	_, err := vm.client.Session.SetFocus(ctx, &rpc.SetFocusRequest{Tab: vm.tab, Focused: focused})
	return err
}

// Send posts a message. It reports false when there was nothing to send.
func (vm *ViewModel) Send(ctx context.Context, text string, uploads []rpc.Upload) (bool, error) {
	resp, err := vm.client.Message.SendMessage(ctx, &rpc.SendMessageRequest{
		Tab:         vm.tab,
		Text:        text,
		Attachments: uploads,
	})
	if err != nil {
		return false, err
	}
	return resp.Message != nil, nil
}

// Attachment loads an attachment with the daemon's retry policy.
func (vm *ViewModel) Attachment(ctx context.Context, id string) (*rpc.GetAttachmentResponse, error) {
	return vm.client.Message.GetAttachment(ctx, &rpc.GetAttachmentRequest{Tab: vm.tab, ID: id})
}

// CreateChart stores a chart parsed from label,value CSV.
func (vm *ViewModel) CreateChart(ctx context.Context, title, typ, csv string) (chart.Chart, error) {
	resp, err := vm.client.Chart.CreateChart(ctx, &rpc.CreateChartRequest{Tab: vm.tab, Title: title, Type: typ, CSV: csv})
	if err != nil {
		return chart.Chart{}, err
	}
	return resp.Chart, nil
}

// DeleteChart removes a chart the signed-in user owns.
func (vm *ViewModel) DeleteChart(ctx context.Context, id string) error {
	_, err := vm.client.Chart.DeleteChart(ctx, &rpc.DeleteChartRequest{Tab: vm.tab, ID: id})
	return err
}

// ExportChart renders a chart to PNG.
func (vm *ViewModel) ExportChart(ctx context.Context, id string) (*rpc.ExportChartResponse, error) {
	return vm.client.Chart.ExportChart(ctx, &rpc.ExportChartRequest{Tab: vm.tab, ID: id})
}

// Status returns the last fetched tab status, or nil before the first load.
func (vm *ViewModel) Status() *rpc.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Messages returns the cached message log.
func (vm *ViewModel) Messages() []store.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// Presence returns the cached online users.
func (vm *ViewModel) Presence() []store.PresenceEntry {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.presence
}

// Charts returns the cached chart list.
func (vm *ViewModel) Charts() []chart.Chart {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.charts
}

// TestCode returns the code shown by the local verifier, if any.
func (vm *ViewModel) TestCode() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.testCode
}

// PendingPhone returns the phone a code was last sent to while awaiting it.
func (vm *ViewModel) PendingPhone() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.pending
}
