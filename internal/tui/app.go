package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/qchat/internal/blob"
	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/status"
	"github.com/matheus3301/qchat/internal/tui/client"
	"github.com/matheus3301/qchat/internal/tui/keys"
	"github.com/matheus3301/qchat/internal/tui/model"
	"github.com/matheus3301/qchat/internal/tui/ui"
	"github.com/matheus3301/qchat/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageLogin  = "login"
	pageChat   = "chat"
	pageCharts = "charts"
)

// Options configures the TUI.
type Options struct {
	Profile     string
	Tab         string
	CountryCode string
	// DownloadDir receives fetched attachments and exported charts.
	DownloadDir string
	// Logger must not write to the terminal. Nil discards.
	Logger *zap.Logger
}

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	root      *tview.Flex
	vm        *model.ViewModel
	registry  *keys.Registry
	theme     *ui.Theme
	statusBar *views.StatusBar
	login     *views.LoginView
	msgView   *views.MessageView
	presence  *views.PresenceView
	composer  *views.Composer
	charts    *views.ChartView
	prompt    *ui.Prompt
	opts      Options
	ctx       context.Context
	cancel    context.CancelFunc

	// codeStep is true while the login page shows the code form.
	codeStep bool
	focused  bool
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(c, opts.Tab),
		registry:  keys.NewRegistry(),
		theme:     theme,
		statusBar: views.NewStatusBar(theme),
		login:     views.NewLoginView(theme, opts.CountryCode),
		msgView:   views.NewMessageView(theme),
		presence:  views.NewPresenceView(theme),
		composer:  views.NewComposer(theme),
		charts:    views.NewChartView(theme),
		prompt:    ui.NewPrompt(theme),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		focused:   true,
	}

	a.statusBar.SetProfile(opts.Profile)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Description: ":command", Visible: true,
		Handler: a.showPrompt,
	})
	a.registry.AddView(pageChat, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.composer.InputField) },
	})
	a.registry.AddView(pageChat, &keys.Action{
		Key: tcell.KeyRune, Rune: 'c',
		Description: "c:charts", Visible: true,
		Handler: func() { a.switchTo(pageCharts) },
	})
	a.registry.AddView(pageCharts, &keys.Action{
		Key: tcell.KeyRune, Rune: 'n',
		Description: "n:new", Visible: true,
		Handler: func() { a.app.SetFocus(a.charts.Form()) },
	})
	a.registry.AddView(pageCharts, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Description: "d:delete", Visible: true,
		Handler: a.deleteSelectedChart,
	})
	a.registry.AddView(pageCharts, &keys.Action{
		Key: tcell.KeyRune, Rune: 'e',
		Description: "e:export", Visible: true,
		Handler: a.exportSelectedChart,
	})
}

func (a *App) setupCallbacks() {
	a.login.SetOnSendCode(func(countryCode, phone, name string) {
		go a.sendCode(countryCode, phone, name)
	})
	a.login.SetOnVerify(func(code string) {
		go func() {
			id, err := a.vm.Verify(a.ctx, code)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.login.ShowCodeStep(a.pendingPhone(), a.vm.TestCode(), err.Error())
					return
				}
				a.vm.Flash.Info("Signed in as " + id.Name)
			})
		}()
	})
	a.login.SetOnBack(func() {
		go func() {
			if err := a.vm.CancelLogin(a.ctx); err != nil {
				a.vm.Flash.Err(err)
			}
			a.app.QueueUpdateDraw(func() {
				a.codeStep = false
				a.login.ShowPhoneStep("")
			})
		}()
	})

	a.composer.SetOnSend(func(text string, paths []string) {
		go a.send(text, paths)
	})

	a.charts.SetOnCreate(func(title, typ, csv string) {
		go func() {
			c, err := a.vm.CreateChart(a.ctx, title, typ, csv)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.vm.Flash.Err(err)
					a.refreshStatusBar()
					return
				}
				a.vm.Flash.Info("Created " + c.DisplayTitle())
				a.charts.ClearForm()
				a.app.SetFocus(a.charts.Table())
				a.refreshStatusBar()
			})
		}()
	})

	a.prompt.SetOnSubmit(func(text string) {
		a.hidePrompt()
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) setupLayout() {
	side := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)
	chat := tview.NewFlex().
		AddItem(side, 0, 1, true).
		AddItem(a.presence, 32, 0, false)

	a.pages.AddPage(pageLogin, a.login, true, true)
	a.pages.AddPage(pageChat, chat, true, false)
	a.pages.AddPage(pageCharts, a.charts, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetFocus(a.login.Form())
	a.statusBar.SetHints(a.registry.Hints(pageLogin))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		page, _ := a.pages.GetFrontPage()
		focused := a.app.GetFocus()

		if event.Key() == tcell.KeyEscape {
			switch {
			case focused == a.prompt.InputField:
				return event
			case page == pageCharts:
				a.switchTo(pageChat)
				return nil
			case page == pageChat && focused == a.composer.InputField:
				a.app.SetFocus(a.msgView)
				return nil
			}
		}
		if event.Key() == tcell.KeyTab && page == pageCharts {
			if focused == a.charts.Table() {
				a.app.SetFocus(a.charts.Form())
				return nil
			}
		}
		if event.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}

		// Let text input widgets handle all keys normally.
		switch focused.(type) {
		case *tview.InputField, *tview.TextArea, *tview.DropDown, *tview.Button:
			return event
		}
		if a.registry.HandleEvent(page, event) {
			return nil
		}
		return event
	})
}

func (a *App) switchTo(page string) {
	a.pages.SwitchToPage(page)
	switch page {
	case pageLogin:
		a.app.SetFocus(a.login.Form())
	case pageChat:
		a.app.SetFocus(a.msgView)
	case pageCharts:
		a.charts.Update(a.vm.Charts())
		a.app.SetFocus(a.charts.Table())
	}
	a.statusBar.SetHints(a.registry.Hints(page))
	a.syncFocus(page == pageChat)
}

// syncFocus tells the daemon whether the message log is on screen so unread
// counting follows what the user sees.
func (a *App) syncFocus(focused bool) {
	if a.focused == focused {
		return
	}
	a.focused = focused
	go func() {
		if err := a.vm.SetFocus(a.ctx, focused); err != nil {
			a.vm.Flash.Err(err)
		}
	}()
}

func (a *App) showPrompt() {
	a.prompt.Activate()
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt.InputField)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	page, _ := a.pages.GetFrontPage()
	a.switchTo(page)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "login":
		args, err := ParseLogin(cmd.Args)
		if err != nil {
			a.vm.Flash.Warn(err.Error())
			break
		}
		go a.sendCode(args.CountryCode, args.Digits, args.Name)
	case "code":
		go func() {
			if _, err := a.vm.Verify(a.ctx, cmd.Args); err != nil {
				a.vm.Flash.Err(err)
			}
		}()
	case "cancel":
		go func() {
			if err := a.vm.CancelLogin(a.ctx); err != nil {
				a.vm.Flash.Err(err)
			}
		}()
	case "logout":
		go func() {
			if err := a.vm.Logout(a.ctx); err != nil {
				a.vm.Flash.Err(err)
			}
		}()
	case "attach":
		if cmd.Args == "" {
			a.vm.Flash.Warn("usage: attach <path>")
			break
		}
		a.composer.Attach(cmd.Args)
		a.vm.Flash.Info("Attached " + filepath.Base(cmd.Args))
	case "detach":
		a.composer.ClearAttachments()
	case "get":
		f := cmd.Fields()
		if len(f) == 0 {
			a.vm.Flash.Warn("usage: get <attachment-id> [path]")
			break
		}
		go a.fetchAttachment(f[0], f[1:])
	case "charts":
		a.switchTo(pageCharts)
	case "chat":
		a.switchTo(pageChat)
	default:
		a.vm.Flash.Warn(fmt.Sprintf("unknown command: %s", cmd.Name))
	}
	a.refreshStatusBar()
}

func (a *App) sendCode(countryCode, phone, name string) {
	resp, err := a.vm.SendCode(a.ctx, countryCode, phone, name)
	a.app.QueueUpdateDraw(func() {
		if err != nil {
			if a.codeStep {
				a.vm.Flash.Err(err)
				a.refreshStatusBar()
				return
			}
			a.login.ShowPhoneStep(err.Error())
			return
		}
		a.codeStep = true
		a.login.ShowCodeStep(resp.Phone, resp.Code, "")
		a.app.SetFocus(a.login.Form())
	})
}

func (a *App) pendingPhone() string {
	if p := a.vm.PendingPhone(); p != "" {
		return p
	}
	return "your phone"
}

func (a *App) send(text string, paths []string) {
	uploads, err := rpc.ReadUploads(paths)
	if err != nil {
		a.vm.Flash.Err(err)
		return
	}
	sent, err := a.vm.Send(a.ctx, text, uploads)
	if err != nil {
		a.vm.Flash.Err(err)
		return
	}
	if sent && len(uploads) > 0 {
		a.vm.Flash.Info(fmt.Sprintf("Sent with %d attachment(s)", len(uploads)))
	}
}

func (a *App) fetchAttachment(id string, rest []string) {
	a.vm.Flash.Info("Loading attachment...")
	resp, err := a.vm.Attachment(a.ctx, id)
	if err != nil {
		a.vm.Flash.Err(err)
		return
	}
	if resp.Outcome != blob.Found.String() {
		a.opts.Logger.Info("attachment not loaded", zap.String("id", id), zap.String("outcome", resp.Outcome), zap.Int("attempts", resp.Attempts))
		a.vm.Flash.Warn(fmt.Sprintf("Attachment %s after %d attempt(s)", resp.Outcome, resp.Attempts))
		return
	}
	out := filepath.Join(a.opts.DownloadDir, filepath.Base(resp.Name))
	if len(rest) > 0 {
		out = rest[0]
	}
	if err := os.WriteFile(out, resp.Data, 0o600); err != nil {
		a.vm.Flash.Err(err)
		return
	}
	a.vm.Flash.Info("Saved " + out)
}

func (a *App) deleteSelectedChart() {
	c, ok := a.charts.Selected()
	if !ok {
		return
	}
	go func() {
		if err := a.vm.DeleteChart(a.ctx, c.ID); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.vm.Flash.Info("Deleted " + c.DisplayTitle())
	}()
}

func (a *App) exportSelectedChart() {
	c, ok := a.charts.Selected()
	if !ok {
		return
	}
	go func() {
		resp, err := a.vm.ExportChart(a.ctx, c.ID)
		if err != nil {
			a.vm.Flash.Err(err)
			return
		}
		out := filepath.Join(a.opts.DownloadDir, filepath.Base(resp.FileName))
		if err := os.WriteFile(out, resp.PNG, 0o644); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.vm.Flash.Info("Exported " + out)
	}()
}

// render applies the view model to every widget and follows sign-in state
// between the login and chat pages. Must run on the UI goroutine.
func (a *App) render(r model.Reload) {
	st := a.vm.Status()
	myPhone := ""
	if st != nil && st.Identity != nil {
		myPhone = st.Identity.Phone
	}
	if r&model.ReloadMessages != 0 {
		a.msgView.Update(a.vm.Messages(), myPhone)
	}
	if r&model.ReloadPresence != 0 {
		a.presence.Update(a.vm.Presence(), myPhone, time.Now())
	}
	a.charts.Update(a.vm.Charts())

	if st != nil {
		page, _ := a.pages.GetFrontPage()
		switch status.State(st.State) {
		case status.SignedIn:
			a.codeStep = false
			if page == pageLogin {
				a.switchTo(pageChat)
			}
		case status.AwaitingCode:
			if page != pageLogin {
				a.switchTo(pageLogin)
			}
			if !a.codeStep {
				a.codeStep = true
				a.login.ShowCodeStep(a.pendingPhone(), a.vm.TestCode(), "")
			}
		case status.SignedOut:
			if page != pageLogin {
				a.switchTo(pageLogin)
			}
			if a.codeStep {
				a.codeStep = false
				a.login.ShowPhoneStep("")
			}
		}
	}
	a.refreshStatusBar()
}

func (a *App) refreshStatusBar() {
	a.statusBar.SetStatus(a.vm.Status())
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// Run starts the TUI application.
func (a *App) Run() error {
	a.opts.Logger.Info("tui starting", zap.String("tab", a.opts.Tab))
	defer a.opts.Logger.Info("tui stopped")
	go a.watch("events", a.vm.Watch)
	go a.watch("charts", a.vm.WatchCharts)
	go a.refreshLoop()
	return a.app.Run()
}

// watch restarts a stream with a short backoff until the app stops.
func (a *App) watch(name string, fn func(context.Context) error) {
	backoff := 500 * time.Millisecond
	for a.ctx.Err() == nil {
		if err := fn(a.ctx); err != nil && a.ctx.Err() == nil {
			a.opts.Logger.Warn("stream ended", zap.String("stream", name), zap.Error(err), zap.Duration("retry_in", backoff))
			a.vm.Flash.Err(fmt.Errorf("%s stream: %w", name, err))
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case r := <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(func() { a.render(r) })
		case <-ticker.C:
			// Ages in the presence panel, the clock and flash expiry.
			a.app.QueueUpdateDraw(func() { a.render(model.ReloadPresence) })
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
