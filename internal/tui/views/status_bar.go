package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/tui/model"
	"github.com/matheus3301/qchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays profile, tab state, unread count and flash messages.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	status  *rpc.Status
	flash   *model.FlashMessage
	hints   []string
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BorderColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetStatus updates the tab status display.
func (sb *StatusBar) SetStatus(st *rpc.Status) {
	sb.status = st
	sb.render()
}

// SetFlash sets or clears the transient message.
func (sb *StatusBar) SetFlash(msg *model.FlashMessage) {
	sb.flash = msg
	sb.render()
}

// SetHints updates the key hints shown when no flash is active.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	line := fmt.Sprintf(" [::b]%s[-:-:-]", sb.profile)
	if st := sb.status; st != nil {
		line += fmt.Sprintf(" | %s | %s", st.Tab, st.State)
		if st.Identity != nil {
			line += " | " + tview.Escape(st.Identity.Name)
		}
		if st.Unread > 0 {
			line += fmt.Sprintf(" | [%s::b]%d unread[-:-:-]", ui.Tag(sb.theme.UnreadColor), st.Unread)
		}
	}
	line += " | " + time.Now().Format("15:04")

	if sb.flash != nil {
		line += fmt.Sprintf(" | [%s]%s[-]", sb.flashColor(sb.flash.Level), tview.Escape(sb.flash.Text))
	} else if len(sb.hints) > 0 {
		line += fmt.Sprintf(" | [%s]%s[-]", ui.Tag(sb.theme.MutedColor), strings.Join(sb.hints, "  "))
	}

	_, _ = fmt.Fprint(sb, line)
}

func (sb *StatusBar) flashColor(level model.FlashLevel) string {
	switch level {
	case model.FlashWarn:
		return ui.Tag(sb.theme.FlashWarnColor)
	case model.FlashErr:
		return ui.Tag(sb.theme.FlashErrColor)
	default:
		return ui.Tag(sb.theme.FlashInfoColor)
	}
}
