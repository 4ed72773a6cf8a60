package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/qchat/internal/store"
	"github.com/matheus3301/qchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// PresenceView lists users seen in the last minute.
type PresenceView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewPresenceView creates a new presence panel.
func NewPresenceView(theme *ui.Theme) *PresenceView {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBorder(true).SetTitle(" Online ")
	tv.SetBorderColor(theme.BorderColor)
	tv.SetTitleColor(theme.TitleColor)
	tv.SetBackgroundColor(theme.BgColor)

	return &PresenceView{TextView: tv, theme: theme}
}

// Update redraws the panel from entries ordered most recent first.
func (pv *PresenceView) Update(entries []store.PresenceEntry, myPhone string, now time.Time) {
	pv.Clear()
	pv.SetTitle(fmt.Sprintf(" Online (%d) ", len(entries)))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.Phone
		}
		if e.Phone == myPhone {
			name += " (you)"
		}
		dot := ui.Tag(ui.ParseHSL(e.Color, pv.theme.OnlineColor))
		ago := now.Sub(time.UnixMilli(e.LastSeen)).Round(time.Second)
		_, _ = fmt.Fprintf(pv, "[%s]●[-] %s\n  [%s]%s · %s ago[-]\n",
			dot, tview.Escape(sanitizeForTerminal(name)),
			ui.Tag(pv.theme.MutedColor), e.Phone, ago)
	}
}
