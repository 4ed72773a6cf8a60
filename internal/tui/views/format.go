package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/qchat/internal/store"
	"github.com/matheus3301/qchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// humanSize formats n bytes as B, KB or MB with one decimal.
func humanSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

// formatMessage renders one message as tview markup. Messages from myPhone
// are labelled "You".
func formatMessage(m store.Message, myPhone string, theme *ui.Theme) string {
	sender := m.FromName
	if sender == "" {
		sender = m.From
	}
	color := ui.Tag(ui.ParseHSL(store.ColorFromPhone(m.From), theme.AccentColor))
	if m.From == myPhone && myPhone != "" {
		sender = "You"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [%s]%s[-]\n",
		color, tview.Escape(sanitizeForTerminal(sender)),
		ui.Tag(theme.MutedColor), m.TS.Local().Format(time.Kitchen))
	if m.Text != "" {
		b.WriteString(tview.Escape(sanitizeForTerminal(m.Text)))
		b.WriteString("\n")
	}
	for _, a := range m.Attachments {
		fmt.Fprintf(&b, "  [%s]+ %s (%s)[-] [%s]%s[-]\n",
			ui.Tag(theme.AccentColor), tview.Escape(sanitizeForTerminal(a.Name)), humanSize(a.Size),
			ui.Tag(theme.MutedColor), a.ID)
	}
	b.WriteString("\n")
	return b.String()
}
