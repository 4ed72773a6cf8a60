package views

import (
	"fmt"

	"github.com/matheus3301/qchat/internal/store"
	"github.com/matheus3301/qchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageView displays the tab's message log, oldest first.
type MessageView struct {
	*tview.TextView
	theme *ui.Theme
	count int
}

// NewMessageView creates a new message view.
func NewMessageView(theme *ui.Theme) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")
	tv.SetBorderColor(theme.BorderColor)
	tv.SetTitleColor(theme.TitleColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)

	return &MessageView{TextView: tv, theme: theme}
}

// Update redraws the log. It only jumps to the end when new messages arrived.
func (mv *MessageView) Update(msgs []store.Message, myPhone string) {
	mv.Clear()
	if len(msgs) == 0 {
		_, _ = fmt.Fprintf(mv, "[%s]No messages yet. Press i to say hello.[-]", ui.Tag(mv.theme.MutedColor))
	}
	for _, m := range msgs {
		_, _ = fmt.Fprint(mv, formatMessage(m, myPhone, mv.theme))
	}
	mv.SetTitle(fmt.Sprintf(" Messages (%d) ", len(msgs)))
	if len(msgs) != mv.count {
		mv.ScrollToEnd()
	}
	mv.count = len(msgs)
}
