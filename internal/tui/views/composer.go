package views

import (
	"fmt"
	"path/filepath"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/qchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages. Files queued with
// Attach go out with the next send.
type Composer struct {
	*tview.InputField
	attachments []string
	onSend      func(text string, attachments []string)
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.AccentColor)
	input.SetBackgroundColor(theme.BgColor)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || c.onSend == nil {
			return
		}
		text := c.GetText()
		if text == "" && len(c.attachments) == 0 {
			return
		}
		c.onSend(text, c.attachments)
		c.SetText("")
		c.ClearAttachments()
	})

	return c
}

// SetOnSend sets the callback when a message is sent.
func (c *Composer) SetOnSend(fn func(text string, attachments []string)) {
	c.onSend = fn
}

// Attach queues a file for the next message.
func (c *Composer) Attach(path string) {
	c.attachments = append(c.attachments, path)
	c.updateLabel()
}

// ClearAttachments drops queued files.
func (c *Composer) ClearAttachments() {
	c.attachments = nil
	c.updateLabel()
}

func (c *Composer) updateLabel() {
	switch len(c.attachments) {
	case 0:
		c.SetLabel(" > ")
	case 1:
		c.SetLabel(fmt.Sprintf(" [%s] > ", filepath.Base(c.attachments[0])))
	default:
		c.SetLabel(fmt.Sprintf(" [%d files] > ", len(c.attachments)))
	}
}
