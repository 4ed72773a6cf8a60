package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/qchat/internal/tui/ui"
	"github.com/rivo/tview"
)

const productTitle = "QuickChat — Phone Login Demo"

// LoginView is the two-step phone sign-in form.
type LoginView struct {
	*tview.Flex
	theme *ui.Theme
	info  *tview.TextView
	form  *tview.Form

	countryCode string

	onSendCode func(countryCode, phone, name string)
	onVerify   func(code string)
	onBack     func()
}

// NewLoginView creates the sign-in page prefilled with countryCode.
func NewLoginView(theme *ui.Theme, countryCode string) *LoginView {
	info := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	info.SetBackgroundColor(theme.BgColor)

	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetTitle(" " + productTitle + " ")
	form.SetTitleColor(theme.TitleColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldBackgroundColor(theme.BorderColor)
	form.SetButtonBackgroundColor(theme.AccentColor)

	box := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(info, 3, 0, false).
		AddItem(form, 13, 0, true).
		AddItem(nil, 0, 1, false)

	lv := &LoginView{
		Flex: tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(box, 56, 0, true).
			AddItem(nil, 0, 1, false),
		theme:       theme,
		info:        info,
		form:        form,
		countryCode: countryCode,
	}
	lv.ShowPhoneStep("")
	return lv
}

// SetOnSendCode sets the callback for the phone step.
func (lv *LoginView) SetOnSendCode(fn func(countryCode, phone, name string)) { lv.onSendCode = fn }

// SetOnVerify sets the callback for the code step.
func (lv *LoginView) SetOnVerify(fn func(code string)) { lv.onVerify = fn }

// SetOnBack sets the callback for leaving the code step.
func (lv *LoginView) SetOnBack(fn func()) { lv.onBack = fn }

// Form returns the focusable form.
func (lv *LoginView) Form() *tview.Form { return lv.form }

// ShowPhoneStep asks for country code, phone digits and display name.
func (lv *LoginView) ShowPhoneStep(msg string) {
	lv.setInfo("Sign in with your phone number", msg)
	lv.form.Clear(true)
	lv.form.
		AddInputField("Country", lv.countryCode, 8, nil, nil).
		AddInputField("Phone", "", 20, digitsOnly, nil).
		AddInputField("Name", "", 30, nil, nil).
		AddButton("Send code", func() {
			cc := lv.form.GetFormItemByLabel("Country").(*tview.InputField).GetText()
			phone := lv.form.GetFormItemByLabel("Phone").(*tview.InputField).GetText()
			name := lv.form.GetFormItemByLabel("Name").(*tview.InputField).GetText()
			lv.countryCode = strings.TrimSpace(cc)
			if lv.onSendCode != nil {
				lv.onSendCode(lv.countryCode, phone, name)
			}
		})
	lv.form.SetFocus(1)
}

// ShowCodeStep asks for the code sent to phone. testCode is shown when the
// local verifier is in use.
func (lv *LoginView) ShowCodeStep(phone, testCode, msg string) {
	head := fmt.Sprintf("Enter the code sent to [::b]%s[-:-:-]", tview.Escape(phone))
	if testCode != "" {
		head += fmt.Sprintf("\n[%s]Test code: %s[-]", ui.Tag(lv.theme.UnreadColor), testCode)
	}
	lv.setInfo(head, msg)
	lv.form.Clear(true)
	lv.form.
		AddInputField("Code", "", 8, digitsOnly, nil).
		AddButton("Verify", func() {
			code := lv.form.GetFormItemByLabel("Code").(*tview.InputField).GetText()
			if lv.onVerify != nil {
				lv.onVerify(code)
			}
		}).
		AddButton("Change number", func() {
			if lv.onBack != nil {
				lv.onBack()
			}
		})
	lv.form.SetFocus(0)
}

func (lv *LoginView) setInfo(head, msg string) {
	lv.info.Clear()
	_, _ = fmt.Fprint(lv.info, head)
	if msg != "" {
		_, _ = fmt.Fprintf(lv.info, "\n[%s]%s[-]", ui.Tag(lv.theme.FlashErrColor), tview.Escape(msg))
	}
}

func digitsOnly(_ string, last rune) bool {
	return last >= '0' && last <= '9'
}
