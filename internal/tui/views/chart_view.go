package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/tui/ui"
	"github.com/rivo/tview"
)

var chartTypes = []string{chart.TypeLine, chart.TypeBar, chart.TypePie, chart.TypeDoughnut}

// ChartView lists charts and hosts the create form.
type ChartView struct {
	*tview.Flex
	theme  *ui.Theme
	table  *tview.Table
	form   *tview.Form
	charts []chart.Chart

	onCreate func(title, typ, csv string)
}

// NewChartView creates the charts page.
func NewChartView(theme *ui.Theme) *ChartView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Charts ")
	table.SetBorderColor(theme.BorderColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetBackgroundColor(theme.BgColor)

	form := tview.NewForm()
	form.SetBorder(true).SetTitle(" New chart ")
	form.SetBorderColor(theme.BorderColor)
	form.SetTitleColor(theme.TitleColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldBackgroundColor(theme.BorderColor)
	form.SetButtonBackgroundColor(theme.AccentColor)

	cv := &ChartView{
		Flex: tview.NewFlex().
			AddItem(table, 0, 3, true).
			AddItem(form, 44, 0, false),
		theme: theme,
		table: table,
		form:  form,
	}
	cv.resetForm()
	cv.Update(nil)
	return cv
}

// SetOnCreate sets the callback for the create form.
func (cv *ChartView) SetOnCreate(fn func(title, typ, csv string)) { cv.onCreate = fn }

// Table returns the focusable chart list.
func (cv *ChartView) Table() *tview.Table { return cv.table }

// Form returns the focusable create form.
func (cv *ChartView) Form() *tview.Form { return cv.form }

func (cv *ChartView) resetForm() {
	cv.form.Clear(true)
	cv.form.
		AddInputField("Title", "", 30, nil, nil).
		AddDropDown("Type", chartTypes, 0, nil).
		AddTextArea("CSV", "", 30, 8, 0, nil).
		AddButton("Create", func() {
			title := cv.form.GetFormItemByLabel("Title").(*tview.InputField).GetText()
			_, typ := cv.form.GetFormItemByLabel("Type").(*tview.DropDown).GetCurrentOption()
			csv := cv.form.GetFormItemByLabel("CSV").(*tview.TextArea).GetText()
			if cv.onCreate != nil {
				cv.onCreate(title, typ, csv)
			}
		})
}

// ClearForm empties the create form after a successful create.
func (cv *ChartView) ClearForm() { cv.resetForm() }

// Update redraws the list, newest first.
func (cv *ChartView) Update(charts []chart.Chart) {
	cv.charts = charts
	row, _ := cv.table.GetSelection()
	cv.table.Clear()

	headers := []string{"TITLE", "TYPE", "POINTS", "OWNER", "CREATED"}
	for i, h := range headers {
		cv.table.SetCell(0, i, tview.NewTableCell(h).
			SetTextColor(cv.theme.AccentColor).
			SetSelectable(false).
			SetExpansion(1))
	}
	for i, c := range charts {
		owner := c.OwnerPhone
		if owner == "" {
			owner = "-"
		}
		cells := []string{
			c.DisplayTitle(),
			c.Type,
			fmt.Sprint(len(c.Data.Labels)),
			owner,
			time.UnixMilli(c.CreatedAt).Format("Jan 2 15:04"),
		}
		for j, text := range cells {
			cv.table.SetCell(i+1, j, tview.NewTableCell(tview.Escape(sanitizeForTerminal(text))).
				SetTextColor(cv.theme.FgColor).
				SetExpansion(1))
		}
	}
	cv.table.SetTitle(fmt.Sprintf(" Charts (%d) ", len(charts)))
	if row < 1 {
		row = 1
	}
	if row > len(charts) {
		row = len(charts)
	}
	if len(charts) > 0 {
		cv.table.Select(row, 0)
	}
}

// Selected returns the highlighted chart.
func (cv *ChartView) Selected() (chart.Chart, bool) {
	row, _ := cv.table.GetSelection()
	if row < 1 || row > len(cv.charts) {
		return chart.Chart{}, false
	}
	return cv.charts[row-1], true
}
