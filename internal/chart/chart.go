// Package chart parses, stores and renders the small charts users share.
package chart

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrNotFound     = errors.New("chart: not found")
	ErrNotOwner     = errors.New("chart: only the owner may delete a chart")
	ErrEmptyData    = errors.New("chart: no label,value rows")
	ErrInvalidType  = errors.New("chart: unsupported chart type")
	ErrUnknownStore = errors.New("chart: unknown backend")
)

// Chart types.
const (
	TypeLine     = "line"
	TypeBar      = "bar"
	TypePie      = "pie"
	TypeDoughnut = "doughnut"
)

// Series colours used for parsed data.
const (
	SeriesFill   = "rgba(124,92,255,0.5)"
	SeriesBorder = "rgba(124,92,255,1)"
)

// Dataset is one series of values.
type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor string    `json:"backgroundColor,omitempty"`
	BorderColor     string    `json:"borderColor,omitempty"`
	Fill            bool      `json:"fill"`
}

// Data is the plotted content of a chart.
type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Chart is a shared chart document.
type Chart struct {
	ID         string `json:"id"`
	OwnerPhone string `json:"ownerPhone"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Data       Data   `json:"data"`
	CreatedAt  int64  `json:"createdAt"` // epoch ms
}

// Collection is a chart store with change snapshots.
type Collection interface {
	// List returns all charts, newest first.
	List(ctx context.Context) ([]Chart, error)
	// Add assigns an id and creation time and stores c.
	Add(ctx context.Context, c Chart) (Chart, error)
	// Delete removes a chart owned by requester.
	Delete(ctx context.Context, id, requester string) error
	// Subscribe emits the current list and a fresh list after every change
	// until ctx is done.
	Subscribe(ctx context.Context) (<-chan []Chart, error)
	Close() error
}

var fieldSep = regexp.MustCompile(`,|\t`)

// ParseCSV reads one "label,value" pair per line. Lines with fewer than two
// fields are skipped and values that do not parse count as 0.
func ParseCSV(csv string) Data {
	d := Data{Labels: []string{}}
	values := []float64{}
	for _, line := range strings.Split(csv, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := fieldSep.Split(line, -1)
		if len(parts) < 2 {
			continue
		}
		d.Labels = append(d.Labels, strings.TrimSpace(parts[0]))
		values = append(values, parseNumber(parts[1]))
	}
	d.Datasets = []Dataset{{
		Label:           "Series",
		Data:            values,
		BackgroundColor: SeriesFill,
		BorderColor:     SeriesBorder,
		Fill:            true,
	}}
	return d
}

// parseNumber reads a cell as a finite number. Integer literals with a
// 0x, 0o or 0b prefix are accepted; anything unparsable, NaN or infinite is 0
// so every value survives a JSON round trip.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		n, ierr := strconv.ParseInt(s, 0, 64)
		if ierr != nil || strings.Contains(s, "_") {
			return 0
		}
		return float64(n)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// NormalizeType maps an empty type to line and rejects unknown ones.
func NormalizeType(t string) (string, error) {
	switch t = strings.ToLower(strings.TrimSpace(t)); t {
	case "":
		return TypeLine, nil
	case TypeLine, TypeBar, TypePie, TypeDoughnut:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

// New builds an unsaved chart from CSV input.
func New(title, typ, csv, owner string) (Chart, error) {
	t, err := NormalizeType(typ)
	if err != nil {
		return Chart{}, err
	}
	data := ParseCSV(csv)
	if len(data.Labels) == 0 {
		return Chart{}, ErrEmptyData
	}
	return Chart{
		OwnerPhone: owner,
		Title:      strings.TrimSpace(title),
		Type:       t,
		Data:       data,
	}, nil
}

// DisplayTitle returns the title or "Untitled".
func (c Chart) DisplayTitle() string {
	if c.Title == "" {
		return "Untitled"
	}
	return c.Title
}

// FileName is the export file name for c.
func (c Chart) FileName() string {
	name := c.Title
	if name == "" {
		name = "chart"
	}
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	return name + ".png"
}

func sortNewest(cs []Chart) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].CreatedAt > cs[j].CreatedAt })
}

func checkOwner(c Chart, requester string) error {
	if requester == "" || c.OwnerPhone != requester {
		return ErrNotOwner
	}
	return nil
}
