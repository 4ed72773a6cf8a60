package chart

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"
)

// Export dimensions in pixels.
const (
	ExportWidth  = 800
	ExportHeight = 450
)

const margin = 40

var (
	white    = color.NRGBA{255, 255, 255, 255}
	axisGrey = color.NRGBA{200, 200, 200, 255}
)

// slicePalette colours pie and doughnut slices in order.
var slicePalette = []color.NRGBA{
	{124, 92, 255, 255},
	{255, 99, 132, 255},
	{54, 162, 235, 255},
	{255, 206, 86, 255},
	{75, 192, 192, 255},
	{255, 159, 64, 255},
	{153, 102, 255, 255},
	{201, 203, 207, 255},
}

// Export writes c as an 800x450 PNG.
func Export(c Chart, w io.Writer) error {
	if err := png.Encode(w, Render(c, ExportWidth, ExportHeight)); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Render draws c onto a w x h image with a white background.
func Render(c Chart, w, h int) *image.NRGBA {
	cv := &canvas{img: image.NewNRGBA(image.Rect(0, 0, w, h))}
	cv.fillRect(0, 0, w, h, white)

	switch c.Type {
	case TypeBar:
		cv.bars(c.Data)
	case TypePie:
		cv.pie(c.Data, 0)
	case TypeDoughnut:
		cv.pie(c.Data, 0.5)
	default:
		cv.lines(c.Data)
	}
	return cv.img
}

// ParseColor understands rgba(), rgb() and #rrggbb.
func ParseColor(s string) (color.NRGBA, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasPrefix(s, "#") && len(s) == 7 {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return color.NRGBA{}, false
		}
		return color.NRGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, true
	}
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return color.NRGBA{}, false
	}
	fn := s[:open]
	if fn != "rgb" && fn != "rgba" {
		return color.NRGBA{}, false
	}
	parts := strings.Split(s[open+1:end], ",")
	if len(parts) < 3 {
		return color.NRGBA{}, false
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || v < 0 || v > 255 {
			return color.NRGBA{}, false
		}
		ch[i] = uint8(v)
	}
	alpha := 1.0
	if len(parts) >= 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return color.NRGBA{}, false
		}
		alpha = math.Max(0, math.Min(1, a))
	}
	return color.NRGBA{ch[0], ch[1], ch[2], uint8(math.Round(alpha * 255))}, true
}

func colorOr(s string, def color.NRGBA) color.NRGBA {
	if c, ok := ParseColor(s); ok {
		return c
	}
	return def
}

type canvas struct {
	img *image.NRGBA
}

// blend paints c over the pixel at x,y.
func (cv *canvas) blend(x, y int, c color.NRGBA) {
	if !(image.Point{x, y}.In(cv.img.Rect)) {
		return
	}
	if c.A == 255 {
		cv.img.SetNRGBA(x, y, c)
		return
	}
	dst := cv.img.NRGBAAt(x, y)
	a := float64(c.A) / 255
	mix := func(s, d uint8) uint8 { return uint8(math.Round(float64(s)*a + float64(d)*(1-a))) }
	cv.img.SetNRGBA(x, y, color.NRGBA{mix(c.R, dst.R), mix(c.G, dst.G), mix(c.B, dst.B), 255})
}

func (cv *canvas) fillRect(x0, y0, x1, y1 int, c color.NRGBA) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			cv.blend(x, y, c)
		}
	}
}

func (cv *canvas) strokeRect(x0, y0, x1, y1 int, c color.NRGBA) {
	cv.line(float64(x0), float64(y0), float64(x1), float64(y0), 1, c)
	cv.line(float64(x1), float64(y0), float64(x1), float64(y1), 1, c)
	cv.line(float64(x1), float64(y1), float64(x0), float64(y1), 1, c)
	cv.line(float64(x0), float64(y1), float64(x0), float64(y0), 1, c)
}

// line draws a segment by stamping width x width squares along it.
func (cv *canvas) line(x0, y0, x1, y1 float64, width int, c color.NRGBA) {
	steps := int(math.Max(math.Abs(x1-x0), math.Abs(y1-y0)))
	if steps == 0 {
		steps = 1
	}
	half := width / 2
	seen := make(map[image.Point]bool)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		px := int(math.Round(x0 + (x1-x0)*t))
		py := int(math.Round(y0 + (y1-y0)*t))
		for dy := -half; dy < width-half; dy++ {
			for dx := -half; dx < width-half; dx++ {
				p := image.Point{px + dx, py + dy}
				if !seen[p] {
					seen[p] = true
					cv.blend(p.X, p.Y, c)
				}
			}
		}
	}
}

func (cv *canvas) dot(cx, cy float64, r int, c color.NRGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				cv.blend(int(math.Round(cx))+dx, int(math.Round(cy))+dy, c)
			}
		}
	}
}

// scale maps values to pixel rows inside the plot area; zero is always in range.
type scale struct {
	lo, hi     float64
	top, floor int
}

func newScale(d Data, top, floor int) scale {
	s := scale{top: top, floor: floor}
	for _, ds := range d.Datasets {
		for _, v := range ds.Data {
			s.lo = math.Min(s.lo, v)
			s.hi = math.Max(s.hi, v)
		}
	}
	if s.hi == s.lo {
		s.hi = s.lo + 1
	}
	return s
}

func (s scale) y(v float64) float64 {
	return float64(s.floor) - (v-s.lo)/(s.hi-s.lo)*float64(s.floor-s.top)
}

func (cv *canvas) axes(s scale) (left, right int) {
	b := cv.img.Rect
	left, right = margin, b.Dx()-margin
	cv.line(float64(left), float64(s.top), float64(left), float64(s.floor), 1, axisGrey)
	zero := s.y(0)
	cv.line(float64(left), zero, float64(right), zero, 1, axisGrey)
	return left, right
}

func (cv *canvas) lines(d Data) {
	b := cv.img.Rect
	s := newScale(d, margin, b.Dy()-margin)
	left, right := cv.axes(s)
	zero := s.y(0)

	for _, ds := range d.Datasets {
		n := len(ds.Data)
		if n == 0 {
			continue
		}
		xs := make([]float64, n)
		ys := make([]float64, n)
		for i, v := range ds.Data {
			if n == 1 {
				xs[i] = float64(left+right) / 2
			} else {
				xs[i] = float64(left) + float64(i)*float64(right-left)/float64(n-1)
			}
			ys[i] = s.y(v)
		}
		border := colorOr(ds.BorderColor, slicePalette[0])
		if ds.Fill {
			fill := colorOr(ds.BackgroundColor, color.NRGBA{border.R, border.G, border.B, 128})
			for i := 0; i+1 < n; i++ {
				for x := int(xs[i]); x < int(xs[i+1]); x++ {
					t := (float64(x) - xs[i]) / (xs[i+1] - xs[i])
					y := ys[i] + (ys[i+1]-ys[i])*t
					cv.fillRect(x, int(math.Round(y)), x+1, int(math.Round(zero)), fill)
				}
			}
		}
		for i := 0; i+1 < n; i++ {
			cv.line(xs[i], ys[i], xs[i+1], ys[i+1], 2, border)
		}
		for i := range xs {
			cv.dot(xs[i], ys[i], 3, border)
		}
	}
}

func (cv *canvas) bars(d Data) {
	b := cv.img.Rect
	s := newScale(d, margin, b.Dy()-margin)
	left, right := cv.axes(s)
	zero := int(math.Round(s.y(0)))

	n := len(d.Labels)
	for _, ds := range d.Datasets {
		n = max(n, len(ds.Data))
	}
	if n == 0 || len(d.Datasets) == 0 {
		return
	}
	slot := float64(right-left) / float64(n)
	barW := slot * 0.8 / float64(len(d.Datasets))
	for di, ds := range d.Datasets {
		border := colorOr(ds.BorderColor, slicePalette[di%len(slicePalette)])
		fill := colorOr(ds.BackgroundColor, border)
		for i, v := range ds.Data {
			x0 := int(float64(left) + float64(i)*slot + slot*0.1 + float64(di)*barW)
			x1 := int(float64(x0) + barW)
			y := int(math.Round(s.y(v)))
			cv.fillRect(x0, y, x1, zero, fill)
			cv.strokeRect(x0, min(y, zero), x1-1, max(y, zero), border)
		}
	}
}

// pie draws the first dataset; hole is the inner radius as a fraction of the outer.
func (cv *canvas) pie(d Data, hole float64) {
	if len(d.Datasets) == 0 {
		return
	}
	var total float64
	vals := d.Datasets[0].Data
	for _, v := range vals {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		return
	}

	b := cv.img.Rect
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2
	r := math.Min(cx, cy) - 20
	inner := r * hole

	// Slice i covers [bounds[i], bounds[i+1]) measured clockwise from 12 o'clock.
	bounds := make([]float64, len(vals)+1)
	for i, v := range vals {
		bounds[i+1] = bounds[i]
		if v > 0 {
			bounds[i+1] += v / total * 2 * math.Pi
		}
	}

	for y := int(cy - r); y <= int(cy+r); y++ {
		for x := int(cx - r); x <= int(cx+r); x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			dist := math.Hypot(dx, dy)
			if dist > r || dist < inner {
				continue
			}
			a := math.Atan2(dx, -dy)
			if a < 0 {
				a += 2 * math.Pi
			}
			for i := 0; i < len(vals); i++ {
				if a >= bounds[i] && a < bounds[i+1] {
					cv.blend(x, y, slicePalette[i%len(slicePalette)])
					break
				}
			}
		}
	}
	// White separators between slices.
	for i := 0; i < len(vals); i++ {
		a := bounds[i]
		sx, sy := math.Sin(a), -math.Cos(a)
		cv.line(cx+sx*inner, cy+sy*inner, cx+sx*r, cy+sy*r, 2, white)
	}
}
