package ui

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	MutedColor        tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	AccentColor       tcell.Color
	TitleColor        tcell.Color
	OnlineColor       tcell.Color
	UnreadColor       tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
}

// DefaultTheme returns a dark theme with a violet accent.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorWhiteSmoke,
		MutedColor:        tcell.ColorGray,
		BorderColor:       tcell.NewRGBColor(0x3a, 0x33, 0x5c),
		BorderFocusColor:  tcell.NewRGBColor(0x7c, 0x5c, 0xff),
		AccentColor:       tcell.NewRGBColor(0x7c, 0x5c, 0xff),
		TitleColor:        tcell.ColorFuchsia,
		OnlineColor:       tcell.ColorLimeGreen,
		UnreadColor:       tcell.ColorOrange,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.NewRGBColor(0x7c, 0x5c, 0xff),
	}
}

// Tag returns c as a tview color tag value.
func Tag(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}

// ParseHSL converts a user colour such as "hsl(210deg 80% 55%)" to a
// terminal color. Unparseable input yields def.
func ParseHSL(s string, def tcell.Color) tcell.Color {
	var h, sat, l float64
	if _, err := fmt.Sscanf(s, "hsl(%fdeg %f%% %f%%)", &h, &sat, &l); err != nil {
		return def
	}
	r, g, b := hslToRGB(math.Mod(h, 360)/360, sat/100, l/100)
	return tcell.NewRGBColor(r, g, b)
}

func hslToRGB(h, s, l float64) (int32, int32, int32) {
	if s == 0 {
		v := int32(math.Round(l * 255))
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	conv := func(t float64) int32 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 0.5:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return int32(math.Round(v * 255))
	}
	return conv(h + 1.0/3), conv(h), conv(h - 1.0/3)
}
