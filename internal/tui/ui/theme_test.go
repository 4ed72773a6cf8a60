package ui

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestParseHSL(t *testing.T) {
	tests := []struct {
		in   string
		want tcell.Color
	}{
		{"hsl(0deg 100% 50%)", tcell.NewRGBColor(255, 0, 0)},
		{"hsl(120deg 100% 50%)", tcell.NewRGBColor(0, 255, 0)},
		{"hsl(240deg 100% 50%)", tcell.NewRGBColor(0, 0, 255)},
		{"hsl(10deg 0% 50%)", tcell.NewRGBColor(128, 128, 128)},
	}
	for _, tt := range tests {
		if got := ParseHSL(tt.in, tcell.ColorDefault); got != tt.want {
			t.Errorf("ParseHSL(%q) = %06x, want %06x", tt.in, got.Hex(), tt.want.Hex())
		}
	}
}

func TestParseHSLFallback(t *testing.T) {
	if got := ParseHSL("rgba(1,2,3,1)", tcell.ColorRed); got != tcell.ColorRed {
		t.Errorf("expected fallback, got %v", got)
	}
}

func TestTag(t *testing.T) {
	if got := Tag(tcell.NewRGBColor(0x12, 0x34, 0x56)); got != "#123456" {
		t.Errorf("Tag = %q", got)
	}
}

func TestPromptRecall(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.remember("login 700123 Alice")
	p.remember("code 123456")
	p.remember("code 123456")
	p.Activate()

	if got := p.Recall(-1); got != "code 123456" {
		t.Errorf("first recall = %q", got)
	}
	if got := p.Recall(-1); got != "login 700123 Alice" {
		t.Errorf("second recall = %q", got)
	}
	if got := p.Recall(-1); got != "login 700123 Alice" {
		t.Errorf("recall past oldest = %q", got)
	}
	if got := p.Recall(1); got != "code 123456" {
		t.Errorf("forward recall = %q", got)
	}
	if got := p.Recall(1); got != "" {
		t.Errorf("recall past newest = %q", got)
	}
}
