package views

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeForTerminal prepares text written by other users for a tcell
// screen. It drops control characters other than newline and tab, which
// could otherwise move the cursor or inject escape sequences, and the
// emoji modifiers tcell renders at the wrong width: skin tones, zero width
// joiners and variation selectors. A thumbs up with a skin tone comes out
// as a plain 2-cell thumbs up.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			b.WriteRune('�')
			continue
		}
		if dropRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func dropRune(r rune) bool {
	switch {
	case r == '\n' || r == '\t':
		return false
	case unicode.IsControl(r):
		return true
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
