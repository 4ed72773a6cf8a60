// Package verify implements phone-number sign-in challenges.
package verify

import (
	"context"
	"errors"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ErrInvalidPhone = errors.New("verify: phone must contain digits only")
	ErrInvalidCode  = errors.New("verify: invalid or expired code")
	ErrCooldown     = errors.New("verify: code sent too recently")
)

const (
	// DefaultCountryCode is prepended when no country code is configured.
	DefaultCountryCode = "+256"
	CodeTTL            = 5 * time.Minute
	ResendCooldown     = 30 * time.Second
)

// Challenge describes a sent code. Code is only set by verifiers that
// cannot deliver it out of band.
type Challenge struct {
	Phone    string
	Code     string
	Expires  time.Time
	Provider string
}

// Verifier sends and checks sign-in codes for full phone numbers.
type Verifier interface {
	SendCode(ctx context.Context, phone string) (Challenge, error)
	VerifyCode(ctx context.Context, phone, code string) (string, error)
}

var digitsRe = regexp.MustCompile(`^[0-9]+$`)

// NormalizePhone validates local digits and prefixes the country code.
func NormalizePhone(countryCode, digits string) (string, error) {
	digits = strings.TrimSpace(digits)
	if !digitsRe.MatchString(digits) {
		return "", ErrInvalidPhone
	}
	countryCode = strings.TrimSpace(countryCode)
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	if !strings.HasPrefix(countryCode, "+") {
		countryCode = "+" + countryCode
	}
	return countryCode + digits, nil
}

var namePolicy = bluemonday.StrictPolicy()

// SanitizeName strips markup from a display name and trims it.
func SanitizeName(name string) string {
	return strings.TrimSpace(html.UnescapeString(namePolicy.Sanitize(name)))
}
