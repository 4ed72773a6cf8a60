package verify

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/qchat/internal/store"
	"go.uber.org/zap"
)

// LocalVerifier issues demo codes kept in the profile's Local Store under
// qc_test_codes. The code is handed back in the Challenge for display.
type LocalVerifier struct {
	local  *store.Local
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewLocalVerifier creates a verifier backed by local.
func NewLocalVerifier(local *store.Local, logger *zap.Logger) *LocalVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalVerifier{local: local, logger: logger, now: time.Now}
}

func (v *LocalVerifier) codes() map[string]store.TestCode {
	codes := store.Load[map[string]store.TestCode](v.local, store.KeyTestCodes)
	if codes == nil {
		codes = map[string]store.TestCode{}
	}
	return codes
}

// SendCode stores a fresh six-digit code for phone.
func (v *LocalVerifier) SendCode(_ context.Context, phone string) (Challenge, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	codes := v.codes()
	if prev, ok := codes[phone]; ok && now.UnixMilli()-prev.SentAt < ResendCooldown.Milliseconds() {
		return Challenge{}, ErrCooldown
	}

	code, err := newCode()
	if err != nil {
		return Challenge{}, err
	}
	expires := now.Add(CodeTTL)
	codes[phone] = store.TestCode{Code: code, Expires: expires.UnixMilli(), SentAt: now.UnixMilli()}
	if err := store.Save(v.local, store.KeyTestCodes, codes); err != nil {
		return Challenge{}, fmt.Errorf("save code: %w", err)
	}
	v.logger.Info("test code issued", zap.String("phone", phone))
	return Challenge{Phone: phone, Code: code, Expires: expires, Provider: "local"}, nil
}

// newCode returns a six-digit code without a leading zero.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// VerifyCode consumes the stored code for phone if it matches and has not expired.
func (v *LocalVerifier) VerifyCode(_ context.Context, phone, code string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	codes := v.codes()
	rec, ok := codes[phone]
	if !ok || rec.Code != strings.TrimSpace(code) || rec.Expires <= v.now().UnixMilli() {
		return "", ErrInvalidCode
	}
	delete(codes, phone)
	if err := store.Save(v.local, store.KeyTestCodes, codes); err != nil {
		v.logger.Warn("failed to clear used code", zap.Error(err))
	}
	return phone, nil
}
