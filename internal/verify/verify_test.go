package verify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/store"
	twclient "github.com/twilio/twilio-go/client"
	verifyapi "github.com/twilio/twilio-go/rest/verify/v2"
	"go.uber.org/zap"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		cc, digits string
		want       string
		wantErr    bool
	}{
		{"", "700000001", "+256700000001", false},
		{"+1", " 5551234 ", "+15551234", false},
		{"44", "7700", "+447700", false},
		{"+256", "70-000", "", true},
		{"+256", "+25670", "", true},
		{"+256", "", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.cc, tt.digits)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPhone) {
				t.Errorf("NormalizePhone(%q, %q) err = %v, want ErrInvalidPhone", tt.cc, tt.digits, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizePhone(%q, %q) = %q, %v; want %q", tt.cc, tt.digits, got, err, tt.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"  Alice ":                          "Alice",
		"<b>Bob</b>":                        "Bob",
		"Tom & Jerry":                       "Tom & Jerry",
		"<script>alert(1)</script>Eve":      "Eve",
		`<img src=x onerror="alert(1)">Mal`: "Mal",
	}
	for in, want := range tests {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func testLocal(t *testing.T) *store.Local {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewLocal(db, bus.New(), "verifier", 0, zap.NewNop())
}

func TestLocalVerifierFlow(t *testing.T) {
	local := testLocal(t)
	v := NewLocalVerifier(local, nil)
	ctx := context.Background()

	ch, err := v.SendCode(ctx, "+256700000001")
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.Code) != 6 || ch.Provider != "local" {
		t.Errorf("challenge = %+v", ch)
	}

	if _, err := v.VerifyCode(ctx, "+256700000001", "000000x"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("wrong code err = %v", err)
	}
	phone, err := v.VerifyCode(ctx, "+256700000001", " "+ch.Code+" ")
	if err != nil || phone != "+256700000001" {
		t.Fatalf("VerifyCode = %q, %v", phone, err)
	}

	// A code is single use.
	if _, err := v.VerifyCode(ctx, "+256700000001", ch.Code); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("reused code err = %v", err)
	}
	codes := store.Load[map[string]store.TestCode](local, store.KeyTestCodes)
	if _, ok := codes["+256700000001"]; ok {
		t.Error("used code still stored")
	}
}

func TestLocalVerifierExpiry(t *testing.T) {
	v := NewLocalVerifier(testLocal(t), nil)
	now := time.UnixMilli(1_700_000_000_000)
	v.now = func() time.Time { return now }
	ctx := context.Background()

	ch, err := v.SendCode(ctx, "+1")
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(CodeTTL)
	if _, err := v.VerifyCode(ctx, "+1", ch.Code); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("expired code err = %v", err)
	}
}

func TestLocalVerifierCooldown(t *testing.T) {
	v := NewLocalVerifier(testLocal(t), nil)
	now := time.UnixMilli(1_700_000_000_000)
	v.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := v.SendCode(ctx, "+1"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(10 * time.Second)
	if _, err := v.SendCode(ctx, "+1"); !errors.Is(err, ErrCooldown) {
		t.Errorf("resend err = %v, want ErrCooldown", err)
	}
	// Other phones are unaffected.
	if _, err := v.SendCode(ctx, "+2"); err != nil {
		t.Errorf("other phone: %v", err)
	}
	now = now.Add(ResendCooldown)
	second, err := v.SendCode(ctx, "+1")
	if err != nil {
		t.Fatalf("resend after cooldown: %v", err)
	}
	if _, err := v.VerifyCode(ctx, "+1", second.Code); err != nil {
		t.Errorf("latest code rejected: %v", err)
	}
}

type fakeVerify struct {
	status   string
	checkErr error
	sendErr  error
	to, code string
	channel  string
}

func (f *fakeVerify) CreateVerification(_ string, p *verifyapi.CreateVerificationParams) (*verifyapi.VerifyV2Verification, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.to, f.channel = *p.To, *p.Channel
	sid := "VE123"
	return &verifyapi.VerifyV2Verification{Sid: &sid}, nil
}

func (f *fakeVerify) CreateVerificationCheck(_ string, p *verifyapi.CreateVerificationCheckParams) (*verifyapi.VerifyV2VerificationCheck, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	f.to, f.code = *p.To, *p.Code
	return &verifyapi.VerifyV2VerificationCheck{Status: &f.status}, nil
}

func TestTwilioVerifier(t *testing.T) {
	api := &fakeVerify{status: "approved"}
	v := newTwilioVerifier(api, "VA1", nil)
	ctx := context.Background()

	ch, err := v.SendCode(ctx, "+15551234")
	if err != nil {
		t.Fatal(err)
	}
	if api.to != "+15551234" || api.channel != "sms" || ch.Code != "" {
		t.Errorf("to=%q channel=%q challenge=%+v", api.to, api.channel, ch)
	}

	phone, err := v.VerifyCode(ctx, "+15551234", "123456")
	if err != nil || phone != "+15551234" || api.code != "123456" {
		t.Errorf("VerifyCode = %q, %v (code sent %q)", phone, err, api.code)
	}

	api.status = "pending"
	if _, err := v.VerifyCode(ctx, "+15551234", "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("pending err = %v", err)
	}
}

func TestTwilioVerifierErrors(t *testing.T) {
	ctx := context.Background()

	v := newTwilioVerifier(&fakeVerify{checkErr: &twclient.TwilioRestError{Status: 404, Code: 20404}}, "VA1", nil)
	if _, err := v.VerifyCode(ctx, "+1", "1"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("404 err = %v, want ErrInvalidCode", err)
	}

	v = newTwilioVerifier(&fakeVerify{sendErr: &twclient.TwilioRestError{Status: 429}}, "VA1", nil)
	if _, err := v.SendCode(ctx, "+1"); !errors.Is(err, ErrCooldown) {
		t.Errorf("429 err = %v, want ErrCooldown", err)
	}

	boom := errors.New("network down")
	v = newTwilioVerifier(&fakeVerify{sendErr: boom}, "VA1", nil)
	if _, err := v.SendCode(ctx, "+1"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped network error", err)
	}
}

func TestNewTwilioVerifierRequiresCredentials(t *testing.T) {
	if _, err := NewTwilioVerifier(TwilioCredentials{AccountSID: "AC1"}, nil); err == nil {
		t.Error("expected error for missing credentials")
	}
	if _, err := NewTwilioVerifier(TwilioCredentials{AccountSID: "AC1", AuthToken: "t", ServiceSID: "VA1"}, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewCodeIsSixDigits(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := newCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != 6 || code[0] == '0' {
			t.Fatalf("code = %q, want six digits without a leading zero", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code = %q has a non-digit", code)
			}
		}
	}
}
