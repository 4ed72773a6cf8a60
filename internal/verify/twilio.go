package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	verifyapi "github.com/twilio/twilio-go/rest/verify/v2"
	"go.uber.org/zap"
)

// verifyService is the part of the Twilio Verify API used here.
type verifyService interface {
	CreateVerification(serviceSid string, params *verifyapi.CreateVerificationParams) (*verifyapi.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *verifyapi.CreateVerificationCheckParams) (*verifyapi.VerifyV2VerificationCheck, error)
}

// TwilioCredentials configures the Twilio verifier.
type TwilioCredentials struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
}

// TwilioVerifier delivers codes by SMS through Twilio Verify.
type TwilioVerifier struct {
	api        verifyService
	serviceSID string
	logger     *zap.Logger
}

// NewTwilioVerifier creates a verifier using the Twilio REST client.
func NewTwilioVerifier(creds TwilioCredentials, logger *zap.Logger) (*TwilioVerifier, error) {
	if creds.AccountSID == "" || creds.AuthToken == "" || creds.ServiceSID == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: creds.AccountSID,
		Password: creds.AuthToken,
	})
	return newTwilioVerifier(client.VerifyV2, creds.ServiceSID, logger), nil
}

func newTwilioVerifier(api verifyService, serviceSID string, logger *zap.Logger) *TwilioVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwilioVerifier{api: api, serviceSID: serviceSID, logger: logger}
}

// SendCode starts an SMS verification for phone.
func (v *TwilioVerifier) SendCode(ctx context.Context, phone string) (Challenge, error) {
	if err := ctx.Err(); err != nil {
		return Challenge{}, err
	}
	params := &verifyapi.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel("sms")

	resp, err := v.api.CreateVerification(v.serviceSID, params)
	if err != nil {
		if isStatus(err, http.StatusTooManyRequests) {
			return Challenge{}, ErrCooldown
		}
		v.logger.Error("failed to start verification", zap.String("phone", phone), zap.Error(err))
		return Challenge{}, fmt.Errorf("twilio verification: %w", err)
	}
	if resp.Sid != nil {
		v.logger.Info("verification sent", zap.String("sid", *resp.Sid))
	}
	return Challenge{Phone: phone, Expires: time.Now().Add(10 * time.Minute), Provider: "twilio"}, nil
}

// VerifyCode checks code with Twilio; only an approved check signs in.
func (v *TwilioVerifier) VerifyCode(ctx context.Context, phone, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &verifyapi.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(strings.TrimSpace(code))

	resp, err := v.api.CreateVerificationCheck(v.serviceSID, params)
	if err != nil {
		// Twilio answers 404 once a verification expired or was consumed.
		if isStatus(err, http.StatusNotFound) {
			return "", ErrInvalidCode
		}
		return "", fmt.Errorf("twilio verification check: %w", err)
	}
	if resp.Status == nil || *resp.Status != "approved" {
		return "", ErrInvalidCode
	}
	if resp.To != nil && *resp.To != "" {
		return *resp.To, nil
	}
	return phone, nil
}

func isStatus(err error, status int) bool {
	var restErr *twclient.TwilioRestError
	return errors.As(err, &restErr) && restErr.Status == status
}
