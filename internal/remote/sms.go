package remote

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ErrSMSUnavailable indicates a timeout or transport failure talking to the
// SMS gateway.
var ErrSMSUnavailable = errors.New("sms gateway unavailable")

// SMS delivers one-time passwords through an SMS gateway.
type SMS struct {
	client *client
	sender string
}

// NewSMS creates an SMS adapter for the given base URL. sender is the
// registered sender id stamped on every message.
func NewSMS(baseURL, sender string, timeout time.Duration) *SMS {
	return &SMS{
		client: newClient("sms", baseURL, timeout, ErrSMSUnavailable),
		sender: sender,
	}
}

type smsRequest struct {
	To      string `json:"to"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// SendOTP delivers the one-time password to the mobile number.
func (s *SMS) SendOTP(ctx context.Context, mobile, code string) error {
	req := smsRequest{
		To:      mobile,
		Sender:  s.sender,
		Message: "Your payment verification code is " + code,
	}
	return s.client.doJSON(ctx, http.MethodPost, "/v1/messages", req, nil)
}

// NopSMS logs instead of sending, for broker-less local development. The
// code itself is never logged.
type NopSMS struct{}

// SendOTP pretends delivery succeeded.
func (NopSMS) SendOTP(ctx context.Context, mobile, _ string) error {
	zctx.From(ctx).Info("sms delivery disabled, dropping OTP",
		zap.String("mobile", mobile),
	)
	return nil
}
