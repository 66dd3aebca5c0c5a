// Package mailer delivers one-time passcodes out of band.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"hdnotes-server/internal/logging"
)

// Sender dispatches a passcode to an email address. Implementations bound
// their own network time; a returned error means the message was not sent.
type Sender interface {
	SendOTP(ctx context.Context, to, code string) error
}

const otpSubject = "Your HD Notes verification code"

var otpBody = template.Must(template.New("otp").Parse(`Hello,

Your HD Notes verification code is {{.Code}}.

It expires in {{.ValidFor}}. If you did not request it, you can ignore this email.
`))

type otpData struct {
	Code     string
	ValidFor string
}

func renderOTP(code string, validFor time.Duration) (string, error) {
	var buf bytes.Buffer
	if err := otpBody.Execute(&buf, otpData{Code: code, ValidFor: humanDuration(validFor)}); err != nil {
		return "", fmt.Errorf("failed to render otp email: %w", err)
	}
	return buf.String(), nil
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 && d >= time.Minute {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

// LogSender writes the message to the logger instead of sending it. It is
// the development fallback when no SMTP host is configured.
type LogSender struct {
	log      logging.Logger
	validFor time.Duration
}

func NewLogSender(log logging.Logger, validFor time.Duration) *LogSender {
	return &LogSender{log: log, validFor: validFor}
}

func (s *LogSender) SendOTP(ctx context.Context, to, code string) error {
	body, err := renderOTP(code, s.validFor)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "email not sent, smtp disabled",
		"to", to,
		"subject", otpSubject,
		"body", body,
	)
	return nil
}
