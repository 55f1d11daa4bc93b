// Package notify delivers best-effort user notifications. Delivery
// failures never fail the operation that triggered them.
package notify

import (
	"context"

	"worklane.io/internal/obs"
)

// Sender delivers one notification to one recipient.
type Sender interface {
	Send(ctx context.Context, recipientEmail, subject, body string) error
}

// LogSender writes notifications to the structured log instead of an
// external channel. Default until a mail or chat integration exists.
type LogSender struct{}

func (LogSender) Send(_ context.Context, recipientEmail, subject, body string) error {
	obs.LogEvent(map[string]any{
		"event":     "notify.send",
		"recipient": recipientEmail,
		"subject":   subject,
		"body":      body,
	})
	return nil
}

// Fire sends without blocking the caller on failures: errors are logged
// and swallowed.
func Fire(ctx context.Context, s Sender, recipientEmail, subject, body string) {
	if s == nil || recipientEmail == "" {
		return
	}
	if err := s.Send(ctx, recipientEmail, subject, body); err != nil {
		obs.Warnf("notify %s: %v", recipientEmail, err)
	}
}
