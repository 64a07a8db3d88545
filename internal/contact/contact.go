// Package contact relays contact-form submissions to the site owner's inbox
// through a configured email provider.
package contact

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"termfolio/internal/config"
	"termfolio/internal/logging"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ErrNotConfigured means no email provider is available.
var ErrNotConfigured = errors.New("contact: email service not configured")

// Message is one contact-form submission.
type Message struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// ValidationError rejects a submission before anything is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// SendError wraps a provider failure.
type SendError struct {
	Provider string
	Cause    error
}

func (e *SendError) Error() string { return e.Cause.Error() }

func (e *SendError) Unwrap() error { return e.Cause }

// Sender delivers a validated message and returns the provider's id for it.
type Sender interface {
	Send(ctx context.Context, msg Message, sentAt time.Time) (string, error)
	Name() string
}

// Validate checks every field before the relay touches a provider.
func Validate(msg Message) error {
	var missing []string
	if strings.TrimSpace(msg.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(msg.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(msg.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return &ValidationError{Field: strings.Join(missing, ","), Message: "Missing required fields: name, email, message"}
	}
	if !emailPattern.MatchString(msg.Email) {
		return &ValidationError{Field: "email", Message: "Invalid email format"}
	}
	return nil
}

// Relay validates submissions and hands them to its sender.
type Relay struct {
	sender Sender
	now    func() time.Time
}

// NewRelay returns a relay; a nil sender leaves it unconfigured.
func NewRelay(sender Sender) *Relay {
	return &Relay{sender: sender, now: time.Now}
}

// FromConfig picks Resend when an API key is set, SMTP when a host is set,
// and nothing otherwise.
func FromConfig(cfg config.ContactConfig) *Relay {
	switch {
	case cfg.ResendAPIKey != "":
		return NewRelay(&ResendSender{APIKey: cfg.ResendAPIKey, From: cfg.From, To: cfg.To})
	case cfg.SMTPHost != "":
		return NewRelay(&SMTPSender{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.From,
			To:   cfg.To,
		})
	default:
		return NewRelay(nil)
	}
}

func (r *Relay) Configured() bool { return r != nil && r.sender != nil }

// Send returns ErrNotConfigured, a *ValidationError or a *SendError.
func (r *Relay) Send(ctx context.Context, msg Message) (string, error) {
	if !r.Configured() {
		return "", ErrNotConfigured
	}
	if err := Validate(msg); err != nil {
		return "", err
	}

	logger := logging.For("contact")
	id, err := r.sender.Send(ctx, msg, r.now().UTC())
	if err != nil {
		logger.Error("contact message not sent", "event", "contact_send_failed", "provider", r.sender.Name(), "err", err)
		return "", &SendError{Provider: r.sender.Name(), Cause: err}
	}
	logger.Info("contact message sent", "event", "contact_sent", "provider", r.sender.Name(), "id", id)
	return id, nil
}

func subject(msg Message) string {
	return "[NEW_MESSAGE] from " + msg.Name
}

func body(msg Message, sentAt time.Time) string {
	return fmt.Sprintf("New contact form submission:\n\nName: %s\nEmail: %s\nTimestamp: %s\n\nMessage:\n%s\n\n---\nReply to: %s\n",
		msg.Name, msg.Email, sentAt.Format(time.RFC3339), msg.Message, msg.Email)
}
