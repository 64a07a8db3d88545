package contact

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
)

const defaultResendFrom = "Contact Form <onboarding@resend.dev>"

// ResendSender sends through the Resend API.
type ResendSender struct {
	APIKey string
	From   string
	To     string
	// BaseURL and Client default to the public API and a 10s client.
	BaseURL string
	Client  *http.Client
}

func (s *ResendSender) Name() string { return "resend" }

func (s *ResendSender) client() (*resend.Client, error) {
	hc := s.Client
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	c := resend.NewCustomClient(hc, s.APIKey)
	if s.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(s.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("resend base url: %w", err)
		}
		c.BaseURL = base
	}
	return c, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message, sentAt time.Time) (string, error) {
	from := s.From
	if from == "" {
		from = defaultResendFrom
	}
	c, err := s.client()
	if err != nil {
		return "", err
	}

	sent, err := c.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      []string{s.To},
		ReplyTo: msg.Email,
		Subject: subject(msg),
		Text:    body(msg, sentAt),
	})
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	if sent == nil || sent.Id == "" {
		return "", errors.New("resend: response carried no message id")
	}
	return sent.Id, nil
}

// SMTPSender delivers through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string

	// sendMail is smtp.SendMail outside tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *SMTPSender) Name() string { return "smtp" }

// Send returns the generated Message-ID as the message id.
func (s *SMTPSender) Send(_ context.Context, msg Message, sentAt time.Time) (string, error) {
	from := s.From
	if from == "" {
		from = s.User
	}
	if from == "" {
		return "", fmt.Errorf("smtp: no sender address configured")
	}

	id := uuid.NewString()
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", s.To)
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "Reply-To: %s\r\n", headerSafe(msg.Email))
	fmt.Fprintf(&b, "Subject: %s\r\n", headerSafe(subject(msg)))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", id, s.Host)
	fmt.Fprintf(&b, "Date: %s\r\n", sentAt.Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body(msg, sentAt), "\n", "\r\n"))

	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}
	send := s.sendMail
	if send == nil {
		send = smtp.SendMail
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	if err := send(addr, auth, from, []string{s.To}, []byte(b.String())); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return id, nil
}

// headerSafe keeps submitted values from injecting extra headers.
func headerSafe(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
