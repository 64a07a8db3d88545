package contact

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termfolio/internal/config"
)

type fakeSender struct {
	id    string
	err   error
	calls int
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(context.Context, Message, time.Time) (string, error) {
	f.calls++
	return f.id, f.err
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		msg     Message
		wantErr string
	}{
		{"ok", Message{Name: "Ada", Email: "ada@example.com", Message: "hi"}, ""},
		{"missing name", Message{Email: "ada@example.com", Message: "hi"}, "Missing required fields: name, email, message"},
		{"blank message", Message{Name: "Ada", Email: "ada@example.com", Message: "  "}, "Missing required fields: name, email, message"},
		{"no at", Message{Name: "Ada", Email: "ada.example.com", Message: "hi"}, "Invalid email format"},
		{"no dot", Message{Name: "Ada", Email: "ada@example", Message: "hi"}, "Invalid email format"},
		{"space", Message{Name: "Ada", Email: "ada @example.com", Message: "hi"}, "Invalid email format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.msg)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.wantErr, verr.Message)
		})
	}
}

func TestRelayUnconfigured(t *testing.T) {
	r := NewRelay(nil)
	assert.False(t, r.Configured())
	_, err := r.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRelayValidatesBeforeSending(t *testing.T) {
	sender := &fakeSender{id: "x"}
	_, err := NewRelay(sender).Send(context.Background(), Message{Name: "Ada", Email: "bad", Message: "hi"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, sender.calls)
}

func TestRelayWrapsProviderFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("quota exceeded")}
	_, err := NewRelay(sender).Send(context.Background(), Message{Name: "Ada", Email: "ada@example.com", Message: "hi"})
	var serr *SendError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "fake", serr.Provider)
	assert.Equal(t, "quota exceeded", serr.Error())
}

func TestFromConfigSelectsProvider(t *testing.T) {
	assert.False(t, FromConfig(config.ContactConfig{}).Configured())

	r := FromConfig(config.ContactConfig{ResendAPIKey: "re_123", SMTPHost: "smtp.example.com", To: "me@example.com"})
	require.True(t, r.Configured())
	assert.Equal(t, "resend", r.sender.Name())

	r = FromConfig(config.ContactConfig{SMTPHost: "smtp.example.com", SMTPPort: 587, To: "me@example.com"})
	require.True(t, r.Configured())
	assert.Equal(t, "smtp", r.sender.Name())
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

func TestResendSender(t *testing.T) {
	var (
		got  resendPayload
		auth string
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_42"}`))
	}))
	defer srv.Close()

	s := &ResendSender{APIKey: "re_123", To: "me@example.com", BaseURL: srv.URL, Client: srv.Client()}
	id, err := s.Send(context.Background(), Message{Name: "Ada", Email: "ada@example.com", Message: "hello\nthere"}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "email_42", id)
	assert.Equal(t, "/emails", path)
	assert.Equal(t, "Bearer re_123", auth)
	assert.Equal(t, defaultResendFrom, got.From)
	assert.Equal(t, []string{"me@example.com"}, got.To)
	assert.Equal(t, "ada@example.com", got.ReplyTo)
	assert.Equal(t, "[NEW_MESSAGE] from Ada", got.Subject)
	assert.Contains(t, got.Text, "hello\nthere")
	assert.Contains(t, got.Text, "2026-01-02T03:04:05Z")
}

func TestResendSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"The from address is invalid"}`))
	}))
	defer srv.Close()

	s := &ResendSender{APIKey: "re_123", To: "me@example.com", BaseURL: srv.URL, Client: srv.Client()}
	_, err := s.Send(context.Background(), Message{Name: "Ada", Email: "ada@example.com", Message: "hi"}, time.Now())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "resend: "), err.Error())
	assert.Contains(t, err.Error(), "The from address is invalid")
}

func TestResendSenderMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	s := &ResendSender{APIKey: "re_123", To: "me@example.com", BaseURL: srv.URL, Client: srv.Client()}
	_, err := s.Send(context.Background(), Message{Name: "Ada", Email: "ada@example.com", Message: "hi"}, time.Now())
	require.Error(t, err)
}

func TestSMTPSender(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	s := &SMTPSender{
		Host: "smtp.example.com", Port: 587, User: "bot@example.com", Pass: "pw", To: "me@example.com",
		sendMail: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
			return nil
		},
	}
	id, err := s.Send(context.Background(), Message{Name: "Ada\r\nBcc: x@evil.test", Email: "ada@example.com", Message: "hi"}, time.Now())
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"me@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Message-ID: <"+id+"@smtp.example.com>\r\n")
	assert.Contains(t, gotMsg, "Reply-To: ada@example.com\r\n")
	headers, _, _ := strings.Cut(gotMsg, "\r\n\r\n")
	assert.NotContains(t, headers, "\r\nBcc:")
}

func TestSMTPSenderNeedsFrom(t *testing.T) {
	s := &SMTPSender{Host: "smtp.example.com", Port: 25, To: "me@example.com"}
	_, err := s.Send(context.Background(), Message{Name: "Ada", Email: "ada@example.com", Message: "hi"}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sender address")
}
