package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"termfolio/internal/logging"
)

// StaticProvider authenticates a single administrator configured by email
// and bcrypt hash. With no administrator configured every attempt fails.
type StaticProvider struct {
	email string
	hash  []byte
}

// NewStaticProvider validates the hash up front so a typo fails at startup.
func NewStaticProvider(email, passwordHash string) (*StaticProvider, error) {
	if email == "" && passwordHash == "" {
		return &StaticProvider{}, nil
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("admin password hash: %w", err)
	}
	return &StaticProvider{email: strings.ToLower(strings.TrimSpace(email)), hash: []byte(passwordHash)}, nil
}

// HashPassword produces a hash suitable for NewStaticProvider.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyCredential
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (p *StaticProvider) Authenticate(_ context.Context, email, password string) (Identity, error) {
	logger := logging.For("auth")
	if len(p.hash) == 0 {
		logger.Warn("login attempted without configured admin", "event", "auth_unconfigured")
		return Identity{}, ErrInvalidCredentials
	}

	candidate := strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(candidate), []byte(p.email)) == 1
	// The hash is compared even when the email differs.
	err := bcrypt.CompareHashAndPassword(p.hash, []byte(password))
	if !emailOK || err != nil {
		if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			logger.Error("password comparison failed", "event", "auth_compare_failed", "err", err)
		}
		logger.Info("login rejected", "event", "auth_rejected")
		return Identity{}, ErrInvalidCredentials
	}

	logger.Info("login accepted", "event", "auth_accepted", "email", p.email)
	return Identity{UID: "admin", Email: p.email}, nil
}

func (p *StaticProvider) SignOut(context.Context, Identity) error { return nil }
