// Package auth implements the interactive sudo login sequence and the
// identity providers behind it.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// LoginState is the position in the login sequence.
type LoginState string

const (
	StateIdle             LoginState = "idle"
	StateAwaitingEmail    LoginState = "awaiting_email"
	StateAwaitingPassword LoginState = "awaiting_password"
)

var (
	ErrEmptyCredential    = errors.New("credential must not be empty")
	ErrWrongState         = errors.New("login flow is not expecting this input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLoginCancelled     = errors.New("login cancelled")
)

const genericRejection = "Invalid email or password"

// Identity is an authenticated principal.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Provider verifies credentials.
type Provider interface {
	Authenticate(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context, who Identity) error
}

// ProviderError lets a provider replace the generic rejection message.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

// AuthError is returned by SubmitPassword when the provider rejects the
// attempt. Message is safe to show to the visitor.
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Cause }

// Flow is one session's login state machine. It is safe for concurrent use.
type Flow struct {
	provider Provider

	mu           sync.Mutex
	state        LoginState
	pendingEmail string
	identity     *Identity
	lastErr      error
	generation   uint64

	hooksMu  sync.Mutex
	hooks    map[int]func(*Identity)
	nextHook int
}

func NewFlow(provider Provider) *Flow {
	return &Flow{provider: provider, state: StateIdle, hooks: map[int]func(*Identity){}}
}

// StartLogin enters awaiting_email, discarding any attempt in progress.
func (f *Flow) StartLogin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.state = StateAwaitingEmail
	f.pendingEmail = ""
	f.lastErr = nil
}

// SubmitEmail records the email and moves on to the password prompt.
func (f *Flow) SubmitEmail(email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateAwaitingEmail {
		return ErrWrongState
	}
	email = strings.TrimSpace(email)
	if email == "" {
		f.lastErr = ErrEmptyCredential
		return ErrEmptyCredential
	}
	f.pendingEmail = email
	f.state = StateAwaitingPassword
	f.lastErr = nil
	return nil
}

// SubmitPassword asks the provider to verify the pending email and password.
// Any provider answer returns the flow to idle.
func (f *Flow) SubmitPassword(ctx context.Context, password string) (Identity, error) {
	f.mu.Lock()
	if f.state != StateAwaitingPassword {
		f.mu.Unlock()
		return Identity{}, ErrWrongState
	}
	if password == "" {
		f.lastErr = ErrEmptyCredential
		f.mu.Unlock()
		return Identity{}, ErrEmptyCredential
	}
	email := f.pendingEmail
	gen := f.generation
	f.mu.Unlock()

	who, err := f.provider.Authenticate(ctx, email, password)

	f.mu.Lock()
	// A cancel or restart while the provider ran discards its answer.
	if f.generation != gen {
		f.mu.Unlock()
		return Identity{}, ErrLoginCancelled
	}
	f.state = StateIdle
	f.pendingEmail = ""
	if err != nil {
		authErr := rejection(err)
		f.lastErr = authErr
		f.mu.Unlock()
		return Identity{}, authErr
	}
	f.identity = &who
	f.lastErr = nil
	f.mu.Unlock()

	f.notify(&who)
	return who, nil
}

func rejection(err error) *AuthError {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return &AuthError{Message: pe.Message, Cause: err}
	}
	return &AuthError{Message: genericRejection, Cause: err}
}

// CancelLogin abandons the sequence from either prompt.
func (f *Flow) CancelLogin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateIdle {
		return false
	}
	f.generation++
	f.state = StateIdle
	f.pendingEmail = ""
	return true
}

// SignOut clears the identity. The provider is told first; its failure is
// returned but the local identity is dropped regardless.
func (f *Flow) SignOut(ctx context.Context) error {
	f.mu.Lock()
	who := f.identity
	f.identity = nil
	f.mu.Unlock()
	if who == nil {
		return nil
	}

	err := f.provider.SignOut(ctx, *who)
	f.notify(nil)
	return err
}

func (f *Flow) Identity() (Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identity == nil {
		return Identity{}, false
	}
	return *f.identity, true
}

func (f *Flow) State() LoginState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// PendingEmail is only meaningful while the flow is not idle.
func (f *Flow) PendingEmail() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingEmail
}

func (f *Flow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// OnIdentityChange registers fn for sign-in and sign-out events. fn receives
// nil on sign-out.
func (f *Flow) OnIdentityChange(fn func(*Identity)) (unsubscribe func()) {
	f.hooksMu.Lock()
	id := f.nextHook
	f.nextHook++
	f.hooks[id] = fn
	f.hooksMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.hooksMu.Lock()
			delete(f.hooks, id)
			f.hooksMu.Unlock()
		})
	}
}

func (f *Flow) notify(who *Identity) {
	f.hooksMu.Lock()
	hooks := make([]func(*Identity), 0, len(f.hooks))
	for _, fn := range f.hooks {
		hooks = append(hooks, fn)
	}
	f.hooksMu.Unlock()
	for _, fn := range hooks {
		if who == nil {
			fn(nil)
			continue
		}
		cp := *who
		fn(&cp)
	}
}
