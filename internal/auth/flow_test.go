package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeProvider struct {
	err      error
	calls    int
	signOuts int
	email    string
}

func (f *fakeProvider) Authenticate(_ context.Context, email, _ string) (Identity, error) {
	f.calls++
	f.email = email
	if f.err != nil {
		return Identity{}, f.err
	}
	return Identity{UID: "u1", Email: email}, nil
}

func (f *fakeProvider) SignOut(context.Context, Identity) error {
	f.signOuts++
	return nil
}

func TestFlowHappyPath(t *testing.T) {
	p := &fakeProvider{}
	f := NewFlow(p)
	var events []*Identity
	f.OnIdentityChange(func(who *Identity) { events = append(events, who) })

	require.Equal(t, StateIdle, f.State())
	f.StartLogin()
	require.Equal(t, StateAwaitingEmail, f.State())
	require.NoError(t, f.SubmitEmail("  admin@example.com "))
	require.Equal(t, StateAwaitingPassword, f.State())
	assert.Equal(t, "admin@example.com", f.PendingEmail())

	who, err := f.SubmitPassword(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", who.Email)
	assert.Equal(t, StateIdle, f.State())
	assert.Empty(t, f.PendingEmail())

	got, ok := f.Identity()
	require.True(t, ok)
	assert.Equal(t, who, got)

	require.NoError(t, f.SignOut(context.Background()))
	_, ok = f.Identity()
	assert.False(t, ok)
	assert.Equal(t, 1, p.signOuts)

	require.Len(t, events, 2)
	assert.Equal(t, "admin@example.com", events[0].Email)
	assert.Nil(t, events[1])
}

func TestFlowRejectsEmptyInput(t *testing.T) {
	p := &fakeProvider{}
	f := NewFlow(p)
	f.StartLogin()

	assert.ErrorIs(t, f.SubmitEmail("   "), ErrEmptyCredential)
	assert.Equal(t, StateAwaitingEmail, f.State())

	require.NoError(t, f.SubmitEmail("a@b.co"))
	_, err := f.SubmitPassword(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyCredential)
	assert.Equal(t, StateAwaitingPassword, f.State())
	assert.Zero(t, p.calls)
}

func TestFlowFailureReturnsToIdle(t *testing.T) {
	f := NewFlow(&fakeProvider{err: ErrInvalidCredentials})
	f.StartLogin()
	require.NoError(t, f.SubmitEmail("a@b.co"))

	_, err := f.SubmitPassword(context.Background(), "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "Invalid email or password", err.Error())
	assert.Equal(t, StateIdle, f.State())
	assert.Empty(t, f.PendingEmail())
	assert.Equal(t, err, f.LastError())

	_, ok := f.Identity()
	assert.False(t, ok)
}

func TestFlowProviderDifferentiatedMessage(t *testing.T) {
	f := NewFlow(&fakeProvider{err: &ProviderError{Message: "Too many attempts"}})
	f.StartLogin()
	require.NoError(t, f.SubmitEmail("a@b.co"))

	_, err := f.SubmitPassword(context.Background(), "pw")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "Too many attempts", authErr.Message)
}

func TestFlowGenericMessageForUnknownErrors(t *testing.T) {
	f := NewFlow(&fakeProvider{err: errors.New("connection reset")})
	f.StartLogin()
	require.NoError(t, f.SubmitEmail("a@b.co"))

	_, err := f.SubmitPassword(context.Background(), "pw")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())
}

func TestFlowWrongStateInputs(t *testing.T) {
	f := NewFlow(&fakeProvider{})
	assert.ErrorIs(t, f.SubmitEmail("a@b.co"), ErrWrongState)
	_, err := f.SubmitPassword(context.Background(), "pw")
	assert.ErrorIs(t, err, ErrWrongState)

	f.StartLogin()
	_, err = f.SubmitPassword(context.Background(), "pw")
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestFlowRestartAndCancel(t *testing.T) {
	f := NewFlow(&fakeProvider{})
	f.StartLogin()
	require.NoError(t, f.SubmitEmail("first@example.com"))

	f.StartLogin()
	assert.Equal(t, StateAwaitingEmail, f.State())
	assert.Empty(t, f.PendingEmail())

	require.NoError(t, f.SubmitEmail("second@example.com"))
	assert.True(t, f.CancelLogin())
	assert.Equal(t, StateIdle, f.State())
	assert.Empty(t, f.PendingEmail())
	assert.False(t, f.CancelLogin())
}

// gateProvider blocks inside Authenticate until release is closed.
type gateProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateProvider) Authenticate(_ context.Context, email, _ string) (Identity, error) {
	close(g.entered)
	<-g.release
	return Identity{UID: "u1", Email: email}, nil
}

func (g *gateProvider) SignOut(context.Context, Identity) error { return nil }

func TestFlowCancelDuringAuthenticateDiscardsResult(t *testing.T) {
	p := &gateProvider{entered: make(chan struct{}), release: make(chan struct{})}
	f := NewFlow(p)
	var events int
	f.OnIdentityChange(func(*Identity) { events++ })

	f.StartLogin()
	require.NoError(t, f.SubmitEmail("admin@example.com"))

	done := make(chan error, 1)
	go func() {
		_, err := f.SubmitPassword(context.Background(), "secret")
		done <- err
	}()
	<-p.entered
	require.True(t, f.CancelLogin())
	close(p.release)

	assert.ErrorIs(t, <-done, ErrLoginCancelled)
	_, ok := f.Identity()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, f.State())
	assert.Zero(t, events)
}

func TestFlowRestartDuringAuthenticateKeepsNewAttempt(t *testing.T) {
	p := &gateProvider{entered: make(chan struct{}), release: make(chan struct{})}
	f := NewFlow(p)
	f.StartLogin()
	require.NoError(t, f.SubmitEmail("admin@example.com"))

	done := make(chan error, 1)
	go func() {
		_, err := f.SubmitPassword(context.Background(), "secret")
		done <- err
	}()
	<-p.entered
	f.StartLogin()
	close(p.release)

	assert.ErrorIs(t, <-done, ErrLoginCancelled)
	assert.Equal(t, StateAwaitingEmail, f.State())
	_, ok := f.Identity()
	assert.False(t, ok)
}

func TestStaticProvider(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	p, err := NewStaticProvider("Admin@Example.com", string(hash))
	require.NoError(t, err)

	who, err := p.Authenticate(context.Background(), "admin@example.com ", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", who.Email)

	_, err = p.Authenticate(context.Background(), "admin@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.Authenticate(context.Background(), "other@example.com", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStaticProviderUnconfigured(t *testing.T) {
	p, err := NewStaticProvider("", "")
	require.NoError(t, err)
	_, err = p.Authenticate(context.Background(), "a@b.co", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStaticProviderRejectsBadHash(t *testing.T) {
	_, err := NewStaticProvider("a@b.co", "not-a-hash")
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw")))

	_, err = HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyCredential)
}
