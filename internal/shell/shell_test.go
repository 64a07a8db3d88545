package shell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termfolio/internal/auth"
	"termfolio/internal/gateway"
	"termfolio/internal/interpreter"
	"termfolio/internal/portfolio"
	"termfolio/internal/session"
)

type fakeProvider struct {
	signOutErr error
}

func (fakeProvider) Authenticate(_ context.Context, email, password string) (auth.Identity, error) {
	if email == "admin@example.com" && password == "hunter2" {
		return auth.Identity{UID: "admin", Email: email}, nil
	}
	return auth.Identity{}, auth.ErrInvalidCredentials
}

func (f fakeProvider) SignOut(context.Context, auth.Identity) error { return f.signOutErr }

type recordingNav struct{ sections []string }

func (r *recordingNav) Navigate(section string) { r.sections = append(r.sections, section) }

func newTestSession(t *testing.T) (*Session, *portfolio.MemoryStore) {
	t.Helper()
	store := portfolio.NewMemoryStore()
	svc, err := gateway.NewService(store, "")
	require.NoError(t, err)
	f := Factory{
		Interpreter: interpreter.New(interpreter.Options{Host: "test"}),
		Provider:    fakeProvider{},
		Editor:      svc,
	}
	return f.New(context.Background(), "visitor", nil), store
}

func texts(lines []session.Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func login(t *testing.T, s *Session, password string) []session.Line {
	t.Helper()
	ctx := context.Background()
	s.Submit(ctx, "sudo login")
	s.Submit(ctx, "admin@example.com")
	reply := s.Submit(ctx, password)
	require.NotNil(t, reply.Pending)
	return reply.Pending.Run(ctx)
}

func TestLoginPrompts(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	assert.Equal(t, "guest@test:~$", s.Prompt())

	reply := s.Submit(ctx, "sudo login")
	assert.Equal(t, []string{"guest@test:~$ sudo login", "Enter email:"}, texts(reply.Lines))
	assert.Equal(t, "Email:", s.Prompt())

	reply = s.Submit(ctx, "admin@example.com")
	assert.Equal(t, []string{"Email: admin@example.com", "Enter password:"}, texts(reply.Lines))
	assert.Equal(t, "Password:", s.Prompt())
	assert.True(t, s.Masked())

	reply = s.Submit(ctx, "hunter2")
	assert.Equal(t, []string{"Password: *******"}, texts(reply.Lines))
	require.NotNil(t, reply.Pending)

	done := reply.Pending.Run(ctx)
	assert.Equal(t, []session.Line{{Kind: session.KindSuccess, Text: "✅ Authentication successful! Welcome, admin."}}, done)
	assert.Equal(t, "guest@test:~$", s.Prompt())

	out := texts(s.State().Output())
	assert.Equal(t, "✅ Authentication successful! Welcome, admin.", out[len(out)-1])
	assert.Equal(t, []string{"sudo login"}, s.State().History(), "credentials never reach history")
}

func TestLoginFailure(t *testing.T) {
	s, _ := newTestSession(t)
	done := login(t, s, "wrong")
	assert.Equal(t, []session.Line{{Kind: session.KindError, Text: "❌ Invalid email or password"}}, done)
	_, ok := s.Flow().Identity()
	assert.False(t, ok)
	assert.Equal(t, auth.StateIdle, s.Flow().State())
}

func TestEmptyCredentialsKeepPrompt(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	s.Submit(ctx, "sudo login")

	reply := s.Submit(ctx, "  ")
	assert.Equal(t, "❌ Email is required", reply.Lines[1].Text)
	assert.Equal(t, auth.StateAwaitingEmail, s.Flow().State())

	s.Submit(ctx, "admin@example.com")
	reply = s.Submit(ctx, "")
	assert.Nil(t, reply.Pending)
	assert.Equal(t, []string{"Password: ", "❌ Password is required"}, texts(reply.Lines))
	assert.Equal(t, auth.StateAwaitingPassword, s.Flow().State())
}

func TestCancelLogin(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	assert.Nil(t, s.Cancel())

	s.Submit(ctx, "sudo login")
	assert.Nil(t, s.Complete("he"), "no completion during login")
	_, ok := s.NavigateHistory(session.Up)
	assert.False(t, ok)

	assert.Equal(t, []string{"Login cancelled."}, texts(s.Cancel()))
	assert.Equal(t, auth.StateIdle, s.Flow().State())
	assert.Equal(t, []string{"help"}, s.Complete("he"))

	cmd, ok := s.NavigateHistory(session.Up)
	assert.True(t, ok)
	assert.Equal(t, "sudo login", cmd)
}

type blockingProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingProvider) Authenticate(_ context.Context, email, _ string) (auth.Identity, error) {
	close(b.entered)
	<-b.release
	return auth.Identity{UID: "admin", Email: email}, nil
}

func (blockingProvider) SignOut(context.Context, auth.Identity) error { return nil }

func TestCancelWhileAuthenticating(t *testing.T) {
	ctx := context.Background()
	p := blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	s := Factory{Interpreter: interpreter.New(interpreter.Options{Host: "test"}), Provider: p}.New(ctx, "visitor", nil)

	s.Submit(ctx, "sudo login")
	s.Submit(ctx, "admin@example.com")
	reply := s.Submit(ctx, "hunter2")
	require.NotNil(t, reply.Pending)

	done := make(chan []session.Line, 1)
	go func() { done <- reply.Pending.Run(ctx) }()
	<-p.entered
	assert.Equal(t, []string{"Login cancelled."}, texts(s.Cancel()))
	close(p.release)

	assert.Empty(t, <-done)
	_, ok := s.Flow().Identity()
	assert.False(t, ok)
	assert.Equal(t, "guest@test:~$", s.Prompt())
}

func TestStatusAndAlreadyLoggedIn(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	reply := s.Submit(ctx, "sudo status")
	assert.Equal(t, "🔒 Not authenticated. Use: sudo login", reply.Lines[1].Text)

	login(t, s, "hunter2")
	reply = s.Submit(ctx, "sudo status")
	assert.Equal(t, session.Line{Kind: session.KindSuccess, Text: "🔓 Authenticated as: admin@example.com"}, reply.Lines[1])

	reply = s.Submit(ctx, "sudo login")
	assert.Equal(t, "Already logged in as admin@example.com", reply.Lines[1].Text)
	assert.Equal(t, auth.StateIdle, s.Flow().State())
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	login(t, s, "hunter2")

	reply := s.Submit(ctx, "sudo logout")
	require.NotNil(t, reply.Pending)
	assert.Equal(t, []string{"✅ Logged out successfully"}, texts(reply.Pending.Run(ctx)))
	_, ok := s.Flow().Identity()
	assert.False(t, ok)
}

func TestLogoutProviderFailure(t *testing.T) {
	ctx := context.Background()
	f := Factory{Provider: fakeProvider{signOutErr: errors.New("token revoke failed")}}
	s := f.New(ctx, "v", nil)
	login(t, s, "hunter2")

	reply := s.Submit(ctx, "sudo logout")
	assert.Equal(t, []string{"❌ token revoke failed"}, texts(reply.Pending.Run(ctx)))
	_, ok := s.Flow().Identity()
	assert.False(t, ok)
}

func TestEditRequiresLogin(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSession(t)

	reply := s.Submit(ctx, `sudo edit profile.name "Someone"`)
	assert.Nil(t, reply.Pending)
	assert.Equal(t, session.Line{Kind: session.KindError, Text: "❌ Not authenticated. Use: sudo login"}, reply.Lines[1])

	_, err := store.Read(ctx, portfolio.DefaultKey)
	assert.ErrorIs(t, err, portfolio.ErrNotFound)
}

func TestEditCommands(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSession(t)
	login(t, s, "hunter2")

	run := func(line string) []string {
		t.Helper()
		reply := s.Submit(ctx, line)
		require.NotNil(t, reply.Pending, line)
		return texts(reply.Pending.Run(ctx))
	}

	assert.Equal(t, []string{"✅ Database initialized with default data"}, run("sudo init"))
	assert.Equal(t, []string{"✅ Updated profile.name"}, run(`sudo edit profile.name "Someone Else"`))
	assert.Equal(t, []string{"✅ Added item to about.interests"}, run(`sudo add about.interests "Chess"`))
	assert.Equal(t, []string{"✅ Removed item from projects"}, run("sudo remove projects 0"))
	assert.Equal(t, []string{"❌ Index 99 out of bounds"}, run("sudo remove projects 99"))
	assert.Equal(t, []string{"❌ profile.name is not an array"}, run(`sudo add profile.name "x"`))

	snap, err := store.Read(ctx, portfolio.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "Someone Else", snap.Doc.Profile.Name)
	assert.Equal(t, "Chess", snap.Doc.About.Interests[len(snap.Doc.About.Interests)-1])
	assert.Len(t, snap.Doc.Projects, len(portfolio.Default().Projects)-1)
}

func TestEditWithoutStore(t *testing.T) {
	ctx := context.Background()
	s := Factory{Provider: fakeProvider{}}.New(ctx, "v", nil)
	login(t, s, "hunter2")

	reply := s.Submit(ctx, "sudo init")
	assert.Nil(t, reply.Pending)
	assert.Equal(t, "❌ Data store not configured", reply.Lines[1].Text)
}

func TestNavigatorAndClear(t *testing.T) {
	ctx := context.Background()
	nav := &recordingNav{}
	s := Factory{}.New(ctx, "v", nav)

	s.Submit(ctx, "cd about")
	s.Submit(ctx, "cat ./skills.json")
	assert.Equal(t, []string{"about", "skills"}, nav.sections)

	reply := s.Submit(ctx, "clear")
	assert.True(t, reply.Cleared)
	assert.Zero(t, s.State().OutputLen())

	s.Submit(ctx, "help")
	s.Clear()
	assert.Zero(t, s.State().OutputLen())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(time.Minute, 0)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	s := Factory{}.New(context.Background(), "v", nil)
	idle, err := r.Add(s)
	require.NoError(t, err)
	busy, err := r.Add(s)
	require.NoError(t, err)
	assert.NotEqual(t, idle, busy)
	assert.Equal(t, 2, r.Len())

	clock = clock.Add(45 * time.Second)
	_, ok := r.Get(busy)
	require.True(t, ok)

	clock = clock.Add(30 * time.Second)
	assert.Equal(t, 1, r.Sweep())
	_, ok = r.Get(idle)
	assert.False(t, ok)

	got, ok := r.Get(busy)
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.True(t, r.Delete(busy))
	assert.False(t, r.Delete(busy))
	assert.Zero(t, r.Len())
}

func TestRegistryWithoutTimeoutKeepsSessions(t *testing.T) {
	r := NewRegistry(0, 0)
	_, err := r.Add(Factory{}.New(context.Background(), "v", nil))
	require.NoError(t, err)
	r.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.Zero(t, r.Sweep())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryLimit(t *testing.T) {
	r := NewRegistry(time.Minute, 2)
	s := Factory{}.New(context.Background(), "v", nil)

	first, err := r.Add(s)
	require.NoError(t, err)
	_, err = r.Add(s)
	require.NoError(t, err)
	_, err = r.Add(s)
	assert.ErrorIs(t, err, ErrRegistryFull)
	assert.Equal(t, 2, r.Len())

	require.True(t, r.Delete(first))
	_, err = r.Add(s)
	assert.NoError(t, err)
}
