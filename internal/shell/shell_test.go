package shell

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minichat/internal/domain"
)

type fakeSessions struct {
	mu        sync.Mutex
	session   *domain.Session
	listeners map[int]func(*domain.Session)
	next      int
}

func newFakeSessions(session *domain.Session) *fakeSessions {
	return &fakeSessions{session: session, listeners: make(map[int]func(*domain.Session))}
}

func (f *fakeSessions) CurrentSession() *domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeSessions) CurrentUser(context.Context) (domain.Identity, error) {
	return domain.Identity{}, nil
}

func (f *fakeSessions) OnChange(fn func(*domain.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeSessions) set(session *domain.Session) {
	f.mu.Lock()
	f.session = session
	listeners := make([]func(*domain.Session), 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(session)
	}
}

func (f *fakeSessions) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeSessions) SignOut(context.Context) error {
	f.set(nil)
	return nil
}

func (f *fakeSessions) SignUp(context.Context, string, string) error { return nil }
func (f *fakeSessions) SignInWithPassword(context.Context, string, string) error { return nil }
func (f *fakeSessions) RequestCode(context.Context, string) error { return nil }
func (f *fakeSessions) VerifyCode(context.Context, string, string) error { return nil }

var session = &domain.Session{AccessToken: "tok", User: domain.Identity{ID: "u1"}}

func TestShell_StartWithoutSession(t *testing.T) {
	sh := New(newFakeSessions(nil), nil)
	defer sh.Close()

	assert.Equal(t, "", sh.Current(), "unknown before start")
	assert.Equal(t, RouteAuth, sh.Start())
	assert.Equal(t, RouteAuth, sh.Resolve(RouteDashboard), "dashboard redirects to auth")
	assert.Equal(t, RouteAuth, sh.Navigate(RouteDashboard))
}

func TestShell_StartWithSession(t *testing.T) {
	sh := New(newFakeSessions(session), nil)
	defer sh.Close()

	assert.Equal(t, RouteDashboard, sh.Start())
	assert.Equal(t, RouteDashboard, sh.Resolve(RouteAuth), "auth redirects to dashboard")
	require.NotNil(t, sh.Session())
}

func TestShell_FollowsSessionChanges(t *testing.T) {
	sessions := newFakeSessions(nil)
	sh := New(sessions, nil)
	defer sh.Close()

	var routes []string
	sh.OnRoute(func(route string) { routes = append(routes, route) })
	sh.Start()

	sessions.set(session)
	assert.Equal(t, RouteDashboard, sh.Current())

	sessions.set(session)
	require.NoError(t, sessions.SignOut(context.Background()))
	assert.Equal(t, RouteAuth, sh.Current())

	assert.Equal(t, []string{RouteAuth, RouteDashboard, RouteAuth}, routes, "hook fires only on changes")
}

func TestShell_CloseUnsubscribes(t *testing.T) {
	sessions := newFakeSessions(nil)
	sh := New(sessions, nil)
	sh.Start()
	require.Equal(t, 1, sessions.listenerCount())

	sh.Close()
	assert.Zero(t, sessions.listenerCount())

	sessions.set(session)
	assert.Equal(t, RouteAuth, sh.Current(), "no updates after close")
}
