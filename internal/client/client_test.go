package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"minichat/internal/domain"
	httpapi "minichat/internal/http"
	"minichat/internal/localstore"
	"minichat/internal/realtime"
	"minichat/internal/repository"
	"minichat/internal/service"
)

type captureSender struct {
	code atomic.Value
}

func (c *captureSender) SendVerificationOTP(_ context.Context, _ string, code string, _ time.Time) error {
	c.code.Store(code)
	return nil
}

type backend struct {
	srv    *httptest.Server
	jwt    *service.JWTService
	sender *captureSender
}

func newBackend(t *testing.T, accessTTL time.Duration) *backend {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	hub := realtime.NewHub(logger)
	users := repository.NewMemoryUserRepository()
	messages := repository.NewMemoryMessageRepository(hub)
	sender := &captureSender{}
	jwtSvc := service.NewJWTService("secret", accessTTL, time.Hour, nil)

	router := httpapi.NewRouter(logger, "*", jwtSvc,
		httpapi.NewAuthHandler(logger, service.NewUserService(logger, users, sender, nil), jwtSvc),
		httpapi.NewMessageHandler(logger, service.NewMessageService(logger, messages)),
		httpapi.NewRealtimeHandler(logger, hub, jwtSvc, "*"),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &backend{srv: srv, jwt: jwtSvc, sender: sender}
}

func TestSessionStore_SignUpPersistsAndRestores(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	store := localstore.NewMemoryStore()
	ctx := context.Background()

	sessions := NewHTTPSessionStore(b.srv.URL, store, nil, nil)
	assert.Nil(t, sessions.CurrentSession())

	var notified []*domain.Session
	unsubscribe := sessions.OnChange(func(s *domain.Session) { notified = append(notified, s) })
	defer unsubscribe()

	require.NoError(t, sessions.SignUp(ctx, "alice@example.com", "secret-pass"))
	current := sessions.CurrentSession()
	require.NotNil(t, current)
	assert.Equal(t, "alice@example.com", current.User.Email)
	require.Len(t, notified, 1)
	assert.NotNil(t, notified[0])

	raw, ok, err := store.Get(SessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, current.AccessToken)

	restored := NewHTTPSessionStore(b.srv.URL, store, nil, nil)
	require.NotNil(t, restored.CurrentSession())
	identity, err := restored.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, current.User, identity)
}

func TestSessionStore_SignOutClearsSession(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	store := localstore.NewMemoryStore()
	ctx := context.Background()
	sessions := NewHTTPSessionStore(b.srv.URL, store, nil, nil)
	require.NoError(t, sessions.SignUp(ctx, "alice@example.com", "secret-pass"))
	refresh := sessions.CurrentSession().RefreshToken

	last := &domain.Session{}
	sessions.OnChange(func(s *domain.Session) { last = s })

	require.NoError(t, sessions.SignOut(ctx))
	assert.Nil(t, sessions.CurrentSession())
	assert.Nil(t, last, "listeners see the nil session")
	assert.Nil(t, NewHTTPSessionStore(b.srv.URL, store, nil, nil).CurrentSession(), "cleared session is not restored")

	_, err := b.jwt.RefreshPair(ctx, refresh)
	assert.Error(t, err, "refresh token revoked on sign out")

	_, err = sessions.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionStore_WrongPassword(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	ctx := context.Background()
	sessions := NewHTTPSessionStore(b.srv.URL, nil, nil, nil)
	require.NoError(t, sessions.SignUp(ctx, "alice@example.com", "secret-pass"))
	require.NoError(t, sessions.SignOut(ctx))

	err := sessions.SignInWithPassword(ctx, "alice@example.com", "wrong-pass")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Nil(t, sessions.CurrentSession())

	require.NoError(t, sessions.SignInWithPassword(ctx, "alice@example.com", "secret-pass"))
	assert.NotNil(t, sessions.CurrentSession())
}

func TestSessionStore_CodeFlow(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	ctx := context.Background()
	sessions := NewHTTPSessionStore(b.srv.URL, nil, nil, nil)

	require.NoError(t, sessions.RequestCode(ctx, "bob@example.com"))
	code, _ := b.sender.code.Load().(string)
	require.NotEmpty(t, code)

	require.NoError(t, sessions.VerifyCode(ctx, "bob@example.com", code))
	require.NotNil(t, sessions.CurrentSession())
	assert.Equal(t, "bob@example.com", sessions.CurrentSession().User.Email)
}

func TestSessionStore_RefreshesExpiredToken(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	ctx := context.Background()
	sessions := NewHTTPSessionStore(b.srv.URL, nil, nil, nil)
	require.NoError(t, sessions.SignUp(ctx, "alice@example.com", "secret-pass"))
	before := sessions.CurrentSession()

	sessions.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	_, err := sessions.CurrentUser(ctx)
	require.NoError(t, err)

	after := sessions.CurrentSession()
	require.NotNil(t, after)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken, "refresh token rotated")
	assert.Equal(t, before.User, after.User)
}

func TestSessionStore_ConcurrentCallersShareOneRefresh(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	ctx := context.Background()
	sessions := NewHTTPSessionStore(b.srv.URL, nil, nil, nil)
	require.NoError(t, sessions.SignUp(ctx, "alice@example.com", "secret-pass"))
	before := sessions.CurrentSession()

	var cleared atomic.Bool
	unsubscribe := sessions.OnChange(func(s *domain.Session) {
		if s == nil {
			cleared.Store(true)
		}
	})
	defer unsubscribe()

	table := NewHTTPMessageTable(b.srv.URL, sessions, nil)
	feed := NewWSChangeFeed(b.srv.URL, sessions, nil)
	sessions.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	var wg sync.WaitGroup
	var identityErr, fetchErr, subErr error
	var sub Subscription
	wg.Add(3)
	go func() {
		defer wg.Done()
		_, identityErr = sessions.CurrentUser(ctx)
	}()
	go func() {
		defer wg.Done()
		_, fetchErr = table.SelectAllOrdered(ctx, domain.MessagesTable, "created_at", true)
	}()
	go func() {
		defer wg.Done()
		sub, subErr = feed.Subscribe(ctx, domain.MessagesTable, []string{domain.EventAll}, func() {})
	}()
	wg.Wait()
	if sub != nil {
		defer sub.Unsubscribe()
	}

	require.NoError(t, identityErr)
	require.NoError(t, fetchErr)
	require.NoError(t, subErr)
	assert.False(t, cleared.Load(), "session must survive concurrent refresh")

	after := sessions.CurrentSession()
	require.NotNil(t, after)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken)

	// el token rotado sigue siendo valido: solo hubo un canje
	sessions.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err := sessions.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, sessions.CurrentSession())
}

func TestSessionStore_RefreshIgnoresAlreadyReplacedToken(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	ctx := context.Background()
	sessions := NewHTTPSessionStore(b.srv.URL, nil, nil, nil)
	require.NoError(t, sessions.SignUp(ctx, "alice@example.com", "secret-pass"))
	before := sessions.CurrentSession()

	require.NoError(t, sessions.Refresh(ctx, "stale-access-token"))
	assert.Equal(t, before.RefreshToken, sessions.CurrentSession().RefreshToken)

	require.NoError(t, sessions.Refresh(ctx, before.AccessToken))
	assert.NotEqual(t, before.RefreshToken, sessions.CurrentSession().RefreshToken)
}

func TestSessionStore_RejectedRefreshClearsSession(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	ctx := context.Background()
	sessions := NewHTTPSessionStore(b.srv.URL, nil, nil, nil)
	require.NoError(t, sessions.SignUp(ctx, "alice@example.com", "secret-pass"))
	current := sessions.CurrentSession()
	require.NoError(t, b.jwt.RevokeRefresh(ctx, current.RefreshToken))

	err := sessions.Refresh(ctx, current.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Nil(t, sessions.CurrentSession())
}

func TestMessageTable_InsertAndSelect(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	ctx := context.Background()
	sessions := NewHTTPSessionStore(b.srv.URL, nil, nil, nil)
	require.NoError(t, sessions.SignUp(ctx, "alice@example.com", "secret-pass"))
	table := NewHTTPMessageTable(b.srv.URL, sessions, nil)

	rows, err := table.SelectAllOrdered(ctx, domain.MessagesTable, "created_at", true)
	require.NoError(t, err)
	assert.Empty(t, rows)

	base := time.Now().UTC().Add(-time.Minute)
	for i, content := range []string{"t1", "t2", "t3"} {
		require.NoError(t, table.Insert(ctx, domain.MessagesTable, domain.NewMessage{
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	rows, err = table.SelectAllOrdered(ctx, domain.MessagesTable, "created_at", true)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"t3", "t2", "t1"}, []string{rows[0].Content, rows[1].Content, rows[2].Content})
	assert.Equal(t, sessions.CurrentSession().User.ID, rows[0].UserID)

	err = table.Insert(ctx, domain.MessagesTable, domain.NewMessage{Content: "   "})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	_, err = table.SelectAllOrdered(ctx, "users", "created_at", true)
	assert.Error(t, err)
}

func TestMessageTable_RequiresSession(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	sessions := NewHTTPSessionStore(b.srv.URL, nil, nil, nil)
	table := NewHTTPMessageTable(b.srv.URL, sessions, nil)
	_, err := table.SelectAllOrdered(context.Background(), domain.MessagesTable, "created_at", true)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestChangeFeed_SignalsAndUnsubscribe(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	ctx := context.Background()
	sessions := NewHTTPSessionStore(b.srv.URL, nil, nil, nil)
	require.NoError(t, sessions.SignUp(ctx, "alice@example.com", "secret-pass"))
	table := NewHTTPMessageTable(b.srv.URL, sessions, nil)
	feed := NewWSChangeFeed(b.srv.URL, sessions, nil)

	changed := make(chan struct{}, 8)
	sub, err := feed.Subscribe(ctx, domain.MessagesTable, []string{domain.EventAll}, func() {
		changed <- struct{}{}
	})
	require.NoError(t, err)

	require.NoError(t, table.Insert(ctx, domain.MessagesTable, domain.NewMessage{Content: "hello"}))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected change signal")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, table.Insert(ctx, domain.MessagesTable, domain.NewMessage{Content: "after"}))
	select {
	case <-changed:
		t.Fatal("no signal expected after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChangeFeed_RequiresSession(t *testing.T) {
	b := newBackend(t, 15*time.Minute)
	feed := NewWSChangeFeed(b.srv.URL, NewHTTPSessionStore(b.srv.URL, nil, nil, nil), nil)
	_, err := feed.Subscribe(context.Background(), domain.MessagesTable, nil, func() {})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestFeedURL(t *testing.T) {
	feed := NewWSChangeFeed("https://chat.example.com/", nil, nil)
	got := feed.feedURL("messages", []string{"INSERT", "DELETE"}, "tok")
	assert.Equal(t, "wss://chat.example.com/realtime/messages?events=INSERT%2CDELETE&token=tok", got)
}
