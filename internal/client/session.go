package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"minichat/internal/domain"
	"minichat/internal/localstore"
)

// SessionKey es la clave del KV local donde vive la sesion.
const SessionKey = "auth.session"

// SessionStore es el proveedor de identidad que consume la app.
type SessionStore interface {
	CurrentSession() *domain.Session
	CurrentUser(ctx context.Context) (domain.Identity, error)
	OnChange(fn func(*domain.Session)) (unsubscribe func())
	SignOut(ctx context.Context) error
	SignUp(ctx context.Context, email, password string) error
	SignInWithPassword(ctx context.Context, email, password string) error
	RequestCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) error
}

// TokenSource entrega un access token vigente y lo renueva cuando el backend
// rechaza el que se uso.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context, rejected string) error
}

type tokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type sessionResponse struct {
	User   domain.Identity `json:"user"`
	Tokens tokenPair       `json:"tokens"`
}

// HTTPSessionStore implementa SessionStore contra /auth y persiste la sesion
// en el KV local para sobrevivir reinicios.
type HTTPSessionStore struct {
	api    *api
	store  localstore.Store
	logger *zap.Logger
	now    func() time.Time

	refreshMu sync.Mutex

	mu        sync.Mutex
	session   *domain.Session
	listeners map[int]func(*domain.Session)
	nextID    int
}

func NewHTTPSessionStore(baseURL string, store localstore.Store, logger *zap.Logger, httpClient *http.Client) *HTTPSessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = localstore.NewMemoryStore()
	}
	s := &HTTPSessionStore{
		api:       newAPI(baseURL, httpClient),
		store:     store,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		listeners: make(map[int]func(*domain.Session)),
	}
	s.session = s.restore()
	return s
}

func (s *HTTPSessionStore) restore() *domain.Session {
	raw, ok, err := s.store.Get(SessionKey)
	if err != nil {
		s.logger.Warn("restore session failed", zap.Error(err))
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil || session.AccessToken == "" {
		s.logger.Warn("discarding unreadable session", zap.Error(err))
		return nil
	}
	return &session
}

// CurrentSession devuelve una copia de la sesion actual o nil.
func (s *HTTPSessionStore) CurrentSession() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// CurrentUser consulta GET /auth/user con la sesion actual.
func (s *HTTPSessionStore) CurrentUser(ctx context.Context) (domain.Identity, error) {
	var resp struct {
		User domain.Identity `json:"user"`
	}
	err := s.withToken(ctx, func(token string) error {
		return s.api.do(ctx, http.MethodGet, "/auth/user", token, nil, &resp)
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return resp.User, nil
}

// OnChange registra fn para cada cambio de sesion (nil al cerrar sesion).
func (s *HTTPSessionStore) OnChange(fn func(*domain.Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *HTTPSessionStore) SignUp(ctx context.Context, email, password string) error {
	return s.authenticate(ctx, "/auth/signup", map[string]string{"email": email, "password": password})
}

func (s *HTTPSessionStore) SignInWithPassword(ctx context.Context, email, password string) error {
	return s.authenticate(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// RequestCode pide un codigo de acceso por email.
func (s *HTTPSessionStore) RequestCode(ctx context.Context, email string) error {
	return s.api.do(ctx, http.MethodPost, "/auth/otp/request", "", map[string]string{"email": email}, nil)
}

func (s *HTTPSessionStore) VerifyCode(ctx context.Context, email, code string) error {
	return s.authenticate(ctx, "/auth/otp/verify", map[string]string{"email": email, "code": code})
}

// SignOut revoca el refresh token y limpia la sesion local. La sesion local
// se limpia aunque el backend no responda.
func (s *HTTPSessionStore) SignOut(ctx context.Context) error {
	current := s.CurrentSession()
	if current == nil {
		return nil
	}
	if current.RefreshToken != "" {
		body := map[string]string{"refresh_token": current.RefreshToken}
		if err := s.api.do(ctx, http.MethodPost, "/auth/logout", "", body, nil); err != nil {
			s.logger.Warn("remote logout failed", zap.Error(err))
		}
	}
	s.setSession(nil)
	return nil
}

// AccessToken devuelve el access token, refrescandolo si ya vencio.
func (s *HTTPSessionStore) AccessToken(ctx context.Context) (string, error) {
	current := s.CurrentSession()
	if current == nil {
		return "", ErrNoSession
	}
	if current.Expired(s.now()) {
		if err := s.refreshFrom(ctx, current.RefreshToken); err != nil {
			return "", err
		}
		current = s.CurrentSession()
		if current == nil {
			return "", ErrNoSession
		}
	}
	return current.AccessToken, nil
}

// Refresh rota el par de tokens despues de que el backend rechazara el
// access token rejected. Si otra llamada ya reemplazo ese token no hace nada.
func (s *HTTPSessionStore) Refresh(ctx context.Context, rejected string) error {
	current := s.CurrentSession()
	if current == nil {
		return ErrNoSession
	}
	if rejected != "" && current.AccessToken != rejected {
		return nil
	}
	return s.refreshFrom(ctx, current.RefreshToken)
}

// refreshFrom canjea seen por un par nuevo. Las llamadas se serializan y
// solo la primera que llega con un token dado habla con el backend; la sesion
// se descarta si el backend rechaza un refresh token que sigue siendo el actual.
func (s *HTTPSessionStore) refreshFrom(ctx context.Context, seen string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	current := s.CurrentSession()
	if current == nil || current.RefreshToken == "" {
		return ErrNoSession
	}
	if current.RefreshToken != seen {
		return nil
	}

	var resp struct {
		Tokens tokenPair `json:"tokens"`
	}
	err := s.api.do(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": seen}, &resp)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) && s.replaceSession(seen, nil) {
			s.logger.Info("refresh rejected, clearing session")
		}
		return err
	}
	s.replaceSession(seen, &domain.Session{
		AccessToken:  resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
		ExpiresAt:    resp.Tokens.ExpiresAt,
		User:         current.User,
	})
	return nil
}

// withToken ejecuta fn con el token actual y reintenta una sola vez tras un 401.
func (s *HTTPSessionStore) withToken(ctx context.Context, fn func(token string) error) error {
	return withToken(ctx, s, fn)
}

func withToken(ctx context.Context, tokens TokenSource, fn func(token string) error) error {
	token, err := tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	err = fn(token)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}
	if err := tokens.Refresh(ctx, token); err != nil {
		return err
	}
	token, err = tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	return fn(token)
}

func (s *HTTPSessionStore) authenticate(ctx context.Context, path string, body any) error {
	var resp sessionResponse
	if err := s.api.do(ctx, http.MethodPost, path, "", body, &resp); err != nil {
		return err
	}
	s.setSession(&domain.Session{
		AccessToken:  resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
		ExpiresAt:    resp.Tokens.ExpiresAt,
		User:         resp.User,
	})
	return nil
}

func (s *HTTPSessionStore) setSession(session *domain.Session) {
	s.mu.Lock()
	s.session = session
	listeners := s.listenersLocked()
	s.mu.Unlock()
	s.publish(session, listeners)
}

// replaceSession cambia la sesion solo si su refresh token sigue siendo seen.
func (s *HTTPSessionStore) replaceSession(seen string, session *domain.Session) bool {
	s.mu.Lock()
	if s.session == nil || s.session.RefreshToken != seen {
		s.mu.Unlock()
		return false
	}
	s.session = session
	listeners := s.listenersLocked()
	s.mu.Unlock()
	s.publish(session, listeners)
	return true
}

func (s *HTTPSessionStore) listenersLocked() []func(*domain.Session) {
	listeners := make([]func(*domain.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func (s *HTTPSessionStore) publish(session *domain.Session, listeners []func(*domain.Session)) {
	s.persist(session)

	for _, fn := range listeners {
		if session == nil {
			fn(nil)
			continue
		}
		cp := *session
		fn(&cp)
	}
}

func (s *HTTPSessionStore) persist(session *domain.Session) {
	value := ""
	if session != nil {
		raw, err := json.Marshal(session)
		if err != nil {
			s.logger.Warn("encode session failed", zap.Error(err))
			return
		}
		value = string(raw)
	}
	if err := s.store.Set(SessionKey, value); err != nil {
		s.logger.Warn("persist session failed", zap.Error(err))
	}
}
