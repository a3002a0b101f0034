package shell

import (
	"sync"

	"go.uber.org/zap"

	"minichat/internal/client"
	"minichat/internal/domain"
)

const (
	RouteAuth      = "/"
	RouteDashboard = "/dashboard"
)

// Shell elige entre la vista de acceso y la de mensajes segun haya sesion.
// Las transiciones las dispara el SessionStore, no la navegacion.
type Shell struct {
	sessions client.SessionStore
	logger   *zap.Logger

	mu          sync.Mutex
	session     *domain.Session
	current     string
	started     bool
	unsubscribe func()
	onRoute     func(route string)
}

func New(sessions client.SessionStore, logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shell{sessions: sessions, logger: logger}
}

// OnRoute registra el hook que se llama cada vez que cambia el destino.
func (s *Shell) OnRoute(fn func(route string)) {
	s.mu.Lock()
	s.onRoute = fn
	s.mu.Unlock()
}

// Start resuelve la sesion inicial y queda escuchando cambios de sesion.
func (s *Shell) Start() string {
	s.mu.Lock()
	if s.started {
		current := s.current
		s.mu.Unlock()
		return current
	}
	s.started = true
	s.session = s.sessions.CurrentSession()
	s.mu.Unlock()

	unsubscribe := s.sessions.OnChange(s.handleSessionChange)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	return s.Navigate(RouteDashboard)
}

// Resolve devuelve el destino real para path segun la sesion actual.
func (s *Shell) Resolve(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(path)
}

func (s *Shell) resolveLocked(string) string {
	if s.session != nil {
		return RouteDashboard
	}
	return RouteAuth
}

// Navigate va a path (redirigiendo si corresponde) y devuelve el destino.
func (s *Shell) Navigate(path string) string {
	s.mu.Lock()
	next := s.resolveLocked(path)
	changed := next != s.current
	s.current = next
	hook := s.onRoute
	s.mu.Unlock()

	if changed {
		s.logger.Debug("route changed", zap.String("route", next))
		if hook != nil {
			hook(next)
		}
	}
	return next
}

// Current devuelve el destino actual ("" antes de Start).
func (s *Shell) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Session devuelve la sesion que conoce el Shell.
func (s *Shell) Session() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Shell) handleSessionChange(session *domain.Session) {
	s.mu.Lock()
	s.session = session
	if !s.started || s.current == "" {
		s.mu.Unlock()
		return
	}
	current := s.current
	s.mu.Unlock()
	s.Navigate(current)
}

// Close deja de escuchar cambios de sesion.
func (s *Shell) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.started = false
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
