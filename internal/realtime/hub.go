package realtime

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"minichat/internal/domain"
)

const subscriberBuffer = 16

// Hub reparte los eventos de cambio entre los suscriptores de cada tabla.
type Hub struct {
	logger *zap.Logger
	mu     sync.RWMutex
	tables map[string]map[string]*Subscription
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, tables: make(map[string]map[string]*Subscription)}
}

// Subscription recibe los eventos de una tabla filtrados por tipo.
type Subscription struct {
	ID     string
	table  string
	events []string
	ch     chan domain.ChangeEvent
	hub    *Hub
	once   sync.Once
}

// Table devuelve la tabla observada.
func (s *Subscription) Table() string {
	return s.table
}

// Events es el canal de eventos; se cierra al cerrar la suscripcion.
func (s *Subscription) Events() <-chan domain.ChangeEvent {
	return s.ch
}

// Close desregistra la suscripcion. Es seguro llamarlo mas de una vez.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
}

func (h *Hub) Subscribe(table string, events []string) *Subscription {
	table = strings.TrimSpace(table)
	sub := &Subscription{
		ID:     uuid.NewString(),
		table:  table,
		events: events,
		ch:     make(chan domain.ChangeEvent, subscriberBuffer),
		hub:    h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tables[table] == nil {
		h.tables[table] = make(map[string]*Subscription)
	}
	h.tables[table][sub.ID] = sub
	return sub
}

// Publish entrega el evento sin bloquear. Si el buffer de un suscriptor esta
// lleno el evento se descarta: ya tiene un aviso pendiente que dispara el re-fetch.
func (h *Hub) Publish(ev domain.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.tables[ev.Table] {
		if !ev.MatchesEvents(sub.events) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Debug("subscriber buffer full, event coalesced", zap.String("subscription_id", sub.ID))
		}
	}
}

// Count devuelve la cantidad de suscriptores activos de una tabla.
func (h *Hub) Count(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tables[table])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.tables[sub.table]; subs != nil {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.tables, sub.table)
		}
	}
}
