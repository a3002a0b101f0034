package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ChangeFeed entrega una señal "cambio" sin payload por cada evento de la tabla.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table string, events []string, fn func()) (Subscription, error)
}

// Subscription es el handle de una suscripcion activa.
type Subscription interface {
	Unsubscribe()
}

type feedFrame struct {
	Type  string `json:"type"`
	Table string `json:"table"`
	Event string `json:"event,omitempty"`
}

// WSChangeFeed implementa ChangeFeed sobre GET /realtime/:table.
type WSChangeFeed struct {
	baseURL string
	tokens  TokenSource
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

func NewWSChangeFeed(baseURL string, tokens TokenSource, logger *zap.Logger) *WSChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSChangeFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Subscribe abre el socket y espera el ack del servidor. Al volver, el
// servidor ya entrega eventos a esta suscripcion.
func (f *WSChangeFeed) Subscribe(ctx context.Context, table string, events []string, fn func()) (Subscription, error) {
	var conn *websocket.Conn
	err := withToken(ctx, f.tokens, func(token string) error {
		c, resp, err := f.dialer.DialContext(ctx, f.feedURL(table, events, token), nil)
		if err != nil {
			if resp != nil {
				return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			}
			return fmt.Errorf("dial change feed: %w", err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	var ack feedFrame
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read subscribe ack: %w", err)
	}
	if ack.Type != "subscribed" {
		conn.Close()
		return nil, fmt.Errorf("unexpected frame %q", ack.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	sub := &wsSubscription{conn: conn, fn: fn, logger: f.logger, table: table}
	go sub.readLoop()
	return sub, nil
}

func (f *WSChangeFeed) feedURL(table string, events []string, token string) string {
	base := f.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	q := url.Values{}
	q.Set("token", token)
	if len(events) > 0 {
		q.Set("events", strings.Join(events, ","))
	}
	return base + "/realtime/" + url.PathEscape(table) + "?" + q.Encode()
}

type wsSubscription struct {
	conn   *websocket.Conn
	fn     func()
	logger *zap.Logger
	table  string
	closed atomic.Bool
	once   sync.Once
}

func (s *wsSubscription) readLoop() {
	for {
		var frame feedFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("change feed closed", zap.String("table", s.table), zap.Error(err))
			}
			return
		}
		if frame.Type != "changed" || s.closed.Load() {
			continue
		}
		s.fn()
	}
}

// Unsubscribe cierra el socket. Ningun callback corre despues de volver,
// salvo uno que ya estuviera en curso.
func (s *wsSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}
