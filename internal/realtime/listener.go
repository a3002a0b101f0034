package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"minichat/internal/domain"
)

// Publisher recibe los eventos decodificados del listener.
type Publisher interface {
	Publish(ev domain.ChangeEvent)
}

// PgListener escucha el canal NOTIFY de la tabla y reenvia cada aviso al hub.
type PgListener struct {
	pool       *pgxpool.Pool
	publisher  Publisher
	logger     *zap.Logger
	channel    string
	retryDelay time.Duration
}

func NewPgListener(pool *pgxpool.Pool, publisher Publisher, channel string, logger *zap.Logger) *PgListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgListener{
		pool:       pool,
		publisher:  publisher,
		logger:     logger,
		channel:    channel,
		retryDelay: time.Second,
	}
}

// Run bloquea hasta que ctx se cancele. Si la conexion se cae vuelve a escuchar.
func (l *PgListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("change listener stopped, reconnecting", zap.Error(err), zap.String("channel", l.channel))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *PgListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("listening for table changes", zap.String("channel", l.channel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := DecodeNotification(n.Payload)
		if err != nil {
			l.logger.Warn("bad change notification", zap.Error(err), zap.String("payload", n.Payload))
			continue
		}
		l.publisher.Publish(ev)
	}
}

// DecodeNotification interpreta el payload JSON que emite el trigger.
func DecodeNotification(payload string) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode payload: %w", err)
	}
	ev.Table = strings.TrimSpace(ev.Table)
	ev.Event = strings.ToUpper(strings.TrimSpace(ev.Event))
	if ev.Table == "" {
		return domain.ChangeEvent{}, errors.New("notification without table")
	}
	switch ev.Event {
	case domain.EventInsert, domain.EventUpdate, domain.EventDelete:
	default:
		return domain.ChangeEvent{}, fmt.Errorf("unknown event %q", ev.Event)
	}
	return ev, nil
}
