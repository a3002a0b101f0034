package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MaxOTPAttempts es la cantidad de codigos erroneos tras la cual el codigo
// pendiente se invalida y hay que pedir otro.
const MaxOTPAttempts = 5

// OTPAttemptLimiter cuenta los intentos fallidos de verificacion por email.
type OTPAttemptLimiter interface {
	Fail(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

type memoryOTPAttemptLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries map[string]otpAttempts
}

type otpAttempts struct {
	count     int
	expiresAt time.Time
}

// NewOTPAttemptLimiter crea el contador en memoria; cada cuenta vive window.
func NewOTPAttemptLimiter(window time.Duration) OTPAttemptLimiter {
	if window <= 0 {
		window = otpTTL
	}
	return &memoryOTPAttemptLimiter{
		window:  window,
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[string]otpAttempts),
	}
}

func (l *memoryOTPAttemptLimiter) Fail(_ context.Context, key string) (int, error) {
	key = normalizeEmail(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = otpAttempts{expiresAt: now.Add(l.window)}
	}
	entry.count++
	l.entries[key] = entry
	return entry.count, nil
}

func (l *memoryOTPAttemptLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, normalizeEmail(key))
	l.mu.Unlock()
	return nil
}

const redisOTPFailScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

// redisCounter es el subconjunto de *redis.Client que usa el contador.
type redisCounter interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisOTPAttemptLimiter struct {
	client  redisCounter
	window  time.Duration
	prefix  string
	timeout time.Duration
}

// NewRedisOTPAttemptLimiter comparte la cuenta de intentos entre replicas.
func NewRedisOTPAttemptLimiter(client *redis.Client, window time.Duration) OTPAttemptLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = otpTTL
	}
	return &redisOTPAttemptLimiter{
		client:  client,
		window:  window,
		prefix:  "auth:otp:fail:",
		timeout: 500 * time.Millisecond,
	}
}

func (l *redisOTPAttemptLimiter) Fail(ctx context.Context, key string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	return l.client.Eval(ctx, redisOTPFailScript, []string{l.prefix + normalizeEmail(key)}, seconds).Int()
}

func (l *redisOTPAttemptLimiter) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.client.Del(ctx, l.prefix+normalizeEmail(key)).Err()
}
