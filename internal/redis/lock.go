package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("doctor-day lock not acquired")
)

// Locker guards critical sections scoped to one doctor's queue on one calendar
// day. Token assignment and the advance/skip two-phase writes run under it so
// concurrent front-desk requests for the same queue are serialized.
type Locker interface {
	WithDoctorDayLock(ctx context.Context, doctorID uuid.UUID, day string, fn func(ctx context.Context) error) error
}

type redisDoctorDayLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDoctorDayLocker creates a locker that uses one Redis key per
// (doctor, date) partition.
func NewRedisDoctorDayLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisDoctorDayLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisDoctorDayLocker) WithDoctorDayLock(ctx context.Context, doctorID uuid.UUID, day string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:doctorday:%s:%s", doctorID.String(), day)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire doctor-day lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDoctorDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release doctor-day lock: %w", err)
	}
	return nil
}
