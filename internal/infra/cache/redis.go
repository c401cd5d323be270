package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"screen-automations/internal/domain"
	"screen-automations/internal/infra/metrics"
)

// releaseScript снимает блокировку, только если она всё ещё наша.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock реализует domain.RunLock через SET NX с токеном владельца.
type RedisLock struct {
	client *redis.Client
}

var _ domain.RunLock = (*RedisLock)(nil)

// NewRedisLock создаёт блокировку.
func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

// Acquire пытается занять ключ на ttl. Освобождение не зависит от ctx вызова,
// чтобы отменённый тик не оставил блокировку до истечения ttl.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	start := time.Now()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	metrics.ObserveNetworkRequest("redis", "lock_acquire", "automation_lock", start, err)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		metrics.ObserveNetworkRequest("redis", "lock_release", "automation_lock", start, err)
	}
	return release, true, nil
}

// LocalLock блокирует в памяти процесса, когда Redis не настроен.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLock создаёт блокировку.
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]time.Time)}
}

// Acquire занимает ключ, если он свободен или его ttl истёк.
func (l *LocalLock) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expires) {
			delete(l.held, key)
		}
	}, true, nil
}
