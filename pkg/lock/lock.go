// Package lock 提供按 key 串行化的互斥锁：启用 Redis 时使用分布式锁，否则退回进程内分段锁。
package lock

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrNotAcquired = errors.New("lock not acquired")

type Locker interface {
	// Acquire 阻塞直到拿到锁或 ctx 结束；release 可重复调用
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// compare-and-delete，避免释放别人续上的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Retry  time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{Client: rdb, TTL: ttl, Retry: 25 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.Retry)
	defer ticker.Stop()

	for {
		ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					releaseScript.Run(context.Background(), l.Client, []string{key}, token)
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

const stripes = 64

// LocalLocker 单实例部署时使用，按 key 哈希到固定数量的互斥锁
type LocalLocker struct {
	mu [stripes]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	l := &LocalLocker{}
	for i := range l.mu {
		l.mu[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *LocalLocker) stripe(key string) chan struct{} {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.mu[h.Sum32()%stripes]
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.stripe(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}

// New Redis 为 nil 时返回本地锁
func New(rdb *redis.Client, ttl time.Duration) Locker {
	if rdb == nil {
		return NewLocalLocker()
	}
	return NewRedisLocker(rdb, ttl)
}
