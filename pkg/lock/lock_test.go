package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_Serializes(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "attempt:start:1:2")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLocker_ContextTimeout(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotAcquired))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLocalLocker_ReleaseTwice(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	release2, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release2()
}

func TestNew_FallsBackWithoutRedis(t *testing.T) {
	_, ok := New(nil, time.Second).(*LocalLocker)
	assert.True(t, ok)
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, ttl), mr
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	l, mr := newRedisLocker(t, 3*time.Second)

	release, err := l.Acquire(context.Background(), "attempt:start:1:2")
	require.NoError(t, err)
	assert.True(t, mr.Exists("attempt:start:1:2"))
	assert.Equal(t, 3*time.Second, mr.TTL("attempt:start:1:2"))

	release()
	assert.False(t, mr.Exists("attempt:start:1:2"))
	release()
}

func TestRedisLocker_ContextTimeout(t *testing.T) {
	l, _ := newRedisLocker(t, time.Minute)

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotAcquired))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRedisLocker_RetriesUntilReleased(t *testing.T) {
	l, _ := newRedisLocker(t, time.Minute)

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		second, err := l.Acquire(ctx, "k")
		if err == nil {
			second()
		}
		acquired <- err
	}()

	time.Sleep(100 * time.Millisecond)
	release()

	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire never succeeded")
	}
}

func TestRedisLocker_ReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	// 锁过期后被其他持有者拿走
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists("k"))
	require.NoError(t, mr.Set("k", "someone-else"))

	release()
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNew_UsesRedisWhenConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l, ok := New(rdb, 0).(*RedisLocker)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, l.TTL)
}
