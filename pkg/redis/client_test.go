package redis

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.AcquireLock(ctx, "order-expiry", "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected first acquire to win")
	}

	ok, err = client.AcquireLock(ctx, "order-expiry", "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if ok {
		t.Fatalf("lock should still be held by worker-a")
	}

	released, err := client.ReleaseLock(ctx, "order-expiry", "worker-b")
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released {
		t.Fatalf("worker-b must not release a lock it does not hold")
	}

	released, err = client.ReleaseLock(ctx, "order-expiry", "worker-a")
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if !released {
		t.Fatalf("expected owner release to succeed")
	}
	if _, err := client.Get(ctx, client.LockKey("order-expiry")); err != redis.Nil {
		t.Fatalf("expected lock key to be gone, got %v", err)
	}
}

func TestAcquireLockValidates(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, err := client.AcquireLock(context.Background(), "job", "", time.Minute); err == nil {
		t.Fatalf("expected owner validation error")
	}
	if _, err := client.AcquireLock(context.Background(), "job", "me", 0); err == nil {
		t.Fatalf("expected ttl validation error")
	}
}

func TestHitCountsWithinOneWindow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("confirm:user-1")

	for want := int64(1); want <= 3; want++ {
		got, err := client.Hit(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("hit: %v", err)
		}
		if got.Count != want {
			t.Fatalf("expected count %d, got %d", want, got.Count)
		}
		if got.ResetIn != time.Minute {
			t.Fatalf("expected window to reset in 1m, got %v", got.ResetIn)
		}
	}

	mock.ttls[key] = 15 * time.Second
	got, err := client.Hit(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if got.Count != 4 || got.ResetIn != 15*time.Second {
		t.Fatalf("later hits must not extend the window, got %+v", got)
	}

	if _, err := client.Hit(ctx, key, 0); err == nil {
		t.Fatalf("expected window validation error")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("checkout", "abc"); got != "sf:idempotency:checkout:abc" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.LockKey("cron"); got != "sf:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.RateLimitKey("checkout:ip:1.2.3.4"); got != "sf:rl:checkout:ip:1.2.3.4" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.IdempotencyKey("", "abc"); got != "sf:idempotency:abc" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without connection should be a no-op, got %v", err)
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval understands the lock release and rate limit hit scripts.
func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script arguments"))
	}
	key := keys[0]
	switch script {
	case releaseScript:
		if m.data[key] != fmt.Sprint(args[0]) {
			return redis.NewCmdResult(int64(0), nil)
		}
		delete(m.data, key)
		return redis.NewCmdResult(int64(1), nil)
	case hitScript:
		n, _ := strconv.ParseInt(m.data[key], 10, 64)
		n++
		m.data[key] = strconv.FormatInt(n, 10)
		ttl, ok := m.ttls[key]
		if n == 1 || !ok {
			ttl = time.Duration(args[0].(int64)) * time.Millisecond
			m.ttls[key] = ttl
		}
		return redis.NewCmdResult([]any{n, ttl.Milliseconds()}, nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
