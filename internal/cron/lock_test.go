package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryLocker struct {
	holders  map[string]string
	ttls     map[string]time.Duration
	failNext error
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{holders: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLocker) AcquireLock(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return false, err
	}
	if _, held := m.holders[name]; held {
		return false, nil
	}
	m.holders[name] = owner
	m.ttls[name] = ttl
	return true, nil
}

func (m *memoryLocker) ReleaseLock(_ context.Context, name, owner string) (bool, error) {
	if m.holders[name] != owner {
		return false, nil
	}
	delete(m.holders, name)
	return true, nil
}

func TestRedisLockExcludesSecondReplica(t *testing.T) {
	locker := newMemoryLocker()
	first, err := NewRedisLock(locker, "cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(locker, "cron", time.Minute)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := locker.holders["cron"]; !held {
		t.Fatal("non-owner release must not free the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = second.Acquire(ctx)
	if !ok {
		t.Fatal("expected second replica to acquire after release")
	}
}

func TestRedisLockDefaultsTTL(t *testing.T) {
	locker := newMemoryLocker()
	lock, err := NewRedisLock(locker, "cron", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if _, err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if locker.ttls["cron"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", locker.ttls["cron"])
	}
}

func TestRedisLockAcquireError(t *testing.T) {
	locker := newMemoryLocker()
	locker.failNext = errors.New("conn refused")
	lock, _ := NewRedisLock(locker, "cron", time.Minute)
	if _, err := lock.Acquire(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "cron", time.Minute); err == nil {
		t.Fatal("expected nil locker error")
	}
	if _, err := NewRedisLock(newMemoryLocker(), "", time.Minute); err == nil {
		t.Fatal("expected empty name error")
	}
}
