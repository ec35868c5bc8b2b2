package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/spoolhub-backend/pkg/instance"
)

const defaultLockTTL = 5 * time.Minute

// Lock keeps two cron-worker replicas from sweeping the same cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// leaseStore is the slice of the redis client the lock needs.
type leaseStore interface {
	LeaseKey(name string) string
	AcquireLease(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, holder string) (bool, error)
}

// RedisLock holds a namespaced redis lease for one cycle.
type RedisLock struct {
	store  leaseStore
	key    string
	ttl    time.Duration
	holder string
}

// NewRedisLock constructs a Redis-backed lock named name.
func NewRedisLock(store leaseStore, name string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: store.LeaseKey(name), ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	holder := instance.GetID() + ":" + uuid.NewString()
	ok, err := l.store.AcquireLease(ctx, l.key, holder, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		l.holder = holder
	}
	return ok, nil
}

// Release drops the lease if this instance still holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.holder == "" {
		return nil
	}
	holder := l.holder
	l.holder = ""
	if _, err := l.store.ReleaseLease(ctx, l.key, holder); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// NoopLock always grants the cycle. Used when redis is not configured.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context) (bool, error) { return true, nil }
func (NoopLock) Release(context.Context) error         { return nil }
