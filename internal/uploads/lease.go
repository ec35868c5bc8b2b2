package uploads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/spoolhub-backend/pkg/instance"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
	"github.com/angelmondragon/spoolhub-backend/pkg/redis"
)

const (
	defaultLeaseTTL     = 2 * time.Minute
	leaseReleaseTimeout = 5 * time.Second
)

// Lease guards a session so that only one worker across every process
// extracts it at a time.
type Lease interface {
	// Run executes fn while holding the session's lease. It returns false
	// without calling fn when another holder owns the lease.
	Run(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context) error) (bool, error)
	IsHeld(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// RedisLease implements Lease with a SETNX key refreshed on a heartbeat.
type RedisLease struct {
	store redis.LeaseStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewRedisLease builds a Redis-backed lease.
func NewRedisLease(store redis.LeaseStore, ttl time.Duration, logg *logger.Logger) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("lease store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLease{store: store, ttl: ttl, logg: logg}, nil
}

func (l *RedisLease) key(sessionID uuid.UUID) string {
	return l.store.LeaseKey("upload-session:" + sessionID.String())
}

func (l *RedisLease) Run(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context) error) (bool, error) {
	key := l.key(sessionID)
	holder := instance.GetID() + ":" + uuid.NewString()
	acquired, err := l.store.AcquireLease(ctx, key, holder, l.ttl)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		l.heartbeat(runCtx, cancel, key, holder)
	}()

	runErr := fn(runCtx)
	cancel()
	<-heartbeatDone

	releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseTimeout)
	defer releaseCancel()
	if _, err := l.store.ReleaseLease(releaseCtx, key, holder); err != nil {
		l.logg.Error(l.logg.WithField(ctx, "lease_key", key), "failed to release extraction lease", err)
	}
	return true, runErr
}

// heartbeat extends the lease every third of its TTL and cancels the run as
// soon as ownership cannot be confirmed.
func (l *RedisLease) heartbeat(ctx context.Context, cancel context.CancelFunc, key, holder string) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.store.RefreshLease(ctx, key, holder, l.ttl)
			if ctx.Err() != nil {
				return
			}
			if err != nil || !ok {
				logCtx := l.logg.WithField(ctx, "lease_key", key)
				if err == nil {
					err = errors.New("lease held by another worker")
				}
				l.logg.Error(logCtx, "extraction lease lost", err)
				cancel()
				return
			}
		}
	}
}

func (l *RedisLease) IsHeld(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	n, err := l.store.Exists(ctx, l.key(sessionID))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LocalLease is used when no Redis is configured; the in-process Runner is
// then the only single-flight guard.
type LocalLease struct{}

func (LocalLease) Run(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) (bool, error) {
	return true, fn(ctx)
}

func (LocalLease) IsHeld(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}
