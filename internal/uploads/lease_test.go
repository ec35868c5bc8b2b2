package uploads

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
)

type fakeLeaseStore struct {
	mu       sync.Mutex
	holders  map[string]string
	refreshN int
	loseOn   int
}

func newFakeLeaseStore() *fakeLeaseStore {
	return &fakeLeaseStore{holders: map[string]string{}}
}

func (f *fakeLeaseStore) LeaseKey(name string) string { return "sh:lease:" + name }

func (f *fakeLeaseStore) AcquireLease(_ context.Context, key, holder string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.holders[key]; taken {
		return false, nil
	}
	f.holders[key] = holder
	return true, nil
}

func (f *fakeLeaseStore) RefreshLease(_ context.Context, key, holder string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshN++
	if f.loseOn > 0 && f.refreshN >= f.loseOn {
		f.holders[key] = "someone-else"
	}
	return f.holders[key] == holder, nil
}

func (f *fakeLeaseStore) ReleaseLease(_ context.Context, key, holder string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holders[key] != holder {
		return false, nil
	}
	delete(f.holders, key)
	return true, nil
}

func (f *fakeLeaseStore) Exists(_ context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.holders[key]; ok {
			n++
		}
	}
	return n, nil
}

func discardLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestRedisLeaseExcludesSecondHolder(t *testing.T) {
	store := newFakeLeaseStore()
	lease, err := NewRedisLease(store, time.Minute, discardLogger())
	if err != nil {
		t.Fatalf("new lease: %v", err)
	}
	sessionID := uuid.New()
	ctx := context.Background()

	var nestedAcquired bool
	acquired, err := lease.Run(ctx, sessionID, func(ctx context.Context) error {
		held, err := lease.IsHeld(ctx, sessionID)
		if err != nil || !held {
			t.Errorf("expected lease to be held during run (err=%v)", err)
		}
		nestedAcquired, _ = lease.Run(ctx, sessionID, func(context.Context) error {
			t.Error("second holder must not run")
			return nil
		})
		return nil
	})
	if err != nil || !acquired {
		t.Fatalf("expected first run to acquire, got acquired=%v err=%v", acquired, err)
	}
	if nestedAcquired {
		t.Fatal("expected nested run to be rejected")
	}

	held, err := lease.IsHeld(ctx, sessionID)
	if err != nil {
		t.Fatalf("is held: %v", err)
	}
	if held {
		t.Fatal("expected lease released after run")
	}
}

func TestRedisLeasePropagatesRunError(t *testing.T) {
	lease, _ := NewRedisLease(newFakeLeaseStore(), time.Minute, discardLogger())
	boom := errors.New("boom")
	acquired, err := lease.Run(context.Background(), uuid.New(), func(context.Context) error { return boom })
	if !acquired || !errors.Is(err, boom) {
		t.Fatalf("expected run error to surface, got acquired=%v err=%v", acquired, err)
	}
}

func TestRedisLeaseCancelsRunWhenOwnershipLost(t *testing.T) {
	store := newFakeLeaseStore()
	store.loseOn = 1
	lease, _ := NewRedisLease(store, 30*time.Millisecond, discardLogger())

	acquired, err := lease.Run(context.Background(), uuid.New(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return errors.New("run was not cancelled")
		}
	})
	if !acquired {
		t.Fatal("expected lease to be acquired")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation after lease loss, got %v", err)
	}
}

func TestNewRedisLeaseRequiresStore(t *testing.T) {
	if _, err := NewRedisLease(nil, time.Minute, discardLogger()); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestLocalLeaseAlwaysRuns(t *testing.T) {
	ran := false
	acquired, err := LocalLease{}.Run(context.Background(), uuid.New(), func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !acquired || !ran {
		t.Fatalf("expected local lease to run inline, acquired=%v ran=%v err=%v", acquired, ran, err)
	}
	held, _ := LocalLease{}.IsHeld(context.Background(), uuid.New())
	if held {
		t.Fatal("local lease never reports a remote holder")
	}
}
