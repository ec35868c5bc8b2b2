package uploads

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Runner owns the detached extraction tasks started by this process, keyed
// by session id. At most one task per session runs at a time.
type Runner struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*task
	wg    sync.WaitGroup
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner constructs an empty runner.
func NewRunner() *Runner {
	return &Runner{tasks: map[uuid.UUID]*task{}}
}

// Start launches fn for the session unless a task is already running for it.
// The task keeps the values of ctx but not its cancellation, so it outlives
// the request that triggered it.
func (r *Runner) Start(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.tasks[sessionID]; running {
		return false
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{cancel: cancel, done: make(chan struct{})}
	r.tasks[sessionID] = t
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer close(t.done)
		defer cancel()
		defer r.forget(sessionID, t)
		fn(taskCtx)
	}()
	return true
}

func (r *Runner) forget(sessionID uuid.UUID, t *task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.tasks[sessionID]; ok && current == t {
		delete(r.tasks, sessionID)
	}
}

// IsRunning reports whether this process has a live task for the session.
func (r *Runner) IsRunning(sessionID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[sessionID]
	return ok
}

// Cancel signals the session's task to stop. It returns false when no task is
// running locally.
func (r *Runner) Cancel(sessionID uuid.UUID) bool {
	r.mu.Lock()
	t, ok := r.tasks[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Done returns a channel closed when the session's task exits, or nil when no
// task is running.
func (r *Runner) Done(sessionID uuid.UUID) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[sessionID]; ok {
		return t.done
	}
	return nil
}

// Wait blocks until every task has exited or ctx ends. Tasks keep running.
func (r *Runner) Wait(ctx context.Context) error {
	return r.wait(ctx)
}

// Shutdown cancels every task and waits for them to exit or for ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, t := range r.tasks {
		t.cancel()
	}
	r.mu.Unlock()
	return r.wait(ctx)
}

func (r *Runner) wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
