package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
)

// ProcessRequestedEvent is the Pub/Sub event type carrying an extraction Job.
const ProcessRequestedEvent = "upload.session.process_requested"

const defaultPublishTimeout = 10 * time.Second

// Dispatcher starts extraction for a session and reports whether a worker is
// currently alive for it anywhere.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
	IsActive(ctx context.Context, sessionID uuid.UUID) (bool, error)
	// Stop interrupts a worker running in this process. Remote workers notice
	// the session change at their next checkpoint.
	Stop(sessionID uuid.UUID)
}

type jobRunner interface {
	Run(ctx context.Context, job Job) error
}

// InlineDispatcher runs extraction inside the API process.
type InlineDispatcher struct {
	runner    *Runner
	lease     Lease
	processor jobRunner
	logg      *logger.Logger
}

// NewInlineDispatcher wires the runner, lease and processor together.
func NewInlineDispatcher(runner *Runner, lease Lease, processor jobRunner, logg *logger.Logger) (*InlineDispatcher, error) {
	if runner == nil {
		return nil, errors.New("runner required")
	}
	if processor == nil {
		return nil, errors.New("processor required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if lease == nil {
		lease = LocalLease{}
	}
	return &InlineDispatcher{runner: runner, lease: lease, processor: processor, logg: logg}, nil
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, job Job) error {
	started := d.runner.Start(ctx, job.SessionID, func(taskCtx context.Context) {
		taskCtx = d.logg.WithSessionID(taskCtx, job.SessionID.String())
		acquired, err := d.lease.Run(taskCtx, job.SessionID, func(leaseCtx context.Context) error {
			return d.processor.Run(leaseCtx, job)
		})
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			d.logg.Error(taskCtx, "extraction run failed", err)
		case !acquired:
			d.logg.Info(taskCtx, "extraction lease held elsewhere; skipping")
		}
	})
	if !started {
		d.logg.Info(d.logg.WithSessionID(ctx, job.SessionID.String()), "extraction already running locally")
	}
	return nil
}

func (d *InlineDispatcher) IsActive(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	if d.runner.IsRunning(sessionID) {
		return true, nil
	}
	return d.lease.IsHeld(ctx, sessionID)
}

func (d *InlineDispatcher) Stop(sessionID uuid.UUID) {
	d.runner.Cancel(sessionID)
}

// PublishFunc sends one message and waits for the server acknowledgement.
type PublishFunc func(ctx context.Context, msg *pubsub.Message) error

// PublisherFunc adapts a Pub/Sub publisher to a PublishFunc.
func PublisherFunc(publisher *pubsub.Publisher) PublishFunc {
	return func(ctx context.Context, msg *pubsub.Message) error {
		if publisher == nil {
			return errors.New("publisher not configured")
		}
		_, err := publisher.Publish(ctx, msg).Get(ctx)
		return err
	}
}

// PubSubDispatcher hands extraction to cmd/worker through Pub/Sub.
type PubSubDispatcher struct {
	publish PublishFunc
	lease   Lease
	now     func() time.Time
}

// NewPubSubDispatcher builds a dispatcher that publishes extraction jobs.
func NewPubSubDispatcher(publish PublishFunc, lease Lease) (*PubSubDispatcher, error) {
	if publish == nil {
		return nil, errors.New("publish func required")
	}
	if lease == nil {
		return nil, errors.New("lease required")
	}
	return &PubSubDispatcher{publish: publish, lease: lease, now: time.Now}, nil
}

func (d *PubSubDispatcher) Dispatch(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type":   ProcessRequestedEvent,
			"session_id":   job.SessionID.String(),
			"requested_at": d.now().UTC().Format(time.RFC3339Nano),
		},
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	if err := d.publish(publishCtx, msg); err != nil {
		return fmt.Errorf("publish extraction job: %w", err)
	}
	return nil
}

func (d *PubSubDispatcher) IsActive(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return d.lease.IsHeld(ctx, sessionID)
}

func (d *PubSubDispatcher) Stop(uuid.UUID) {}
