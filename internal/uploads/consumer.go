package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
)

type messageReceiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer runs extraction jobs delivered over Pub/Sub.
type Consumer struct {
	subscription messageReceiver
	lease        Lease
	processor    jobRunner
	logg         *logger.Logger
}

// NewConsumer constructs a consumer for the extraction subscription.
func NewConsumer(subscription *pubsub.Subscriber, lease Lease, processor jobRunner, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("extraction subscription required")
	}
	return newConsumer(subscription, lease, processor, logg)
}

func newConsumer(subscription messageReceiver, lease Lease, processor jobRunner, logg *logger.Logger) (*Consumer, error) {
	if lease == nil {
		return nil, fmt.Errorf("lease required")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{subscription: subscription, lease: lease, processor: processor, logg: logg}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	eventType := attrs["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})
	if eventType != ProcessRequestedEvent {
		c.logg.Info(logCtx, "skipping unrelated event")
		return processResult{ack: true}
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		c.logg.Error(logCtx, "failed to decode extraction job", err)
		return processResult{ack: true}
	}
	if job.SessionID == uuid.Nil {
		c.logg.Error(logCtx, "extraction job missing session id", errors.New("empty session_id"))
		return processResult{ack: true}
	}
	logCtx = c.logg.WithSessionID(logCtx, job.SessionID.String())

	acquired, err := c.lease.Run(logCtx, job.SessionID, func(leaseCtx context.Context) error {
		return c.processor.Run(leaseCtx, job)
	})
	if !acquired && err == nil {
		c.logg.Info(logCtx, "extraction already running elsewhere; dropping duplicate")
		return processResult{ack: true}
	}
	if err != nil {
		c.logg.Error(logCtx, "extraction run failed", err)
		// Shutdown or a lost lease leaves images processing; redelivery resumes them.
		return processResult{nack: true}
	}
	return processResult{ack: true}
}
