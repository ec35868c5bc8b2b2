package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/spoolhub-backend/internal/uploads"
	"github.com/angelmondragon/spoolhub-backend/pkg/db/models"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
)

const (
	defaultStallAfter      = 10 * time.Minute
	defaultStalledBatch    = 100
	stalledSessionsJobName = "stalled-upload-sessions"
)

// StalledSessionJobParams configure the stalled session recovery job.
type StalledSessionJobParams struct {
	Logger     *logger.Logger
	Repo       stalledSessionRepo
	Dispatcher sessionDispatcher
	StallAfter time.Duration
	BatchSize  int
}

type stalledSessionRepo interface {
	ListStalledSessions(ctx context.Context, updatedBefore time.Time, limit int) ([]models.UploadSession, error)
}

type sessionDispatcher interface {
	Dispatch(ctx context.Context, job uploads.Job) error
	IsActive(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// NewStalledSessionJob re-dispatches processing sessions whose worker died
// with the process that ran it.
func NewStalledSessionJob(params StalledSessionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("uploads repository required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	stallAfter := params.StallAfter
	if stallAfter <= 0 {
		stallAfter = defaultStallAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStalledBatch
	}
	return &stalledSessionJob{
		logg:       params.Logger,
		repo:       params.Repo,
		dispatcher: params.Dispatcher,
		stallAfter: stallAfter,
		batchSize:  batch,
		now:        time.Now,
	}, nil
}

type stalledSessionJob struct {
	logg       *logger.Logger
	repo       stalledSessionRepo
	dispatcher sessionDispatcher
	stallAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *stalledSessionJob) Name() string { return stalledSessionsJobName }

func (j *stalledSessionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.stallAfter)
	sessions, err := j.repo.ListStalledSessions(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stalled sessions: %w", err)
	}

	var (
		redispatched int
		live         int
		errs         error
	)
	for _, session := range sessions {
		sessionCtx := j.logg.WithSessionID(ctx, session.ID.String())
		active, err := j.dispatcher.IsActive(sessionCtx, session.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("session %s liveness: %w", session.ID, err))
			continue
		}
		if active {
			live++
			continue
		}
		if err := j.dispatcher.Dispatch(sessionCtx, uploads.Job{SessionID: session.ID, ModelHint: session.ModelHint}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("session %s dispatch: %w", session.ID, err))
			continue
		}
		j.logg.Info(j.logg.WithField(sessionCtx, "last_progress_at", session.UpdatedAt), "stalled upload session re-dispatched")
		redispatched++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"candidates":   len(sessions),
		"live":         live,
		"redispatched": redispatched,
	})
	j.logg.Info(logCtx, "stalled session recovery complete")
	return errs
}
