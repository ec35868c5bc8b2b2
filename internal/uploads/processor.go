package uploads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/spoolhub-backend/internal/vision"
	"github.com/angelmondragon/spoolhub-backend/pkg/db/models"
	"github.com/angelmondragon/spoolhub-backend/pkg/enums"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
	"github.com/angelmondragon/spoolhub-backend/pkg/metrics"
	"github.com/angelmondragon/spoolhub-backend/pkg/storage"
)

const storageReadFailedMessage = "Could not read stored image"

// Job identifies one extraction run.
type Job struct {
	SessionID uuid.UUID `json:"session_id"`
	ModelHint string    `json:"model_hint,omitempty"`
}

// ProcessorParams configure the extraction worker.
type ProcessorParams struct {
	Repo      Repository
	Store     storage.ImageStore
	Extractor vision.Extractor
	Outcomes  OutcomeRecorder
	Metrics   *metrics.ExtractionMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Processor walks a processing session's unprocessed images one at a time.
type Processor struct {
	repo      Repository
	store     storage.ImageStore
	extractor vision.Extractor
	outcomes  OutcomeRecorder
	metrics   *metrics.ExtractionMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewProcessor builds an extraction worker.
func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Repo == nil {
		return nil, errors.New("uploads repository required")
	}
	if params.Store == nil {
		return nil, errors.New("image store required")
	}
	if params.Extractor == nil {
		return nil, errors.New("extractor required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	outcomes := params.Outcomes
	if outcomes == nil {
		outcomes = NopRecorder{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		repo:      params.Repo,
		store:     params.Store,
		extractor: params.Extractor,
		outcomes:  outcomes,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       func() time.Time { return now().UTC() },
	}, nil
}

// Run processes the session until every image is handled or the session
// stops being processing. Each pass re-lists the unprocessed rows, so rows
// committed after the run started are visited before the session completes.
// A cancelled ctx leaves the session processing so a later dispatch can
// resume it.
func (p *Processor) Run(ctx context.Context, job Job) error {
	ctx = p.logg.WithSessionID(ctx, job.SessionID.String())
	p.metrics.SessionStarted()
	result := metrics.SessionResultStopped
	defer func() { p.metrics.SessionFinished(result) }()

	visited := make(map[uuid.UUID]struct{})
	for pass := 0; ; pass++ {
		uploads, err := p.repo.ListUnprocessed(ctx, job.SessionID)
		if err != nil {
			return fmt.Errorf("list unprocessed uploads: %w", err)
		}
		fresh := uploads[:0]
		for _, upload := range uploads {
			if _, seen := visited[upload.ID]; !seen {
				fresh = append(fresh, upload)
			}
		}
		if len(fresh) == 0 {
			break
		}
		p.logg.Info(p.logg.WithFields(ctx, map[string]any{"image_count": len(fresh), "pass": pass}), "extraction pass starting")

		for _, upload := range fresh {
			session, proceed, err := p.checkpoint(ctx, job.SessionID)
			if err != nil {
				return err
			}
			if !proceed {
				if session != nil && session.Status == enums.UploadSessionStatusExpired {
					result = metrics.SessionResultExpired
				}
				return ctx.Err()
			}
			visited[upload.ID] = struct{}{}
			if err := p.processImage(ctx, session, upload, job.ModelHint); err != nil {
				return err
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	var err error
	result, err = p.finish(ctx, job.SessionID)
	return err
}

// checkpoint re-reads the session before each image. It flips the session to
// expired when the clock has passed expiresAt.
func (p *Processor) checkpoint(ctx context.Context, sessionID uuid.UUID) (*models.UploadSession, bool, error) {
	if ctx.Err() != nil {
		p.logg.Info(ctx, "extraction run interrupted")
		return nil, false, nil
	}
	session, err := p.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.logg.Info(ctx, "session deleted; stopping extraction")
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	if session.Status != enums.UploadSessionStatusProcessing {
		p.logg.Info(p.logg.WithField(ctx, "status", session.Status), "session no longer processing; stopping extraction")
		return session, false, nil
	}
	now := p.now()
	if session.IsExpiredAt(now) {
		if _, err := p.repo.TransitionSession(ctx, session.ID, enums.UploadSessionStatusExpired, now); err != nil {
			return nil, false, fmt.Errorf("expire session: %w", err)
		}
		session.Status = enums.UploadSessionStatusExpired
		p.logg.Info(ctx, "session expired during extraction")
		return session, false, nil
	}
	return session, true, nil
}

func (p *Processor) processImage(ctx context.Context, session *models.UploadSession, upload models.PendingUpload, modelHint string) error {
	imgCtx := p.logg.WithField(ctx, "pending_upload_id", upload.ID.String())
	started := p.now()

	claimed, err := p.repo.MarkUploadProcessing(ctx, upload.ID, started)
	if err != nil {
		return fmt.Errorf("mark upload processing: %w", err)
	}
	if !claimed {
		p.logg.Info(imgCtx, "pending upload no longer unprocessed; skipping")
		p.metrics.ObserveImage(metrics.OutcomeSkipped, 0)
		return nil
	}

	outcome := Outcome{
		SessionID:       session.ID,
		PendingUploadID: upload.ID,
		OwnerID:         session.OwnerID,
		Model:           modelHint,
		MimeType:        upload.MimeType,
		SizeBytes:       upload.SizeBytes,
	}

	var written bool
	image, err := p.store.Read(ctx, upload.ImageLocator)
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		p.logg.Error(imgCtx, "stored image unreadable", err)
		outcome.Outcome = metrics.OutcomeStorageError
		outcome.ErrorMessage = storageReadFailedMessage
		written, err = p.repo.FailUpload(ctx, upload.ID, storageReadFailedMessage, p.now())
	default:
		data, extractErr := p.extractor.Extract(ctx, image, upload.MimeType, modelHint)
		if extractErr != nil && ctx.Err() != nil {
			// Interrupted, not failed: the row stays processing and is picked up again.
			return ctx.Err()
		}
		if extractErr != nil {
			message := vision.UserMessage(extractErr)
			p.logg.Warn(p.logg.WithFields(imgCtx, map[string]any{"error": extractErr.Error(), "error_message": message}), "extraction failed")
			outcome.Outcome = metrics.OutcomeError
			outcome.ErrorMessage = message
			written, err = p.repo.FailUpload(ctx, upload.ID, message, p.now())
		} else {
			outcome.Outcome = metrics.OutcomeReady
			if data.Model != "" {
				outcome.Model = data.Model
			}
			written, err = p.repo.CompleteUpload(ctx, upload.ID, data.Normalize(), p.now())
		}
	}
	if err != nil {
		return fmt.Errorf("record extraction result: %w", err)
	}

	took := p.now().Sub(started)
	imgCtx = p.logg.WithFields(imgCtx, map[string]any{"outcome": outcome.Outcome, "duration_ms": took.Milliseconds()})
	if !written {
		p.logg.Info(imgCtx, "extraction result discarded; upload changed while processing")
		p.metrics.ObserveImage(metrics.OutcomeSkipped, took)
		return nil
	}
	p.logg.Info(imgCtx, "pending upload processed")
	p.metrics.ObserveImage(outcome.Outcome, took)

	outcome.Duration = took
	outcome.RecordedAt = p.now()
	if err := p.outcomes.Record(ctx, outcome); err != nil {
		p.logg.Error(imgCtx, "failed to record extraction outcome", err)
	}
	if err := p.repo.TouchSession(ctx, session.ID, p.now()); err != nil {
		p.logg.Error(imgCtx, "failed to touch session", err)
	}
	return nil
}

func (p *Processor) finish(ctx context.Context, sessionID uuid.UUID) (string, error) {
	session, err := p.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return metrics.SessionResultStopped, nil
		}
		return metrics.SessionResultStopped, fmt.Errorf("load session: %w", err)
	}

	if session.Status != enums.UploadSessionStatusProcessing {
		p.logg.Info(p.logg.WithField(ctx, "status", session.Status), "session left processing before completion")
		return metrics.SessionResultStopped, nil
	}

	now := p.now()
	if session.IsExpiredAt(now) {
		expired, err := p.repo.TransitionSession(ctx, sessionID, enums.UploadSessionStatusExpired, now, enums.UploadSessionStatusProcessing)
		if err != nil {
			return metrics.SessionResultStopped, fmt.Errorf("expire session: %w", err)
		}
		if expired {
			p.logg.Info(ctx, "extraction run finished after session expiry")
			return metrics.SessionResultExpired, nil
		}
		return metrics.SessionResultStopped, nil
	}

	completed, err := p.repo.TransitionSession(ctx, sessionID, enums.UploadSessionStatusCompleted, now, enums.UploadSessionStatusProcessing)
	if err != nil {
		return metrics.SessionResultStopped, fmt.Errorf("complete session: %w", err)
	}
	if !completed {
		p.logg.Info(ctx, "session left processing before completion")
		return metrics.SessionResultStopped, nil
	}
	p.logg.Info(ctx, "extraction run completed")
	return metrics.SessionResultComplete, nil
}
