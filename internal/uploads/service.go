// Package uploads runs the bulk spool-photo pipeline: upload sessions, their
// pending uploads, the detached extraction worker and the dashboard queries.
package uploads

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/spoolhub-backend/pkg/config"
	dbpkg "github.com/angelmondragon/spoolhub-backend/pkg/db"
	"github.com/angelmondragon/spoolhub-backend/pkg/db/models"
	"github.com/angelmondragon/spoolhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/spoolhub-backend/pkg/errors"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
	"github.com/angelmondragon/spoolhub-backend/pkg/pagination"
	"github.com/angelmondragon/spoolhub-backend/pkg/storage"
	"github.com/angelmondragon/spoolhub-backend/pkg/types"
)

// CancelledByUserMessage is recorded on images dropped by a session cancel.
const CancelledByUserMessage = "Cancelled by user"

const (
	sessionTokenBytes = 24
	maxTokenAttempts  = 3
)

var (
	errSessionNotFound  = pkgerrors.New(pkgerrors.CodeNotFound, "upload session not found")
	errSessionForbidden = pkgerrors.New(pkgerrors.CodeForbidden, "upload session belongs to another user")
	errSessionExpired   = pkgerrors.New(pkgerrors.CodeGone, "upload session expired")
	errSessionCancelled = pkgerrors.New(pkgerrors.CodeConflict, "upload session cancelled")
	errSessionCompleted = pkgerrors.New(pkgerrors.CodeConflict, "upload session already completed")
	errSessionClosed    = pkgerrors.New(pkgerrors.CodeConflict, "upload session no longer accepts images")
	errUploadNotFound   = pkgerrors.New(pkgerrors.CodeNotFound, "pending upload not found")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type uploadFilter interface {
	Filter(ctx context.Context, ownerID uuid.UUID, uploads []models.PendingUpload) ([]models.PendingUpload, error)
}

// Service exposes the upload session and pending upload operations.
type Service interface {
	CreateSession(ctx context.Context, ownerID uuid.UUID) (SessionCreatedDTO, error)
	BulkUpload(ctx context.Context, ownerID uuid.UUID, files []ImageFile) (BulkUploadDTO, error)
	SessionInfo(ctx context.Context, token string) (SessionInfoDTO, error)
	AddImages(ctx context.Context, token string, files []ImageFile) (AddImagesDTO, error)
	StartProcessing(ctx context.Context, ownerID uuid.UUID, token, modelHint string) (StartProcessingDTO, error)
	GetStatus(ctx context.Context, ownerID uuid.UUID, token string) (SessionStatusDTO, error)
	Cancel(ctx context.Context, ownerID uuid.UUID, token string) (CancelDTO, error)
	DeleteSession(ctx context.Context, ownerID uuid.UUID, token string) error

	ListPending(ctx context.Context, ownerID uuid.UUID, page pagination.Params) (PendingListDTO, error)
	UpdatePending(ctx context.Context, ownerID, id uuid.UUID, data types.ExtractedData) (PendingUploadDTO, error)
	DeletePending(ctx context.Context, ownerID, id uuid.UUID) error
	ClearPending(ctx context.Context, ownerID uuid.UUID) (int, error)
	MarkImported(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) (int, error)
}

// ServiceParams configure the uploads service.
type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Store      storage.ImageStore
	Dispatcher Dispatcher
	Reconciler uploadFilter
	Config     config.UploadsConfig
	Logger     *logger.Logger
	Now        func() time.Time
	NewToken   func() (string, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	store      storage.ImageStore
	dispatcher Dispatcher
	reconciler uploadFilter
	cfg        config.UploadsConfig
	logg       *logger.Logger
	now        func() time.Time
	newToken   func() (string, error)
}

// NewService builds the uploads service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("uploads repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("image store required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	newToken := params.NewToken
	if newToken == nil {
		newToken = generateToken
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		store:      params.Store,
		dispatcher: params.Dispatcher,
		reconciler: params.Reconciler,
		cfg:        params.Config,
		logg:       params.Logger,
		now:        func() time.Time { return now().UTC() },
		newToken:   newToken,
	}, nil
}

func generateToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func internalError(err error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}

func (s *service) CreateSession(ctx context.Context, ownerID uuid.UUID) (SessionCreatedDTO, error) {
	session, err := s.createSession(ctx, ownerID, enums.UploadSessionStatusPending, s.cfg.SessionTTL)
	if err != nil {
		return SessionCreatedDTO{}, err
	}
	return SessionCreatedDTO{Token: session.Token, Status: session.Status, ExpiresAt: session.ExpiresAt}, nil
}

func (s *service) createSession(ctx context.Context, ownerID uuid.UUID, status enums.UploadSessionStatus, ttl time.Duration) (*models.UploadSession, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, internalError(err, "generate session token")
		}
		now := s.now()
		session := &models.UploadSession{
			Token:     token,
			OwnerID:   ownerID,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		err = s.repo.CreateSession(ctx, session)
		if err == nil {
			s.logg.Info(s.logg.WithSessionID(ctx, session.ID.String()), "upload session created")
			return session, nil
		}
		if !dbpkg.IsUniqueViolation(err, "") || attempt == maxTokenAttempts {
			return nil, internalError(err, "create upload session")
		}
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "session token collision; regenerating")
	}
}

func (s *service) BulkUpload(ctx context.Context, ownerID uuid.UUID, files []ImageFile) (BulkUploadDTO, error) {
	if err := s.checkRequestFiles(files); err != nil {
		return BulkUploadDTO{}, err
	}
	if limit := s.cfg.MaxImagesPerSession; limit > 0 && len(files) > limit {
		return BulkUploadDTO{}, tooManyImages(limit)
	}
	session, err := s.createSession(ctx, ownerID, enums.UploadSessionStatusUploading, s.cfg.BulkSessionTTL)
	if err != nil {
		return BulkUploadDTO{}, err
	}

	uploaded, failed, err := s.storeFiles(ctx, session, files)
	if err != nil {
		if uploaded == 0 {
			if _, delErr := s.repo.DeleteSession(context.WithoutCancel(ctx), session.ID); delErr != nil {
				s.logg.Error(ctx, "failed to drop empty bulk session", delErr)
			}
		}
		return BulkUploadDTO{}, err
	}
	return BulkUploadDTO{
		Token:         session.Token,
		UploadedCount: uploaded,
		FailedCount:   failed,
		TotalCount:    uploaded,
		ExpiresAt:     session.ExpiresAt,
	}, nil
}

func (s *service) SessionInfo(ctx context.Context, token string) (SessionInfoDTO, error) {
	session, err := s.loadSession(ctx, token)
	if err != nil {
		return SessionInfoDTO{}, err
	}
	if err := s.checkExpiry(ctx, session); err != nil {
		return SessionInfoDTO{}, err
	}
	count, err := s.repo.CountSessionUploads(ctx, session.ID)
	if err != nil {
		return SessionInfoDTO{}, internalError(err, "count session uploads")
	}
	return SessionInfoDTO{Status: session.Status, ImageCount: int(count), ExpiresAt: session.ExpiresAt}, nil
}

func (s *service) AddImages(ctx context.Context, token string, files []ImageFile) (AddImagesDTO, error) {
	if err := s.checkRequestFiles(files); err != nil {
		return AddImagesDTO{}, err
	}
	session, err := s.loadSession(ctx, token)
	if err != nil {
		return AddImagesDTO{}, err
	}
	if err := s.checkExpiry(ctx, session); err != nil {
		return AddImagesDTO{}, err
	}
	if !session.Status.AcceptsImages() {
		if session.Status == enums.UploadSessionStatusCancelled {
			return AddImagesDTO{}, errSessionCancelled
		}
		return AddImagesDTO{}, errSessionClosed
	}

	existing, err := s.repo.CountSessionUploads(ctx, session.ID)
	if err != nil {
		return AddImagesDTO{}, internalError(err, "count session uploads")
	}
	if limit := s.cfg.MaxImagesPerSession; limit > 0 && int(existing)+len(files) > limit {
		return AddImagesDTO{}, tooManyImages(limit)
	}

	uploaded, failed, err := s.storeFiles(ctx, session, files)
	if err != nil {
		return AddImagesDTO{}, err
	}

	total, err := s.repo.CountSessionUploads(ctx, session.ID)
	if err != nil {
		return AddImagesDTO{}, internalError(err, "count session uploads")
	}
	return AddImagesDTO{UploadedCount: uploaded, FailedCount: failed, TotalCount: int(total)}, nil
}

func (s *service) checkRequestFiles(files []ImageFile) error {
	if len(files) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one image is required")
	}
	if limit := s.cfg.MaxImagesPerRequest; limit > 0 && len(files) > limit {
		return pkgerrors.New(pkgerrors.CodeValidation, "too many images in one request").
			WithDetails(map[string]any{"maxImagesPerRequest": limit})
	}
	return nil
}

func tooManyImages(limit int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "upload session image limit reached").
		WithDetails(map[string]any{"maxImagesPerSession": limit})
}

// storeFiles saves each file and records a pending upload for it. Storage
// failures are counted per file; the call only fails when nothing was stored
// or the session stopped accepting images part way through.
func (s *service) storeFiles(ctx context.Context, session *models.UploadSession, files []ImageFile) (uploaded, failed int, err error) {
	ctx = s.logg.WithSessionID(ctx, session.ID.String())
	var lastStoreErr error
	for _, file := range files {
		locator, saveErr := s.store.Save(ctx, file.Data, file.Ext)
		if saveErr != nil {
			failed++
			lastStoreErr = saveErr
			s.logg.Error(s.logg.WithField(ctx, "original_name", file.Name), "failed to store uploaded image", saveErr)
			continue
		}

		now := s.now()
		upload := &models.PendingUpload{
			SessionID:    session.ID,
			ImageLocator: locator,
			OriginalName: file.Name,
			MimeType:     file.MimeType,
			SizeBytes:    int64(len(file.Data)),
			Status:       enums.PendingUploadStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		accepted, err := s.repo.AddSessionUpload(ctx, upload, now)
		if err != nil {
			return uploaded, failed, internalError(err, "record pending upload")
		}
		if !accepted {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"image_locator": locator, "uploaded_count": uploaded}),
				"session stopped accepting images; stored image left unreferenced")
			return uploaded, failed, pkgerrors.New(pkgerrors.CodeConflict, "upload session no longer accepts images").
				WithDetails(map[string]any{"uploadedCount": uploaded})
		}
		uploaded++
	}

	if uploaded == 0 && lastStoreErr != nil {
		return 0, failed, pkgerrors.Wrap(pkgerrors.CodeDependency, lastStoreErr, "failed to store images").
			WithDetails(map[string]any{"failedCount": failed})
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"uploaded_count": uploaded, "failed_count": failed}), "images added to upload session")
	return uploaded, failed, nil
}

func (s *service) StartProcessing(ctx context.Context, ownerID uuid.UUID, token, modelHint string) (StartProcessingDTO, error) {
	session, err := s.ownedSession(ctx, ownerID, token)
	if err != nil {
		return StartProcessingDTO{}, err
	}
	if err := s.checkExpiry(ctx, session); err != nil {
		return StartProcessingDTO{}, err
	}
	ctx = s.logg.WithSessionID(ctx, session.ID.String())
	job := Job{SessionID: session.ID, ModelHint: modelHint}

	switch session.Status {
	case enums.UploadSessionStatusCancelled:
		return StartProcessingDTO{}, errSessionCancelled
	case enums.UploadSessionStatusCompleted:
		return StartProcessingDTO{}, errSessionCompleted
	case enums.UploadSessionStatusPending:
		return StartProcessingDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "no images uploaded")
	case enums.UploadSessionStatusProcessing:
		if job.ModelHint == "" {
			job.ModelHint = session.ModelHint
		}
		if err := s.resumeIfIdle(ctx, job); err != nil {
			return StartProcessingDTO{}, err
		}
		return s.snapshot(ctx, session.ID)
	}

	unprocessed, err := s.repo.CountSessionUploads(ctx, session.ID, enums.UnprocessedPendingUploadStatuses...)
	if err != nil {
		return StartProcessingDTO{}, internalError(err, "count unprocessed uploads")
	}
	if unprocessed == 0 {
		return StartProcessingDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "no images to process")
	}

	won, err := s.repo.BeginProcessing(ctx, session.ID, modelHint, s.now())
	if err != nil {
		return StartProcessingDTO{}, internalError(err, "start processing")
	}
	if !won {
		// A concurrent start won the compare-and-set; report its state.
		s.logg.Info(ctx, "processing already started by a concurrent request")
		return s.snapshot(ctx, session.ID)
	}

	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		return StartProcessingDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispatch extraction")
	}
	s.logg.Info(s.logg.WithField(ctx, "image_count", unprocessed), "extraction dispatched")
	return s.snapshot(ctx, session.ID)
}

// resumeIfIdle re-dispatches a processing session that has no live worker,
// which happens after the process that owned it restarted.
func (s *service) resumeIfIdle(ctx context.Context, job Job) error {
	active, err := s.dispatcher.IsActive(ctx, job.SessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check extraction worker")
	}
	if active {
		return nil
	}
	s.logg.Warn(ctx, "processing session has no live worker; re-dispatching")
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispatch extraction")
	}
	return nil
}

func (s *service) snapshot(ctx context.Context, sessionID uuid.UUID) (StartProcessingDTO, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StartProcessingDTO{}, errSessionNotFound
		}
		return StartProcessingDTO{}, internalError(err, "load upload session")
	}
	uploads, err := s.repo.ListSessionUploads(ctx, sessionID)
	if err != nil {
		return StartProcessingDTO{}, internalError(err, "list session uploads")
	}
	items, processed, _ := summarize(uploads)
	return StartProcessingDTO{
		Status:         session.Status,
		Results:        items,
		Processing:     session.Status == enums.UploadSessionStatusProcessing,
		ProcessedCount: processed,
		TotalCount:     len(items),
	}, nil
}

func (s *service) GetStatus(ctx context.Context, ownerID uuid.UUID, token string) (SessionStatusDTO, error) {
	session, err := s.ownedSession(ctx, ownerID, token)
	if err != nil {
		return SessionStatusDTO{}, err
	}
	if err := s.checkExpiry(ctx, session); err != nil {
		return SessionStatusDTO{}, err
	}
	if session.Status == enums.UploadSessionStatusCancelled {
		return SessionStatusDTO{}, errSessionCancelled
	}

	uploads, err := s.repo.ListSessionUploads(ctx, session.ID)
	if err != nil {
		return SessionStatusDTO{}, internalError(err, "list session uploads")
	}
	items, processed, unprocessed := summarize(uploads)
	return SessionStatusDTO{
		Status:         session.Status,
		ImageCount:     len(items),
		Images:         items,
		ProcessedCount: processed,
		PendingCount:   unprocessed,
		ExpiresAt:      session.ExpiresAt,
		Processing:     session.Status == enums.UploadSessionStatusProcessing,
	}, nil
}

func (s *service) Cancel(ctx context.Context, ownerID uuid.UUID, token string) (CancelDTO, error) {
	session, err := s.ownedSession(ctx, ownerID, token)
	if err != nil {
		return CancelDTO{}, err
	}
	if err := s.checkExpiry(ctx, session); err != nil {
		return CancelDTO{}, err
	}

	var cancelled int64
	var transitioned bool
	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionSession(ctx, session.ID, enums.UploadSessionStatusCancelled, now)
		if err != nil || !ok {
			return err
		}
		transitioned = true
		cancelled, err = repo.CancelSessionUploads(ctx, session.ID, CancelledByUserMessage, now)
		return err
	})
	if err != nil {
		return CancelDTO{}, internalError(err, "cancel upload session")
	}
	if !transitioned {
		current, err := s.repo.FindSessionByID(ctx, session.ID)
		if err != nil {
			return CancelDTO{}, internalError(err, "load upload session")
		}
		switch current.Status {
		case enums.UploadSessionStatusCancelled:
			return CancelDTO{}, errSessionCancelled
		case enums.UploadSessionStatusExpired:
			return CancelDTO{}, errSessionExpired
		default:
			return CancelDTO{}, errSessionCompleted
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"session_id":      session.ID.String(),
		"cancelled_count": cancelled,
	}), "upload session cancelled")
	return CancelDTO{CancelledCount: int(cancelled), Status: enums.UploadSessionStatusCancelled}, nil
}

func (s *service) DeleteSession(ctx context.Context, ownerID uuid.UUID, token string) error {
	session, err := s.ownedSession(ctx, ownerID, token)
	if err != nil {
		return err
	}
	s.dispatcher.Stop(session.ID)

	var deleted bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = s.repo.WithTx(tx).DeleteSession(ctx, session.ID)
		return err
	})
	if err != nil {
		return internalError(err, "delete upload session")
	}
	if !deleted {
		return errSessionNotFound
	}
	s.logg.Info(s.logg.WithSessionID(ctx, session.ID.String()), "upload session deleted")
	return nil
}

// ListPending returns one page of the dashboard queue. The counts cover the
// whole queue and are taken after reconciliation so rows it just marked
// imported are not counted.
func (s *service) ListPending(ctx context.Context, ownerID uuid.UUID, page pagination.Params) (PendingListDTO, error) {
	after, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return PendingListDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(page.Limit)

	uploads, err := s.repo.ListOwnerUploads(ctx, ownerID, enums.DashboardPendingUploadStatuses, after, pagination.LimitWithBuffer(limit))
	if err != nil {
		return PendingListDTO{}, internalError(err, "list pending uploads")
	}
	var nextCursor string
	if len(uploads) > limit {
		uploads = uploads[:limit]
		last := uploads[limit-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	if s.reconciler != nil {
		filtered, err := s.reconciler.Filter(ctx, ownerID, uploads)
		if err != nil {
			s.logg.Error(ctx, "inventory reconciliation failed; returning unfiltered uploads", err)
		} else {
			uploads = filtered
		}
	}
	items, _, _ := summarize(uploads)

	counts, err := s.repo.CountOwnerUploads(ctx, ownerID, enums.DashboardPendingUploadStatuses)
	if err != nil {
		return PendingListDTO{}, internalError(err, "count pending uploads")
	}
	var processed, unprocessed int
	for status, count := range counts {
		switch {
		case status.IsProcessed():
			processed += int(count)
		case status.IsUnprocessed():
			unprocessed += int(count)
		}
	}
	return PendingListDTO{
		Items:          items,
		PendingCount:   unprocessed,
		ProcessedCount: processed,
		TotalCount:     processed + unprocessed,
		NextCursor:     nextCursor,
	}, nil
}

func (s *service) UpdatePending(ctx context.Context, ownerID, id uuid.UUID, data types.ExtractedData) (PendingUploadDTO, error) {
	upload, err := s.ownedUpload(ctx, ownerID, id)
	if err != nil {
		return PendingUploadDTO{}, err
	}
	if err := checkEditable(upload.Status); err != nil {
		return PendingUploadDTO{}, err
	}

	data = data.Normalize()
	if err := data.CheckRanges(); err != nil {
		return PendingUploadDTO{}, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	ok, err := s.repo.ReplaceUploadData(ctx, id, data, s.now())
	if err != nil {
		return PendingUploadDTO{}, internalError(err, "update pending upload")
	}
	if !ok {
		return PendingUploadDTO{}, pkgerrors.New(pkgerrors.CodeConflict, "pending upload changed; retry the edit")
	}

	updated, err := s.ownedUpload(ctx, ownerID, id)
	if err != nil {
		return PendingUploadDTO{}, err
	}
	return toPendingUploadDTO(*updated), nil
}

func checkEditable(status enums.PendingUploadStatus) error {
	switch status {
	case enums.PendingUploadStatusProcessing:
		return pkgerrors.New(pkgerrors.CodeConflict, "pending upload is being processed")
	case enums.PendingUploadStatusImported:
		return pkgerrors.New(pkgerrors.CodeConflict, "pending upload already imported")
	}
	return nil
}

func (s *service) DeletePending(ctx context.Context, ownerID, id uuid.UUID) error {
	deleted, err := s.repo.DeleteOwnedUpload(ctx, ownerID, id)
	if err != nil {
		return internalError(err, "delete pending upload")
	}
	if !deleted {
		return errUploadNotFound
	}
	return nil
}

func (s *service) ClearPending(ctx context.Context, ownerID uuid.UUID) (int, error) {
	count, err := s.repo.DeleteOwnerUploads(ctx, ownerID)
	if err != nil {
		return 0, internalError(err, "clear pending uploads")
	}
	s.logg.Info(s.logg.WithField(ctx, "deleted_count", count), "pending uploads cleared")
	return int(count), nil
}

func (s *service) MarkImported(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "ids required")
	}
	count, err := s.repo.MarkImported(ctx, ownerID, ids, s.now())
	if err != nil {
		return 0, internalError(err, "mark uploads imported")
	}
	return int(count), nil
}

func (s *service) loadSession(ctx context.Context, token string) (*models.UploadSession, error) {
	if token == "" {
		return nil, errSessionNotFound
	}
	session, err := s.repo.FindSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errSessionNotFound
		}
		return nil, internalError(err, "load upload session")
	}
	return session, nil
}

func (s *service) ownedSession(ctx context.Context, ownerID uuid.UUID, token string) (*models.UploadSession, error) {
	session, err := s.loadSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, errSessionForbidden
	}
	return session, nil
}

// checkExpiry reports Gone for expired sessions, flipping non-terminal ones
// whose clock ran out. Completed and cancelled sessions keep their status.
func (s *service) checkExpiry(ctx context.Context, session *models.UploadSession) error {
	if session.Status == enums.UploadSessionStatusExpired {
		return errSessionExpired
	}
	if session.Status.IsTerminal() {
		return nil
	}
	now := s.now()
	if !session.IsExpiredAt(now) {
		return nil
	}
	if _, err := s.repo.TransitionSession(ctx, session.ID, enums.UploadSessionStatusExpired, now); err != nil {
		return internalError(err, "expire upload session")
	}
	session.Status = enums.UploadSessionStatusExpired
	s.logg.Info(s.logg.WithSessionID(ctx, session.ID.String()), "upload session expired")
	return errSessionExpired
}

func (s *service) ownedUpload(ctx context.Context, ownerID, id uuid.UUID) (*models.PendingUpload, error) {
	upload, err := s.repo.FindOwnedUpload(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUploadNotFound
		}
		return nil, internalError(err, "load pending upload")
	}
	return upload, nil
}
