package uploads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/spoolhub-backend/pkg/db/models"
	"github.com/angelmondragon/spoolhub-backend/pkg/enums"
	"github.com/angelmondragon/spoolhub-backend/pkg/pagination"
	"github.com/angelmondragon/spoolhub-backend/pkg/types"
)

// Repository persists upload sessions and their pending uploads. Every status
// write is conditional on the current status so concurrent writers never
// resurrect a terminal row; callers read RowsAffected through the bool/count
// results.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateSession(ctx context.Context, session *models.UploadSession) error
	FindSessionByToken(ctx context.Context, token string) (*models.UploadSession, error)
	FindSessionByID(ctx context.Context, id uuid.UUID) (*models.UploadSession, error)
	TransitionSession(ctx context.Context, id uuid.UUID, to enums.UploadSessionStatus, now time.Time, from ...enums.UploadSessionStatus) (bool, error)
	BeginProcessing(ctx context.Context, id uuid.UUID, modelHint string, now time.Time) (bool, error)
	TouchSession(ctx context.Context, id uuid.UUID, now time.Time) error
	DeleteSession(ctx context.Context, id uuid.UUID) (bool, error)
	ListStalledSessions(ctx context.Context, updatedBefore time.Time, limit int) ([]models.UploadSession, error)

	CreatePendingUpload(ctx context.Context, upload *models.PendingUpload) error
	AddSessionUpload(ctx context.Context, upload *models.PendingUpload, now time.Time) (bool, error)
	ListSessionUploads(ctx context.Context, sessionID uuid.UUID) ([]models.PendingUpload, error)
	ListUnprocessed(ctx context.Context, sessionID uuid.UUID) ([]models.PendingUpload, error)
	CountSessionUploads(ctx context.Context, sessionID uuid.UUID, statuses ...enums.PendingUploadStatus) (int64, error)
	MarkUploadProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	CompleteUpload(ctx context.Context, id uuid.UUID, data types.ExtractedData, now time.Time) (bool, error)
	FailUpload(ctx context.Context, id uuid.UUID, message string, now time.Time) (bool, error)
	CancelSessionUploads(ctx context.Context, sessionID uuid.UUID, message string, now time.Time) (int64, error)

	FindOwnedUpload(ctx context.Context, ownerID, id uuid.UUID) (*models.PendingUpload, error)
	ListOwnerUploads(ctx context.Context, ownerID uuid.UUID, statuses []enums.PendingUploadStatus, after *pagination.Cursor, limit int) ([]models.PendingUpload, error)
	CountOwnerUploads(ctx context.Context, ownerID uuid.UUID, statuses []enums.PendingUploadStatus) (map[enums.PendingUploadStatus]int64, error)
	ReplaceUploadData(ctx context.Context, id uuid.UUID, data types.ExtractedData, now time.Time) (bool, error)
	DeleteOwnedUpload(ctx context.Context, ownerID, id uuid.UUID) (bool, error)
	DeleteOwnerUploads(ctx context.Context, ownerID uuid.UUID) (int64, error)
	MarkImported(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an uploads repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) ownedSessionIDs(ownerID uuid.UUID) *gorm.DB {
	return r.db.Model(&models.UploadSession{}).Select("id").Where("owner_id = ?", ownerID)
}

func (r *repositoryImpl) CreateSession(ctx context.Context, session *models.UploadSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repositoryImpl) FindSessionByToken(ctx context.Context, token string) (*models.UploadSession, error) {
	var session models.UploadSession
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repositoryImpl) FindSessionByID(ctx context.Context, id uuid.UUID) (*models.UploadSession, error) {
	var session models.UploadSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// TransitionSession moves the session to `to` when its current status is one
// of `from` (all legal sources when from is empty). Illegal edges never match.
func (r *repositoryImpl) TransitionSession(ctx context.Context, id uuid.UUID, to enums.UploadSessionStatus, now time.Time, from ...enums.UploadSessionStatus) (bool, error) {
	sources := enums.SourcesFor(to)
	if len(from) > 0 {
		allowed := make([]enums.UploadSessionStatus, 0, len(from))
		for _, candidate := range from {
			if candidate.CanTransitionTo(to) {
				allowed = append(allowed, candidate)
			}
		}
		sources = allowed
	}
	if len(sources) == 0 {
		return false, nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("id = ? AND status IN ?", id, sources).
		UpdateColumns(map[string]any{"status": to, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// BeginProcessing is the uploading -> processing compare-and-set. The model
// hint is stored with it so a recovered run extracts with the same model.
func (r *repositoryImpl) BeginProcessing(ctx context.Context, id uuid.UUID, modelHint string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("id = ? AND status = ?", id, enums.UploadSessionStatusUploading).
		UpdateColumns(map[string]any{
			"status":     enums.UploadSessionStatusProcessing,
			"model_hint": modelHint,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) TouchSession(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("id = ? AND status = ?", id, enums.UploadSessionStatusProcessing).
		UpdateColumn("updated_at", now).Error
}

func (r *repositoryImpl) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := r.db.WithContext(ctx).Where("session_id = ?", id).Delete(&models.PendingUpload{}).Error; err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.UploadSession{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ListStalledSessions(ctx context.Context, updatedBefore time.Time, limit int) ([]models.UploadSession, error) {
	var sessions []models.UploadSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.UploadSessionStatusProcessing, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (r *repositoryImpl) CreatePendingUpload(ctx context.Context, upload *models.PendingUpload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

// AddSessionUpload inserts upload only while its session accepts images and
// moves a pending session to uploading. The guarded update holds the session
// row lock until commit, so a concurrent BeginProcessing either waits for the
// insert to land or wins and the insert is refused.
func (r *repositoryImpl) AddSessionUpload(ctx context.Context, upload *models.PendingUpload, now time.Time) (bool, error) {
	accepted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.UploadSession{}).
			Where("id = ? AND status IN ?", upload.SessionID, enums.ImageAcceptingUploadSessionStatuses).
			UpdateColumns(map[string]any{"status": enums.UploadSessionStatusUploading, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(upload).Error; err != nil {
			return err
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return accepted, nil
}

func (r *repositoryImpl) ListSessionUploads(ctx context.Context, sessionID uuid.UUID) ([]models.PendingUpload, error) {
	var uploads []models.PendingUpload
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&uploads).Error
	return uploads, err
}

func (r *repositoryImpl) ListUnprocessed(ctx context.Context, sessionID uuid.UUID) ([]models.PendingUpload, error) {
	var uploads []models.PendingUpload
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status IN ?", sessionID, enums.UnprocessedPendingUploadStatuses).
		Order("created_at ASC, id ASC").
		Find(&uploads).Error
	return uploads, err
}

func (r *repositoryImpl) CountSessionUploads(ctx context.Context, sessionID uuid.UUID, statuses ...enums.PendingUploadStatus) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PendingUpload{}).Where("session_id = ?", sessionID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (r *repositoryImpl) MarkUploadProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PendingUpload{}).
		Where("id = ? AND status IN ?", id, enums.UnprocessedPendingUploadStatuses).
		UpdateColumns(map[string]any{"status": enums.PendingUploadStatusProcessing, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CompleteUpload(ctx context.Context, id uuid.UUID, data types.ExtractedData, now time.Time) (bool, error) {
	return r.finishUpload(ctx, id, map[string]any{
		"status":         enums.PendingUploadStatusReady,
		"extracted_data": data,
		"error_message":  gorm.Expr("NULL"),
		"processed_at":   now,
		"updated_at":     now,
	})
}

func (r *repositoryImpl) FailUpload(ctx context.Context, id uuid.UUID, message string, now time.Time) (bool, error) {
	return r.finishUpload(ctx, id, map[string]any{
		"status":         enums.PendingUploadStatusError,
		"extracted_data": gorm.Expr("NULL"),
		"error_message":  message,
		"processed_at":   now,
		"updated_at":     now,
	})
}

// finishUpload only lands while the row is still processing; a cancel, edit
// or delete that happened during extraction wins.
func (r *repositoryImpl) finishUpload(ctx context.Context, id uuid.UUID, columns map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PendingUpload{}).
		Where("id = ? AND status = ?", id, enums.PendingUploadStatusProcessing).
		UpdateColumns(columns)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CancelSessionUploads(ctx context.Context, sessionID uuid.UUID, message string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PendingUpload{}).
		Where("session_id = ? AND status IN ?", sessionID, enums.UnprocessedPendingUploadStatuses).
		UpdateColumns(map[string]any{
			"status":         enums.PendingUploadStatusCancelled,
			"extracted_data": gorm.Expr("NULL"),
			"error_message":  message,
			"updated_at":     now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) FindOwnedUpload(ctx context.Context, ownerID, id uuid.UUID) (*models.PendingUpload, error) {
	var upload models.PendingUpload
	err := r.db.WithContext(ctx).
		Where("id = ? AND session_id IN (?)", id, r.ownedSessionIDs(ownerID)).
		First(&upload).Error
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

// ListOwnerUploads returns up to limit rows in (created_at, id) order,
// starting after the given cursor.
func (r *repositoryImpl) ListOwnerUploads(ctx context.Context, ownerID uuid.UUID, statuses []enums.PendingUploadStatus, after *pagination.Cursor, limit int) ([]models.PendingUpload, error) {
	query := r.db.WithContext(ctx).
		Where("session_id IN (?) AND status IN ?", r.ownedSessionIDs(ownerID), statuses)
	if after != nil {
		query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var uploads []models.PendingUpload
	err := query.
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&uploads).Error
	return uploads, err
}

type statusCount struct {
	Status enums.PendingUploadStatus
	Count  int64
}

func (r *repositoryImpl) CountOwnerUploads(ctx context.Context, ownerID uuid.UUID, statuses []enums.PendingUploadStatus) (map[enums.PendingUploadStatus]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.PendingUpload{}).
		Select("status, COUNT(*) AS count").
		Where("session_id IN (?) AND status IN ?", r.ownedSessionIDs(ownerID), statuses).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.PendingUploadStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ReplaceUploadData stores a manual correction. Rows that are mid-extraction
// or already imported are left alone.
func (r *repositoryImpl) ReplaceUploadData(ctx context.Context, id uuid.UUID, data types.ExtractedData, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PendingUpload{}).
		Where("id = ? AND status NOT IN ?", id, []enums.PendingUploadStatus{
			enums.PendingUploadStatusProcessing,
			enums.PendingUploadStatusImported,
		}).
		UpdateColumns(map[string]any{
			"status":         enums.PendingUploadStatusReady,
			"extracted_data": data,
			"error_message":  gorm.Expr("NULL"),
			"processed_at":   now,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) DeleteOwnedUpload(ctx context.Context, ownerID, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND session_id IN (?)", id, r.ownedSessionIDs(ownerID)).
		Delete(&models.PendingUpload{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) DeleteOwnerUploads(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("session_id IN (?) AND status <> ?", r.ownedSessionIDs(ownerID), enums.PendingUploadStatusImported).
		Delete(&models.PendingUpload{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkImported flips the owner's rows to imported and drops their payloads.
// Rows already imported are not counted.
func (r *repositoryImpl) MarkImported(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.PendingUpload{}).
		Where("id IN ? AND session_id IN (?) AND status <> ?", ids, r.ownedSessionIDs(ownerID), enums.PendingUploadStatusImported).
		UpdateColumns(map[string]any{
			"status":         enums.PendingUploadStatusImported,
			"extracted_data": gorm.Expr("NULL"),
			"error_message":  gorm.Expr("NULL"),
			"updated_at":     now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
