package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/spoolhub-backend/pkg/enums"
)

// UploadSession is a batch of spool photos addressed by an opaque token.
type UploadSession struct {
	ID        uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Token     string                    `gorm:"column:token;not null;uniqueIndex"`
	OwnerID   uuid.UUID                 `gorm:"column:owner_id;type:uuid;not null;index"`
	Status    enums.UploadSessionStatus `gorm:"column:status;type:upload_session_status;not null;default:pending"`
	CreatedAt time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
	ExpiresAt time.Time                 `gorm:"column:expires_at;not null"`
	ModelHint string                    `gorm:"column:model_hint;not null;default:''"`

	PendingUploads []PendingUpload `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// TableName pins the table name.
func (UploadSession) TableName() string { return "upload_sessions" }

// BeforeCreate assigns an id so sqlite-backed deployments behave like Postgres.
func (s *UploadSession) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// IsExpiredAt reports whether the session lifetime elapsed at now.
func (s UploadSession) IsExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
