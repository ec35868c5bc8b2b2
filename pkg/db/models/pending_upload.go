package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/spoolhub-backend/pkg/enums"
	"github.com/angelmondragon/spoolhub-backend/pkg/types"
)

// PendingUpload tracks extraction of one uploaded image.
// ExtractedData is set only when ready; ErrorMessage only when error or cancelled.
type PendingUpload struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	SessionID     uuid.UUID                 `gorm:"column:session_id;type:uuid;not null;index"`
	ImageLocator  string                    `gorm:"column:image_locator;not null"`
	OriginalName  string                    `gorm:"column:original_name;not null"`
	MimeType      string                    `gorm:"column:mime_type;not null"`
	SizeBytes     int64                     `gorm:"column:size_bytes;not null"`
	Status        enums.PendingUploadStatus `gorm:"column:status;type:pending_upload_status;not null;default:pending"`
	ExtractedData *types.ExtractedData      `gorm:"column:extracted_data;type:jsonb"`
	ErrorMessage  *string                   `gorm:"column:error_message"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
	ProcessedAt   *time.Time                `gorm:"column:processed_at"`
}

// TableName pins the table name.
func (PendingUpload) TableName() string { return "pending_uploads" }

// BeforeCreate assigns an id so sqlite-backed deployments behave like Postgres.
func (p *PendingUpload) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
