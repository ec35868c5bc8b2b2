package models

import (
	"time"

	"github.com/google/uuid"
)

// Filament is the inventory record a pending upload is promoted into.
// Only the columns used to reconcile uploads are mapped.
type Filament struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID      uuid.UUID `gorm:"column:owner_id;type:uuid;not null"`
	ImageLocator *string   `gorm:"column:image_locator"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name.
func (Filament) TableName() string { return "filaments" }
