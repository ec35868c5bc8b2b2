// Package inventory exposes the slice of the filament inventory that upload
// reconciliation needs.
package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/spoolhub-backend/pkg/db/models"
)

// lookupChunk keeps IN lists well under driver parameter limits.
const lookupChunk = 500

// Repository finds inventory records by the image they were created from.
type Repository interface {
	FindByOwnerAndLocators(ctx context.Context, ownerID uuid.UUID, locators []string) ([]models.Filament, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) FindByOwnerAndLocators(ctx context.Context, ownerID uuid.UUID, locators []string) ([]models.Filament, error) {
	unique := dedupe(locators)
	if len(unique) == 0 {
		return nil, nil
	}

	var out []models.Filament
	for start := 0; start < len(unique); start += lookupChunk {
		end := min(start+lookupChunk, len(unique))
		var batch []models.Filament
		if err := r.db.WithContext(ctx).
			Where("owner_id = ? AND image_locator IN ?", ownerID, unique[start:end]).
			Find(&batch).Error; err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
