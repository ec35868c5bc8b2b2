package uploads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/spoolhub-backend/internal/inventory"
	"github.com/angelmondragon/spoolhub-backend/pkg/db/models"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
)

// Reconciler hides pending uploads whose image already backs an inventory
// record of the same owner, and marks them imported.
type Reconciler struct {
	inventory inventory.Repository
	repo      Repository
	logg      *logger.Logger
	now       func() time.Time
}

// NewReconciler builds a reconciliation filter.
func NewReconciler(inv inventory.Repository, repo Repository, logg *logger.Logger) (*Reconciler, error) {
	if inv == nil {
		return nil, errors.New("inventory repository required")
	}
	if repo == nil {
		return nil, errors.New("uploads repository required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Reconciler{inventory: inv, repo: repo, logg: logg, now: time.Now}, nil
}

// Filter returns uploads minus the ones already imported into inventory.
// A failed lookup is returned to the caller; a failed mark is only logged
// because the next read repeats it.
func (r *Reconciler) Filter(ctx context.Context, ownerID uuid.UUID, uploads []models.PendingUpload) ([]models.PendingUpload, error) {
	if len(uploads) == 0 {
		return uploads, nil
	}
	locators := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		locators = append(locators, upload.ImageLocator)
	}

	filaments, err := r.inventory.FindByOwnerAndLocators(ctx, ownerID, locators)
	if err != nil {
		return nil, err
	}
	if len(filaments) == 0 {
		return uploads, nil
	}

	known := make(map[string]struct{}, len(filaments))
	for _, filament := range filaments {
		if filament.ImageLocator != nil {
			known[*filament.ImageLocator] = struct{}{}
		}
	}

	kept := make([]models.PendingUpload, 0, len(uploads))
	var imported []uuid.UUID
	for _, upload := range uploads {
		if _, ok := known[upload.ImageLocator]; ok {
			imported = append(imported, upload.ID)
			continue
		}
		kept = append(kept, upload)
	}

	if len(imported) > 0 {
		if _, err := r.repo.MarkImported(ctx, ownerID, imported, r.now().UTC()); err != nil {
			r.logg.Error(r.logg.WithField(ctx, "imported_count", len(imported)), "failed to mark reconciled uploads imported", err)
		}
	}
	return kept, nil
}
