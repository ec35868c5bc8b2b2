package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/spoolhub-backend/pkg/db/models"
)

func setupInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS filaments (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  image_locator TEXT,
  created_at DATETIME
);`).Error)
	return db
}

func strPtr(v string) *string { return &v }

func TestFindByOwnerAndLocators(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	owner := uuid.New()
	other := uuid.New()
	rows := []models.Filament{
		{ID: uuid.New(), OwnerID: owner, ImageLocator: strPtr("/uploads/a.jpg")},
		{ID: uuid.New(), OwnerID: owner, ImageLocator: strPtr("/uploads/b.jpg")},
		{ID: uuid.New(), OwnerID: owner},
		{ID: uuid.New(), OwnerID: other, ImageLocator: strPtr("/uploads/c.jpg")},
	}
	require.NoError(t, db.Create(&rows).Error)

	found, err := repo.FindByOwnerAndLocators(ctx, owner, []string{"/uploads/a.jpg", "/uploads/c.jpg", "/uploads/a.jpg", ""})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "/uploads/a.jpg", *found[0].ImageLocator)

	found, err = repo.FindByOwnerAndLocators(ctx, owner, nil)
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestDedupe(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, dedupe([]string{"a", "", "b", "a"}))
}
