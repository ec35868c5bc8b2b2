package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateSQLMigrationOrdersPastLatest(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := CreateSQLMigration(dir, "Add spool notes", now)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if filepath.Base(first) != "20260301090000_add_spool_notes.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(first))
	}

	second, err := CreateSQLMigration(dir, "index pending uploads", now)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if filepath.Base(second) != "20260301090001_index_pending_uploads.sql" {
		t.Fatalf("expected bumped version, got %s", filepath.Base(second))
	}

	files, err := ListSQLFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || files[0].Version >= files[1].Version {
		t.Fatalf("unexpected listing %+v", files)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migrations should validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), " !! ", time.Now()); err == nil {
		t.Fatal("expected error for empty sanitized name")
	}
}

func TestValidateDirRejects(t *testing.T) {
	cases := map[string]struct {
		file    string
		content string
		want    string
	}{
		"bad name":     {file: "create_things.sql", content: "-- +goose Up\n-- +goose Down\n", want: "invalid migration filename"},
		"missing down": {file: "20260301090000_a.sql", content: "-- +goose Up\nSELECT 1;\n", want: "missing"},
		"down first":   {file: "20260301090000_a.sql", content: "-- +goose Down\n-- +goose Up\n", want: "precedes"},
		"unbalanced":   {file: "20260301090000_a.sql", content: "-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n", want: "StatementBegin"},
	}
	for name, tc := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, tc.file), []byte(tc.content), 0o644); err != nil {
			t.Fatalf("%s: write: %v", name, err)
		}
		err := ValidateDir(dir)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", name, tc.want, err)
		}
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := ParseVersion("20260301090200"); err != nil || v != 20260301090200 {
		t.Fatalf("unexpected result %d, %v", v, err)
	}
	for _, raw := range []string{"", "2026", "2026030109020x", "202603010902000"} {
		if _, err := ParseVersion(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
