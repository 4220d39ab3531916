package db

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one migration")
	}
	if entries[0].Name() != "00001_create_users.sql" {
		t.Fatalf("unexpected first migration %s", entries[0].Name())
	}
}

func TestMigrate_PropagatesError(t *testing.T) {
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		gotDir = dir
		return errors.New("boom")
	}

	err := migrate(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected error from migrate")
	}
	if gotDir != "migrations" {
		t.Fatalf("expected migrations dir, got %q", gotDir)
	}
}
