package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/namtm24/studyblog-chat/db"
	"github.com/namtm24/studyblog-chat/testutil"
)

func TestRunMigrationsIdempotent(t *testing.T) {
	database := testutil.SetupTestDB(t)

	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("first RunMigrations: %v", err)
	}
	// A second run must be a no-op, not an error.
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}

	var n int
	if err := database.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&n); err != nil {
		t.Fatalf("chat_messages table missing after migration: %v", err)
	}
}

func TestEmbeddedMigrateFallback(t *testing.T) {
	database := testutil.SetupTestDB(t)

	// SetupTestDB already applied the embedded schema, so reruns must be no-ops.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, database); err != nil {
		t.Fatalf("embedded Migrate: %v", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		t.Fatalf("embedded Migrate rerun: %v", err)
	}
}
