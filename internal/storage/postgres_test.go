package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"screening-pipeline/internal/config"
	"screening-pipeline/pkg/models"
	"screening-pipeline/pkg/utils"
)

// openTestStore connects to TEST_DATABASE_URL and skips when it is unset
func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := config.Default()
	cfg.Database.DSN = dsn

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return store
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	jobID := "job-" + utils.GenerateID()

	if _, err := store.LoadRequirement(ctx, jobID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.db.ExecContext(ctx,
		`INSERT INTO job_requirements (id, title, required_skills) VALUES ($1, 'Backend', '{go,sql}')`, jobID); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	req, err := store.LoadRequirement(ctx, jobID)
	if err != nil {
		t.Fatalf("LoadRequirement: %v", err)
	}
	if len(req.RequiredSkills) != 2 {
		t.Fatalf("unexpected skills %v", req.RequiredSkills)
	}

	profile := &models.CandidateProfile{JobID: jobID, ApplicationID: "app-1", Email: "ada@example.com", Skills: []string{"go"}}
	if err := store.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	firstID := profile.ID
	profile.ID = ""
	if err := store.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile again: %v", err)
	}
	if profile.ID != firstID {
		t.Fatalf("profile id changed from %s to %s", firstID, profile.ID)
	}

	entry := &models.ShortlistEntry{CandidateID: "app-1", JobID: jobID, Status: models.ShortlistStatusShortlisted, LoginID: "ada_1", Password: "one"}
	if err := store.UpsertShortlistEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertShortlistEntry: %v", err)
	}
	entry.LoginID, entry.Password = "ada_2", "two"
	if err := store.UpsertShortlistEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertShortlistEntry again: %v", err)
	}
	if entry.LoginID != "ada_1" || entry.Password != "one" {
		t.Fatalf("credentials rotated: %s/%s", entry.LoginID, entry.Password)
	}

	entries, err := store.ListShortlist(ctx, jobID)
	if err != nil {
		t.Fatalf("ListShortlist: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}
