// Package storage is the persistence gateway of the screening pipeline.
package storage

import (
	"context"
	"errors"
	"fmt"

	"screening-pipeline/internal/config"
	"screening-pipeline/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Gateway persists profiles and shortlist entries and loads pipeline inputs.
// Every write is a keyed upsert, so repeating a run never duplicates rows.
type Gateway interface {
	// LoadRequirement returns ErrNotFound when the job does not exist
	LoadRequirement(ctx context.Context, jobID string) (*models.JobRequirement, error)
	// LoadApplied returns an empty slice when nobody applied
	LoadApplied(ctx context.Context, jobID string) ([]models.AppliedReference, error)
	// UpsertProfile writes the profile keyed on (job, identity key) and sets its ID
	UpsertProfile(ctx context.Context, profile *models.CandidateProfile) error
	// UpsertShortlistEntry writes the entry keyed on (candidate, job). Credentials already
	// issued to a candidate who stays shortlisted are kept and copied back into entry.
	UpsertShortlistEntry(ctx context.Context, entry *models.ShortlistEntry) error
	// ListShortlist returns the entries of a job in no particular order
	ListShortlist(ctx context.Context, jobID string) ([]models.ShortlistEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the gateway selected by database.driver
func Open(ctx context.Context, cfg *config.Config) (Gateway, error) {
	switch cfg.Database.Driver {
	case "postgres":
		store, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				store.Close()
				return nil, err
			}
		}
		return store, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// mergeCredentials applies the credential rule shared by every gateway: a candidate
// who was already shortlisted keeps the credentials issued first, anyone else keeps
// none.
func mergeCredentials(existing *models.ShortlistEntry, entry *models.ShortlistEntry) {
	if entry.Status != models.ShortlistStatusShortlisted {
		entry.LoginID = ""
		entry.Password = ""
		return
	}
	if existing != nil && existing.LoginID != "" {
		entry.LoginID = existing.LoginID
		entry.Password = existing.Password
	}
}
