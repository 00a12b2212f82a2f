package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"screening-pipeline/internal/config"
	"screening-pipeline/pkg/models"
	"screening-pipeline/pkg/utils"
)

// PostgresStore is the Gateway backed by PostgreSQL through lib/pq
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the pool and verifies connectivity
func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	if cfg.Database.DSN == "" {
		return nil, errors.New("database dsn is required for the postgres driver")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing pool
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS job_requirements (
	id                   TEXT PRIMARY KEY,
	title                TEXT NOT NULL DEFAULT '',
	required_skills      TEXT[] NOT NULL DEFAULT '{}',
	min_experience_years DOUBLE PRECISION NOT NULL DEFAULT 0,
	min_projects         INTEGER NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS applied_references (
	id           TEXT PRIMARY KEY,
	job_id       TEXT NOT NULL REFERENCES job_requirements(id),
	document_url TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_applied_references_job ON applied_references(job_id);

CREATE TABLE IF NOT EXISTS candidate_profiles (
	id                     TEXT PRIMARY KEY,
	job_id                 TEXT NOT NULL,
	identity_key           TEXT NOT NULL,
	application_id         TEXT NOT NULL,
	name                   TEXT NOT NULL DEFAULT '',
	email                  TEXT NOT NULL DEFAULT '',
	phone                  TEXT NOT NULL DEFAULT '',
	resume_url             TEXT NOT NULL DEFAULT '',
	skills                 TEXT[] NOT NULL DEFAULT '{}',
	summary                TEXT NOT NULL DEFAULT '',
	total_experience_years DOUBLE PRECISION NOT NULL DEFAULT 0,
	experience             JSONB NOT NULL DEFAULT '[]',
	education              JSONB NOT NULL DEFAULT '[]',
	projects               JSONB NOT NULL DEFAULT '[]',
	interests              TEXT[] NOT NULL DEFAULT '{}',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (job_id, identity_key)
);

CREATE TABLE IF NOT EXISTS shortlist_entries (
	candidate_id   TEXT NOT NULL,
	job_id         TEXT NOT NULL,
	profile_id     TEXT NOT NULL DEFAULT '',
	name           TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	resume_url     TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	recommendation TEXT NOT NULL DEFAULT '',
	rationale      TEXT NOT NULL DEFAULT '',
	evaluated_at   TIMESTAMPTZ,
	login_id       TEXT NOT NULL DEFAULT '',
	password       TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (candidate_id, job_id)
);
`

// EnsureSchema creates the tables the pipeline reads and writes
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadRequirement(ctx context.Context, jobID string) (*models.JobRequirement, error) {
	var req models.JobRequirement
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, required_skills, min_experience_years, min_projects, created_at
		FROM job_requirements WHERE id = $1`, jobID).
		Scan(&req.ID, &req.Title, pq.Array(&req.RequiredSkills), &req.MinExperienceYears, &req.MinProjects, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job requirement %s: %w", jobID, err)
	}
	return &req, nil
}

func (s *PostgresStore) LoadApplied(ctx context.Context, jobID string) ([]models.AppliedReference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, document_url, created_at
		FROM applied_references WHERE job_id = $1
		ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("load applications for %s: %w", jobID, err)
	}
	defer rows.Close()

	refs := []models.AppliedReference{}
	for rows.Next() {
		var ref models.AppliedReference
		if err := rows.Scan(&ref.ID, &ref.JobID, &ref.DocumentURL, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, profile *models.CandidateProfile) error {
	experience, err := json.Marshal(nonNil(profile.Experience))
	if err != nil {
		return fmt.Errorf("encode experience: %w", err)
	}
	education, err := json.Marshal(nonNil(profile.Education))
	if err != nil {
		return fmt.Errorf("encode education: %w", err)
	}
	projects, err := json.Marshal(nonNil(profile.Projects))
	if err != nil {
		return fmt.Errorf("encode projects: %w", err)
	}

	id := profile.ID
	if id == "" {
		id = utils.GenerateID()
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO candidate_profiles (
			id, job_id, identity_key, application_id, name, email, phone, resume_url,
			skills, summary, total_experience_years, experience, education, projects, interests
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (job_id, identity_key) DO UPDATE SET
			application_id = EXCLUDED.application_id,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			resume_url = EXCLUDED.resume_url,
			skills = EXCLUDED.skills,
			summary = EXCLUDED.summary,
			total_experience_years = EXCLUDED.total_experience_years,
			experience = EXCLUDED.experience,
			education = EXCLUDED.education,
			projects = EXCLUDED.projects,
			interests = EXCLUDED.interests,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		id, profile.JobID, profile.IdentityKey(), profile.ApplicationID, profile.Name, profile.Email,
		profile.Phone, profile.ResumeURL, pq.Array(nonNil(profile.Skills)), profile.Summary,
		profile.TotalExperienceYears, string(experience), string(education), string(projects),
		pq.Array(nonNil(profile.Interests)),
	).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile for application %s: %w", profile.ApplicationID, err)
	}
	return nil
}

// UpsertShortlistEntry keeps the first issued credentials in SQL so concurrent
// reruns cannot rotate them.
func (s *PostgresStore) UpsertShortlistEntry(ctx context.Context, entry *models.ShortlistEntry) error {
	mergeCredentials(nil, entry)

	var evaluatedAt sql.NullTime
	if !entry.Evaluation.EvaluatedAt.IsZero() {
		evaluatedAt = sql.NullTime{Time: entry.Evaluation.EvaluatedAt, Valid: true}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO shortlist_entries (
			candidate_id, job_id, profile_id, name, email, resume_url, status, score, confidence,
			recommendation, rationale, evaluated_at, login_id, password
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (candidate_id, job_id) DO UPDATE SET
			profile_id = EXCLUDED.profile_id,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			resume_url = EXCLUDED.resume_url,
			status = EXCLUDED.status,
			score = EXCLUDED.score,
			confidence = EXCLUDED.confidence,
			recommendation = EXCLUDED.recommendation,
			rationale = EXCLUDED.rationale,
			evaluated_at = EXCLUDED.evaluated_at,
			login_id = CASE
				WHEN EXCLUDED.status <> 'shortlisted' THEN ''
				WHEN shortlist_entries.login_id <> '' THEN shortlist_entries.login_id
				ELSE EXCLUDED.login_id END,
			password = CASE
				WHEN EXCLUDED.status <> 'shortlisted' THEN ''
				WHEN shortlist_entries.login_id <> '' THEN shortlist_entries.password
				ELSE EXCLUDED.password END,
			updated_at = NOW()
		RETURNING login_id, password, created_at, updated_at`,
		entry.CandidateID, entry.JobID, entry.ProfileID, entry.Name, entry.Email, entry.ResumeURL,
		string(entry.Status), entry.Evaluation.Score, entry.Evaluation.Confidence,
		string(entry.Evaluation.Recommendation), entry.Evaluation.Rationale, evaluatedAt,
		entry.LoginID, entry.Password,
	).Scan(&entry.LoginID, &entry.Password, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert shortlist entry %s/%s: %w", entry.JobID, entry.CandidateID, err)
	}
	return nil
}

func (s *PostgresStore) ListShortlist(ctx context.Context, jobID string) ([]models.ShortlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT candidate_id, job_id, profile_id, name, email, resume_url, status, score, confidence,
			recommendation, rationale, evaluated_at, login_id, password, created_at, updated_at
		FROM shortlist_entries WHERE job_id = $1
		ORDER BY candidate_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list shortlist for %s: %w", jobID, err)
	}
	defer rows.Close()

	var entries []models.ShortlistEntry
	for rows.Next() {
		var (
			e           models.ShortlistEntry
			status, rec string
			evaluatedAt sql.NullTime
		)
		if err := rows.Scan(&e.CandidateID, &e.JobID, &e.ProfileID, &e.Name, &e.Email, &e.ResumeURL,
			&status, &e.Evaluation.Score, &e.Evaluation.Confidence, &rec, &e.Evaluation.Rationale,
			&evaluatedAt, &e.LoginID, &e.Password, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan shortlist entry: %w", err)
		}
		e.Status = models.ShortlistStatus(status)
		e.Evaluation.Status = e.Status
		e.Evaluation.Recommendation = models.Recommendation(rec)
		e.Evaluation.CandidateID = e.CandidateID
		e.Evaluation.JobID = e.JobID
		if evaluatedAt.Valid {
			e.Evaluation.EvaluatedAt = evaluatedAt.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

var _ Gateway = (*PostgresStore)(nil)
