package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"screening-pipeline/pkg/models"
	"screening-pipeline/pkg/utils"
)

type profileKey struct{ jobID, identity string }
type entryKey struct{ candidateID, jobID string }

// MemoryStore is an in-process Gateway for tests and single-node development
type MemoryStore struct {
	mu           sync.RWMutex
	requirements map[string]models.JobRequirement
	applied      map[string][]models.AppliedReference
	profiles     map[profileKey]models.CandidateProfile
	entries      map[entryKey]models.ShortlistEntry

	// writes counts successful upserts, for idempotency assertions
	writes int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requirements: make(map[string]models.JobRequirement),
		applied:      make(map[string][]models.AppliedReference),
		profiles:     make(map[profileKey]models.CandidateProfile),
		entries:      make(map[entryKey]models.ShortlistEntry),
	}
}

// PutRequirement seeds a job requirement
func (s *MemoryStore) PutRequirement(req models.JobRequirement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requirements[req.ID] = req
}

// PutApplied seeds an application
func (s *MemoryStore) PutApplied(ref models.AppliedReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[ref.JobID] = append(s.applied[ref.JobID], ref)
}

func (s *MemoryStore) LoadRequirement(ctx context.Context, jobID string) (*models.JobRequirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requirements[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	req.RequiredSkills = append([]string(nil), req.RequiredSkills...)
	return &req, nil
}

func (s *MemoryStore) LoadApplied(ctx context.Context, jobID string) ([]models.AppliedReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]models.AppliedReference, len(s.applied[jobID]))
	copy(refs, s.applied[jobID])
	return refs, nil
}

func (s *MemoryStore) UpsertProfile(ctx context.Context, profile *models.CandidateProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := profileKey{jobID: profile.JobID, identity: profile.IdentityKey()}
	now := time.Now().UTC()

	if existing, ok := s.profiles[key]; ok {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.ID = utils.GenerateID()
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	s.profiles[key] = *profile
	s.writes++
	return nil
}

func (s *MemoryStore) UpsertShortlistEntry(ctx context.Context, entry *models.ShortlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{candidateID: entry.CandidateID, jobID: entry.JobID}
	now := time.Now().UTC()

	if existing, ok := s.entries[key]; ok {
		mergeCredentials(&existing, entry)
		entry.CreatedAt = existing.CreatedAt
	} else {
		mergeCredentials(nil, entry)
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	s.entries[key] = *entry
	s.writes++
	return nil
}

func (s *MemoryStore) ListShortlist(ctx context.Context, jobID string) ([]models.ShortlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ShortlistEntry
	for key, e := range s.entries {
		if key.jobID == jobID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateID < out[j].CandidateID })
	return out, nil
}

// Profiles returns the stored profiles of a job
func (s *MemoryStore) Profiles(jobID string) []models.CandidateProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.CandidateProfile
	for key, p := range s.profiles {
		if key.jobID == jobID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApplicationID < out[j].ApplicationID })
	return out
}

// Writes returns the number of upserts performed
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Gateway = (*MemoryStore)(nil)
