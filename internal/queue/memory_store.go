package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryTaskStore implements TaskStore for a single process
type InMemoryTaskStore struct {
	mu     sync.Mutex
	tasks  map[string]*PipelineTask
	latest map[string]string // job id -> task id
}

// NewInMemoryTaskStore creates a new in-memory task store
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks:  make(map[string]*PipelineTask),
		latest: make(map[string]string),
	}
}

func (s *InMemoryTaskStore) Enqueue(ctx context.Context, task *PipelineTask) (*PipelineTask, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.latest[task.JobID]; ok {
		if current := s.tasks[id]; current != nil && current.Status.Active() {
			return current.Clone(), true, nil
		}
	}

	s.tasks[task.ID] = task.Clone()
	s.latest[task.JobID] = task.ID
	return task.Clone(), false, nil
}

func (s *InMemoryTaskStore) Claim(ctx context.Context, now time.Time, lease time.Duration) (*PipelineTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *PipelineTask
	for _, t := range s.tasks {
		if t.Status != TaskStatusQueued || t.NextAttemptAt.After(now) {
			continue
		}
		if next == nil || t.NextAttemptAt.Before(next.NextAttemptAt) ||
			(t.NextAttemptAt.Equal(next.NextAttemptAt) && t.CreatedAt.Before(next.CreatedAt)) {
			next = t
		}
	}
	if next == nil {
		return nil, nil
	}

	next.Status = TaskStatusProcessing
	next.Attempts++
	next.UpdatedAt = now
	next.LeaseExpiresAt = now.Add(lease)
	return next.Clone(), nil
}

func (s *InMemoryTaskStore) Save(ctx context.Context, task *PipelineTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[task.ID]
	if !ok {
		return ErrTaskNotFound
	}
	if task.Status != TaskStatusProcessing && !holdsLease(current, task.Attempts) {
		return ErrLeaseLost
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *InMemoryTaskStore) Extend(ctx context.Context, taskID string, attempt int, now time.Time, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if !holdsLease(current, attempt) || current.LeaseExpiresAt.Before(now) {
		return ErrLeaseLost
	}
	current.LeaseExpiresAt = now.Add(lease)
	return nil
}

func (s *InMemoryTaskStore) Latest(ctx context.Context, jobID string) (*PipelineTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.latest[jobID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return s.tasks[id].Clone(), nil
}

func (s *InMemoryTaskStore) Failed(ctx context.Context) ([]*PipelineTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*PipelineTask
	for _, t := range s.tasks {
		if t.Status == TaskStatusFailed {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryTaskStore) Expired(ctx context.Context, now time.Time) ([]*PipelineTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*PipelineTask
	for _, t := range s.tasks {
		if t.Status == TaskStatusProcessing && t.LeaseExpiresAt.Before(now) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryTaskStore) Ping(ctx context.Context) error { return nil }

func (s *InMemoryTaskStore) Close() error { return nil }

var _ TaskStore = (*InMemoryTaskStore)(nil)
