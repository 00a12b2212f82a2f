package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeClock, *bytes.Buffer) {
	t.Helper()
	logger := logging.NewNop()
	out := &bytes.Buffer{}
	adapter := NewAdapter(NewInMemoryTaskStore(), Options{
		MaxAttempts:  3,
		BackoffBase:  5 * time.Second,
		PollTimeout:  10 * time.Millisecond,
		LeaseTimeout: time.Minute,
	}, NewTaskEventLoggerWithWriter(logger, out), logger)

	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	adapter.SetClock(clock.Now)
	return adapter, clock, out
}

func TestEnqueueIsSingleFlight(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	first, err := adapter.Enqueue(ctx, "job-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if first.Existing {
		t.Fatal("first enqueue should not be marked existing")
	}

	second, err := adapter.Enqueue(ctx, "job-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !second.Existing || second.TaskID != first.TaskID {
		t.Fatalf("expected coalesced handle %s, got %+v", first.TaskID, second)
	}

	// still coalesces while processing
	task, err := adapter.TryConsume(ctx)
	if err != nil || task == nil {
		t.Fatalf("TryConsume: %v %v", task, err)
	}
	third, err := adapter.Enqueue(ctx, "job-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !third.Existing || third.Status != TaskStatusProcessing {
		t.Fatalf("expected existing processing handle, got %+v", third)
	}

	other, err := adapter.Enqueue(ctx, "job-2")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if other.Existing {
		t.Fatal("different job must not coalesce")
	}
}

func TestConcurrentEnqueueCreatesOneTask(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]int{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := adapter.Enqueue(ctx, "job-1")
			if err != nil {
				t.Errorf("Enqueue: %v", err)
				return
			}
			mu.Lock()
			ids[h.TaskID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != 1 {
		t.Fatalf("expected a single task id, got %v", ids)
	}
}

func TestClaimDeliversToExactlyOneConsumer(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	if _, err := adapter.Enqueue(ctx, "job-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	first, err := adapter.TryConsume(ctx)
	if err != nil || first == nil {
		t.Fatalf("expected a task, got %v %v", first, err)
	}
	if first.Status != TaskStatusProcessing || first.Attempts != 1 {
		t.Fatalf("unexpected claimed task %+v", first)
	}

	second, err := adapter.TryConsume(ctx)
	if err != nil {
		t.Fatalf("TryConsume: %v", err)
	}
	if second != nil {
		t.Fatalf("task delivered twice: %+v", second)
	}
}

func TestFailRetriesWithBackoffThenFailsPermanently(t *testing.T) {
	adapter, clock, out := newTestAdapter(t)
	ctx := context.Background()
	cause := errors.New("database unreachable")

	if _, err := adapter.Enqueue(ctx, "job-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	wantDelays := []time.Duration{5 * time.Second, 10 * time.Second}
	for attempt, delay := range wantDelays {
		task, err := adapter.TryConsume(ctx)
		if err != nil || task == nil {
			t.Fatalf("attempt %d: expected task, got %v %v", attempt+1, task, err)
		}

		retrying, err := adapter.Fail(ctx, task, cause, time.Second)
		if err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if !retrying {
			t.Fatalf("attempt %d should be retried", attempt+1)
		}

		status, _ := adapter.Status(ctx, "job-1")
		if got := status.NextAttemptAt.Sub(clock.Now()); got != delay {
			t.Fatalf("attempt %d: expected backoff %v, got %v", attempt+1, delay, got)
		}

		// not due before the backoff elapses
		if early, _ := adapter.TryConsume(ctx); early != nil {
			t.Fatalf("attempt %d: task delivered before backoff elapsed", attempt+1)
		}
		clock.Advance(delay)
	}

	task, err := adapter.TryConsume(ctx)
	if err != nil || task == nil {
		t.Fatalf("expected third delivery, got %v %v", task, err)
	}
	retrying, err := adapter.Fail(ctx, task, cause, time.Second)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if retrying {
		t.Fatal("third failure must be permanent")
	}

	status, err := adapter.Status(ctx, "job-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != TaskStatusFailed || status.Attempts != 3 || status.LastError != cause.Error() {
		t.Fatalf("unexpected final task %+v", status)
	}

	failed, err := adapter.Failed(ctx)
	if err != nil || len(failed) != 1 {
		t.Fatalf("expected one retained failed task, got %v %v", failed, err)
	}

	var record TaskCompletionLog
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &record); err != nil {
		t.Fatalf("completion record is not a single JSON line: %v (%q)", err, out.String())
	}
	if record.Status != "failed" || record.JobID != "job-1" {
		t.Fatalf("unexpected completion record %+v", record)
	}
}

func TestPermanentErrorSkipsRetry(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	adapter.Enqueue(ctx, "job-1")
	task, _ := adapter.TryConsume(ctx)

	retrying, err := adapter.Fail(ctx, task, Permanent(errors.New("job not found")), 0)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if retrying {
		t.Fatal("permanent errors must not be retried")
	}
	status, _ := adapter.Status(ctx, "job-1")
	if status.Status != TaskStatusFailed || status.Attempts != 1 {
		t.Fatalf("unexpected task %+v", status)
	}
}

func TestCompleteAllowsNewRun(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	first, _ := adapter.Enqueue(ctx, "job-1")
	task, _ := adapter.TryConsume(ctx)

	report := &models.BatchReport{JobID: "job-1", State: models.BatchStateDone, Attempted: 2}
	if err := adapter.Complete(ctx, task, report, time.Second); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	status, _ := adapter.Status(ctx, "job-1")
	if status.Status != TaskStatusCompleted || status.Report == nil || status.Report.Attempted != 2 {
		t.Fatalf("unexpected completed task %+v", status)
	}

	next, err := adapter.Enqueue(ctx, "job-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if next.Existing || next.TaskID == first.TaskID {
		t.Fatalf("expected a fresh task after completion, got %+v", next)
	}
}

func TestRequeue(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	if _, err := adapter.Requeue(ctx, "job-1"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	adapter.Enqueue(ctx, "job-1")
	if _, err := adapter.Requeue(ctx, "job-1"); !errors.Is(err, ErrTaskNotFailed) {
		t.Fatalf("expected ErrTaskNotFailed for queued task, got %v", err)
	}

	task, _ := adapter.TryConsume(ctx)
	adapter.Fail(ctx, task, Permanent(errors.New("boom")), 0)

	handle, err := adapter.Requeue(ctx, "job-1")
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if handle.Status != TaskStatusQueued || handle.TaskID != task.ID {
		t.Fatalf("unexpected handle %+v", handle)
	}

	status, _ := adapter.Status(ctx, "job-1")
	if status.Attempts != 0 || status.LastError != "" {
		t.Fatalf("requeue should reset attempts and error, got %+v", status)
	}
	failed, _ := adapter.Failed(ctx)
	if len(failed) != 0 {
		t.Fatalf("requeued task still listed as failed: %v", failed)
	}
}

func TestRecoverStaleRequeuesExpiredLeases(t *testing.T) {
	adapter, clock, _ := newTestAdapter(t)
	ctx := context.Background()

	adapter.Enqueue(ctx, "job-1")
	if task, _ := adapter.TryConsume(ctx); task == nil {
		t.Fatal("expected a task")
	}

	if n, _ := adapter.RecoverStale(ctx); n != 0 {
		t.Fatalf("lease not yet expired, recovered %d", n)
	}

	clock.Advance(2 * time.Minute)
	n, err := adapter.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered task, got %d", n)
	}

	status, _ := adapter.Status(ctx, "job-1")
	if status.Status != TaskStatusQueued || !strings.Contains(status.LastError, "lease expired") {
		t.Fatalf("unexpected recovered task %+v", status)
	}
}

func TestStaleAttemptCannotOverwriteNewerAttempt(t *testing.T) {
	adapter, clock, _ := newTestAdapter(t)
	ctx := context.Background()

	adapter.Enqueue(ctx, "job-1")
	stale, _ := adapter.TryConsume(ctx)
	if stale == nil {
		t.Fatal("expected a task")
	}

	clock.Advance(2 * time.Minute)
	if err := adapter.Extend(ctx, stale); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("expired lease renewed: %v", err)
	}
	if n, _ := adapter.RecoverStale(ctx); n != 1 {
		t.Fatalf("expected the expired lease to be recovered, got %d", n)
	}

	clock.Advance(time.Minute)
	current, _ := adapter.TryConsume(ctx)
	if current == nil || current.Attempts != 2 {
		t.Fatalf("expected second attempt, got %+v", current)
	}

	report := &models.BatchReport{JobID: "job-1", State: models.BatchStateDone}
	if err := adapter.Complete(ctx, stale, report, time.Second); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("stale Complete: expected ErrLeaseLost, got %v", err)
	}
	if _, err := adapter.Fail(ctx, stale, errors.New("late"), time.Second); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("stale Fail: expected ErrLeaseLost, got %v", err)
	}

	status, _ := adapter.Status(ctx, "job-1")
	if status.Status != TaskStatusProcessing || status.Attempts != 2 {
		t.Fatalf("newer attempt overwritten: %+v", status)
	}

	clock.Advance(30 * time.Second)
	if err := adapter.Extend(ctx, current); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	status, _ = adapter.Status(ctx, "job-1")
	if want := clock.Now().Add(time.Minute); !status.LeaseExpiresAt.Equal(want) {
		t.Fatalf("lease not renewed: got %v want %v", status.LeaseExpiresAt, want)
	}
	if err := adapter.Complete(ctx, current, report, time.Second); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestBackoff(t *testing.T) {
	base := 5 * time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(base, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestConsumeReturnsOnCancel(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := adapter.Consume(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
