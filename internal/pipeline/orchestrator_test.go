package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"screening-pipeline/internal/extraction"
	"screening-pipeline/internal/llm"
	"screening-pipeline/internal/logging"
	"screening-pipeline/internal/queue"
	"screening-pipeline/internal/storage"
	"screening-pipeline/pkg/models"
)

type extractFunc func(ctx context.Context, ref models.AppliedReference) (*models.CandidateProfile, error)

type fakeExtractor struct {
	byID     map[string]extractFunc
	inFlight int32
	peak     int32
}

func (f *fakeExtractor) Extract(ctx context.Context, ref models.AppliedReference) (*models.CandidateProfile, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	if fn, ok := f.byID[ref.ID]; ok {
		return fn(ctx, ref)
	}
	time.Sleep(5 * time.Millisecond)
	return &models.CandidateProfile{
		Name:   "Candidate " + ref.ID,
		Email:  ref.ID + "@example.com",
		Skills: []string{"go"},
	}, nil
}

type evaluateFunc func(ctx context.Context, profile *models.CandidateProfile) (*models.EvaluationResult, error)

type fakeEvaluator struct {
	byEmail map[string]evaluateFunc
	score   float64
	status  models.ShortlistStatus
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, profile *models.CandidateProfile, req *models.JobRequirement) (*models.EvaluationResult, error) {
	if fn, ok := f.byEmail[profile.Email]; ok {
		return fn(ctx, profile)
	}
	return &models.EvaluationResult{
		Score:          f.score,
		Confidence:     0.9,
		Recommendation: models.RecommendationFit,
		Status:         f.status,
		Rationale:      "matches the requirement",
	}, nil
}

func seedJob(store *storage.MemoryStore, jobID string, applicants int) {
	store.PutRequirement(models.JobRequirement{ID: jobID, Title: "Backend Engineer", RequiredSkills: []string{"go"}})
	for i := 1; i <= applicants; i++ {
		id := fmt.Sprintf("app-%d", i)
		store.PutApplied(models.AppliedReference{ID: id, JobID: jobID, DocumentURL: "https://files.example.com/" + id + ".pdf"})
	}
}

func newTestOrchestrator(store storage.Gateway, ex *fakeExtractor, ev *fakeEvaluator, opts Options) *Orchestrator {
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = 4
	}
	if opts.ExtractionTimeout == 0 {
		opts.ExtractionTimeout = time.Second
	}
	if opts.EvaluationTimeout == 0 {
		opts.EvaluationTimeout = time.Second
	}
	return New(store, ex, ev, opts, logging.NewNop())
}

func TestRunZeroApplicants(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(store, "job-1", 0)

	o := newTestOrchestrator(store, &fakeExtractor{}, &fakeEvaluator{score: 80, status: models.ShortlistStatusShortlisted}, Options{})
	result, err := o.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Report.State != models.BatchStateDone || result.Report.Attempted != 0 {
		t.Fatalf("unexpected report %+v", result.Report)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("expected empty shortlist, got %d entries", len(result.Entries))
	}
}

func TestRunJobNotFound(t *testing.T) {
	o := newTestOrchestrator(storage.NewMemoryStore(), &fakeExtractor{}, &fakeEvaluator{}, Options{})

	result, err := o.Run(context.Background(), "missing")
	if !IsJobNotFound(err) {
		t.Fatalf("expected JobNotFoundError, got %v", err)
	}
	if result.Report.State != models.BatchStateFailed {
		t.Fatalf("expected failed state, got %s", result.Report.State)
	}

	_, err = o.TaskHandler()(context.Background(), &queue.PipelineTask{JobID: "missing"})
	if !queue.IsPermanent(err) {
		t.Fatalf("missing job must not be retried, got %v", err)
	}
}

func TestRunOneEntryPerApplicationWithIsolatedFailures(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(store, "job-1", 4)

	ex := &fakeExtractor{byID: map[string]extractFunc{
		"app-2": func(ctx context.Context, ref models.AppliedReference) (*models.CandidateProfile, error) {
			return nil, &extraction.EmptyDocumentError{Locator: ref.DocumentURL, Length: 0, Minimum: 10}
		},
	}}
	ev := &fakeEvaluator{
		score:  82,
		status: models.ShortlistStatusShortlisted,
		byEmail: map[string]evaluateFunc{
			"app-3@example.com": func(ctx context.Context, p *models.CandidateProfile) (*models.EvaluationResult, error) {
				return nil, &llm.MalformedResponseError{Raw: "not json", Err: errors.New("no object")}
			},
		},
	}

	o := newTestOrchestrator(store, ex, ev, Options{})
	result, err := o.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(result.Entries))
	}
	stored, _ := store.ListShortlist(context.Background(), "job-1")
	if len(stored) != 4 {
		t.Fatalf("expected 4 stored entries, got %d", len(stored))
	}

	byID := map[string]models.ShortlistEntry{}
	for _, e := range stored {
		byID[e.CandidateID] = e
	}

	unreadable := byID["app-2"]
	if unreadable.Status != models.ShortlistStatusRejected || !strings.Contains(unreadable.Evaluation.Rationale, "extraction failed") {
		t.Fatalf("unreadable résumé should be rejected with extraction rationale, got %+v", unreadable)
	}
	if unreadable.Evaluation.Score != 0 || unreadable.Evaluation.Recommendation != models.RecommendationNotSuitable {
		t.Fatalf("expected conservative default, got %+v", unreadable.Evaluation)
	}

	malformed := byID["app-3"]
	if malformed.Status != models.ShortlistStatusRejected || !strings.Contains(malformed.Evaluation.Rationale, "unparseable") {
		t.Fatalf("malformed evaluation should fall back to default, got %+v", malformed)
	}

	for _, id := range []string{"app-1", "app-4"} {
		e := byID[id]
		if e.Status != models.ShortlistStatusShortlisted || e.LoginID == "" || e.Password == "" {
			t.Fatalf("%s should be shortlisted with credentials, got %+v", id, e)
		}
	}
	if unreadable.LoginID != "" || malformed.LoginID != "" {
		t.Fatal("credentials issued to non-shortlisted candidates")
	}

	r := result.Report
	if r.State != models.BatchStateDone || r.Attempted != 4 || r.Extracted != 3 || r.Evaluated != 2 || r.Shortlisted != 2 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.ExtractionFailures != 1 || r.EvaluationFailures != 1 || r.Rejected != 2 {
		t.Fatalf("unexpected failure counts %+v", r)
	}
	if got := len(store.Profiles("job-1")); got != 3 {
		t.Fatalf("expected 3 stored profiles, got %d", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(store, "job-1", 3)

	o := newTestOrchestrator(store, &fakeExtractor{}, &fakeEvaluator{score: 90, status: models.ShortlistStatusShortlisted}, Options{})
	ctx := context.Background()

	if _, err := o.Run(ctx, "job-1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := store.ListShortlist(ctx, "job-1")

	if _, err := o.Run(ctx, "job-1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := store.ListShortlist(ctx, "job-1")

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("entry count changed: %d -> %d", len(first), len(second))
	}
	if got := len(store.Profiles("job-1")); got != 3 {
		t.Fatalf("profiles duplicated: %d", got)
	}
	for i := range first {
		if first[i].LoginID != second[i].LoginID || first[i].Password != second[i].Password {
			t.Fatalf("credentials rotated for %s", first[i].CandidateID)
		}
		if first[i].ProfileID != second[i].ProfileID {
			t.Fatalf("profile id changed for %s", first[i].CandidateID)
		}
	}
}

func TestRunTimeoutIsolation(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(store, "job-1", 3)

	ex := &fakeExtractor{byID: map[string]extractFunc{
		"app-2": func(ctx context.Context, ref models.AppliedReference) (*models.CandidateProfile, error) {
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond) // late result must be discarded
			return &models.CandidateProfile{Email: "late@example.com"}, nil
		},
	}}
	ev := &fakeEvaluator{score: 75, status: models.ShortlistStatusShortlisted}

	o := newTestOrchestrator(store, ex, ev, Options{ExtractionTimeout: 50 * time.Millisecond})

	start := time.Now()
	result, err := o.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("batch blocked on the slow candidate for %v", elapsed)
	}

	if result.Report.Shortlisted != 2 || result.Report.ExtractionFailures != 1 {
		t.Fatalf("unexpected report %+v", result.Report)
	}
	for _, e := range result.Entries {
		if e.CandidateID == "app-2" {
			if e.Status != models.ShortlistStatusRejected || !strings.Contains(e.Evaluation.Rationale, "timed out") {
				t.Fatalf("timed out candidate recorded as %+v", e)
			}
		}
	}
	for _, p := range store.Profiles("job-1") {
		if p.Email == "late@example.com" {
			t.Fatal("late extraction result was persisted")
		}
	}
}

func TestRunEvaluationTimeout(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(store, "job-1", 2)

	ev := &fakeEvaluator{
		score:  75,
		status: models.ShortlistStatusShortlisted,
		byEmail: map[string]evaluateFunc{
			"app-1@example.com": func(ctx context.Context, p *models.CandidateProfile) (*models.EvaluationResult, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}

	o := newTestOrchestrator(store, &fakeExtractor{}, ev, Options{EvaluationTimeout: 30 * time.Millisecond})
	result, err := o.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Report.EvaluationFailures != 1 || result.Report.Evaluated != 1 {
		t.Fatalf("unexpected report %+v", result.Report)
	}
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(store, "job-1", 12)

	ex := &fakeExtractor{}
	o := newTestOrchestrator(store, ex, &fakeEvaluator{score: 10, status: models.ShortlistStatusRejected}, Options{MaxConcurrency: 3})

	if _, err := o.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak := atomic.LoadInt32(&ex.peak); peak > 3 {
		t.Fatalf("expected at most 3 concurrent extractions, saw %d", peak)
	}
}

type failingGateway struct {
	*storage.MemoryStore
	failProfiles bool
}

func (g *failingGateway) UpsertProfile(ctx context.Context, p *models.CandidateProfile) error {
	if g.failProfiles {
		return errors.New("connection refused")
	}
	return g.MemoryStore.UpsertProfile(ctx, p)
}

func TestRunInfrastructureErrorFailsBatch(t *testing.T) {
	mem := storage.NewMemoryStore()
	seedJob(mem, "job-1", 2)
	store := &failingGateway{MemoryStore: mem, failProfiles: true}

	o := newTestOrchestrator(store, &fakeExtractor{}, &fakeEvaluator{score: 80, status: models.ShortlistStatusShortlisted}, Options{})
	result, err := o.Run(context.Background(), "job-1")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	if IsJobNotFound(err) {
		t.Fatal("infrastructure error misclassified as job not found")
	}
	if result.Report.State != models.BatchStateFailed {
		t.Fatalf("expected failed state, got %s", result.Report.State)
	}
	if entries, _ := mem.ListShortlist(context.Background(), "job-1"); len(entries) != 0 {
		t.Fatalf("no entries should be written when the batch fails, got %d", len(entries))
	}
}

func TestRunCancellation(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(store, "job-1", 3)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	ex := &fakeExtractor{byID: map[string]extractFunc{
		"app-1": func(c context.Context, ref models.AppliedReference) (*models.CandidateProfile, error) {
			once.Do(cancel)
			<-c.Done()
			return nil, c.Err()
		},
	}}

	o := newTestOrchestrator(store, ex, &fakeEvaluator{score: 80, status: models.ShortlistStatusShortlisted}, Options{})
	_, err := o.Run(ctx, "job-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type recordingNotifier struct {
	jobID   string
	entries int
}

func (n *recordingNotifier) Notify(ctx context.Context, jobID string, entries []models.ShortlistEntry) error {
	n.jobID = jobID
	n.entries = len(entries)
	return errors.New("sink unavailable")
}

func TestRunNotifierFailureDoesNotFailBatch(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(store, "job-1", 2)

	n := &recordingNotifier{}
	o := newTestOrchestrator(store, &fakeExtractor{}, &fakeEvaluator{score: 80, status: models.ShortlistStatusShortlisted}, Options{})
	o.SetNotifier(n)

	if _, err := o.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n.jobID != "job-1" || n.entries != 2 {
		t.Fatalf("notifier not called with final entries: %+v", n)
	}
}
