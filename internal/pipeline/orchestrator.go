// Package pipeline drives one shortlisting run: it loads the applicants of a job, extracts
// and evaluates them concurrently under per-candidate deadlines, and persists one
// shortlist entry per applicant.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"screening-pipeline/internal/config"
	"screening-pipeline/internal/evaluation"
	"screening-pipeline/internal/extraction"
	"screening-pipeline/internal/llm"
	"screening-pipeline/internal/logging"
	"screening-pipeline/internal/runner"
	"screening-pipeline/internal/storage"
	"screening-pipeline/pkg/models"
	"screening-pipeline/pkg/utils"
)

const maxRationaleLength = 500

// Options bound the work done for one batch
type Options struct {
	MaxConcurrency    int
	ExtractionTimeout time.Duration
	EvaluationTimeout time.Duration
}

// OptionsFromConfig reads the pipeline section of the configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxConcurrency:    cfg.Pipeline.MaxConcurrency,
		ExtractionTimeout: cfg.Pipeline.ExtractionTimeout,
		EvaluationTimeout: cfg.Pipeline.EvaluationTimeout,
	}
}

// Result is the outcome of a batch: the counts and the entries that were written
type Result struct {
	Report  *models.BatchReport
	Entries []models.ShortlistEntry
}

// Notifier receives the final entries of a completed batch. Failures are logged and
// never fail the batch.
type Notifier interface {
	Notify(ctx context.Context, jobID string, entries []models.ShortlistEntry) error
}

// Orchestrator runs batches. It holds no per-batch state and is safe for concurrent use.
type Orchestrator struct {
	store       storage.Gateway
	extractor   extraction.Extractor
	evaluator   evaluation.Evaluator
	opts        Options
	logger      logging.Logger
	credentials CredentialGenerator
	notifier    Notifier
}

// New creates an orchestrator
func New(store storage.Gateway, extractor extraction.Extractor, evaluator evaluation.Evaluator, opts Options, logger logging.Logger) *Orchestrator {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 10
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Orchestrator{
		store:       store,
		extractor:   extractor,
		evaluator:   evaluator,
		opts:        opts,
		logger:      logger,
		credentials: GenerateCredentials,
	}
}

// SetNotifier registers the sink for completed batches
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.notifier = n
}

// SetCredentialGenerator replaces the credential source
func (o *Orchestrator) SetCredentialGenerator(g CredentialGenerator) {
	o.credentials = g
}

// candidate is the single result slot of one application
type candidate struct {
	ref        models.AppliedReference
	profile    *models.CandidateProfile
	extractErr error
	evaluation *models.EvaluationResult
	evalErr    error
}

// Run executes the batch for jobID. Per-candidate failures are absorbed into rejected
// entries; only a missing job requirement (*JobNotFoundError), infrastructure errors and
// cancellation fail the batch. On failure the returned result carries the partial report.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*Result, error) {
	report := &models.BatchReport{JobID: jobID, State: models.BatchStateLoading, StartedAt: time.Now().UTC()}
	result := &Result{Report: report}
	ctx = logging.WithJobID(ctx, jobID)
	logger := o.logger.WithContext(ctx)

	fail := func(err error) (*Result, error) {
		o.finish(report, models.BatchStateFailed)
		logger.Error("Shortlisting batch failed", map[string]interface{}{
			"state": report.State,
			"error": err,
		})
		return result, err
	}

	req, err := o.store.LoadRequirement(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return fail(&JobNotFoundError{JobID: jobID})
	}
	if err != nil {
		return fail(fmt.Errorf("load job requirement: %w", err))
	}

	refs, err := o.store.LoadApplied(ctx, jobID)
	if err != nil {
		return fail(fmt.Errorf("load applications: %w", err))
	}

	if len(refs) == 0 {
		o.finish(report, models.BatchStateDone)
		result.Entries = []models.ShortlistEntry{}
		logger.Info("No applications to shortlist")
		return result, nil
	}

	candidates := make([]*candidate, len(refs))
	for i, ref := range refs {
		candidates[i] = &candidate{ref: ref}
	}
	report.Attempted = len(candidates)

	logger.Info("Shortlisting batch started", map[string]interface{}{
		"applications":    len(candidates),
		"max_concurrency": o.opts.MaxConcurrency,
	})

	report.State = models.BatchStateExtracting
	if err := o.extractAll(ctx, candidates, logger); err != nil {
		return fail(err)
	}

	report.State = models.BatchStateEvaluating
	if err := o.evaluateAll(ctx, req, candidates, logger); err != nil {
		return fail(err)
	}

	report.State = models.BatchStatePersisting
	entries, err := o.buildEntries(jobID, candidates)
	if err != nil {
		return fail(err)
	}
	if err := o.persistEntries(ctx, entries); err != nil {
		return fail(err)
	}
	result.Entries = entries

	o.count(report, candidates, entries)
	o.finish(report, models.BatchStateDone)

	logger.Info("Shortlisting batch completed", map[string]interface{}{
		"attempted":       report.Attempted,
		"extracted":       report.Extracted,
		"evaluated":       report.Evaluated,
		"shortlisted":     report.Shortlisted,
		"processing_time": utils.FormatDuration(report.Duration),
	})

	if o.notifier != nil {
		if err := o.notifier.Notify(ctx, jobID, entries); err != nil {
			logger.Warn("Shortlist notification failed", map[string]interface{}{"error": err})
		}
	}

	return result, nil
}

// extractAll extracts every candidate under the extraction deadline and upserts each
// profile as soon as it is available.
func (o *Orchestrator) extractAll(ctx context.Context, candidates []*candidate, logger logging.Logger) error {
	var (
		mu       sync.Mutex
		infraErr []error
	)

	o.forEach(ctx, len(candidates), func(i int) {
		c := candidates[i]

		profile, err := runner.Run(ctx, "extraction", o.opts.ExtractionTimeout,
			func(ctx context.Context) (*models.CandidateProfile, error) {
				return o.extractor.Extract(ctx, c.ref)
			})
		if err != nil {
			c.extractErr = err
			logger.Warn("Candidate extraction failed", map[string]interface{}{
				"application_id": c.ref.ID,
				"timeout":        runner.IsTimeout(err),
				"error":          err,
			})
			return
		}

		profile.JobID = c.ref.JobID
		profile.ApplicationID = c.ref.ID
		if profile.ResumeURL == "" {
			profile.ResumeURL = c.ref.DocumentURL
		}

		if err := o.store.UpsertProfile(ctx, profile); err != nil {
			mu.Lock()
			infraErr = append(infraErr, fmt.Errorf("upsert profile for %s: %w", c.ref.ID, err))
			mu.Unlock()
			return
		}
		c.profile = profile
	})

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(infraErr...)
}

// evaluateAll scores every extracted candidate under the evaluation deadline, substituting
// the conservative default for any that fail.
func (o *Orchestrator) evaluateAll(ctx context.Context, req *models.JobRequirement, candidates []*candidate, logger logging.Logger) error {
	var pending []*candidate
	for _, c := range candidates {
		if c.profile != nil {
			pending = append(pending, c)
		}
	}

	o.forEach(ctx, len(pending), func(i int) {
		c := pending[i]

		res, err := runner.Run(ctx, "evaluation", o.opts.EvaluationTimeout,
			func(ctx context.Context) (*models.EvaluationResult, error) {
				return o.evaluator.Evaluate(ctx, c.profile, req)
			})
		if err != nil {
			c.evalErr = err
			c.evaluation = evaluation.Default(c.ref.ID, req.ID, failureRationale("evaluation", err))
			logger.Warn("Candidate evaluation failed", map[string]interface{}{
				"application_id": c.ref.ID,
				"timeout":        runner.IsTimeout(err),
				"malformed":      llm.IsMalformed(err),
				"error":          err,
			})
			return
		}

		res.CandidateID = c.ref.ID
		res.JobID = req.ID
		if res.EvaluatedAt.IsZero() {
			res.EvaluatedAt = time.Now().UTC()
		}
		c.evaluation = res
	})

	return ctx.Err()
}

// buildEntries produces exactly one entry per candidate, in application order
func (o *Orchestrator) buildEntries(jobID string, candidates []*candidate) ([]models.ShortlistEntry, error) {
	entries := make([]models.ShortlistEntry, 0, len(candidates))

	for _, c := range candidates {
		eval := c.evaluation
		if c.profile == nil {
			eval = evaluation.Default(c.ref.ID, jobID, failureRationale("extraction", c.extractErr))
		}

		entry := models.ShortlistEntry{
			CandidateID: c.ref.ID,
			JobID:       jobID,
			ResumeURL:   c.ref.DocumentURL,
			Status:      eval.Status,
			Evaluation:  *eval,
		}
		if c.profile != nil {
			entry.ProfileID = c.profile.ID
			entry.Name = c.profile.Name
			entry.Email = c.profile.Email
		}

		if entry.Status == models.ShortlistStatusShortlisted {
			creds, err := o.credentials(entry.Email, c.ref.ID)
			if err != nil {
				return nil, fmt.Errorf("issue credentials for %s: %w", c.ref.ID, err)
			}
			entry.LoginID = creds.LoginID
			entry.Password = creds.Password
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

func (o *Orchestrator) persistEntries(ctx context.Context, entries []models.ShortlistEntry) error {
	var errs []error
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.store.UpsertShortlistEntry(ctx, &entries[i]); err != nil {
			errs = append(errs, fmt.Errorf("upsert shortlist entry for %s: %w", entries[i].CandidateID, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) count(report *models.BatchReport, candidates []*candidate, entries []models.ShortlistEntry) {
	for _, c := range candidates {
		switch {
		case c.profile == nil:
			report.ExtractionFailures++
		case c.evalErr != nil:
			report.Extracted++
			report.EvaluationFailures++
		default:
			report.Extracted++
			report.Evaluated++
		}
	}
	for _, e := range entries {
		switch e.Status {
		case models.ShortlistStatusShortlisted:
			report.Shortlisted++
		case models.ShortlistStatusUnderReview:
			report.UnderReview++
		default:
			report.Rejected++
		}
	}
}

func (o *Orchestrator) finish(report *models.BatchReport, state models.BatchState) {
	report.State = state
	report.FinishedAt = time.Now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
}

// forEach runs fn for indexes [0, n) with at most MaxConcurrency in flight. It stops
// starting new work once ctx is done and always waits for started work.
func (o *Orchestrator) forEach(ctx context.Context, n int, fn func(i int)) {
	sem := make(chan struct{}, o.opts.MaxConcurrency)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// failureRationale turns a per-candidate error into the rationale stored on its entry
func failureRationale(stage string, err error) string {
	var (
		empty *extraction.EmptyDocumentError
		fetch *extraction.FetchError
		msg   string
	)

	switch {
	case err == nil:
		msg = fmt.Sprintf("%s failed", stage)
	case runner.IsTimeout(err):
		msg = fmt.Sprintf("%s timed out: %v", stage, err)
	case errors.As(err, &empty):
		msg = fmt.Sprintf("%s failed: résumé has no readable text (%v)", stage, err)
	case errors.As(err, &fetch):
		msg = fmt.Sprintf("%s failed: résumé could not be downloaded (%v)", stage, err)
	case llm.IsMalformed(err):
		msg = fmt.Sprintf("%s failed: unparseable response from the reasoning service", stage)
	default:
		msg = fmt.Sprintf("%s failed: %v", stage, err)
	}
	return utils.Truncate(msg, maxRationaleLength)
}
