package pipeline

import (
	"context"

	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
)

// LogNotifier publishes the shortlisted candidates of a batch to the log stream, where the
// notification service picks them up. Passwords are never logged.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier creates a notifier writing to logger
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, jobID string, entries []models.ShortlistEntry) error {
	for _, e := range entries {
		if e.Status != models.ShortlistStatusShortlisted {
			continue
		}
		n.logger.Info("Candidate shortlisted", map[string]interface{}{
			"job_id":       jobID,
			"candidate_id": e.CandidateID,
			"email":        e.Email,
			"login_id":     e.LoginID,
			"score":        e.Evaluation.Score,
		})
	}
	return nil
}
