package pipeline

import (
	"errors"
	"fmt"
)

// JobNotFoundError is the only batch-fatal condition: the job requirement does not exist
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job requirement %s not found", e.JobID)
}

// IsJobNotFound reports whether err is, or wraps, a JobNotFoundError
func IsJobNotFound(err error) bool {
	var nf *JobNotFoundError
	return errors.As(err, &nf)
}
