package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// JobIDPattern accepts opaque identifiers such as UUIDs, CUIDs and slug-style ids
var JobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidateJobID validates that the job ID is a safe opaque token
func ValidateJobID(fl validator.FieldLevel) bool {
	return JobIDPattern.MatchString(fl.Field().String())
}

// RegisterJobValidators registers the job-related custom validators
func RegisterJobValidators(v *validator.Validate) {
	v.RegisterValidation("job_id", ValidateJobID)
}

// New returns a validator with every custom rule registered
func New() *validator.Validate {
	v := validator.New()
	RegisterJobValidators(v)
	return v
}
