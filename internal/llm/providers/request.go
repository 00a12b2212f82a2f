package providers

import "errors"

// Request is one system instruction plus one user message
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
	// JSON asks providers that support it to constrain output to a JSON document
	JSON bool
}

// ErrEmptyCompletion is returned when the service answered without any text
var ErrEmptyCompletion = errors.New("reasoning service returned no text")
