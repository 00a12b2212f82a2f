package extraction

import (
	"errors"
	"fmt"
)

// EmptyDocumentError is returned when a document yields too little text to be a résumé,
// typically a scanned PDF without a text layer
type EmptyDocumentError struct {
	Locator string
	Length  int
	Minimum int
}

func (e *EmptyDocumentError) Error() string {
	return fmt.Sprintf("document %s has %d characters of usable text, need at least %d", e.Locator, e.Length, e.Minimum)
}

// FetchError reports a failed download
type FetchError struct {
	Locator    string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Locator, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrUnsupportedDocument is returned for content types that cannot be converted to text
var ErrUnsupportedDocument = errors.New("unsupported document type")

// ErrDocumentTooLarge is returned when a download exceeds the configured limit
var ErrDocumentTooLarge = errors.New("document exceeds size limit")
