package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"screening-pipeline/pkg/utils"
)

// ErrEmptyResponse is returned when a reply has no JSON object in it at all
var ErrEmptyResponse = errors.New("response contains no JSON object")

// MalformedResponseError reports a reply that could not be decoded into the expected schema
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v (raw: %q)", e.Err, utils.Truncate(e.Raw, 200))
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is, or wraps, a MalformedResponseError
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// ExtractJSON isolates the JSON object in a model reply. Markdown code fences are
// removed and any prose before the first '{' or after the matching '}' is dropped.
func ExtractJSON(raw string) (string, error) {
	text := stripCodeFences(strings.TrimSpace(raw))

	start := strings.Index(text, "{")
	if start < 0 {
		return "", ErrEmptyResponse
	}

	end := matchingBrace(text, start)
	if end < 0 {
		// unbalanced, fall back to the last closing brace
		end = strings.LastIndex(text, "}")
		if end < start {
			return "", ErrEmptyResponse
		}
	}

	return text[start : end+1], nil
}

// DecodeJSON sanitizes raw and unmarshals the object into v
func DecodeJSON(raw string, v interface{}) error {
	body, err := ExtractJSON(raw)
	if err != nil {
		return &MalformedResponseError{Raw: raw, Err: err}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &MalformedResponseError{Raw: raw, Err: err}
	}
	return nil
}

func stripCodeFences(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}

	body := text[open+3:]
	// drop the language tag on the fence line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{}") {
			body = body[nl+1:]
		}
	}

	if closing := strings.Index(body, "```"); closing >= 0 {
		body = body[:closing]
	}
	return strings.TrimSpace(body)
}

// matchingBrace returns the index of the brace closing the one at start, honouring
// string literals and escapes, or -1 when the object never closes
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
