package app

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every remote client. The orchestrator classifies
// failures with errors.Is/errors.As and never lets them escape past its
// boundary.
var (
	ErrMissingCredentials   = errors.New("missing credentials")
	ErrCaptureFailed        = errors.New("screen capture failed")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrTimeout              = errors.New("operation timed out")
	ErrEmptyPrompt          = errors.New("empty prompt")
	ErrGenerationInFlight   = errors.New("a generation is already in flight")
)

// HTTPError is any non-2xx response from a provider. Body is the raw response
// body, kept verbatim for the event log.
type HTTPError struct {
	Status int
	Body   string
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s: %s", e.Status, e.URL, e.Body)
}

// DecodeError is a response that came back 2xx but could not be parsed.
// Distinct from HTTPError; the two are never conflated.
type DecodeError struct {
	Detail string
}

func (e *DecodeError) Error() string {
	return "decode error: " + e.Detail
}
