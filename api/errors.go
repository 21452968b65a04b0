package api

import "fmt"

// FetchRulesError is returned when the remote rule-set fetch exhausted
// its retries or the server answered with a non-success status. The
// status code is zero for transport-level failures.
type FetchRulesError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchRulesError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("beacon: fetch rules: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return "beacon: fetch rules: " + e.Message
}

func (e *FetchRulesError) Unwrap() error { return e.Err }

// InvalidRulesError is returned when the fetched document does not match
// the expected {version, flags} shape. It is never retried.
type InvalidRulesError struct {
	Err error
}

func (e *InvalidRulesError) Error() string {
	return "beacon: invalid rules document: " + e.Err.Error()
}

func (e *InvalidRulesError) Unwrap() error { return e.Err }
