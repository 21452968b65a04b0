package beacon

import (
	"errors"
	"fmt"

	"github.com/beacondeck/beacon-go/api"
)

// ErrFlagNotFound reports that a requested flag key is absent from the
// loaded rule set and no default value was available.
var ErrFlagNotFound = errors.New("flag not found")

// ConfigurationError reports invalid or missing client setup. It is
// raised synchronously from New and never at evaluation time.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return "beacon: configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// EvaluationError reports a failed flag lookup. Callers recover by
// supplying a default value; errors.Is(err, ErrFlagNotFound) holds.
type EvaluationError struct {
	Key string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("beacon: flag %q not found and no default available", e.Key)
}

func (e *EvaluationError) Unwrap() error { return ErrFlagNotFound }

// FetchRulesError is returned when the remote fetch exhausted its
// retries or the server rejected the request.
type FetchRulesError = api.FetchRulesError

// InvalidRulesError is returned when the fetched document has an
// unexpected shape.
type InvalidRulesError = api.InvalidRulesError
