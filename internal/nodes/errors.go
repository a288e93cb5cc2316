package nodes

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/mbd888/tmxauth/internal/tmx"
)

var (
	ErrMissingState      = errors.New("nodes: missing shared state")
	ErrConfiguration     = errors.New("nodes: invalid configuration")
	ErrMalformedResponse = errors.New("nodes: malformed risk response")
	ErrMalformedCallback = errors.New("nodes: malformed callback")
)

// MissingStateError reports a required value that an earlier node should
// have produced.
type MissingStateError struct {
	Key      string
	Producer string // node type expected to write Key
	Hint     string
}

func (e *MissingStateError) Error() string {
	msg := fmt.Sprintf("nodes: %s not found in shared state; the %s node must run first and succeed", e.Key, e.Producer)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func (e *MissingStateError) Is(target error) bool { return target == ErrMissingState }

// ConfigurationError reports an invalid or inconsistent node configuration.
type ConfigurationError struct {
	Node   string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("nodes: %s: invalid %s", e.Node, e.Field)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// MalformedResponseError reports a risk response field that cannot be used.
type MalformedResponseError struct {
	Field string
	Value string // raw JSON of the field, empty when absent
	Err   error
}

func (e *MalformedResponseError) Error() string {
	msg := "nodes: malformed " + e.Field
	if e.Value != "" {
		msg += fmt.Sprintf(" (%s)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// MalformedCallbackError reports an unacceptable value returned by the client.
type MalformedCallbackError struct {
	CallbackID string
	Reason     string
}

func (e *MalformedCallbackError) Error() string {
	return fmt.Sprintf("nodes: callback %s rejected: %s", e.CallbackID, e.Reason)
}

func (e *MalformedCallbackError) Is(target error) bool { return target == ErrMalformedCallback }

// ProcessingError wraps a failure that aborted a node, most often a
// tmx.RemoteServiceError.
type ProcessingError struct {
	Node string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("nodes: %s failed: %v", e.Node, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Error kinds reported by Kind.
const (
	KindMissingState      = "missing_state"
	KindConfiguration     = "configuration"
	KindMalformedResponse = "malformed_response"
	KindMalformedCallback = "malformed_callback"
	KindRemoteService     = "remote_service"
	KindInternal          = "internal"
)

// Kind classifies err for metrics and API responses.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrMissingState):
		return KindMissingState
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrMalformedCallback):
		return KindMalformedCallback
	case errors.Is(err, tmx.ErrRemoteService):
		return KindRemoteService
	default:
		return KindInternal
	}
}
