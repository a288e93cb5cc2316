package tmx

import (
	"fmt"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

var (
	// ErrRemoteService matches every *RemoteServiceError.
	ErrRemoteService = errors.New("tmx: remote service error")

	// ErrCircuitOpen is wrapped by a RemoteServiceError when the endpoint's
	// circuit is open and no request was sent.
	ErrCircuitOpen = errors.New("tmx: circuit open")

	// ErrFieldMissing is returned by Response accessors when the field is
	// absent, null or empty.
	ErrFieldMissing = errors.New("tmx: response field missing")

	// ErrFieldInvalid is returned by Response accessors when the field has
	// the wrong JSON type or cannot be parsed.
	ErrFieldInvalid = errors.New("tmx: response field invalid")
)

const maxBodyDiagnostic = 512

// RemoteServiceError reports a failed call to the risk service: a transport
// failure (StatusCode 0), a non-2xx status, or a body that is not a JSON
// object.
type RemoteServiceError struct {
	Operation  string // "query" or "update"
	Endpoint   string // request URL without the query string
	StatusCode int
	Body       string // truncated response body, when one was read
	Err        error
}

func (e *RemoteServiceError) Error() string {
	msg := fmt.Sprintf("tmx: %s %s", e.Operation, e.Endpoint)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

func (e *RemoteServiceError) Is(target error) bool { return target == ErrRemoteService }

func truncateBody(b []byte) string {
	if len(b) <= maxBodyDiagnostic {
		return string(b)
	}
	cut := maxBodyDiagnostic
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "..."
}
