package journey

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mbd888/tmxauth/internal/nodes"
	"github.com/mbd888/tmxauth/internal/state"
)

var (
	ErrJourneyNotFound = errors.New("journey: not found")
	ErrAttemptNotFound = errors.New("journey: attempt not found")
	ErrAttemptFinished = errors.New("journey: attempt already finished")
	ErrAttemptExpired  = errors.New("journey: attempt expired")
	ErrSeedNotAllowed  = errors.New("journey: shared state key may not be supplied by the caller")
	ErrNoCallbacks     = errors.New("journey: callbacks required to resume")
	ErrInvalidSeed     = errors.New("journey: invalid initial shared state")
	ErrUnexpectedInput = errors.New("journey: callback was not requested")
)

// ExpiredRetention is how long stores keep an attempt after it expires, so a
// late caller is told it expired rather than that it never existed.
const ExpiredRetention = 10 * time.Minute

// Status is the lifecycle state of an attempt.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
)

// Terminal node ids. Outcome mappings may point at these instead of a node.
const (
	TerminalSuccess = "success"
	TerminalFailure = "failure"
)

// Step records one completed node invocation.
type Step struct {
	Node    string `json:"node"`
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
}

// Attempt is one run of a journey for one user.
type Attempt struct {
	ID      string `json:"id"`
	Journey string `json:"journey"`
	Status  Status `json:"status"`
	// Current is the suspended node while Status is in_progress.
	Current   string           `json:"current,omitempty"`
	Callbacks []nodes.Callback `json:"callbacks,omitempty"`
	State     *state.State     `json:"state"`
	Path      []Step           `json:"path"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// IsTerminal reports whether the attempt has finished.
func (a *Attempt) IsTerminal() bool {
	return a.Status == StatusSuccess || a.Status == StatusFailure
}

// Clone returns a deep copy.
func (a *Attempt) Clone() *Attempt {
	c := *a
	if a.State != nil {
		c.State = a.State.Clone()
	}
	c.Callbacks = append([]nodes.Callback(nil), a.Callbacks...)
	c.Path = append([]Step(nil), a.Path...)
	return &c
}

// Store persists attempts between suspensions.
type Store interface {
	Create(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	Update(ctx context.Context, a *Attempt) error
}

func encodeAttempt(a *Attempt) ([]byte, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, errors.Wrapf(err, "journey: encode attempt %s", a.ID)
	}
	return b, nil
}

func decodeAttempt(b []byte) (*Attempt, error) {
	a := &Attempt{State: state.New()}
	if err := json.Unmarshal(b, a); err != nil {
		return nil, errors.Wrap(err, "journey: decode attempt")
	}
	if a.State == nil {
		a.State = state.New()
	}
	return a, nil
}
