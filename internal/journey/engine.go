package journey

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mbd888/tmxauth/internal/idgen"
	"github.com/mbd888/tmxauth/internal/logging"
	"github.com/mbd888/tmxauth/internal/metrics"
	"github.com/mbd888/tmxauth/internal/nodes"
	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/syncutil"
	"github.com/mbd888/tmxauth/internal/tmx"
	"github.com/mbd888/tmxauth/internal/traces"
)

const (
	// DefaultAttemptTTL bounds how long a suspended attempt can be resumed.
	DefaultAttemptTTL = 10 * time.Minute

	defaultMaxSteps = 100
	attemptIDPrefix = idgen.AttemptPrefix
)

// Only these keys may be supplied by the caller when an attempt starts.
var seedableKeys = map[state.Key]bool{
	state.SessionQueryParameters: true,
}

// Engine runs attempts through compiled journeys, persisting them in a Store
// whenever they suspend or finish.
type Engine struct {
	store    Store
	journeys map[string]*Journey
	ttl      time.Duration
	maxSteps int
	now      func() time.Time
	locks    *syncutil.KeyLock
}

// Option configures an Engine.
type Option func(*Engine)

// WithTTL sets how long attempts stay resumable.
func WithTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// WithMaxSteps caps node invocations per request, guarding against outcome
// cycles that never suspend.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEngine creates an engine serving journeys. Journey names must be unique.
func NewEngine(store Store, journeys []*Journey, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:    store,
		journeys: make(map[string]*Journey, len(journeys)),
		ttl:      DefaultAttemptTTL,
		maxSteps: defaultMaxSteps,
		now:      time.Now,
		locks:    syncutil.NewKeyLock(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, j := range journeys {
		if _, dup := e.journeys[j.Name]; dup {
			return nil, errors.Newf("journey: %q loaded twice", j.Name)
		}
		e.journeys[j.Name] = j
	}
	metrics.JourneysLoaded.Set(float64(len(e.journeys)))
	return e, nil
}

// Journeys returns the loaded journeys sorted by name.
func (e *Engine) Journeys() []*Journey {
	out := make([]*Journey, 0, len(e.journeys))
	for _, name := range sortedKeys(e.journeys) {
		out = append(out, e.journeys[name])
	}
	return out
}

// Journey looks up a loaded journey by name.
func (e *Engine) Journey(name string) (*Journey, error) {
	j, ok := e.journeys[name]
	if !ok {
		return nil, errors.Wrapf(ErrJourneyNotFound, "%q", name)
	}
	return j, nil
}

// Get returns a stored attempt. An expired attempt that never finished
// reports ErrAttemptExpired; finished ones stay readable until purged.
func (e *Engine) Get(ctx context.Context, id string) (*Attempt, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsTerminal() && e.expired(a) {
		return nil, errors.Wrapf(ErrAttemptExpired, "%s", a.ID)
	}
	return a, nil
}

func (e *Engine) expired(a *Attempt) bool {
	return !a.ExpiresAt.IsZero() && e.now().After(a.ExpiresAt)
}

// Start creates an attempt for the named journey and runs it until it
// suspends or finishes. seed may carry caller-supplied shared state; only
// tmx_session_query_parameters is accepted. Node failures do not surface as
// errors: they finish the attempt with StatusFailure and an error kind.
func (e *Engine) Start(ctx context.Context, name string, seed *state.State) (*Attempt, error) {
	j, err := e.Journey(name)
	if err != nil {
		return nil, err
	}
	st, err := seedState(seed)
	if err != nil {
		return nil, err
	}

	now := e.now()
	a := &Attempt{
		ID:        idgen.WithPrefix(attemptIDPrefix),
		Journey:   j.Name,
		Status:    StatusInProgress,
		Current:   j.Start,
		State:     st,
		Path:      []Step{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(e.ttl),
	}

	ctx = logging.WithAttempt(ctx, j.Name, a.ID)
	ctx, span := traces.StartSpan(ctx, "journey.Start", traces.Journey(j.Name), traces.AttemptID(a.ID))
	defer span.End()

	logging.L(ctx).Info("attempt started", "start", j.Start)
	e.advance(ctx, j, a, nil)

	if err := e.store.Create(ctx, a); err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	return a, nil
}

// Continue resumes a suspended attempt with the client's callbacks.
func (e *Engine) Continue(ctx context.Context, id string, callbacks []nodes.Callback) (*Attempt, error) {
	if len(callbacks) == 0 {
		return nil, ErrNoCallbacks
	}

	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "journey: wait for attempt lock")
	}
	defer unlock()

	a, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return nil, errors.Wrapf(ErrAttemptFinished, "%s is %s", a.ID, a.Status)
	}
	if e.expired(a) {
		return nil, errors.Wrapf(ErrAttemptExpired, "%s", a.ID)
	}
	if err := matchCallbacks(a.Callbacks, callbacks); err != nil {
		return nil, err
	}
	j, err := e.Journey(a.Journey)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithAttempt(ctx, j.Name, a.ID)
	ctx, span := traces.StartSpan(ctx, "journey.Continue", traces.Journey(j.Name), traces.AttemptID(a.ID))
	defer span.End()

	e.advance(ctx, j, a, callbacks)

	if err := e.store.Update(ctx, a); err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	return a, nil
}

// advance runs nodes from a.Current until one suspends or a terminal is
// reached. callbacks go to the first node only.
func (e *Engine) advance(ctx context.Context, j *Journey, a *Attempt, callbacks []nodes.Callback) {
	for steps := 0; ; steps++ {
		if steps >= e.maxSteps {
			e.fail(ctx, a, errors.Newf("journey: %s exceeded %d node invocations without suspending", j.Name, e.maxSteps))
			return
		}
		s, ok := j.steps[a.Current]
		if !ok {
			e.fail(ctx, a, errors.Newf("journey: %s has no node %q", j.Name, a.Current))
			return
		}

		action, err := e.invoke(ctx, s, a.State, callbacks)
		callbacks = nil
		if err != nil {
			e.fail(ctx, a, err)
			return
		}

		a.UpdatedAt = e.now()
		if action.Suspended() {
			a.Callbacks = action.Callbacks
			metrics.SuspensionsTotal.WithLabelValues(j.Name).Inc()
			logging.L(ctx).Info("attempt suspended", "node", s.id, "callbacks", len(action.Callbacks))
			return
		}

		a.Callbacks = nil
		a.Path = append(a.Path, Step{Node: s.id, Type: s.node.Type(), Outcome: action.Outcome})

		next, ok := s.next[action.Outcome]
		if !ok {
			e.fail(ctx, a, errors.Newf("journey: node %s selected undeclared outcome %q", s.id, action.Outcome))
			return
		}
		switch next {
		case TerminalSuccess:
			e.finish(ctx, a, StatusSuccess)
			return
		case TerminalFailure:
			e.finish(ctx, a, StatusFailure)
			return
		}
		a.Current = next
	}
}

func (e *Engine) invoke(ctx context.Context, s *step, st *state.State, callbacks []nodes.Callback) (nodes.Action, error) {
	typ := s.node.Type()
	ctx, span := traces.StartSpan(ctx, "node."+typ, traces.Node(s.id), traces.NodeType(typ))
	defer span.End()

	action, err := s.node.Process(ctx, &nodes.TreeContext{State: st, Callbacks: callbacks})
	if err != nil {
		traces.RecordError(span, err)
		metrics.NodeErrorsTotal.WithLabelValues(typ, nodes.Kind(err)).Inc()
		return nodes.Action{}, err
	}
	if !action.Suspended() {
		span.SetAttributes(traces.Outcome(action.Outcome))
		metrics.NodeOutcomesTotal.WithLabelValues(typ, action.Outcome).Inc()
		logging.L(ctx).Debug("node completed", "node", s.id, "type", typ, "outcome", action.Outcome)
	}
	return action, nil
}

func (e *Engine) finish(ctx context.Context, a *Attempt, status Status) {
	a.Status = status
	a.Current = ""
	a.Callbacks = nil
	a.UpdatedAt = e.now()
	metrics.AttemptsTotal.WithLabelValues(a.Journey, string(status)).Inc()
	logging.L(ctx).Info("attempt finished", "status", status, "steps", len(a.Path))
}

// fail finishes the attempt as a failure. Current keeps the node that failed.
func (e *Engine) fail(ctx context.Context, a *Attempt, err error) {
	a.Status = StatusFailure
	a.Callbacks = nil
	a.ErrorKind = nodes.Kind(err)
	a.Error = err.Error()
	a.UpdatedAt = e.now()
	metrics.AttemptsTotal.WithLabelValues(a.Journey, string(StatusFailure)).Inc()
	logging.L(ctx).Error("attempt failed", "node", a.Current, "kind", a.ErrorKind, "error", err)
}

func seedState(seed *state.State) (*state.State, error) {
	if seed == nil {
		return state.New(), nil
	}
	for _, k := range seed.Keys() {
		if !seedableKeys[k] {
			return nil, errors.Wrapf(ErrSeedNotAllowed, "%s", k)
		}
	}
	if seed.Has(state.SessionQueryParameters) {
		params, err := seed.StringMap(state.SessionQueryParameters)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSeed, "%v", err)
		}
		for _, name := range sortedKeys(params) {
			if tmx.IsReservedQueryField(name) {
				return nil, errors.Wrapf(ErrInvalidSeed, "%s cannot set %q", state.SessionQueryParameters, name)
			}
		}
	}
	return seed.Clone(), nil
}

// matchCallbacks checks every returned callback answers one the attempt is
// waiting on.
func matchCallbacks(pending, returned []nodes.Callback) error {
	type ref struct {
		typ nodes.CallbackType
		id  string
	}
	want := make(map[ref]bool, len(pending))
	for _, cb := range pending {
		want[ref{cb.Type, cb.ID}] = true
	}
	for _, cb := range returned {
		if !want[ref{cb.Type, cb.ID}] {
			return errors.Wrapf(ErrUnexpectedInput, "%s %q", cb.Type, cb.ID)
		}
	}
	return nil
}
