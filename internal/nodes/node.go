// Package nodes implements the device-risk decision nodes of an
// authentication journey: the profiler, the session query, the three
// decision nodes reading the query response, and the review update.
//
// Nodes never talk to each other. Each one reads and writes the attempt's
// shared state and either suspends with callbacks for the client or selects
// exactly one of its declared outcomes.
package nodes

import (
	"context"

	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/tmx"
)

// Node types as they appear in journey definitions.
const (
	TypeProfiler     = "profiler"
	TypeSessionQuery = "session_query"
	TypePolicyScore  = "policy_score"
	TypeReasonCode   = "reason_code"
	TypeReviewStatus = "review_status"
	TypeUpdateReview = "update_review"
)

// OutcomeNext is the only outcome of single-exit nodes.
const OutcomeNext = "outcome"

// Node is one step of a journey.
type Node interface {
	// Type returns the node type name.
	Type() string
	// Process runs the node against the attempt. It returns an Action that
	// either suspends with callbacks or selects one of Outcomes().
	Process(ctx context.Context, tc *TreeContext) (Action, error)
	// Outcomes lists every outcome Process may select.
	Outcomes() []string
	// Schema documents the shared-state keys the node reads and writes.
	Schema() Schema
}

// Schema lists a node's shared-state contract.
type Schema struct {
	Requires []state.Key `json:"requires,omitempty"`
	Optional []state.Key `json:"optional,omitempty"`
	Produces []state.Key `json:"produces,omitempty"`
}

// RiskClient is the subset of tmx.Client the nodes need.
type RiskClient interface {
	Query(ctx context.Context, req *tmx.QueryRequest) (*tmx.Response, error)
	Update(ctx context.Context, req *tmx.UpdateRequest) (*tmx.Response, error)
}

// TreeContext is what a node sees of the attempt: the shared state and the
// callbacks the client sent back, if this is a resumed invocation.
type TreeContext struct {
	State     *state.State
	Callbacks []Callback
}

// Resumed reports whether the client returned callbacks.
func (tc *TreeContext) Resumed() bool {
	return len(tc.Callbacks) > 0
}

// HiddenValue returns the value of the hidden-value callback with the given id.
func (tc *TreeContext) HiddenValue(id string) (string, bool) {
	for _, cb := range tc.Callbacks {
		if cb.Type == CallbackHiddenValue && cb.ID == id {
			return cb.Value, true
		}
	}
	return "", false
}

// Action is the result of a node invocation.
type Action struct {
	Outcome   string     `json:"outcome,omitempty"`
	Callbacks []Callback `json:"callbacks,omitempty"`
}

// Suspended reports whether the node is waiting on the client.
func (a Action) Suspended() bool {
	return len(a.Callbacks) > 0
}

func goTo(outcome string) Action {
	return Action{Outcome: outcome}
}

func suspend(callbacks ...Callback) Action {
	return Action{Callbacks: callbacks}
}
