package nodes

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/tmx"
)

// ReviewStatusOutcome is the outcome of the review status node.
type ReviewStatusOutcome int

const (
	ReviewPass ReviewStatusOutcome = iota
	ReviewChallenge
	ReviewReview
	ReviewReject
)

var reviewStatusOutcomes = []string{
	ReviewPass:      "PASS",
	ReviewChallenge: "CHALLENGE",
	ReviewReview:    "REVIEW",
	ReviewReject:    "REJECT",
}

func (o ReviewStatusOutcome) String() string { return reviewStatusOutcomes[o] }

// Exact, case-sensitive review_status values. Anything else maps to REJECT.
var reviewStatusWire = map[string]ReviewStatusOutcome{
	"pass":      ReviewPass,
	"challenge": ReviewChallenge,
	"review":    ReviewReview,
}

const reviewStatusHint = "To use the review status node, the service type must be: " +
	"3DS, All, Page-Integrity, Session or Session-Policy"

// ReviewStatusNode branches on the response's review_status.
type ReviewStatusNode struct{}

func NewReviewStatusNode() *ReviewStatusNode { return &ReviewStatusNode{} }

func (n *ReviewStatusNode) Type() string { return TypeReviewStatus }

func (n *ReviewStatusNode) Outcomes() []string {
	out := make([]string, len(reviewStatusOutcomes))
	copy(out, reviewStatusOutcomes)
	return out
}

func (n *ReviewStatusNode) Schema() Schema {
	return Schema{Requires: []state.Key{state.SessionQueryResponse}}
}

func (n *ReviewStatusNode) Process(_ context.Context, tc *TreeContext) (Action, error) {
	outcome, err := n.Decide(tc.State)
	if err != nil {
		return Action{}, err
	}
	return goTo(outcome.String()), nil
}

func (n *ReviewStatusNode) Decide(st *state.State) (ReviewStatusOutcome, error) {
	resp, err := sessionQueryResponse(st)
	if err != nil {
		return 0, err
	}
	status, err := resp.ReviewStatus()
	switch {
	case errors.Is(err, tmx.ErrFieldMissing):
		return 0, &MissingStateError{
			Key:      string(state.SessionQueryResponse) + "." + tmx.FieldReviewStatus,
			Producer: TypeSessionQuery,
			Hint:     reviewStatusHint,
		}
	case err != nil:
		return 0, &MalformedResponseError{
			Field: tmx.FieldReviewStatus,
			Value: resp.Get(tmx.FieldReviewStatus).Raw,
			Err:   err,
		}
	}

	if outcome, ok := reviewStatusWire[status]; ok {
		return outcome, nil
	}
	return ReviewReject, nil
}
