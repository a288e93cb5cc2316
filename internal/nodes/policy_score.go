package nodes

import (
	"context"

	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/tmx"
)

// PolicyScoreOutcome is the outcome of the policy score node.
type PolicyScoreOutcome int

const (
	ScoreGreaterThanOrEqual PolicyScoreOutcome = iota
	ScoreLessThan
)

var policyScoreOutcomes = []string{
	ScoreGreaterThanOrEqual: "GREATER_THAN_OR_EQUAL",
	ScoreLessThan:           "LESS_THAN",
}

func (o PolicyScoreOutcome) String() string { return policyScoreOutcomes[o] }

// PolicyScoreConfig configures the policy score node.
type PolicyScoreConfig struct {
	Threshold int `yaml:"threshold"`
}

// PolicyScoreNode compares the response's policy_score to a threshold.
type PolicyScoreNode struct {
	cfg PolicyScoreConfig
}

func NewPolicyScoreNode(cfg PolicyScoreConfig) (*PolicyScoreNode, error) {
	return &PolicyScoreNode{cfg: cfg}, nil
}

func (n *PolicyScoreNode) Type() string { return TypePolicyScore }

func (n *PolicyScoreNode) Outcomes() []string {
	out := make([]string, len(policyScoreOutcomes))
	copy(out, policyScoreOutcomes)
	return out
}

func (n *PolicyScoreNode) Schema() Schema {
	return Schema{Requires: []state.Key{state.SessionQueryResponse}}
}

func (n *PolicyScoreNode) Process(_ context.Context, tc *TreeContext) (Action, error) {
	outcome, err := n.Decide(tc.State)
	if err != nil {
		return Action{}, err
	}
	return goTo(outcome.String()), nil
}

// Decide selects the outcome; a score equal to the threshold passes.
func (n *PolicyScoreNode) Decide(st *state.State) (PolicyScoreOutcome, error) {
	resp, err := sessionQueryResponse(st)
	if err != nil {
		return 0, err
	}
	score, err := resp.PolicyScore()
	if err != nil {
		return 0, &MalformedResponseError{
			Field: tmx.FieldPolicyScore,
			Value: resp.Get(tmx.FieldPolicyScore).Raw,
			Err:   err,
		}
	}
	if score >= n.cfg.Threshold {
		return ScoreGreaterThanOrEqual, nil
	}
	return ScoreLessThan, nil
}

// sessionQueryResponse loads the response stored by the session query node.
func sessionQueryResponse(st *state.State) (*tmx.Response, error) {
	raw, ok := st.Raw(state.SessionQueryResponse)
	if !ok {
		return nil, &MissingStateError{Key: string(state.SessionQueryResponse), Producer: TypeSessionQuery}
	}
	resp, err := tmx.ParseResponse(raw)
	if err != nil {
		return nil, &MalformedResponseError{Field: string(state.SessionQueryResponse), Err: err}
	}
	return resp, nil
}
