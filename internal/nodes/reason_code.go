package nodes

import (
	"context"
	"fmt"
	"slices"

	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/tmx"
)

// ReasonCodeOutcome is either a configured reason code or NoneTriggered.
type ReasonCodeOutcome string

// NoneTriggered is selected when no configured reason code was returned.
const NoneTriggered ReasonCodeOutcome = "None Triggered"

// ReasonCodeConfig lists the reason codes to branch on, highest priority
// first.
type ReasonCodeConfig struct {
	Outcomes []string `yaml:"outcomes" validate:"dive,required"`
}

// ReasonCodeNode selects the first configured reason code present in the
// response.
type ReasonCodeNode struct {
	candidates []string
}

func NewReasonCodeNode(cfg ReasonCodeConfig) (*ReasonCodeNode, error) {
	if err := validateConfig(TypeReasonCode, cfg); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(cfg.Outcomes))
	for _, code := range cfg.Outcomes {
		if code == string(NoneTriggered) {
			return nil, &ConfigurationError{Node: TypeReasonCode, Field: "outcomes", Reason: fmt.Sprintf("%q is reserved", code)}
		}
		if seen[code] {
			return nil, &ConfigurationError{Node: TypeReasonCode, Field: "outcomes", Reason: fmt.Sprintf("%q listed twice", code)}
		}
		seen[code] = true
	}
	return &ReasonCodeNode{candidates: slices.Clone(cfg.Outcomes)}, nil
}

func (n *ReasonCodeNode) Type() string { return TypeReasonCode }

func (n *ReasonCodeNode) Outcomes() []string {
	return append(slices.Clone(n.candidates), string(NoneTriggered))
}

func (n *ReasonCodeNode) Schema() Schema {
	return Schema{Requires: []state.Key{state.SessionQueryResponse}}
}

func (n *ReasonCodeNode) Process(_ context.Context, tc *TreeContext) (Action, error) {
	outcome, err := n.Decide(tc.State)
	if err != nil {
		return Action{}, err
	}
	return goTo(string(outcome)), nil
}

// Decide walks the candidates in configured order, so the priority is the
// operator's and not the order the service listed the codes in.
func (n *ReasonCodeNode) Decide(st *state.State) (ReasonCodeOutcome, error) {
	resp, err := sessionQueryResponse(st)
	if err != nil {
		return "", err
	}
	returned, present, err := resp.ReasonCodes()
	if err != nil {
		return "", &MalformedResponseError{
			Field: tmx.FieldReasonCode,
			Value: resp.Get(tmx.FieldReasonCode).Raw,
			Err:   err,
		}
	}
	if !present {
		return NoneTriggered, nil
	}
	for _, candidate := range n.candidates {
		if slices.Contains(returned, candidate) {
			return ReasonCodeOutcome(candidate), nil
		}
	}
	return NoneTriggered, nil
}
