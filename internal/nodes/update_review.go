package nodes

import (
	"context"

	"github.com/mbd888/tmxauth/internal/logging"
	"github.com/mbd888/tmxauth/internal/metrics"
	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/tmx"
)

const DefaultUpdateURI = "https://h-api.online-metrix.net/api/update"

// UpdateReviewConfig configures the update review node. The zero
// FinalReviewStatus is pass; use none to leave the field out.
type UpdateReviewConfig struct {
	APIKey            tmx.Secret            `yaml:"api_key" validate:"required"`
	FinalReviewStatus tmx.FinalReviewStatus `yaml:"final_review_status"`
	Notes             string                `yaml:"notes"`
	TrustTagName      tmx.TrustTagName      `yaml:"trust_tag_name"`
	TrustTagContext   tmx.TrustTagContext   `yaml:"trust_tag_context"`
	LineOfBusiness    string                `yaml:"line_of_business"`
	URI               string                `yaml:"uri" validate:"omitempty,url"`
}

// UpdateReviewNode reports the journey's verdict on the queried session
// back to the risk service. The call is synchronous; a failed call is
// logged and counted but never fails the attempt.
type UpdateReviewNode struct {
	cfg    UpdateReviewConfig
	client RiskClient
}

func NewUpdateReviewNode(cfg UpdateReviewConfig, client RiskClient) (*UpdateReviewNode, error) {
	if cfg.URI == "" {
		cfg.URI = DefaultUpdateURI
	}
	if err := validateConfig(TypeUpdateReview, cfg); err != nil {
		return nil, err
	}
	if err := tmx.ValidateTrustTag(cfg.TrustTagName, cfg.TrustTagContext); err != nil {
		return nil, &ConfigurationError{Node: TypeUpdateReview, Field: "trust_tag_context", Err: err}
	}
	if client == nil {
		return nil, &ConfigurationError{Node: TypeUpdateReview, Field: "client", Reason: "is required"}
	}
	return &UpdateReviewNode{cfg: cfg, client: client}, nil
}

func (n *UpdateReviewNode) Type() string { return TypeUpdateReview }

func (n *UpdateReviewNode) Outcomes() []string { return []string{OutcomeNext} }

func (n *UpdateReviewNode) Schema() Schema {
	return Schema{
		Requires: []state.Key{state.OrgID, state.RequestID},
		Produces: []state.Key{state.UpdateResponse},
	}
}

func (n *UpdateReviewNode) Process(ctx context.Context, tc *TreeContext) (Action, error) {
	orgID, err := requireString(tc.State, state.OrgID, TypeUpdateReview, TypeProfiler)
	if err != nil {
		return Action{}, err
	}
	requestID, err := requireString(tc.State, state.RequestID, TypeUpdateReview, TypeSessionQuery)
	if err != nil {
		return Action{}, err
	}

	req := &tmx.UpdateRequest{
		URL:               n.cfg.URI,
		OrgID:             orgID,
		APIKey:            n.cfg.APIKey,
		RequestID:         requestID,
		FinalReviewStatus: n.cfg.FinalReviewStatus,
		Notes:             n.cfg.Notes,
		TrustTagName:      n.cfg.TrustTagName,
		TrustTagContext:   n.cfg.TrustTagContext,
		LineOfBusiness:    n.cfg.LineOfBusiness,
	}
	// Checked again here so a node built without the constructor still
	// cannot send an unpaired tag.
	if err := req.Validate(); err != nil {
		return Action{}, &ConfigurationError{Node: TypeUpdateReview, Field: "trust_tag_context", Err: err}
	}

	resp, err := n.client.Update(ctx, req)
	if err != nil {
		metrics.UpdateReviewFailuresTotal.Inc()
		logging.L(ctx).Warn("review update failed, continuing", "request_id", requestID, "error", err)
		return goTo(OutcomeNext), nil
	}
	if err := tc.State.SetRaw(state.UpdateResponse, resp.Raw()); err != nil {
		return Action{}, &ProcessingError{Node: TypeUpdateReview, Err: err}
	}
	return goTo(OutcomeNext), nil
}
