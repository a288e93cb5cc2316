package nodes

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/mbd888/tmxauth/internal/logging"
	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/tmx"
)

const (
	DefaultSessionQueryURI = "https://h-api.online-metrix.net/api/session-query"
	DefaultPolicy          = "default"
)

// SessionQueryConfig configures the session query node. Zero-valued service
// and event types mean session-policy and LOGIN.
type SessionQueryConfig struct {
	APIKey      tmx.Secret      `yaml:"api_key" validate:"required"`
	ServiceType tmx.ServiceType `yaml:"service_type"`
	EventType   tmx.EventType   `yaml:"event_type"`
	Policy      string          `yaml:"policy"`
	URI         string          `yaml:"uri" validate:"omitempty,url"`
	// AddSharedStateParameters forwards the tmx_session_query_parameters
	// map from shared state as extra form fields.
	AddSharedStateParameters bool `yaml:"add_shared_state_parameters"`
}

// SessionQueryNode queries the risk service for the profiled session and
// stores the response for the decision nodes.
type SessionQueryNode struct {
	cfg    SessionQueryConfig
	client RiskClient
}

// NewSessionQueryNode validates cfg and returns the node.
func NewSessionQueryNode(cfg SessionQueryConfig, client RiskClient) (*SessionQueryNode, error) {
	if cfg.Policy == "" {
		cfg.Policy = DefaultPolicy
	}
	if cfg.URI == "" {
		cfg.URI = DefaultSessionQueryURI
	}
	if err := validateConfig(TypeSessionQuery, cfg); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, &ConfigurationError{Node: TypeSessionQuery, Field: "client", Reason: "is required"}
	}
	return &SessionQueryNode{cfg: cfg, client: client}, nil
}

func (n *SessionQueryNode) Type() string { return TypeSessionQuery }

func (n *SessionQueryNode) Outcomes() []string { return []string{OutcomeNext} }

func (n *SessionQueryNode) Schema() Schema {
	s := Schema{
		Requires: []state.Key{state.OrgID, state.SessionID},
		Produces: []state.Key{state.SessionQueryResponse, state.RequestID},
	}
	if n.cfg.AddSharedStateParameters {
		s.Optional = []state.Key{state.SessionQueryParameters}
	}
	return s
}

func (n *SessionQueryNode) Process(ctx context.Context, tc *TreeContext) (Action, error) {
	orgID, err := requireString(tc.State, state.OrgID, TypeSessionQuery, TypeProfiler)
	if err != nil {
		return Action{}, err
	}
	sessionID, err := requireString(tc.State, state.SessionID, TypeSessionQuery, TypeProfiler)
	if err != nil {
		return Action{}, err
	}

	req := &tmx.QueryRequest{
		URL:         n.cfg.URI,
		OrgID:       orgID,
		APIKey:      n.cfg.APIKey,
		SessionID:   sessionID,
		ServiceType: n.cfg.ServiceType,
		EventType:   n.cfg.EventType,
		Policy:      n.cfg.Policy,
	}
	if n.cfg.AddSharedStateParameters && tc.State.Has(state.SessionQueryParameters) {
		extra, err := tc.State.StringMap(state.SessionQueryParameters)
		if err != nil {
			return Action{}, &ProcessingError{Node: TypeSessionQuery, Err: err}
		}
		req.Extra = extra
	}

	resp, err := n.client.Query(ctx, req)
	if err != nil {
		logging.L(ctx).Error("unable to get risk response for session", "session_id", sessionID, "error", err)
		return Action{}, &ProcessingError{Node: TypeSessionQuery, Err: err}
	}

	if err := tc.State.SetRaw(state.SessionQueryResponse, resp.Raw()); err != nil {
		return Action{}, &ProcessingError{Node: TypeSessionQuery, Err: err}
	}
	if requestID, ok := resp.RequestID(); ok {
		tc.State.SetString(state.RequestID, requestID)
	}
	return goTo(OutcomeNext), nil
}

// requireString reads a string that producer should have written for node.
func requireString(st *state.State, key state.Key, node, producer string) (string, error) {
	v, err := st.String(key)
	switch {
	case errors.Is(err, state.ErrNotFound):
		return "", &MissingStateError{Key: string(key), Producer: producer}
	case err != nil:
		return "", &ProcessingError{Node: node, Err: err}
	}
	return v, nil
}
