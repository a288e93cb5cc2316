package nodes

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/mbd888/tmxauth/internal/idgen"
	"github.com/mbd888/tmxauth/internal/logging"
	"github.com/mbd888/tmxauth/internal/state"
)

const (
	// DefaultProfilerURI is the ThreatMetrix profiling endpoint.
	DefaultProfilerURI = "https://h.online-metrix.net/fp/yshd"

	// SessionIDCallbackID names the hidden value that carries the session id.
	SessionIDCallbackID = "tmx_session_id"
)

// Client-generated session ids must look like profiler ids. Anything else is
// refused before it reaches shared state and the risk query.
var clientSessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

const profilerScript = `var script = document.createElement('script');
script.type = 'text/javascript';
script.src = '%[1]s'
document.getElementsByTagName('head')[0].appendChild(script);
var tmx_iframe = document.createElement('iframe');
tmx_iframe.src = '%[1]s'
tmx_iframe.style.width = '100px';
tmx_iframe.style.height = '100px';
tmx_iframe.style.border = '0px';
tmx_iframe.style.position = 'absolute';
tmx_iframe.style.top = '-5000px';
document.getElementsByTagName('body')[0].appendChild(tmx_iframe);
`

// ProfilerConfig configures the profiler node.
type ProfilerConfig struct {
	OrgID  string `yaml:"org_id" validate:"required"`
	PageID string `yaml:"page_id" validate:"required"`
	URI    string `yaml:"uri" validate:"omitempty,url"`
	// ClientGeneratedSessionID takes the session id from the client's
	// hidden-value answer instead of keeping the server-generated one.
	ClientGeneratedSessionID bool `yaml:"client_generated_session_id"`
}

// ProfilerNode sends the device profiling script to the client and records
// the session id and org id once the client answers.
type ProfilerNode struct {
	cfg   ProfilerConfig
	newID func() string
}

// NewProfilerNode validates cfg and returns the node.
func NewProfilerNode(cfg ProfilerConfig) (*ProfilerNode, error) {
	if cfg.URI == "" {
		cfg.URI = DefaultProfilerURI
	}
	if err := validateConfig(TypeProfiler, cfg); err != nil {
		return nil, err
	}
	return &ProfilerNode{cfg: cfg, newID: idgen.New}, nil
}

func (n *ProfilerNode) Type() string { return TypeProfiler }

func (n *ProfilerNode) Outcomes() []string { return []string{OutcomeNext} }

func (n *ProfilerNode) Schema() Schema {
	return Schema{Produces: []state.Key{state.SessionID, state.OrgID}}
}

// Process suspends on the first pass and completes on the second.
func (n *ProfilerNode) Process(ctx context.Context, tc *TreeContext) (Action, error) {
	if returned, ok := tc.HiddenValue(SessionIDCallbackID); ok {
		if n.cfg.ClientGeneratedSessionID {
			if !clientSessionIDPattern.MatchString(returned) {
				return Action{}, &MalformedCallbackError{
					CallbackID: SessionIDCallbackID,
					Reason:     "session id must be 1-128 characters of letters, digits, '-' or '_'",
				}
			}
			tc.State.SetString(state.SessionID, returned)
		}
		tc.State.SetString(state.OrgID, n.cfg.OrgID)
		return goTo(OutcomeNext), nil
	}

	sessionID := n.newID()
	tc.State.SetString(state.SessionID, sessionID)
	logging.L(ctx).Debug("issuing profiler callbacks", "session_id", sessionID)

	return suspend(
		ScriptTextOutput(n.script(sessionID)),
		HiddenValue(SessionIDCallbackID, sessionID),
	), nil
}

func (n *ProfilerNode) script(sessionID string) string {
	src := fmt.Sprintf("%s.js?org_id=%s&session_id=%s&pageid=%s",
		n.cfg.URI,
		url.QueryEscape(n.cfg.OrgID),
		url.QueryEscape(sessionID),
		url.QueryEscape(n.cfg.PageID),
	)
	return fmt.Sprintf(profilerScript, src)
}
