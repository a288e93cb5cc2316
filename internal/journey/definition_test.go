package journey

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/tmxauth/internal/nodes"
	"github.com/mbd888/tmxauth/internal/state"
)

func TestParse_CompilesJourney(t *testing.T) {
	client := &fakeRiskClient{}
	js := loadJourneys(t, client, loginJourney)
	require.Len(t, js, 1)

	j := js[0]
	assert.Equal(t, "login", j.Name)
	assert.Equal(t, "profile", j.Start)

	info := j.Nodes()
	require.Len(t, info, 3)
	assert.Equal(t, "profile", info[0].ID)
	assert.Equal(t, nodes.TypeProfiler, info[0].Type)
	assert.Equal(t, "query", info[1].ID)
	assert.Equal(t, []state.Key{state.OrgID, state.SessionID}, info[1].Schema.Requires)
	assert.Equal(t, "success", info[2].Outcomes["PASS"])
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	client := &fakeRiskClient{response: `{"request_id":"r"}`}
	js := loadJourneys(t, client, loginJourney)

	sq := js[0].steps["query"].node.(*nodes.SessionQueryNode)
	assert.NotNil(t, sq)

	st := state.New()
	st.SetString(state.OrgID, "org-1")
	st.SetString(state.SessionID, "sid")
	_, err := sq.Process(t.Context(), &nodes.TreeContext{State: st})
	require.NoError(t, err)
	require.Len(t, client.queries, 1)
	assert.Equal(t, "key-123", client.queries[0].APIKey.Reveal())
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_TMX_API_KEY", "k")
	path := filepath.Join(t.TempDir(), "journeys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(loginJourney), 0o600))

	js, err := LoadFile(path, NewFactory(&fakeRiskClient{}))
	require.NoError(t, err)
	assert.Len(t, js, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), NewFactory(&fakeRiskClient{}))
	assert.Error(t, err)
}

func TestLoadFile_ShippedJourneys(t *testing.T) {
	t.Setenv("TMX_ORG_ID", "org-1")
	t.Setenv("TMX_API_KEY", "k")

	js, err := LoadFile(filepath.Join("..", "..", "journeys.yaml"), NewFactory(&fakeRiskClient{}))
	require.NoError(t, err)
	require.Len(t, js, 2)
	assert.Equal(t, "login", js[0].Name)
	assert.Len(t, js[0].Nodes(), 7)
	assert.Equal(t, "profile-only", js[1].Name)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "no journeys",
			doc:     "journeys: []",
			wantErr: "invalid definitions",
		},
		{
			name: "unknown top-level field",
			doc: `
journeys: []
extra: true`,
			wantErr: "parse definitions",
		},
		{
			name: "missing start node",
			doc: `
journeys:
  - name: j
    start: nowhere
    nodes:
      review:
        type: review_status
        outcomes: {PASS: success, CHALLENGE: failure, REVIEW: failure, REJECT: failure}`,
			wantErr: `start node "nowhere" not defined`,
		},
		{
			name: "unknown node type",
			doc: `
journeys:
  - name: j
    start: a
    nodes:
      a:
        type: captcha
        outcomes: {outcome: success}`,
			wantErr: `unknown node type "captcha"`,
		},
		{
			name: "reserved node id",
			doc: `
journeys:
  - name: j
    start: success
    nodes:
      success:
        type: profiler
        config: {org_id: o, page_id: p}
        outcomes: {outcome: failure}`,
			wantErr: "is reserved",
		},
		{
			name: "unmapped outcome",
			doc: `
journeys:
  - name: j
    start: a
    nodes:
      a:
        type: profiler
        config: {org_id: o, page_id: p}
      b:
        type: review_status
        outcomes: {PASS: success, CHALLENGE: failure, REVIEW: failure}`,
			wantErr: `outcome "outcome" is not mapped`,
		},
		{
			name: "undeclared outcome",
			doc: `
journeys:
  - name: j
    start: a
    nodes:
      a:
        type: profiler
        config: {org_id: o, page_id: p}
        outcomes: {outcome: success, maybe: failure}`,
			wantErr: `has no outcome "maybe"`,
		},
		{
			name: "unknown target",
			doc: `
journeys:
  - name: j
    start: a
    nodes:
      a:
        type: profiler
        config: {org_id: o, page_id: p}
        outcomes: {outcome: missing}`,
			wantErr: `unknown node "missing"`,
		},
		{
			name: "unknown config field",
			doc: `
journeys:
  - name: j
    start: a
    nodes:
      a:
        type: profiler
        config: {org_id: o, page_id: p, orgid: typo}
        outcomes: {outcome: success}`,
			wantErr: "decode node config",
		},
		{
			name: "requirement never produced",
			doc: `
journeys:
  - name: j
    start: score
    nodes:
      score:
        type: policy_score
        config: {threshold: 50}
        outcomes: {GREATER_THAN_OR_EQUAL: success, LESS_THAN: failure}`,
			wantErr: "requires session_query_response but no node produces it",
		},
		{
			name: "duplicate journey",
			doc: `
journeys:
  - name: j
    start: a
    nodes:
      a: {type: profiler, config: {org_id: o, page_id: p}, outcomes: {outcome: success}}
  - name: j
    start: a
    nodes:
      a: {type: profiler, config: {org_id: o, page_id: p}, outcomes: {outcome: success}}`,
			wantErr: "defined twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), NewFactory(&fakeRiskClient{}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_NodeConfigurationError(t *testing.T) {
	doc := `
journeys:
  - name: j
    start: a
    nodes:
      a:
        type: profiler
        config: {page_id: p}
        outcomes: {outcome: success}`

	_, err := Parse([]byte(doc), NewFactory(&fakeRiskClient{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, nodes.ErrConfiguration), "got %v", err)
	assert.True(t, strings.Contains(err.Error(), "journey j: node a"), "got %v", err)
}

func TestParse_UnpairedTrustTagRejected(t *testing.T) {
	doc := `
journeys:
  - name: j
    start: a
    nodes:
      a:
        type: profiler
        config: {org_id: o, page_id: p}
        outcomes: {outcome: q}
      q:
        type: session_query
        config: {api_key: k}
        outcomes: {outcome: u}
      u:
        type: update_review
        config:
          api_key: k
          trust_tag_name: _FRAUD_CONF
        outcomes: {outcome: success}`

	_, err := Parse([]byte(doc), NewFactory(&fakeRiskClient{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, nodes.ErrConfiguration), "got %v", err)
}
