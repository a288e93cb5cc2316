package nodes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/tmx"
)

func profiledState(orgID, sessionID string) *state.State {
	st := state.New()
	if orgID != "" {
		st.SetString(state.OrgID, orgID)
	}
	if sessionID != "" {
		st.SetString(state.SessionID, sessionID)
	}
	return st
}

func TestSessionQuery_SendsOneRequestWithStateValues(t *testing.T) {
	var hits atomic.Int32
	forms := make(chan url.Values, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		forms <- form
		_, _ = io.WriteString(w, `{"request_id":"req-9","policy_score":"40","review_status":"pass"}`)
	}))
	defer srv.Close()

	n, err := NewSessionQueryNode(SessionQueryConfig{
		APIKey:      "key",
		URI:         srv.URL + "/api/session-query",
		ServiceType: tmx.ServiceSession,
		EventType:   tmx.EventDeposit,
	}, tmx.NewClient())
	require.NoError(t, err)

	tc := &TreeContext{State: profiledState("org+1 é", "sid/with:chars")}
	action, err := n.Process(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNext, action.Outcome)
	assert.EqualValues(t, 1, hits.Load())

	form := <-forms
	assert.Equal(t, "org+1 é", form.Get("org_id"))
	assert.Equal(t, "sid/with:chars", form.Get("session_id"))
	assert.Equal(t, "session", form.Get("service_type"))
	assert.Equal(t, "DEPOSIT", form.Get("event_type"))
	assert.Equal(t, "default", form.Get("policy"))

	raw, ok := tc.State.Raw(state.SessionQueryResponse)
	require.True(t, ok)
	assert.JSONEq(t, `{"request_id":"req-9","policy_score":"40","review_status":"pass"}`, string(raw))
	requestID, _ := tc.State.String(state.RequestID)
	assert.Equal(t, "req-9", requestID)
}

func TestSessionQuery_MissingStateSendsNothing(t *testing.T) {
	tests := []struct {
		name    string
		orgID   string
		session string
		missing state.Key
	}{
		{"no org id", "", "sid", state.OrgID},
		{"no session id", "org", "", state.SessionID},
		{"neither", "", "", state.OrgID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeRiskClient{}
			n, err := NewSessionQueryNode(SessionQueryConfig{APIKey: "key"}, client)
			require.NoError(t, err)

			_, err = n.Process(context.Background(), &TreeContext{State: profiledState(tt.orgID, tt.session)})
			var missing *MissingStateError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, string(tt.missing), missing.Key)
			assert.Equal(t, TypeProfiler, missing.Producer)
			assert.True(t, errors.Is(err, ErrMissingState))
			assert.Equal(t, 0, client.calls())
		})
	}
}

func TestSessionQuery_ForwardsSharedStateParameters(t *testing.T) {
	client := &fakeRiskClient{}
	n, err := NewSessionQueryNode(SessionQueryConfig{APIKey: "key", AddSharedStateParameters: true}, client)
	require.NoError(t, err)

	st := profiledState("org", "sid")
	require.NoError(t, st.Set(state.SessionQueryParameters, map[string]string{"account_login": "alice", "input_ip_address": "10.0.0.1"}))

	_, err = n.Process(context.Background(), &TreeContext{State: st})
	require.NoError(t, err)
	require.Len(t, client.queries, 1)
	assert.Equal(t, map[string]string{"account_login": "alice", "input_ip_address": "10.0.0.1"}, client.queries[0].Extra)
	assert.Equal(t, tmx.Secret("key"), client.queries[0].APIKey)
}

func TestSessionQuery_AbsentParameterMapAddsNothing(t *testing.T) {
	client := &fakeRiskClient{}
	n, err := NewSessionQueryNode(SessionQueryConfig{APIKey: "key", AddSharedStateParameters: true}, client)
	require.NoError(t, err)

	_, err = n.Process(context.Background(), &TreeContext{State: profiledState("org", "sid")})
	require.NoError(t, err)
	assert.Empty(t, client.queries[0].Extra)
}

func TestSessionQuery_IgnoresParametersWhenDisabled(t *testing.T) {
	client := &fakeRiskClient{}
	n, err := NewSessionQueryNode(SessionQueryConfig{APIKey: "key"}, client)
	require.NoError(t, err)

	st := profiledState("org", "sid")
	require.NoError(t, st.Set(state.SessionQueryParameters, map[string]string{"account_login": "alice"}))

	_, err = n.Process(context.Background(), &TreeContext{State: st})
	require.NoError(t, err)
	assert.Empty(t, client.queries[0].Extra)
}

func TestSessionQuery_RemoteFailureIsFatal(t *testing.T) {
	remote := &tmx.RemoteServiceError{Operation: "query", Endpoint: "https://x", StatusCode: 500}
	client := &fakeRiskClient{err: remote}
	n, err := NewSessionQueryNode(SessionQueryConfig{APIKey: "key"}, client)
	require.NoError(t, err)

	tc := &TreeContext{State: profiledState("org", "sid")}
	_, err = n.Process(context.Background(), tc)

	var procErr *ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, TypeSessionQuery, procErr.Node)
	assert.True(t, errors.Is(err, tmx.ErrRemoteService))
	assert.Equal(t, KindRemoteService, Kind(err))
	assert.False(t, tc.State.Has(state.SessionQueryResponse))
}

func TestSessionQuery_NoRequestIDInResponse(t *testing.T) {
	client := &fakeRiskClient{response: `{"policy_score":"1"}`}
	n, err := NewSessionQueryNode(SessionQueryConfig{APIKey: "key"}, client)
	require.NoError(t, err)

	tc := &TreeContext{State: profiledState("org", "sid")}
	_, err = n.Process(context.Background(), tc)
	require.NoError(t, err)
	assert.True(t, tc.State.Has(state.SessionQueryResponse))
	assert.False(t, tc.State.Has(state.RequestID))
}

func TestSessionQuery_Config(t *testing.T) {
	_, err := NewSessionQueryNode(SessionQueryConfig{}, &fakeRiskClient{})
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "api_key", cfgErr.Field)

	_, err = NewSessionQueryNode(SessionQueryConfig{APIKey: "k"}, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))

	client := &fakeRiskClient{}
	n, err := NewSessionQueryNode(SessionQueryConfig{APIKey: "k"}, client)
	require.NoError(t, err)
	_, err = n.Process(context.Background(), &TreeContext{State: profiledState("o", "s")})
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionQueryURI, client.queries[0].URL)
	assert.Equal(t, tmx.ServiceSessionPolicy, client.queries[0].ServiceType)
	assert.Equal(t, tmx.EventLogin, client.queries[0].EventType)
}
