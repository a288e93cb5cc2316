package journey

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbd888/tmxauth/internal/tmx"
)

type fakeRiskClient struct {
	mu       sync.Mutex
	queries  []*tmx.QueryRequest
	updates  []*tmx.UpdateRequest
	response string
	err      error
}

func (f *fakeRiskClient) Query(_ context.Context, req *tmx.QueryRequest) (*tmx.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)
	return f.answer()
}

func (f *fakeRiskClient) Update(_ context.Context, req *tmx.UpdateRequest) (*tmx.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return f.answer()
}

func (f *fakeRiskClient) answer() (*tmx.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	body := f.response
	if body == "" {
		body = `{}`
	}
	return tmx.ParseResponse([]byte(body))
}

func (f *fakeRiskClient) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

const loginJourney = `
journeys:
  - name: login
    description: profile the device and branch on review status
    start: profile
    nodes:
      profile:
        type: profiler
        config:
          org_id: org-1
          page_id: login
        outcomes:
          outcome: query
      query:
        type: session_query
        config:
          api_key: ${TEST_TMX_API_KEY}
          add_shared_state_parameters: true
        outcomes:
          outcome: review
      review:
        type: review_status
        outcomes:
          PASS: success
          CHALLENGE: failure
          REVIEW: failure
          REJECT: failure
`

func loadJourneys(t *testing.T, client *fakeRiskClient, doc string) []*Journey {
	t.Helper()
	t.Setenv("TEST_TMX_API_KEY", "key-123")
	js, err := Parse([]byte(doc), NewFactory(client))
	require.NoError(t, err)
	return js
}
