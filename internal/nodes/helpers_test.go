package nodes

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/tmx"
)

// fakeRiskClient records calls and answers with a canned response or error.
type fakeRiskClient struct {
	mu       sync.Mutex
	queries  []*tmx.QueryRequest
	updates  []*tmx.UpdateRequest
	response string
	err      error
}

func (f *fakeRiskClient) Query(_ context.Context, req *tmx.QueryRequest) (*tmx.Response, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	f.mu.Unlock()
	return f.answer()
}

func (f *fakeRiskClient) Update(_ context.Context, req *tmx.UpdateRequest) (*tmx.Response, error) {
	f.mu.Lock()
	f.updates = append(f.updates, req)
	f.mu.Unlock()
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

func (f *fakeRiskClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries) + len(f.updates)
}

// withResponse returns a tree context holding a stored session query response.
func withResponse(t *testing.T, doc string) *TreeContext {
	t.Helper()
	st := state.New()
	require.NoError(t, st.SetRaw(state.SessionQueryResponse, []byte(doc)))
	return &TreeContext{State: st}
}
