package tmx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/tmxauth/internal/circuitbreaker"
)

type capturedRequest struct {
	method      string
	contentType string
	query       url.Values
	form        url.Values
}

func newRiskServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32, chan capturedRequest) {
	t.Helper()
	var hits atomic.Int32
	captured := make(chan capturedRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		captured <- capturedRequest{
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			query:       r.URL.Query(),
			form:        form,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, captured
}

func TestClient_QuerySendsForm(t *testing.T) {
	srv, hits, captured := newRiskServer(t, http.StatusOK, `{"request_id":"req-1","policy_score":"75"}`)
	c := NewClient()

	resp, err := c.Query(context.Background(), &QueryRequest{
		URL:         srv.URL + "/api/session-query",
		OrgID:       "org-1",
		APIKey:      "key-1",
		SessionID:   "sid-1",
		ServiceType: ServiceAll,
		EventType:   EventPayment,
		Policy:      "default",
		Extra:       map[string]string{"account_login": "alice"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())

	got := <-captured
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/x-www-form-urlencoded", got.contentType)
	assert.Equal(t, "json", got.query.Get("output_format"))
	assert.Equal(t, "org-1", got.form.Get("org_id"))
	assert.Equal(t, "key-1", got.form.Get("api_key"))
	assert.Equal(t, "sid-1", got.form.Get("session_id"))
	assert.Equal(t, "All", got.form.Get("service_type"))
	assert.Equal(t, "PAYMENT", got.form.Get("event_type"))
	assert.Equal(t, "default", got.form.Get("policy"))
	assert.Equal(t, "alice", got.form.Get("account_login"))

	id, ok := resp.RequestID()
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestClient_KeepsExistingQueryParameters(t *testing.T) {
	srv, _, captured := newRiskServer(t, http.StatusOK, `{}`)

	_, err := NewClient().Query(context.Background(), &QueryRequest{URL: srv.URL + "/q?tenant=eu"})
	require.NoError(t, err)

	got := <-captured
	assert.Equal(t, "eu", got.query.Get("tenant"))
	assert.Equal(t, "json", got.query.Get("output_format"))
}

func TestClient_Non2xxIsRemoteServiceError(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, hits, _ := newRiskServer(t, status, `{"error_detail":"bad api key"}`)

			_, err := NewClient().Query(context.Background(), &QueryRequest{URL: srv.URL})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRemoteService))

			var rse *RemoteServiceError
			require.True(t, errors.As(err, &rse))
			assert.Equal(t, status, rse.StatusCode)
			assert.Equal(t, "query", rse.Operation)
			assert.Contains(t, rse.Body, "bad api key")
			assert.EqualValues(t, 1, hits.Load(), "no retries")
		})
	}
}

func TestClient_LongErrorBodyTruncatedOnRuneBoundary(t *testing.T) {
	// The leading byte puts the cut inside a multi-byte rune.
	body := "x" + strings.Repeat("é€", maxBodyDiagnostic)
	srv, _, _ := newRiskServer(t, http.StatusBadGateway, body)

	_, err := NewClient().Query(context.Background(), &QueryRequest{URL: srv.URL})
	var rse *RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.True(t, utf8.ValidString(rse.Body), "truncated body is not valid UTF-8")
	assert.True(t, strings.HasSuffix(rse.Body, "..."))
	assert.LessOrEqual(t, len(rse.Body), maxBodyDiagnostic+len("..."))
	assert.True(t, strings.HasPrefix(body, strings.TrimSuffix(rse.Body, "...")))
}

func TestClient_BadBodyIsRemoteServiceError(t *testing.T) {
	for name, body := range map[string]string{
		"not json": "<html>oops</html>",
		"array":    `["a"]`,
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			srv, _, _ := newRiskServer(t, http.StatusOK, body)

			_, err := NewClient().Query(context.Background(), &QueryRequest{URL: srv.URL})
			var rse *RemoteServiceError
			require.True(t, errors.As(err, &rse))
			assert.Equal(t, http.StatusOK, rse.StatusCode)
			assert.Error(t, rse.Err)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient().Query(context.Background(), &QueryRequest{URL: srv.URL})
	var rse *RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, 0, rse.StatusCode)
	assert.Error(t, rse.Err)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(WithTimeout(50*time.Millisecond)).Query(context.Background(), &QueryRequest{URL: srv.URL})
	assert.True(t, errors.Is(err, ErrRemoteService))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_InvalidURL(t *testing.T) {
	_, err := NewClient().Query(context.Background(), &QueryRequest{URL: "not a url"})
	assert.True(t, errors.Is(err, ErrRemoteService))
}

func TestClient_APIKeyNotInError(t *testing.T) {
	srv, _, _ := newRiskServer(t, http.StatusForbidden, `denied`)

	_, err := NewClient().Query(context.Background(), &QueryRequest{URL: srv.URL, APIKey: "super-secret"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret")
}

func TestClient_BreakerFailsFast(t *testing.T) {
	srv, hits, _ := newRiskServer(t, http.StatusBadGateway, `down`)
	c := NewClient(WithBreaker(circuitbreaker.New(1, time.Hour)))

	_, err := c.Query(context.Background(), &QueryRequest{URL: srv.URL})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCircuitOpen))

	_, err = c.Query(context.Background(), &QueryRequest{URL: srv.URL})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.True(t, errors.Is(err, ErrRemoteService))
	assert.EqualValues(t, 1, hits.Load(), "open circuit sends nothing")
}

func TestClient_UpdateWithGock(t *testing.T) {
	defer gock.Off()

	gock.New("https://h-api.online-metrix.net").
		Post("/api/update").
		MatchParam("output_format", "json").
		MatchType("url").
		Reply(200).
		JSON(map[string]string{"request_result": "success"})

	resp, err := NewClient().Update(context.Background(), &UpdateRequest{
		URL:               "https://h-api.online-metrix.net/api/update",
		OrgID:             "org-1",
		APIKey:            "key-1",
		RequestID:         "req-1",
		FinalReviewStatus: FinalReviewReject,
		TrustTagName:      TagFraudPayment,
		TrustTagContext:   ContextPaymentCard,
	})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Get("request_result").String())
	assert.True(t, gock.IsDone())
}

func TestClient_UpdateRejectsUnpairedTag(t *testing.T) {
	defer gock.Off()
	gock.New("https://h-api.online-metrix.net").Post("/api/update").Reply(200).JSON(map[string]string{})

	_, err := NewClient().Update(context.Background(), &UpdateRequest{
		URL:          "https://h-api.online-metrix.net/api/update",
		TrustTagName: TagTrusted,
	})
	assert.True(t, errors.Is(err, ErrUnpairedTrustTag))
	assert.False(t, gock.IsDone(), "no request may be sent")
}
