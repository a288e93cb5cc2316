// Package tmx is a client for the ThreatMetrix session query and update
// APIs, together with the wire enums and the response accessors the
// decision nodes use.
package tmx

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/tmxauth/internal/circuitbreaker"
	"github.com/mbd888/tmxauth/internal/logging"
	"github.com/mbd888/tmxauth/internal/metrics"
	"github.com/mbd888/tmxauth/internal/traces"
)

// DefaultTimeout bounds a single call when no http.Client is supplied.
const DefaultTimeout = 10 * time.Second

const maxResponseSize = 1 << 20

// Result labels for metrics.RiskRequestsTotal.
const (
	resultOK             = "ok"
	resultHTTPError      = "http_error"
	resultTransportError = "transport_error"
	resultBadResponse    = "bad_response"
	resultCircuitOpen    = "circuit_open"
)

// Client calls the risk service. Each call sends exactly one HTTP request;
// there are no retries.
type Client struct {
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithBreaker makes calls fail fast while an endpoint's circuit is open.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query runs a session query.
func (c *Client) Query(ctx context.Context, req *QueryRequest) (*Response, error) {
	return c.post(ctx, "query", req.URL, req.Form())
}

// Update sends a review update. An unpaired trust tag is rejected before
// anything is sent.
func (c *Client) Update(ctx context.Context, req *UpdateRequest) (*Response, error) {
	form, err := req.Form()
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "update", req.URL, form)
}

func (c *Client) post(ctx context.Context, op, rawURL string, form url.Values) (resp *Response, err error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		if err == nil {
			err = errors.New("missing host")
		}
		return nil, &RemoteServiceError{Operation: op, Endpoint: rawURL, Err: errors.Wrap(err, "invalid endpoint URL")}
	}
	endpoint := (&url.URL{Scheme: target.Scheme, Host: target.Host, Path: target.Path}).String()
	q := target.Query()
	q.Set(FieldOutputFormat, "json")
	target.RawQuery = q.Encode()

	ctx, span := traces.StartSpan(ctx, "tmx."+strings.ToUpper(op[:1])+op[1:], traces.Endpoint(endpoint))
	defer func() {
		traces.RecordError(span, err)
		span.End()
	}()

	if c.breaker != nil && !c.breaker.Allow(target.Host) {
		metrics.RiskRequestsTotal.WithLabelValues(op, resultCircuitOpen).Inc()
		return nil, &RemoteServiceError{Operation: op, Endpoint: endpoint, Err: ErrCircuitOpen}
	}

	timer := prometheus.NewTimer(metrics.RiskRequestDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &RemoteServiceError{Operation: op, Endpoint: endpoint, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordFailure(target.Host)
		metrics.RiskRequestsTotal.WithLabelValues(op, resultTransportError).Inc()
		return nil, &RemoteServiceError{Operation: op, Endpoint: endpoint, Err: err}
	}
	defer httpResp.Body.Close()
	span.SetAttributes(traces.StatusCode(httpResp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		c.recordFailure(target.Host)
		metrics.RiskRequestsTotal.WithLabelValues(op, resultTransportError).Inc()
		return nil, &RemoteServiceError{Operation: op, Endpoint: endpoint, StatusCode: httpResp.StatusCode, Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		// 4xx means the service answered; only 5xx counts against the circuit.
		if httpResp.StatusCode >= 500 {
			c.recordFailure(target.Host)
		} else {
			c.recordSuccess(target.Host)
		}
		metrics.RiskRequestsTotal.WithLabelValues(op, resultHTTPError).Inc()
		logging.L(ctx).Warn("risk service returned an error status",
			"operation", op, "endpoint", endpoint, "status", httpResp.StatusCode)
		return nil, &RemoteServiceError{
			Operation:  op,
			Endpoint:   endpoint,
			StatusCode: httpResp.StatusCode,
			Body:       truncateBody(body),
		}
	}

	c.recordSuccess(target.Host)
	parsed, err := ParseResponse(body)
	if err != nil {
		metrics.RiskRequestsTotal.WithLabelValues(op, resultBadResponse).Inc()
		return nil, &RemoteServiceError{
			Operation:  op,
			Endpoint:   endpoint,
			StatusCode: httpResp.StatusCode,
			Body:       truncateBody(body),
			Err:        err,
		}
	}

	metrics.RiskRequestsTotal.WithLabelValues(op, resultOK).Inc()
	logging.L(ctx).Debug("risk service call completed", "operation", op, "endpoint", endpoint)
	return parsed, nil
}

func (c *Client) recordFailure(host string) {
	if c.breaker != nil {
		c.breaker.RecordFailure(host)
	}
}

func (c *Client) recordSuccess(host string) {
	if c.breaker != nil {
		c.breaker.RecordSuccess(host)
	}
}
