// Package googleapi is the shared REST transport for the typed Google API
// clients: bearer auth, client-side throttling, tracing and error decoding.
package googleapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var (
	// ErrUnauthorized is matched by any 401 APIError.
	ErrUnauthorized = errors.New("google api: unauthorized")
	// ErrNotFound is matched by any 404 APIError.
	ErrNotFound = errors.New("google api: not found")
)

// APIError is a non-2xx response from a Google API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("google api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("google api: %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// parseError reads Google's {"error":{"code","message","status"}} envelope,
// falling back to the OAuth {"error","error_description"} shape.
func parseError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	res := gjson.ParseBytes(body)
	switch {
	case res.Get("error.message").Exists():
		e.Message = res.Get("error.message").String()
		e.Code = res.Get("error.status").String()
	case res.Get("error_description").Exists():
		e.Message = res.Get("error_description").String()
		e.Code = res.Get("error").String()
	default:
		e.Message = http.StatusText(status)
	}
	return e
}

// Observer is told about every completed call. status is 0 when no
// response arrived.
type Observer func(api, operation string, status int)

// Transport is shared by every client of one API; clients differ only by token.
type Transport struct {
	api      string
	http     *resty.Client
	limiter  *rate.Limiter
	observer Observer
}

type Option func(*Transport)

// WithRateLimit throttles outbound calls across all clients of the transport.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(t *Transport) { t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithObserver(o Observer) Option {
	return func(t *Transport) { t.observer = o }
}

func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.http = resty.NewWithClient(c) }
}

// NewTransport builds a transport for the named API ("gbp", "youtube").
func NewTransport(api string, opts ...Option) *Transport {
	t := &Transport{
		api:     api,
		http:    resty.New(),
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.http.SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	return t
}

// Call describes one request.
type Call struct {
	Operation string
	Method    string
	URL       string
	Query     url.Values
	Body      any
	Result    any
}

// Do executes c with token, decoding a 2xx body into c.Result and any other
// status into *APIError.
func (t *Transport) Do(ctx context.Context, token string, c Call) error {
	_, err := t.execute(ctx, token, c)
	return err
}

// Raw executes c and returns the undecoded 2xx body.
func (t *Transport) Raw(ctx context.Context, token string, c Call) ([]byte, error) {
	c.Result = nil
	resp, err := t.execute(ctx, token, c)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (t *Transport) execute(ctx context.Context, token string, c Call) (*resty.Response, error) {
	ctx, span := otel.Tracer("gmbdash/googleapi").Start(ctx, t.api+"."+c.Operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.method", c.Method))

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	req := t.http.R().SetContext(ctx).SetAuthToken(token)
	if len(c.Query) > 0 {
		req.SetQueryParamsFromValues(c.Query)
	}
	if c.Body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(c.Body)
	}
	if c.Result != nil {
		req.SetResult(c.Result)
	}

	resp, err := req.Execute(c.Method, c.URL)
	if err != nil {
		t.observe(c.Operation, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, errors.Wrapf(err, "%s %s", t.api, c.Operation)
	}
	t.observe(c.Operation, resp.StatusCode())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))

	if resp.StatusCode() >= 300 {
		apiErr := parseError(resp.StatusCode(), resp.Body())
		span.SetStatus(codes.Error, apiErr.Message)
		return nil, apiErr
	}
	return resp, nil
}

func (t *Transport) observe(op string, status int) {
	if t.observer != nil {
		t.observer(t.api, op, status)
	}
}
