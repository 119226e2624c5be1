package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPClient sends one attempt per request under a deadline and a breaker.
// Responses with status 5xx count as failures for the breaker and are
// returned as errors.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
	Target  string
}

// NewOutbound builds the traced client used for a named dependency
// (paypal, payfast, acymailing).
func NewOutbound(target string, timeout time.Duration, logger zerolog.Logger) HTTPClient {
	logger = logger.With().Str("target", target).Logger()
	return HTTPClient{
		Client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker: NewBreaker(5, 0.5, 30*time.Second).WithTarget(target).WithLogger(logger),
		Timeout: timeout,
		Target:  target,
	}
}

// Do performs req once.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
		return nil, fmt.Errorf("%s: %w", cl.name(), ErrOpenCircuit)
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if cl.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cl.Timeout)
	}
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err == nil && resp.StatusCode >= http.StatusInternalServerError {
		_ = resp.Body.Close()
		err = fmt.Errorf("%s: upstream status %s", cl.name(), resp.Status)
	}
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, err == nil)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	// The deadline covers reading the body, so it is released on Close.
	resp.Body = &releaseOnClose{ReadCloser: resp.Body, release: cancel}
	return resp, nil
}

// StdClient adapts the wrapper for SDKs that take an *http.Client.
func (cl HTTPClient) StdClient() *http.Client {
	return &http.Client{Transport: roundTripper(func(req *http.Request) (*http.Response, error) {
		return cl.Do(req.Context(), req)
	})}
}

func (cl HTTPClient) name() string {
	if cl.Target == "" {
		return "outbound"
	}
	return cl.Target
}

type roundTripper func(*http.Request) (*http.Response, error)

func (f roundTripper) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

type releaseOnClose struct {
	io.ReadCloser
	release context.CancelFunc
}

func (r *releaseOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.release()
	return err
}
