// Package transport performs the outgoing API calls and wraps them in the
// session-aware request pipeline.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/session"
)

// Call describes one outgoing request. Headers and Body are optional.
type Call struct {
	Method  string
	Headers map[string]string
	Body    []byte
	// Timeout bounds this attempt; zero means the transport default.
	Timeout time.Duration
	// Auth carries the session gate overrides.
	Auth session.Options

	// retried marks the single transparent replay after a 401, preventing
	// infinite recursion.
	retried bool
}

// Reply is the transport-level response. Status classification happens in
// the pipeline, not here.
type Reply struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Transport executes a call against the remote API.
type Transport interface {
	RoundTrip(ctx context.Context, path string, call *Call) (*Reply, error)
}

// HTTPTransport is the real Transport. Every attempt carries an abort
// signal honoring both the per-call timeout and the caller's context, and
// surfaces timeouts distinguishably from other network failures so backoff
// logic can react to them.
type HTTPTransport struct {
	baseURL        string
	client         *http.Client
	defaultTimeout time.Duration
}

func NewHTTPTransport(baseURL string, defaultTimeout time.Duration) *HTTPTransport {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &HTTPTransport{
		baseURL:        baseURL,
		client:         &http.Client{},
		defaultTimeout: defaultTimeout,
	}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, path string, call *Call) (*Reply, error) {
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := call.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(call.Body) > 0 {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if len(call.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	return &Reply{Status: resp.StatusCode, Headers: resp.Header, Body: raw}, nil
}

// classifyTransportError maps low-level failures onto the two retriable
// pre-response codes: timeout and network_unreachable.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewAPIError(0, domain.CodeTimeout, err.Error())
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewAPIError(0, domain.CodeTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		// Caller abandoned the request; propagate as-is so it is not queued.
		return err
	}
	return domain.NewAPIError(0, domain.CodeNetworkUnreachable, err.Error())
}

var _ Transport = (*HTTPTransport)(nil)
