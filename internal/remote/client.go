// Package remote holds the HTTP adapters for the external collaborators:
// the payment gateway, the wallet service, the product catalog and the user
// directory. Every adapter shares the same shape: a timeout-bounded HTTP
// client behind a circuit breaker, with transport failures mapped to the
// domain's transient sentinel for that collaborator.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// StatusError is a non-2xx response that is not a transport failure. 4xx
// responses do not trip the breaker: the remote answered, the request was
// just wrong.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// client is the shared breaker-wrapped HTTP plumbing.
type client struct {
	http        *http.Client
	base        string
	cb          *gobreaker.CircuitBreaker[[]byte]
	unavailable error
}

func newClient(name, baseURL string, timeout time.Duration, unavailable error) *client {
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only the collaborator being unreachable counts against the
			// breaker.
			return err == nil || !errors.Is(err, unavailable)
		},
	})
	return &client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		base:        strings.TrimRight(baseURL, "/"),
		cb:          cb,
		unavailable: unavailable,
	}
}

// doJSON performs a JSON request against the collaborator and decodes the
// response into out (when non-nil). Timeouts, transport errors, 5xx
// responses and an open breaker all surface as the adapter's transient
// sentinel.
func (c *client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBody, err := c.cb.Execute(func() ([]byte, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errors.Wrapf(c.unavailable, "%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, errors.Wrapf(c.unavailable, "read response: %v", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, errors.Wrapf(c.unavailable, "%s %s: status %d", method, path, resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return errors.Wrapf(c.unavailable, "circuit open for %s", c.base)
		}
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}
