// Package upstream relays finch envelopes to a GraphQL HTTP endpoint.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/graphql"
	"github.com/Darkness4/finch/utils/useragent"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var _ finch.Handler = (*Client)(nil)

// HTTPError represents an HTTP error.
type HTTPError struct {
	Status int
	Body   string
	Method string
	URL    string
}

// Error returns the error message.
func (e HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %s %s, code=%d, body=%s", e.Method, e.URL, e.Status, e.Body)
}

// ClientOptions is the options for the upstream client.
type ClientOptions struct {
	headers map[string]string
	timeout time.Duration
}

// ClientOption is a function that configures the upstream client.
type ClientOption func(*ClientOptions)

// WithHeaders sets headers added to every request, e.g. Authorization.
func WithHeaders(headers map[string]string) ClientOption {
	return func(opts *ClientOptions) {
		opts.headers = headers
	}
}

// WithTimeout sets the timeout of the HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.timeout = d
	}
}

// Client forwards envelopes to a GraphQL endpoint.
type Client struct {
	*http.Client
	url     string
	headers map[string]string
}

// NewClient creates a client for the GraphQL endpoint at url.
func NewClient(url string, opt ...ClientOption) *Client {
	if url == "" {
		log.Panic().Msg("no upstream url provided")
	}
	opts := &ClientOptions{}
	for _, o := range opt {
		o(opts)
	}
	if opts.timeout == 0 {
		opts.timeout = time.Minute
	}
	return &Client{
		Client: &http.Client{
			Timeout:   opts.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		url:     url,
		headers: opts.headers,
	}
}

// HandleMessage posts the document and variables to the endpoint.
//
// GraphQL errors are returned inside the response, not as an error.
func (c *Client) HandleMessage(
	ctx context.Context,
	env finch.Envelope,
) (*graphql.Response, error) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(graphql.NewQuery(env.Query, env.Variables)); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, buf)
	if err != nil {
		log.Err(err).Msg("failed to create request")
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql-response+json, application/json")
	req.Header.Set("User-Agent", useragent.Get())
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	log := log.With().
		Str("method", req.Method).
		Str("url", c.url).
		Str("operation", env.Query.OperationName()).
		Logger()

	res, err := c.Do(req)
	if err != nil {
		log.Err(err).Msg("failed to query upstream")
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		log.Err(err).Msg("failed to read body")
		return nil, err
	}

	var parsed graphql.Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		if res.StatusCode != http.StatusOK {
			log.Error().
				Str("response", string(body)).
				Int("status", res.StatusCode).
				Msg("unexpected status code")
			return nil, HTTPError{
				Status: res.StatusCode,
				Body:   string(body),
				Method: req.Method,
				URL:    req.URL.String(),
			}
		}
		log.Err(err).
			Str("raw_message", string(body)).
			Msg("failed to decode JSON")
		return nil, fmt.Errorf("failed to decode graphql response: %w", err)
	}

	// A GraphQL server may answer errors with a non-200 status and a well formed body.
	if res.StatusCode != http.StatusOK && len(parsed.Errors) == 0 {
		log.Error().
			Str("response", string(body)).
			Int("status", res.StatusCode).
			Msg("unexpected status code")
		return nil, HTTPError{
			Status: res.StatusCode,
			Body:   string(body),
			Method: req.Method,
			URL:    req.URL.String(),
		}
	}
	return &parsed, nil
}
