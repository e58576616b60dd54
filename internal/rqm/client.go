package rqm

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"

	"github.com/leapstack-labs/qmgov/pkg/normalize"
)

// Defaults applied when Options leaves Timeout or RetryWait zero.
// DefaultMaxRetries is what callers pass for the usual retry budget.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryWait  = 500 * time.Millisecond

	maxBodyBytes = 32 << 20
)

// Options configures a Client.
type Options struct {
	// BaseURL is the server root, e.g. https://rqm.example.com:9443.
	BaseURL  string
	Username string
	Password string

	// InsecureSkipVerify disables TLS certificate verification. It exists for
	// internal servers with self-signed certificates and must be opted into.
	InsecureSkipVerify bool

	// Timeout bounds each request attempt.
	Timeout time.Duration
	// MaxRetries bounds the retries of a failed request. Zero or negative
	// disables retries.
	MaxRetries int
	// RetryWait is the first backoff interval.
	RetryWait time.Duration

	Logger *slog.Logger

	// HTTPClient replaces the client built from Timeout and
	// InsecureSkipVerify.
	HTTPClient *http.Client
}

// Client issues authenticated requests to an RQM server. Requests are made
// one at a time by the caller; the client holds no per-request state.
type Client struct {
	baseURL    *url.URL
	username   string
	password   string
	httpClient *http.Client
	maxRetries int
	retryWait  time.Duration
	logger     *slog.Logger
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid server url: %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid server url scheme %q", u.Scheme)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	wait := opts.RetryWait
	if wait <= 0 {
		wait = DefaultRetryWait
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(timeout, opts.InsecureSkipVerify)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("TLS certificate verification disabled", "server", u.Host)
	}

	return &Client{
		baseURL:    u,
		username:   opts.Username,
		password:   opts.Password,
		httpClient: httpClient,
		maxRetries: retries,
		retryWait:  wait,
		logger:     logger,
	}, nil
}

func newHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: insecure, //nolint:gosec // explicit opt-in for self-signed servers
			},
		},
	}
}

// Server returns the base URL the client talks to.
func (c *Client) Server() string {
	return c.baseURL.String()
}

// Username returns the account used for Basic authentication.
func (c *Client) Username() string {
	return c.username
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// FetchProjectAreas lists the project areas visible to the user.
func (c *Client) FetchProjectAreas(ctx context.Context) ([]ProjectArea, error) {
	payload, err := c.fetch(ctx, request{
		op:     "fetch project areas",
		method: http.MethodGet,
		path:   servicePrefix + projectAreasService,
	})
	if err != nil {
		return nil, err
	}

	entries := normalize.EntriesOf(payload)
	areas := make([]ProjectArea, len(entries))
	for i, e := range entries {
		areas[i] = ProjectArea{Name: e.Name, ID: e.ID}
	}
	return areas, nil
}

// FetchStreams lists the configuration streams of a project area.
func (c *Client) FetchStreams(ctx context.Context, areaID string) ([]Stream, error) {
	if strings.TrimSpace(areaID) == "" {
		return nil, errors.New("fetch streams: project area id is missing")
	}
	payload, err := c.fetch(ctx, request{
		op:     "fetch streams",
		method: http.MethodGet,
		path:   servicePrefix + streamsService,
		query:  streamsQuery(areaID),
	})
	if err != nil {
		return nil, err
	}

	entries := normalize.EntriesOf(payload)
	streams := make([]Stream, len(entries))
	for i, e := range entries {
		streams[i] = Stream{Name: e.Name, OSLCID: e.ID}
	}
	return streams, nil
}

// FetchCount returns the number of artifacts of kind in a project area and
// stream. A response without a count element yields 0.
func (c *Client) FetchCount(ctx context.Context, kind ArtifactKind, areaID, streamID string) (int, error) {
	ep, err := endpointFor(kind)
	if err != nil {
		return 0, err
	}

	req := request{
		op:     "count " + kind.Plural(),
		method: ep.method,
		path:   servicePrefix + ep.service,
		accept: ep.accept,
	}
	if ep.method == http.MethodPost {
		req.form = ep.params(areaID, streamID)
	} else {
		req.query = ep.params(areaID, streamID)
	}

	payload, err := c.fetch(ctx, req)
	if err != nil {
		return 0, err
	}
	return normalize.CountOf(payload, ep.countFields...), nil
}

// FetchOSLCCount counts artifacts of kind through the OSLC QM query
// capability of a project area, reading oslc:totalCount.
func (c *Client) FetchOSLCCount(ctx context.Context, kind ArtifactKind, areaID string) (int, error) {
	resourceType, ok := oslcResourceTypes[kind]
	if !ok {
		return 0, errors.Errorf("no OSLC query resource for %s", kind.Plural())
	}
	if strings.TrimSpace(areaID) == "" {
		return 0, errors.New("oslc count: project area id is missing")
	}

	payload, err := c.fetch(ctx, request{
		op:     "oslc count " + kind.Plural(),
		method: http.MethodGet,
		path:   fmt.Sprintf(oslcQueryPath, url.PathEscape(areaID), resourceType),
		accept: "application/rdf+xml",
		header: http.Header{"OSLC-Core-Version": {"2.0"}},
	})
	if err != nil {
		return 0, err
	}
	return normalize.CountOf(payload, "totalCount"), nil
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	form   url.Values
	accept string
	header http.Header
}

// fetch performs req and decodes the body into a payload.
func (c *Client) fetch(ctx context.Context, req request) (normalize.Payload, error) {
	body, _, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	payload, err := normalize.Decode(body)
	if err != nil {
		return nil, errors.Wrap(err, req.op)
	}
	return payload, nil
}

// do performs req, retrying temporary transport failures with exponential
// backoff. Client errors (4xx) are returned at once.
func (c *Client) do(ctx context.Context, req request) ([]byte, http.Header, error) {
	var (
		body   []byte
		header http.Header
	)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), //nolint:gosec // maxRetries is never negative
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		b, h, err := c.once(ctx, req)
		if err != nil {
			var te *TransportError
			if errors.As(err, &te) && te.Temporary() && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		body, header = b, h
		return nil
	}, policy, func(err error, wait time.Duration) {
		c.logger.Debug("retrying request", "op", req.op, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, nil, err
	}
	return body, header, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryWait
	b.MaxInterval = 10 * c.retryWait
	return b
}

func (c *Client) once(ctx context.Context, req request) ([]byte, http.Header, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + req.path
	if req.query != nil {
		u.RawQuery = req.query.Encode()
	}

	var reqBody io.Reader
	if req.form != nil {
		reqBody = strings.NewReader(req.form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), reqBody)
	if err != nil {
		return nil, nil, errors.Wrap(err, req.op)
	}
	httpReq.SetBasicAuth(c.username, c.password)
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.accept != "" {
		httpReq.Header.Set("Accept", req.accept)
	}
	if req.form != nil {
		httpReq.Header.Set("Content-Type", formContentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, &TransportError{Op: req.op, URL: u.String(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, &TransportError{Op: req.op, URL: u.String(), StatusCode: 0, Err: errors.Wrap(err, "read body")}
	}

	c.logger.Debug("rqm request",
		"op", req.op,
		"method", req.method,
		"url", u.String(),
		"status", resp.StatusCode,
		"bytes", len(data),
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, &TransportError{
			Op:         req.op,
			URL:        u.String(),
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("http status %d", resp.StatusCode),
		}
	}
	return data, resp.Header, nil
}
