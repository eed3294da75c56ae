package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

const (
	defaultRequestTimeout = 10 * time.Second

	// headerRequestedWith marks the request as an AJAX call so the status
	// endpoint answers with JSON instead of redirecting to a login page.
	headerRequestedWith = "X-Requested-With"
	ajaxMarker          = "XMLHttpRequest"

	// HeaderSessionNoRenew asks the server not to extend the caller's session.
	// Background polling must not count as user activity.
	HeaderSessionNoRenew = "X-Session-No-Renew"
)

// connection pooling limits; a console polls a single status host
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 2
	defaultMaxConnsPerHost     = 2
	defaultIdleConnTimeout     = 60 * time.Second
)

// PeerStatus is the per-device entry of a status envelope.
type PeerStatus struct {
	Online bool `json:"is_online"`
}

// Statuses maps device IDs to their reported status.
type Statuses map[string]PeerStatus

// envelope is the JSON body returned by the status endpoint.
type envelope struct {
	OK     bool     `json:"ok"`
	Data   Statuses `json:"data"`
	ErrMsg string   `json:"err_msg"`
	Error  string   `json:"error"`
}

// Result holds the outcome of a single status fetch.
//
// Exactly one of Statuses and Err is meaningful: a nil Err means the
// request succeeded and Statuses (possibly empty) can be applied.
type Result struct {
	// Statuses holds the decoded data of a successful envelope.
	Statuses Statuses

	// StatusCode is the HTTP status code. Zero if no response was received.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Err is nil on success, otherwise a *FetchError.
	Err error
}

// Kind returns the failure kind of the result, or KindNone on success.
func (r Result) Kind() Kind {
	var fe *FetchError
	if errors.As(r.Err, &fe) {
		return fe.Kind
	}
	if r.Err != nil {
		return KindTransient
	}
	return KindNone
}

// Fetcher retrieves statuses for a set of device IDs.
//
// Implementations must honour ctx cancellation: an aborted fetch settles
// with a KindCanceled error and has no other observable effect.
type Fetcher interface {
	Fetch(ctx context.Context, ids []string) Result
}

// ClientConfig configures a status [Client].
type ClientConfig struct {
	// URL is the status endpoint. Existing query parameters are preserved.
	URL string

	// Headers are sent with every request in addition to the AJAX and
	// no-renew markers.
	Headers map[string]string

	// Cookies are attached to every request (e.g. the session cookie).
	Cookies []*http.Cookie

	// Timeout is the per-request timeout. Zero means 10 seconds.
	Timeout time.Duration
}

// Client is the HTTP [Fetcher] used against the status endpoint.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Response bodies are limited to 1MB.
type Client struct {
	httpClient *http.Client
	base       *url.URL
	headers    map[string]string
	cookies    []*http.Cookie
	timeout    time.Duration
}

// NewClient creates a status [Client].
//
// Returns an error if the URL is not an absolute http(s) URL.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid status url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("status url scheme must be http or https, got %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		base:    base,
		headers: cfg.Headers,
		cookies: cfg.Cookies,
		timeout: timeout,
	}, nil
}

// Fetch requests the statuses of ids with a single GET.
//
// Fetch always returns a Result; failures are captured in the Err field
// as a *FetchError so the controller can branch on the kind:
//   - KindCanceled: ctx was cancelled by the caller
//   - KindTransient: transport failure or timeout
//   - KindProtocol: non-2xx status, malformed JSON, or ok != true
func (c *Client) Fetch(ctx context.Context, ids []string) Result {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.requestURL(ids), nil)
	if err != nil {
		return Result{
			Latency: time.Since(start),
			Err:     &FetchError{Kind: KindProtocol, Err: fmt.Errorf("failed to create request: %w", err)},
		}
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set(headerRequestedWith, ajaxMarker)
	req.Header.Set(HeaderSessionNoRenew, "1")
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{
			Latency: time.Since(start),
			Err:     transportError(ctx, err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Err:        transportError(ctx, fmt.Errorf("failed to read response body: %w", err)),
		}
	}

	result := Result{
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Err = &FetchError{Kind: KindProtocol, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
		return result
	}

	statuses, err := decodeEnvelope(body)
	if err != nil {
		result.Err = &FetchError{Kind: KindProtocol, Err: err}
		return result
	}

	result.Statuses = statuses
	return result
}

// requestURL appends the comma-joined ids to the base URL's query.
func (c *Client) requestURL(ids []string) string {
	u := *c.base
	q := u.Query()
	q.Set("ids", strings.Join(ids, ","))
	u.RawQuery = q.Encode()
	return u.String()
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// decodeEnvelope parses a status envelope and returns its data.
func decodeEnvelope(body []byte) (Statuses, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if !env.OK {
		msg := env.ErrMsg
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = "ok is not true"
		}
		return nil, fmt.Errorf("status endpoint refused: %s", msg)
	}
	if env.Data == nil {
		return Statuses{}, nil
	}
	return env.Data, nil
}

// transportError classifies a transport failure. Cancellation of the
// caller's context wins over whatever error the transport reported.
func transportError(ctx context.Context, err error) *FetchError {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &FetchError{Kind: KindCanceled, Err: err}
	}
	return &FetchError{Kind: KindTransient, Err: err}
}
