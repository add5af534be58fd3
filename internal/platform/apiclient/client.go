// Package apiclient wraps outbound calls to the marketplace REST backend. It
// injects the bearer token, encodes JSON bodies and decodes every response
// into the {success, data, message} envelope. Each call is a single attempt:
// there is no retry, no client-side timeout and no circuit breaking, so
// cancellation is controlled entirely by the caller's context.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenSource supplies the bearer token attached to each request. An empty
// token is valid and means the request goes out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Observer is notified after every call. route has identifier segments
// replaced with ":id".
type Observer interface {
	ObserveCall(method, route string, status int, elapsed time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger used for request traces.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithObserver registers a call observer (metrics).
func WithObserver(o Observer) Option {
	return func(cl *Client) { cl.observer = o }
}

// Client talks to the backend on behalf of one signed-in operator.
type Client struct {
	baseURL  string
	tokens   TokenSource
	http     *http.Client
	logger   zerolog.Logger
	observer Observer
}

// New creates a Client rooted at baseURL. tokens may be nil.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET with the given query parameters.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Envelope, error) {
	return c.do(ctx, http.MethodGet, path, params, nil, "")
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPost, path, body)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPut, path, body)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPatch, path, body)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (*Envelope, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil, "")
}

// Upload posts a multipart form with a single file part named field plus any
// extra text fields.
func (c *Client) Upload(ctx context.Context, path, field, filename string, r io.Reader, extra map[string]string) (*Envelope, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range extra {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("apiclient: write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, fmt.Errorf("apiclient: create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("apiclient: copy upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("apiclient: close multipart: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, buf, w.FormDataContentType())
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (*Envelope, error) {
	var rdr io.Reader
	contentType := ""
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("apiclient: encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, nil, rdr, contentType)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body io.Reader, contentType string) (*Envelope, error) {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) != 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method != http.MethodGet && method != http.MethodDelete {
		req.Header.Set("X-Idempotency-Key", uuid.New().String())
	}
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(method, path, 0, elapsed)
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Dur("latency", elapsed).Msg("backend call failed")
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	c.observe(method, path, res.StatusCode, elapsed)
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("latency", elapsed).
		Msg("backend call")

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: read %s %s: %w", method, path, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &Error{
			StatusCode: res.StatusCode,
			Method:     method,
			Path:       path,
			Message:    backendMessage(raw),
		}
	}
	return decodeEnvelope(raw), nil
}

// token resolves the bearer for this call. A token placed on the context
// wins over the client's TokenSource. Failures to read the source are logged
// and the call proceeds unauthenticated.
func (c *Client) token(ctx context.Context) string {
	if t, ok := TokenFromContext(ctx); ok {
		return t
	}
	if c.tokens == nil {
		return ""
	}
	t, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("token unavailable, sending request unauthenticated")
		return ""
	}
	return t
}

func (c *Client) observe(method, path string, status int, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveCall(method, RouteLabel(path), status, elapsed)
}

var idSegment = regexp.MustCompile(`^([0-9]+|[0-9a-fA-F]{24}|[0-9a-fA-F-]{36})$`)

// RouteLabel collapses identifier path segments so that
// "/pharmacy/orders/65f1c0e4a1b2c3d4e5f60718/status" becomes
// "/pharmacy/orders/:id/status".
func RouteLabel(path string) string {
	parts := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

type ctxTokenKey struct{}

// WithToken returns a context carrying a bearer token that overrides the
// client's TokenSource for calls made with it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxTokenKey{}, token)
}

// TokenFromContext returns the token stored by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(ctxTokenKey{}).(string)
	return t, ok && t != ""
}
