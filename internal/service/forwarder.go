// Package service implements request forwarding to the auth and file services.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bff-gateway/internal/client"
)

const userAgent = "bff-gateway/1.0"

// maxErrorBody caps how much of a non-200 body is read for the error detail.
const maxErrorBody = 64 << 10

// Request describes one upstream call.
type Request struct {
	Method string
	Path   string // relative to the forwarder's base URL
	Query  url.Values

	// JSON is marshaled as the request body when non-nil. Otherwise Body is
	// sent as-is with ContentType.
	JSON        any
	Body        io.Reader
	ContentType string

	Header http.Header
	// Cookies are rebuilt into a single Cookie header, in order.
	Cookies []*http.Cookie
	// Timeout overrides the forwarder's default deadline when positive.
	Timeout time.Duration
}

// Result is a normalized 200 response.
type Result struct {
	StatusCode int
	Body       json.RawMessage
	// Cookies set by the upstream. The HTTP layer re-sets them on its own
	// response.
	Cookies []*http.Cookie
}

// Decode unmarshals the result body into v.
func (r *Result) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Stream is a 200 response whose body has not been read. The caller must
// close Body.
type Stream struct {
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// Forwarder issues calls against one upstream service and normalizes the
// outcome into a Result or one of UnavailableError, UpstreamError and
// InternalError. It never retries.
type Forwarder struct {
	client     *client.UpstreamClient
	name       string
	baseURL    *url.URL
	timeout    time.Duration
	detailKeys []string
	logger     *slog.Logger
}

// NewForwarder creates a Forwarder for the upstream at baseURL. detailKeys
// are the JSON fields, in order of preference, that carry an error message in
// non-200 bodies.
func NewForwarder(c *client.UpstreamClient, name, baseURL string, timeout time.Duration, detailKeys []string, logger *slog.Logger) (*Forwarder, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse %s base_url: %w", name, err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return &Forwarder{
		client:     c,
		name:       name,
		baseURL:    u,
		timeout:    timeout,
		detailKeys: detailKeys,
		logger:     logger.With("component", name+"_forwarder"),
	}, nil
}

// Forward sends r and reads the full response. A 200 body must be JSON; an
// empty body is returned as JSON null.
func (f *Forwarder) Forward(ctx context.Context, r *Request) (*Result, error) {
	timeout := f.timeout
	if r.Timeout > 0 {
		timeout = r.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := f.send(ctx, r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, f.upstreamError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("read %s response: %w", f.name, err)}
	}
	body, err := normalizeJSON(raw)
	if err != nil {
		return nil, internalf(err, "decode %s response", f.name)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		Cookies:    upstreamCookies(resp),
	}, nil
}

// Open sends r and hands back the unread body of a 200 response. Non-200
// responses are normalized exactly like Forward.
func (f *Forwarder) Open(ctx context.Context, r *Request) (*Stream, error) {
	resp, err := f.send(ctx, r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, f.upstreamError(resp)
	}
	return &Stream{
		Header:        resp.Header,
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
	}, nil
}

func (f *Forwarder) send(ctx context.Context, r *Request) (*http.Response, error) {
	u := f.baseURL.JoinPath(r.Path)
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}

	header := make(http.Header)
	for key, vals := range r.Header {
		header[http.CanonicalHeaderKey(key)] = append([]string(nil), vals...)
	}

	body := r.Body
	if r.JSON != nil {
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, internalf(err, "encode %s request", f.name)
		}
		body = bytes.NewReader(data)
		header.Set("Content-Type", "application/json")
	} else if r.ContentType != "" {
		header.Set("Content-Type", r.ContentType)
	}
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, internalf(err, "build %s request", f.name)
	}
	req.Header = header
	req.Header.Set("User-Agent", userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if cookie := CookieHeader(r.Cookies); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	f.logger.Debug("forwarding request",
		"method", r.Method,
		"path", u.Path,
	)

	resp, err := f.client.Do(f.name, req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	return resp, nil
}

func (f *Forwarder) upstreamError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		f.logger.Warn("reading upstream error body", "err", err, "status", resp.StatusCode)
	}
	detail := extractDetail(raw, f.detailKeys)
	f.logger.Debug("upstream returned error",
		"status", resp.StatusCode,
		"detail", detail,
	)
	return &UpstreamError{StatusCode: resp.StatusCode, Detail: detail}
}

// CookieHeader joins cookies into a Cookie header value: name=value pairs
// separated by "; " in the given order. No cookies yields "".
func CookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// upstreamCookies returns the cookies set by resp with the Domain attribute
// cleared, so that they bind to the gateway's host instead of the upstream's.
func upstreamCookies(resp *http.Response) []*http.Cookie {
	set := resp.Cookies()
	if len(set) == 0 {
		return nil
	}
	out := make([]*http.Cookie, 0, len(set))
	for _, c := range set {
		cp := *c
		cp.Domain = ""
		cp.Raw = ""
		out = append(out, &cp)
	}
	return out
}

func normalizeJSON(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("response body is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}

// extractDetail returns the first non-empty value among keys in a JSON object
// body, falling back to the raw body text.
func extractDetail(raw []byte, keys []string) string {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range keys {
			switch v := obj[key].(type) {
			case nil:
			case string:
				if v != "" {
					return v
				}
			case bool:
				if v {
					return "true"
				}
			case float64:
				if v != 0 {
					return fmt.Sprint(v)
				}
			case []any:
				if len(v) > 0 {
					return compactJSON(v)
				}
			case map[string]any:
				if len(v) > 0 {
					return compactJSON(v)
				}
			}
		}
	}
	return string(raw)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
