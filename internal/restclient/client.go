// Package restclient is the HTTP/JSON transport shared by the backend clients.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront/internal/util"
)

const (
	defaultTimeout  = 15 * time.Second
	maxErrorBody    = 64 << 10
	maxDownloadSize = 10 << 20
)

// TokenSource supplies the bearer token for outgoing requests.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// RequestHook runs before a request is sent.
type RequestHook func(*http.Request)

// ResponseHook runs after every round trip. resp is nil when err is a network failure.
type ResponseHook func(req *http.Request, resp *http.Response, err error)

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Tokens    TokenSource
	Transport http.RoundTripper
	// Name tags spans and log records; defaults to "backend".
	Name string
}

// Client issues requests against the backend base URL.
type Client struct {
	baseURL    string
	name       string
	httpClient *http.Client
	tokens     TokenSource

	mu         sync.RWMutex
	onRequest  []RequestHook
	onResponse []ResponseHook
}

// New constructs a Client. A non-positive timeout uses 15s.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "backend"
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		name:    name,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(base, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return name + " " + r.Method + " " + r.URL.Path
			})),
		},
		tokens: cfg.Tokens,
	}
}

// OnRequest registers a hook that can inspect or decorate every request.
func (c *Client) OnRequest(h RequestHook) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.onRequest = append(c.onRequest, h)
	c.mu.Unlock()
}

// OnResponse registers a hook that observes every response.
func (c *Client) OnResponse(h ResponseHook) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.onResponse = append(c.onResponse, h)
	c.mu.Unlock()
}

type bearerContextKey struct{}

// WithBearer overrides the TokenSource for calls made with ctx.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerContextKey{}, token)
}

func (c *Client) bearer(ctx context.Context) string {
	if token, ok := ctx.Value(bearerContextKey{}).(string); ok {
		return strings.TrimSpace(token)
	}
	if c.tokens == nil {
		return ""
	}
	return strings.TrimSpace(c.tokens.Token())
}

// DoJSON sends payload as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// File is a multipart file part.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// DoMultipart posts form fields and an optional file as multipart/form-data.
func (c *Client) DoMultipart(ctx context.Context, method, path string, fields map[string]string, file *File, out any) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Name))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return fmt.Errorf("write file part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, out)
}

// Blob is a downloaded binary body.
type Blob struct {
	Data        []byte
	ContentType string
}

// Download fetches a binary resource.
func (c *Client) Download(ctx context.Context, path string) (Blob, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Blob{}, err
	}
	resp, err := c.send(req)
	if err != nil {
		return Blob{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Blob{}, decodeAPIError(resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if len(data) > maxDownloadSize {
		return Blob{}, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformed, maxDownloadSize)
	}
	return Blob{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	requestID := util.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = util.NewID()
	}
	req.Header.Set(util.RequestIDHeader, requestID)
	if token := c.bearer(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	reqHooks := append([]RequestHook(nil), c.onRequest...)
	respHooks := append([]ResponseHook(nil), c.onResponse...)
	c.mu.RUnlock()
	for _, h := range reqHooks {
		h(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	logger := util.LoggerFromContext(req.Context())
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrNetwork, err)
		logger.Warn("backend_request", "client", c.name, "method", req.Method, "path", req.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(), "err", err)
		for _, h := range respHooks {
			h(req, nil, err)
		}
		return nil, err
	}
	logger.Debug("backend_request", "client", c.name, "method", req.Method, "path", req.URL.Path,
		"status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	for _, h := range respHooks {
		h(req, resp, nil)
	}
	return resp, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrMalformed)
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&errResp)
	msg := strings.TrimSpace(errResp.Message)
	if msg == "" {
		msg = strings.TrimSpace(errResp.Error)
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
}

// LogAuthRejections returns a ResponseHook that logs 401 responses.
func LogAuthRejections(logger *slog.Logger, domain string) ResponseHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(req *http.Request, resp *http.Response, _ error) {
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			return
		}
		logger.Warn("session_event", "domain", domain, "event", "backend.unauthorized", "outcome", "fail", "path", req.URL.Path)
	}
}
