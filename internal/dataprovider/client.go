package dataprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/cargo-backoffice/internal/query"
	"github.com/noah-isme/cargo-backoffice/internal/resilience"
)

const (
	refreshPath = "/auth/refresh"
	loginPath   = "/auth/login"
	uploadPath  = "/uploads"
)

// ErrUnauthorized is returned when the session cannot be refreshed.
var ErrUnauthorized = errors.New("dataprovider: unauthorized")

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int             `json:"-"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dataprovider: status %d", e.Status)
	}
	return fmt.Sprintf("dataprovider: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// ListResult is one page of a collection.
type ListResult struct {
	Data  json.RawMessage
	Total int
}

// Decode unmarshals the page items into dst.
func (r ListResult) Decode(dst any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, dst)
}

// UploadResult locates an uploaded file.
type UploadResult struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Client talks to the back-office REST API on behalf of a session.
type Client struct {
	BaseURL string
	HTTP    resilience.HTTPClient
	Session *Session
	Logger  zerolog.Logger
}

// Options tune a client built by New.
type Options struct {
	Timeout time.Duration
	Logger  zerolog.Logger
}

// New builds a client whose transport is traced and guarded by a circuit breaker.
// Requests are sent once; the only retry is the replay after a token refresh.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(resilience.Settings{Target: "dataprovider", MinRequests: 10, Logger: &opts.Logger}),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 1,
			Jitter:      0.2,
			Timeout:     opts.Timeout,
		},
		Session: NewSession(Tokens{}),
		Logger:  opts.Logger,
	}
}

// Login exchanges credentials for a token pair and stores it in the session.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	var tokens Tokens
	if _, err := c.send(ctx, http.MethodPost, loginPath, nil, body, "application/json", "", &tokens); err != nil {
		return err
	}
	if c.Session == nil {
		c.Session = NewSession(tokens)
	} else {
		c.Session.Set(tokens)
	}
	return nil
}

// List fetches one page of resource filtered and sorted by p.
func (c *Client) List(ctx context.Context, resource string, p query.Params) (ListResult, error) {
	values, err := p.Values()
	if err != nil {
		return ListResult{}, err
	}
	var data json.RawMessage
	header, err := c.do(ctx, http.MethodGet, resourcePath(resource), values, nil, "", &data)
	if err != nil {
		return ListResult{}, err
	}
	total, _ := strconv.Atoi(header.Get("X-Total-Count"))
	return ListResult{Data: data, Total: total}, nil
}

// Get fetches one item into dst.
func (c *Client) Get(ctx context.Context, resource, id string, dst any) error {
	_, err := c.do(ctx, http.MethodGet, resourcePath(resource, id), nil, nil, "", dst)
	return err
}

// Download streams a non-JSON resource such as an xlsx report into w.
func (c *Client) Download(ctx context.Context, resource string, values url.Values, w io.Writer) error {
	_, err := c.do(ctx, http.MethodGet, resourcePath(resource), values, nil, "", w)
	return err
}

// Create posts body to the collection with a fresh Idempotency-Key.
func (c *Client) Create(ctx context.Context, resource string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, http.MethodPost, resourcePath(resource), nil, payload, "application/json", uuid.NewString(), dst)
	return err
}

// Update replaces one item.
func (c *Client) Update(ctx context.Context, resource, id string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, resourcePath(resource, id), nil, payload, "application/json", dst)
	return err
}

// Delete removes one item.
func (c *Client) Delete(ctx context.Context, resource, id string) error {
	_, err := c.do(ctx, http.MethodDelete, resourcePath(resource, id), nil, nil, "", nil)
	return err
}

// Upload sends a file to the fixed upload endpoint as multipart form data.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}
	var out UploadResult
	_, err = c.send(ctx, http.MethodPost, uploadPath, nil, buf.Bytes(), mw.FormDataContentType(), uuid.NewString(), &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, values url.Values, body []byte, contentType string, dst any) (http.Header, error) {
	return c.send(ctx, method, path, values, body, contentType, "", dst)
}

// send performs the request and, on 401, refreshes the session once and
// replays the request once.
func (c *Client) send(ctx context.Context, method, path string, values url.Values, body []byte, contentType, idemKey string, dst any) (http.Header, error) {
	for attempt := 0; ; attempt++ {
		token := c.Session.Tokens().AccessToken
		req, err := c.newRequest(ctx, method, path, values, body, contentType, idemKey, token)
		if err != nil {
			return nil, err
		}
		resp, err := c.HTTP.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("dataprovider: %s %s: %w", method, path, err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 && c.canRefresh(path) {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			if err := c.Session.refresh(ctx, token, c.refresh); err != nil {
				c.Logger.Warn().Err(err).Str("path", path).Msg("session_refresh_failed")
				return nil, err
			}
			c.Logger.Debug().Str("path", path).Msg("session_refreshed")
			continue
		}
		return resp.Header, decode(resp, dst)
	}
}

func (c *Client) canRefresh(path string) bool {
	if c.Session == nil || path == refreshPath || path == loginPath {
		return false
	}
	return c.Session.Tokens().RefreshToken != ""
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return Tokens{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, refreshPath, nil, body, "application/json", "", "")
	if err != nil {
		return Tokens{}, err
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return Tokens{}, fmt.Errorf("dataprovider: refresh: %w", err)
	}
	var tokens Tokens
	if err := decode(resp, &tokens); err != nil {
		return Tokens{}, err
	}
	if tokens.AccessToken == "" {
		return Tokens{}, ErrUnauthorized
	}
	return tokens, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, values url.Values, body []byte, contentType, idemKey, token string) (*http.Request, error) {
	target := strings.TrimRight(c.BaseURL, "/") + path
	if len(values) > 0 {
		target += "?" + values.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func resourcePath(resource string, id ...string) string {
	p := "/" + strings.Trim(resource, "/")
	for _, part := range id {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// decode reads the response envelope. Successful bodies are either wrapped in
// "data" or returned bare; failures use the "error" envelope.
func decode(resp *http.Response, dst any) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("dataprovider: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var env struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if w, ok := dst.(io.Writer); ok {
		if _, err := w.Write(raw); err != nil {
			return fmt.Errorf("dataprovider: write body: %w", err)
		}
		return nil
	}
	if dst == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err == nil {
		if data, ok := env["data"]; ok {
			raw = data
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("dataprovider: decode: %w", err)
	}
	return nil
}
