package cloudbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cloudblog-api/pkg/middleware/requestid"
)

const (
	DefaultBaseURL = "https://api.cloudbase.cn"
	DefaultTimeout = 10 * time.Second

	headerEnvID  = "X-CloudBase-EnvId"
	headerAPIKey = "X-CloudBase-API-Key"

	vendorName = "cloudbase"
)

// Observer receives the outcome of every upstream call.
type Observer interface {
	ObserveUpstream(vendor, operation, outcome string, duration time.Duration)
}

// Config configures a Client.
type Config struct {
	EnvID       string
	APIKey      string
	SecretKey   string
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	Headers     map[string]string
}

// Response is the CloudBase response envelope.
type Response struct {
	Code      *int            `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`

	// Raw holds the undecoded body for endpoints that answer without an envelope.
	Raw json.RawMessage `json:"-"`
}

// Decode unmarshals the data section into dest.
func (r *Response) Decode(dest interface{}) error {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	return json.Unmarshal(r.Data, dest)
}

// DecodeRaw unmarshals the whole body into dest.
func (r *Response) DecodeRaw(dest interface{}) error {
	if r == nil || len(r.Raw) == 0 {
		return nil
	}
	return json.Unmarshal(r.Raw, dest)
}

type cachedToken struct {
	token     string
	expiresAt int64
}

// Client is a CloudBase HTTP API client. It is safe for concurrent use.
type Client struct {
	mu    sync.RWMutex
	cfg   Config
	cache *cachedToken

	http     *http.Client
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver reports upstream call timings.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a Client applying defaults to cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers

	c := &Client{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	return c
}

// SetAccessToken replaces the static token and drops any exchanged token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.AccessToken = token
	c.cache = nil
}

// SetEnvID replaces the environment id.
func (c *Client) SetEnvID(envID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.EnvID = envID
}

// UpdateConfig merges the non-empty fields of update into the client configuration.
func (c *Client) UpdateConfig(update Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if update.EnvID != "" {
		c.cfg.EnvID = update.EnvID
	}
	if update.APIKey != "" {
		c.cfg.APIKey = update.APIKey
	}
	if update.SecretKey != "" {
		c.cfg.SecretKey = update.SecretKey
	}
	if update.BaseURL != "" {
		c.cfg.BaseURL = strings.TrimRight(update.BaseURL, "/")
	}
	for k, v := range update.Headers {
		c.cfg.Headers[k] = v
	}
	if update.AccessToken != "" {
		c.cfg.AccessToken = update.AccessToken
		c.cache = nil
	}
}

// Config returns a copy of the current configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg := c.cfg
	cfg.Headers = make(map[string]string, len(c.cfg.Headers))
	for k, v := range c.cfg.Headers {
		cfg.Headers[k] = v
	}
	return cfg
}

// Get issues a GET request with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil, opts...)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body, opts...)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body, opts...)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, nil, body, opts...)
}

// Delete issues a DELETE request. body may be nil.
func (c *Client) Delete(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, body, opts...)
}

// Do performs a request and normalises the response envelope.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body interface{}, opts ...RequestOption) (*Response, error) {
	ro := requestOptions{}
	for _, opt := range opts {
		opt(&ro)
	}

	cfg := c.Config()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	token := ro.bearer
	if token == "" && !ro.skipAuth {
		token = c.resolveToken(ctx, cfg)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cfg.EnvID != "" {
		req.Header.Set(headerEnvID, cfg.EnvID)
	}
	if cfg.APIKey != "" && token == "" && !ro.skipAuth {
		req.Header.Set(headerAPIKey, cfg.APIKey)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}
	for k, v := range ro.headers {
		req.Header.Set(k, v)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, "network_error", start)
		c.logger.Warn("cloudbase request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(method, "network_error", start)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(method, "http_error", start)
		if resp.StatusCode == http.StatusUnauthorized {
			c.clearCache()
		}
		return nil, newHTTPError(resp.StatusCode, raw)
	}

	out := &Response{Raw: raw}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			c.observe(method, "decode_error", start)
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	if out.Code != nil && *out.Code != 0 {
		c.observe(method, "api_error", start)
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("API error: %d", *out.Code)
		}
		return nil, &APIError{Code: *out.Code, Message: msg, RequestID: out.RequestID}
	}

	c.observe(method, "success", start)
	return out, nil
}

// resolveToken returns the static token, else a cached or freshly exchanged one.
// Exchange failures are logged and yield an empty token.
func (c *Client) resolveToken(ctx context.Context, cfg Config) string {
	if cfg.AccessToken != "" {
		return cfg.AccessToken
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return ""
	}

	c.mu.RLock()
	cached := c.cache
	c.mu.RUnlock()
	if cached != nil && cached.expiresAt > c.now().UnixMilli() {
		return cached.token
	}

	token, err := c.exchange(ctx, cfg)
	if err != nil {
		c.logger.Error("failed to obtain cloudbase access token", zap.Error(err))
		return ""
	}
	return token
}

type exchangeResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	ExpiresAt   int64  `json:"expiresAt"`
}

func (c *Client) exchange(ctx context.Context, cfg Config) (string, error) {
	payload, err := json.Marshal(map[string]string{"apiKey": cfg.APIKey, "secretKey": cfg.SecretKey})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/auth/v1/getAccessToken", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observeOp("get_access_token", "network_error", start)
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observeOp("get_access_token", "network_error", start)
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observeOp("get_access_token", "http_error", start)
		return "", newHTTPError(resp.StatusCode, raw)
	}

	var env struct {
		Data exchangeResponse `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		c.observeOp("get_access_token", "decode_error", start)
		return "", fmt.Errorf("decode token response: %w", err)
	}
	c.observeOp("get_access_token", "success", start)
	if env.Data.AccessToken == "" {
		return "", errors.New("token response carried no access token")
	}

	expiresAt := env.Data.ExpiresAt
	if expiresAt == 0 {
		expiresAt = c.now().UnixMilli() + env.Data.ExpiresIn*1000
	}

	c.mu.Lock()
	c.cache = &cachedToken{token: env.Data.AccessToken, expiresAt: expiresAt}
	c.mu.Unlock()

	return env.Data.AccessToken, nil
}

func (c *Client) clearCache() {
	c.mu.Lock()
	c.cache = nil
	c.mu.Unlock()
}

func (c *Client) observe(method, outcome string, start time.Time) {
	c.observeOp(strings.ToLower(method), outcome, start)
}

func (c *Client) observeOp(op, outcome string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveUpstream(vendorName, op, outcome, c.now().Sub(start))
}
