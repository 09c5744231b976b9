package wechat

import (
	"bytes"
	"context"
	"encoding/json"
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
	DefaultBaseURL = "https://api.weixin.qq.com"
	DefaultTimeout = 10 * time.Second

	vendorName = "wechat"

	// errcodes meaning the access token is no longer accepted
	errCodeInvalidCredential = 40001
	errCodeTokenExpired      = 42001
)

// Observer receives the outcome of every upstream call.
type Observer interface {
	ObserveUpstream(vendor, operation, outcome string, duration time.Duration)
}

// TokenProvider supplies an access token when none is configured.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// invalidator is implemented by providers that cache tokens, such as TokenSource.
type invalidator interface {
	Invalidate()
}

// Config configures a Client.
type Config struct {
	Env         string
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	Headers     map[string]string
}

// Client calls the WeChat Cloud HTTP API. It is safe for concurrent use.
type Client struct {
	mu  sync.RWMutex
	cfg Config

	http     *http.Client
	logger   *zap.Logger
	observer Observer
	tokens   TokenProvider
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

// WithTokenProvider makes the client fetch access tokens on demand.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) { c.tokens = p }
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
	headers := map[string]string{"Content-Type": "application/json; charset=utf-8"}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers

	c := &Client{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	return c
}

// SetAccessToken replaces the access token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.cfg.AccessToken = token
	c.mu.Unlock()
}

// SetEnv replaces the cloud environment id.
func (c *Client) SetEnv(env string) {
	c.mu.Lock()
	c.cfg.Env = env
	c.mu.Unlock()
}

// Env returns the configured cloud environment id.
func (c *Client) Env() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Env
}

func (c *Client) snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func needsAccessToken(path string) bool {
	return strings.HasPrefix(path, "/tcb/") || strings.Contains(path, "database") || strings.Contains(path, "dbfile")
}

type envelope struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (c *Client) post(ctx context.Context, op, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, op, http.MethodPost, path, nil, payload, dest)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload []byte, dest interface{}) error {
	cfg := c.snapshot()

	if query == nil {
		query = url.Values{}
	}
	provided := false
	if needsAccessToken(path) {
		token := cfg.AccessToken
		if token == "" && c.tokens != nil {
			t, err := c.tokens.Token(ctx)
			if err != nil {
				return err
			}
			token = t
			provided = true
		}
		if token != "" {
			query.Set("access_token", token)
		}
	}

	endpoint := cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}

	c.logger.Debug("wechat request", zap.String("method", method), zap.String("path", path))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(op, "network_error", start)
		c.logger.Warn("wechat request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(op, "network_error", start)
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(op, "http_error", start)
		return &HTTPError{Status: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.observe(op, "decode_error", start)
		return fmt.Errorf("decode response: %w", err)
	}
	if env.ErrCode != 0 {
		c.observe(op, "api_error", start)
		if provided && (env.ErrCode == errCodeInvalidCredential || env.ErrCode == errCodeTokenExpired) {
			if inv, ok := c.tokens.(invalidator); ok {
				c.logger.Warn("wechat access token rejected, dropping cached token", zap.Int("errcode", env.ErrCode))
				inv.Invalidate()
			}
		}
		return &APIError{ErrCode: env.ErrCode, ErrMsg: env.ErrMsg}
	}
	c.observe(op, "success", start)

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) observe(op, outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(vendorName, op, outcome, time.Since(start))
	}
}
