package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/cloudblog-api/internal/models"
	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
)

// AuthGateway signs devices in and refreshes their tokens.
type AuthGateway interface {
	AnonymousSignIn(ctx context.Context, deviceID string) (*models.SignInResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.SignInResponse, error)
}

// GatewayFactory builds an AuthGateway bound to an environment id.
type GatewayFactory func(envID string) AuthGateway

// DeviceIDProvider supplies the device id sent with anonymous sign-in.
type DeviceIDProvider interface {
	DeviceID(ctx context.Context) string
}

// SessionConfig tunes SessionService.
type SessionConfig struct {
	EnvID            string
	RefreshThreshold time.Duration
	AutoAnonymous    bool
	// UpstreamTimeout bounds a sign-in or refresh, which outlives the request that started it.
	UpstreamTimeout time.Duration
}

var (
	errNoRefreshToken = appErrors.Clone(appErrors.ErrUnauthorized, "no token to refresh")
	// errInterrupted reports an upstream call that timed out; the session is left as it was.
	errInterrupted = appErrors.New("SESSION_INTERRUPTED", appErrors.ErrNetwork.Status, "session request did not complete, try again")
)

// SessionService holds the CloudBase session token, persists it and keeps it fresh.
// It is safe for concurrent use; overlapping refreshes collapse into one upstream call.
type SessionService struct {
	store      KeyValueStore
	devices    DeviceIDProvider
	newGateway GatewayFactory
	metrics    *MetricsService
	logger     *zap.Logger
	threshold  time.Duration
	timeout    time.Duration
	autoAnon   bool
	now        func() time.Time

	mu      sync.RWMutex
	envID   string
	gateway AuthGateway
	token   *models.CachedToken
	loading bool

	flights singleflight.Group
}

// NewSessionService builds the store and removes any persisted environment id.
func NewSessionService(ctx context.Context, store KeyValueStore, devices DeviceIDProvider, factory GatewayFactory, cfg SessionConfig, metrics *MetricsService, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = 5 * time.Minute
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	s := &SessionService{
		store:      store,
		devices:    devices,
		newGateway: factory,
		metrics:    metrics,
		logger:     logger,
		threshold:  cfg.RefreshThreshold,
		timeout:    cfg.UpstreamTimeout,
		autoAnon:   cfg.AutoAnonymous,
		now:        time.Now,
	}
	if err := store.RemoveItem(ctx, models.LegacyEnvIDKey); err != nil {
		logger.Debug("failed to remove legacy env id", zap.Error(err))
	}
	s.SetEnvID(cfg.EnvID)
	if cfg.EnvID == "" {
		logger.Warn("environment id is not set; sign-in is disabled until it is")
	}
	return s
}

// SetEnvID switches the environment at runtime. The id is never persisted.
func (s *SessionService) SetEnvID(envID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envID = envID
	s.gateway = nil
	if envID != "" && s.newGateway != nil {
		s.gateway = s.newGateway(envID)
	}
}

// EnvID returns the current environment id.
func (s *SessionService) EnvID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.envID
}

// State returns a snapshot of the session.
func (s *SessionService) State() models.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := models.AuthState{IsLoading: s.loading}
	if s.token != nil {
		tok := *s.token
		tok.Groups = append([]string(nil), s.token.Groups...)
		st.Token = &tok
		st.IsAuthenticated = true
		st.User = &models.SessionUser{Sub: tok.Sub, Groups: tok.Groups}
	}
	return st
}

// AccessToken returns the current access token, or "" when signed out.
func (s *SessionService) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return ""
	}
	return s.token.AccessToken
}

// IsTokenExpired reports whether there is no token or it expires within the refresh threshold.
func (s *SessionService) IsTokenExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiredLocked()
}

func (s *SessionService) expiredLocked() bool {
	if s.token == nil {
		return true
	}
	return s.token.ExpiresAt < s.now().Add(s.threshold).UnixMilli()
}

// AnonymousSignIn signs the device in and persists the token.
func (s *SessionService) AnonymousSignIn(ctx context.Context) (models.AuthState, error) {
	err := s.flight(ctx, "signin", s.signIn)
	return s.State(), err
}

// flight runs fn once per key for all concurrent callers. fn gets a context detached
// from the caller and bounded by the upstream timeout; a caller that gives up returns
// its own context error while the flight carries on for the others.
func (s *SessionService) flight(ctx context.Context, key string, fn func(context.Context) error) error {
	ch := s.flights.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return nil, fn(fctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *SessionService) signIn(ctx context.Context) error {
	s.mu.Lock()
	gateway := s.gateway
	if s.envID == "" || gateway == nil {
		s.mu.Unlock()
		return appErrors.ErrNotConfigured
	}
	s.loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	resp, err := gateway.AnonymousSignIn(ctx, s.devices.DeviceID(ctx))
	if err != nil {
		if interrupted(ctx, err) {
			s.logger.Warn("anonymous sign-in interrupted", zap.Error(err))
			return appErrors.Wrap(err, errInterrupted.Code, errInterrupted.Status, errInterrupted.Message)
		}
		s.logger.Error("anonymous sign-in failed", zap.Error(err))
		s.clearState()
		return err
	}

	tok := models.NewCachedToken(*resp, s.now())
	s.setToken(ctx, tok)
	s.logger.Info("anonymous sign-in succeeded", zap.String("sub", tok.Sub), zap.Time("expires_at", tok.Expiry()))
	return nil
}

// RefreshToken exchanges the refresh token. A failed refresh logs the session out.
func (s *SessionService) RefreshToken(ctx context.Context) error {
	return s.refresh(ctx, true)
}

// AutoRefreshToken refreshes when the token is inside the threshold. Failures are logged.
func (s *SessionService) AutoRefreshToken(ctx context.Context) {
	s.mu.RLock()
	need := s.token != nil && s.expiredLocked()
	s.mu.RUnlock()
	if !need {
		return
	}
	if err := s.refresh(ctx, false); err != nil {
		s.logger.Warn("automatic token refresh failed", zap.Error(err))
	}
}

// refresh runs at most one upstream refresh at a time. Unless force is set,
// callers that queued behind a completed refresh see the fresh token and skip.
func (s *SessionService) refresh(ctx context.Context, force bool) error {
	return s.flight(ctx, "refresh", func(ctx context.Context) error {
		s.mu.RLock()
		tok := s.token
		gateway := s.gateway
		stale := s.expiredLocked()
		s.mu.RUnlock()

		if tok == nil {
			return errNoRefreshToken
		}
		if !force && !stale {
			return nil
		}
		if gateway == nil {
			return appErrors.ErrNotConfigured
		}

		resp, err := gateway.RefreshToken(ctx, tok.RefreshToken)
		if err != nil {
			s.metrics.RecordTokenRefresh("failure")
			if interrupted(ctx, err) {
				s.logger.Warn("token refresh interrupted, keeping session", zap.Error(err))
				return appErrors.Wrap(err, errInterrupted.Code, errInterrupted.Status, errInterrupted.Message)
			}
			s.logger.Error("token refresh failed", zap.Error(err))
			if lerr := s.Logout(ctx); lerr != nil {
				s.logger.Warn("failed to clear persisted token", zap.Error(lerr))
			}
			return err
		}
		s.metrics.RecordTokenRefresh("success")
		s.setToken(ctx, models.NewCachedToken(*resp, s.now()))
		return nil
	})
}

// EnsureToken returns a usable access token, refreshing or signing in anonymously as needed.
func (s *SessionService) EnsureToken(ctx context.Context) (string, error) {
	s.AutoRefreshToken(ctx)

	if token := s.AccessToken(); token != "" {
		return token, nil
	}
	if s.autoAnon && s.EnvID() != "" {
		if _, err := s.AnonymousSignIn(ctx); err != nil {
			return "", err
		}
		if token := s.AccessToken(); token != "" {
			return token, nil
		}
	}
	return "", appErrors.ErrTokenMissing
}

// Logout clears the session and its persisted copy.
func (s *SessionService) Logout(ctx context.Context) error {
	s.clearState()
	if err := s.store.RemoveItem(context.WithoutCancel(ctx), models.TokenCacheKey); err != nil {
		return err
	}
	s.logger.Info("session logged out")
	return nil
}

// InvalidateToken drops the session if token is still its access token, so a token
// the gateway rejected is never sent again. A newer token is left alone.
func (s *SessionService) InvalidateToken(ctx context.Context, token string) {
	s.mu.Lock()
	if s.token == nil || s.token.AccessToken != token {
		s.mu.Unlock()
		return
	}
	s.token = nil
	s.mu.Unlock()

	s.logger.Warn("access token rejected by gateway, session dropped")
	if err := s.store.RemoveItem(context.WithoutCancel(ctx), models.TokenCacheKey); err != nil {
		s.logger.Warn("failed to clear persisted token", zap.Error(err))
	}
}

// RestoreAuth loads the persisted token. An expired blob is deleted; one inside the
// refresh threshold is refreshed immediately.
func (s *SessionService) RestoreAuth(ctx context.Context) error {
	raw, ok, err := s.store.GetItem(ctx, models.TokenCacheKey)
	if err != nil {
		return err
	}
	if !ok || raw == "" {
		return nil
	}

	var tok models.CachedToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		s.logger.Error("failed to read cached token", zap.Error(err))
		return nil
	}
	if tok.ExpiredAt(s.now()) {
		if err := s.store.RemoveItem(ctx, models.TokenCacheKey); err != nil {
			s.logger.Warn("failed to remove expired token", zap.Error(err))
		}
		return nil
	}

	s.mu.Lock()
	s.token = &tok
	s.mu.Unlock()

	if s.IsTokenExpired() {
		if err := s.refresh(ctx, false); err != nil {
			s.logger.Warn("token refresh during restore failed", zap.Error(err))
			if !errors.Is(err, errNoRefreshToken) && !errors.Is(err, errInterrupted) && ctx.Err() == nil {
				s.clearState()
			}
		}
	}
	return nil
}

func (s *SessionService) setToken(ctx context.Context, tok models.CachedToken) {
	s.mu.Lock()
	s.token = &tok
	s.mu.Unlock()

	raw, err := json.Marshal(tok)
	if err != nil {
		s.logger.Error("failed to encode token", zap.Error(err))
		return
	}
	if err := s.store.SetItem(ctx, models.TokenCacheKey, string(raw)); err != nil {
		s.logger.Error("failed to persist token", zap.Error(err))
	}
}

func (s *SessionService) clearState() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}
