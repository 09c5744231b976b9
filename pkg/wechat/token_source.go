package wechat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshThreshold is how long before expiry a cached token is renewed.
const DefaultRefreshThreshold = 5 * time.Minute

type tokenFetcher interface {
	GetAccessToken(ctx context.Context, appID, appSecret string) (*AccessToken, error)
}

// TokenSource caches a client-credential access token.
type TokenSource struct {
	fetcher   tokenFetcher
	appID     string
	appSecret string
	threshold time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenSource builds a TokenSource that fetches tokens through fetcher.
func NewTokenSource(fetcher tokenFetcher, appID, appSecret string, threshold time.Duration, logger *zap.Logger) *TokenSource {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenSource{
		fetcher:   fetcher,
		appID:     appID,
		appSecret: appSecret,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Token returns a cached token, refreshing it when it is inside the threshold.
// Concurrent callers share one in-flight refresh.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token, exp := s.token, s.expiresAt
	s.mu.RUnlock()
	if token != "" && s.now().Add(s.threshold).Before(exp) {
		return token, nil
	}

	v, err, _ := s.group.Do("token", func() (interface{}, error) {
		s.mu.RLock()
		token, exp := s.token, s.expiresAt
		s.mu.RUnlock()
		if token != "" && s.now().Add(s.threshold).Before(exp) {
			return token, nil
		}

		resp, err := s.fetcher.GetAccessToken(ctx, s.appID, s.appSecret)
		if err != nil {
			s.logger.Error("failed to refresh wechat access token", zap.Error(err))
			return "", err
		}
		if resp.AccessToken == "" {
			return "", errors.New("wechat token response carried no access token")
		}

		s.mu.Lock()
		s.token = resp.AccessToken
		s.expiresAt = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		s.mu.Unlock()
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}
