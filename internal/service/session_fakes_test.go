package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/cloudblog-api/internal/models"
)

type fakeStore struct {
	mu     sync.Mutex
	items  map[string]string
	getErr error
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[string]string{}}
}

func (s *fakeStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *fakeStore) SetItem(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.items[key] = value
	return nil
}

func (s *fakeStore) RemoveItem(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *fakeStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

type fakeGateway struct {
	signIns    int32
	refreshes  int32
	signInErr  error
	refreshErr error
	delay      time.Duration
	block      bool
	expiresIn  int64
	lastDevice atomic.Value
}

func (g *fakeGateway) AnonymousSignIn(ctx context.Context, deviceID string) (*models.SignInResponse, error) {
	n := atomic.AddInt32(&g.signIns, 1)
	g.lastDevice.Store(deviceID)
	if g.signInErr != nil {
		return nil, g.signInErr
	}
	return g.response("access-signin", n), nil
}

func (g *fakeGateway) RefreshToken(ctx context.Context, refreshToken string) (*models.SignInResponse, error) {
	n := atomic.AddInt32(&g.refreshes, 1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.refreshErr != nil {
		return nil, g.refreshErr
	}
	if refreshToken == "" {
		return nil, errors.New("missing refresh token")
	}
	return g.response("access-refresh", n), nil
}

func (g *fakeGateway) response(prefix string, n int32) *models.SignInResponse {
	expires := g.expiresIn
	if expires == 0 {
		expires = 7200
	}
	return &models.SignInResponse{
		TokenType:    "Bearer",
		AccessToken:  prefix,
		RefreshToken: "refresh-token",
		ExpiresIn:    expires,
		Sub:          "anon-user",
		Groups:       []string{"anonymous"},
	}
}

type staticDevice string

func (d staticDevice) DeviceID(ctx context.Context) string { return string(d) }
