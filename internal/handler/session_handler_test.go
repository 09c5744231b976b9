package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cloudblog-api/internal/models"
	"github.com/noah-isme/cloudblog-api/pkg/cloudbase"
	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
)

type fakeSession struct {
	state      models.AuthState
	signInErr  error
	refreshErr error
	env        string
	loggedOut  bool
}

func (f *fakeSession) AnonymousSignIn(ctx context.Context) (models.AuthState, error) {
	return f.state, f.signInErr
}

func (f *fakeSession) RefreshToken(ctx context.Context) error { return f.refreshErr }

func (f *fakeSession) Logout(ctx context.Context) error {
	f.loggedOut = true
	return nil
}

func (f *fakeSession) State() models.AuthState { return f.state }
func (f *fakeSession) EnvID() string           { return f.env }
func (f *fakeSession) SetEnvID(envID string)   { f.env = envID }

func authenticatedState() models.AuthState {
	return models.AuthState{
		IsAuthenticated: true,
		User:            &models.SessionUser{Sub: "anon-1", Groups: []string{"anonymous"}},
		Token: &models.CachedToken{
			TokenType:    "Bearer",
			AccessToken:  "secret-access",
			RefreshToken: "secret-refresh",
			ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		},
	}
}

func TestSessionHandlerAnonymousSignInHidesSecrets(t *testing.T) {
	h := NewSessionHandler(&fakeSession{state: authenticatedState()}, false)
	c, rec := newTestContext(http.MethodPost, "/auth/anonymous", nil)

	h.AnonymousSignIn(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-access")
	assert.NotContains(t, rec.Body.String(), "secret-refresh")
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Data["isAuthenticated"])
	assert.Equal(t, "2030-01-01T00:00:00Z", env.Data["expiresAt"])
}

func TestSessionHandlerAnonymousSignInUpstreamError(t *testing.T) {
	h := NewSessionHandler(&fakeSession{signInErr: &cloudbase.APIError{Status: 500, Message: "anonymous sign-in failed: boom"}}, false)
	c, rec := newTestContext(http.MethodPost, "/auth/anonymous", nil)

	h.AnonymousSignIn(c)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrUpstream.Code, env.Error.Code)
}

func TestSessionHandlerAnonymousSignInNetworkError(t *testing.T) {
	h := NewSessionHandler(&fakeSession{signInErr: cloudbase.ErrNetwork}, false)
	c, rec := newTestContext(http.MethodPost, "/auth/anonymous", nil)

	h.AnonymousSignIn(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionHandlerRefreshWithoutToken(t *testing.T) {
	h := NewSessionHandler(&fakeSession{refreshErr: appErrors.Clone(appErrors.ErrUnauthorized, "no token to refresh")}, false)
	c, rec := newTestContext(http.MethodPost, "/auth/refresh", nil)

	h.Refresh(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "no token to refresh")
}

func TestSessionHandlerLogout(t *testing.T) {
	session := &fakeSession{}
	h := NewSessionHandler(session, false)
	c, _ := newTestContext(http.MethodPost, "/auth/logout", nil)

	h.Logout(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.True(t, session.loggedOut)
}

func TestSessionHandlerSetEnv(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := NewSessionHandler(&fakeSession{}, false)
		c, rec := newTestContext(http.MethodPut, "/auth/env", map[string]string{"envId": "env-2"})

		h.SetEnv(c)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		session := &fakeSession{env: "env-1"}
		h := NewSessionHandler(session, true)
		c, rec := newTestContext(http.MethodPut, "/auth/env", map[string]string{"envId": " env-2 "})

		h.SetEnv(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "env-2", session.env)
	})

	t.Run("missing id", func(t *testing.T) {
		h := NewSessionHandler(&fakeSession{}, true)
		c, rec := newTestContext(http.MethodPut, "/auth/env", map[string]string{})

		h.SetEnv(c)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSessionHandlerStateUnauthenticated(t *testing.T) {
	h := NewSessionHandler(&fakeSession{}, false)
	c, rec := newTestContext(http.MethodGet, "/auth/state", nil)

	h.State(c)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, false, env.Data["isAuthenticated"])
	assert.Nil(t, env.Data["user"])
}
