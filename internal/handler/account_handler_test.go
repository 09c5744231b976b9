package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cloudblog-api/internal/middleware"
	"github.com/noah-isme/cloudblog-api/internal/models"
	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
	"github.com/noah-isme/cloudblog-api/pkg/jwtutil"
)

type fakeAccountService struct {
	sendErr     error
	lastCodeReq models.VerificationCodeRequest
	result      *models.AuthResult
	err         error
	user        *models.User
	lastToken   string
}

func (f *fakeAccountService) SendVerificationCode(ctx context.Context, req models.VerificationCodeRequest) error {
	f.lastCodeReq = req
	return f.sendErr
}

func (f *fakeAccountService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResult, error) {
	return f.result, f.err
}

func (f *fakeAccountService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error) {
	return f.result, f.err
}

func (f *fakeAccountService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	return f.err
}

func (f *fakeAccountService) VerifyToken(ctx context.Context, token string) *models.User {
	f.lastToken = token
	return f.user
}

func TestAccountHandlerSendVerificationCode(t *testing.T) {
	svc := &fakeAccountService{}
	h := NewAccountHandler(svc)
	c, rec := newTestContext(http.MethodPost, "/account/verification-code", map[string]string{"email": "a@example.com", "type": "register"})

	h.SendVerificationCode(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "a@example.com", svc.lastCodeReq.Email)
}

func TestAccountHandlerSendVerificationCodeConflict(t *testing.T) {
	h := NewAccountHandler(&fakeAccountService{sendErr: appErrors.Clone(appErrors.ErrConflict, "email already registered")})
	c, rec := newTestContext(http.MethodPost, "/account/verification-code", map[string]string{"email": "a@example.com", "type": "register"})

	h.SendVerificationCode(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "email already registered", env.Error.Message)
}

func TestAccountHandlerRegister(t *testing.T) {
	h := NewAccountHandler(&fakeAccountService{result: &models.AuthResult{User: models.UserInfo{ID: "u1"}, Token: "jwt"}})
	c, rec := newTestContext(http.MethodPost, "/account/register", map[string]string{"username": "alice"})

	h.Register(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "jwt", env.Data["token"])
}

func TestAccountHandlerLoginMalformedBody(t *testing.T) {
	h := NewAccountHandler(&fakeAccountService{})
	c, rec := newTestContext(http.MethodPost, "/account/login", nil)
	c.Request.Header.Set("Content-Type", "application/json")

	h.Login(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountHandlerLoginUnknownUser(t *testing.T) {
	h := NewAccountHandler(&fakeAccountService{err: appErrors.Clone(appErrors.ErrNotFound, "user does not exist")})
	c, rec := newTestContext(http.MethodPost, "/account/login", map[string]string{"email": "x@example.com", "password": "p"})

	h.Login(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "user does not exist")
}

func TestAccountHandlerResetPassword(t *testing.T) {
	h := NewAccountHandler(&fakeAccountService{})
	c, _ := newTestContext(http.MethodPost, "/account/reset-password", map[string]string{"email": "a@example.com"})

	h.ResetPassword(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
}

func TestAccountHandlerMe(t *testing.T) {
	now := time.Now().UTC()
	svc := &fakeAccountService{user: &models.User{ID: "u1", Username: "alice", PasswordHash: "hash", CreatedAt: now}}
	h := NewAccountHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/account/me", nil)
	c.Request.Header.Set("Authorization", "Bearer token-1")
	c.Set(middleware.ContextUserKey, &jwtutil.Claims{Payload: jwtutil.Payload{UserID: "u1"}})

	h.Me(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "token-1", svc.lastToken)
	assert.NotContains(t, rec.Body.String(), "hash")
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "alice", env.Data["username"])
}

func TestAccountHandlerMeWithoutClaims(t *testing.T) {
	h := NewAccountHandler(&fakeAccountService{})
	c, rec := newTestContext(http.MethodGet, "/account/me", nil)

	h.Me(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountHandlerMeDeletedAccount(t *testing.T) {
	h := NewAccountHandler(&fakeAccountService{})
	c, rec := newTestContext(http.MethodGet, "/account/me", nil)
	c.Set(middleware.ContextUserKey, &jwtutil.Claims{Payload: jwtutil.Payload{UserID: "gone"}})

	h.Me(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "account no longer exists")
}
