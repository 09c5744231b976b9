package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cloudblog-api/internal/models"
	"github.com/noah-isme/cloudblog-api/internal/service"
	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
	"github.com/noah-isme/cloudblog-api/pkg/response"
)

type sessionService interface {
	AnonymousSignIn(ctx context.Context) (models.AuthState, error)
	RefreshToken(ctx context.Context) error
	Logout(ctx context.Context) error
	State() models.AuthState
	EnvID() string
	SetEnvID(envID string)
}

// SessionHandler exposes the CloudBase session held by the server.
type SessionHandler struct {
	session        sessionService
	allowEnvSwitch bool
}

// NewSessionHandler creates a new handler. allowEnvSwitch enables PUT /auth/env.
func NewSessionHandler(session sessionService, allowEnvSwitch bool) *SessionHandler {
	return &SessionHandler{session: session, allowEnvSwitch: allowEnvSwitch}
}

// envPayload carries the environment id.
type envPayload struct {
	EnvID string `json:"envId" binding:"required"`
}

// AnonymousSignIn godoc
// @Summary Anonymous sign-in
// @Description Sign the server session in anonymously with the device id
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /auth/anonymous [post]
func (h *SessionHandler) AnonymousSignIn(c *gin.Context) {
	state, err := h.session.AnonymousSignIn(c.Request.Context())
	if err != nil {
		response.Error(c, service.UpstreamError(err, "anonymous sign-in failed"))
		return
	}
	response.OK(c, state.Public())
}

// Refresh godoc
// @Summary Refresh session token
// @Description Exchange the refresh token. A failed refresh signs the session out.
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *SessionHandler) Refresh(c *gin.Context) {
	if err := h.session.RefreshToken(c.Request.Context()); err != nil {
		response.Error(c, service.UpstreamError(err, "refresh token failed"))
		return
	}
	response.OK(c, h.session.State().Public())
}

// Logout godoc
// @Summary Logout session
// @Description Clear the session token and its persisted copy
// @Tags Session
// @Success 204
// @Router /auth/logout [post]
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.session.Logout(c.Request.Context()); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear session"))
		return
	}
	response.NoContent(c)
}

// State godoc
// @Summary Session state
// @Description Current session state without token secrets
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/state [get]
func (h *SessionHandler) State(c *gin.Context) {
	response.OK(c, h.session.State().Public())
}

// Env godoc
// @Summary Current environment
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/env [get]
func (h *SessionHandler) Env(c *gin.Context) {
	response.OK(c, gin.H{"envId": h.session.EnvID()})
}

// SetEnv godoc
// @Summary Switch environment
// @Description Switch the CloudBase environment id at runtime. The id is never persisted.
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body envPayload true "Environment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/env [put]
func (h *SessionHandler) SetEnv(c *gin.Context) {
	if !h.allowEnvSwitch {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "environment switching is disabled"))
		return
	}
	var payload envPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "envId is required"))
		return
	}
	h.session.SetEnvID(strings.TrimSpace(payload.EnvID))
	response.OK(c, gin.H{"envId": h.session.EnvID()})
}
