package cloudbase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/cloudblog-api/internal/models"
)

// DefaultGatewayURL is the per-environment gateway pattern.
const DefaultGatewayURL = "https://%s.api.tcloudbasegateway.com"

// GatewayURL expands pattern with envID when it carries a %s placeholder.
func GatewayURL(pattern, envID string) string {
	if pattern == "" {
		pattern = DefaultGatewayURL
	}
	if strings.Contains(pattern, "%s") {
		return fmt.Sprintf(pattern, envID)
	}
	return pattern
}

// AuthClient calls the gateway sign-in endpoints.
type AuthClient struct {
	api *Client
}

// NewAuthClient builds an AuthClient for envID on the gateway pattern.
func NewAuthClient(gatewayPattern, envID string, opts ...Option) *AuthClient {
	return &AuthClient{api: NewClient(Config{BaseURL: GatewayURL(gatewayPattern, envID)}, opts...)}
}

// AnonymousSignIn obtains a token pair for a device.
func (a *AuthClient) AnonymousSignIn(ctx context.Context, deviceID string) (*models.SignInResponse, error) {
	resp, err := a.api.Post(ctx, "/auth/v1/signin/anonymously", struct{}{},
		WithoutAuth(), WithHeader("X-Device-Id", deviceID))
	if err != nil {
		return nil, signInError("anonymous sign-in failed", err)
	}
	var out models.SignInResponse
	if err := resp.DecodeRaw(&out); err != nil {
		return nil, fmt.Errorf("anonymous sign-in failed: %w", err)
	}
	return &out, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (a *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (*models.SignInResponse, error) {
	resp, err := a.api.Post(ctx, "/auth/v1/token/refresh", map[string]string{"refresh_token": refreshToken}, WithoutAuth())
	if err != nil {
		return nil, signInError("refresh token failed", err)
	}
	var out models.SignInResponse
	if err := resp.DecodeRaw(&out); err != nil {
		return nil, fmt.Errorf("refresh token failed: %w", err)
	}
	return &out, nil
}

func signInError(prefix string, err error) error {
	if errors.Is(err, ErrNetwork) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d error", apiErr.Status)
		}
		return &APIError{Status: apiErr.Status, Code: apiErr.Code, Message: prefix + ": " + msg, RequestID: apiErr.RequestID, prefixed: true}
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
