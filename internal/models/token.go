package models

import "time"

// TokenCacheKey is the storage key of the persisted session token blob.
const TokenCacheKey = "cloudbase_auth_token"

// LegacyEnvIDKey is removed from storage on start; the env id must never be persisted.
const LegacyEnvIDKey = "cloudbase_env_id"

// DeviceIDKey is the storage key of the device identifier.
const DeviceIDKey = "cloudbase_device_id"

// SignInResponse is the gateway payload for anonymous sign-in and token refresh.
type SignInResponse struct {
	TokenType    string   `json:"token_type"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	Scope        string   `json:"scope"`
	Sub          string   `json:"sub"`
	Groups       []string `json:"groups"`
}

// CachedToken is the persisted token record. Timestamps are epoch milliseconds so
// the blob stays compatible with the browser cache format.
type CachedToken struct {
	TokenType    string   `json:"tokenType"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresAt    int64    `json:"expiresAt"`
	Scope        string   `json:"scope"`
	Sub          string   `json:"sub"`
	Groups       []string `json:"groups"`
	CachedAt     int64    `json:"cachedAt"`
}

// NewCachedToken converts a sign-in response received at now.
func NewCachedToken(resp SignInResponse, now time.Time) CachedToken {
	ms := now.UnixMilli()
	return CachedToken{
		TokenType:    resp.TokenType,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    ms + resp.ExpiresIn*1000,
		Scope:        resp.Scope,
		Sub:          resp.Sub,
		Groups:       resp.Groups,
		CachedAt:     ms,
	}
}

// Expiry returns ExpiresAt as a time.
func (t CachedToken) Expiry() time.Time {
	return time.UnixMilli(t.ExpiresAt)
}

// ExpiredAt reports whether the token has passed its absolute expiry.
func (t CachedToken) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != 0 && t.ExpiresAt < now.UnixMilli()
}

// SessionUser is the identity behind the current session token.
type SessionUser struct {
	Sub    string   `json:"sub"`
	Groups []string `json:"groups"`
}

// AuthState is a snapshot of the session store.
type AuthState struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	User            *SessionUser `json:"user"`
	Token           *CachedToken `json:"token,omitempty"`
	IsLoading       bool         `json:"isLoading"`
}

// PublicAuthState is the AuthState shape returned over HTTP; secrets are never echoed.
type PublicAuthState struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	User            *SessionUser `json:"user"`
	TokenType       string       `json:"tokenType,omitempty"`
	Scope           string       `json:"scope,omitempty"`
	ExpiresAt       *time.Time   `json:"expiresAt,omitempty"`
	IsLoading       bool         `json:"isLoading"`
}

// Public strips access and refresh tokens from the state.
func (s AuthState) Public() PublicAuthState {
	out := PublicAuthState{
		IsAuthenticated: s.IsAuthenticated,
		User:            s.User,
		IsLoading:       s.IsLoading,
	}
	if s.Token != nil {
		exp := s.Token.Expiry().UTC()
		out.ExpiresAt = &exp
		out.TokenType = s.Token.TokenType
		out.Scope = s.Token.Scope
	}
	return out
}
