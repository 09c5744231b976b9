package cloudbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayURL(t *testing.T) {
	assert.Equal(t, "https://env-1.api.tcloudbasegateway.com", GatewayURL("", "env-1"))
	assert.Equal(t, "http://127.0.0.1:9000", GatewayURL("http://127.0.0.1:9000", "env-1"))
}

func TestAnonymousSignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signin/anonymously", r.URL.Path)
		assert.Equal(t, "device-1", r.Header.Get("X-Device-Id"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"token_type":"Bearer","access_token":"at","refresh_token":"rt","expires_in":7200,"sub":"u1","groups":["anonymous"]}`))
	}))
	defer srv.Close()

	client := NewAuthClient(srv.URL, "env-1")
	resp, err := client.AnonymousSignIn(context.Background(), "device-1")
	require.NoError(t, err)
	assert.Equal(t, "at", resp.AccessToken)
	assert.Equal(t, "rt", resp.RefreshToken)
	assert.Equal(t, int64(7200), resp.ExpiresIn)
	assert.Equal(t, []string{"anonymous"}, resp.Groups)
}

func TestRefreshTokenSendsRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token/refresh", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rt", body["refresh_token"])
		_, _ = w.Write([]byte(`{"access_token":"at2","refresh_token":"rt2","expires_in":60}`))
	}))
	defer srv.Close()

	resp, err := NewAuthClient(srv.URL, "env").RefreshToken(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "at2", resp.AccessToken)
}

func TestSignInErrorMessages(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message", `{"message":"device blocked"}`, "anonymous sign-in failed: device blocked"},
		{"error", `{"error":"invalid_request"}`, "anonymous sign-in failed: invalid_request"},
		{"empty", ``, "anonymous sign-in failed: HTTP 403 error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewAuthClient(srv.URL, "env").AnonymousSignIn(context.Background(), "d")
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}

func TestRefreshErrorPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := NewAuthClient(srv.URL, "env").RefreshToken(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, "refresh token failed: invalid_grant", err.Error())
}
