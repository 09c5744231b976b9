package cloudbase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	outcomes []string
}

func (r *recordingObserver) ObserveUpstream(vendor, operation, outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, vendor+":"+operation+":"+outcome)
}

func TestClientSetsStaticTokenAndEnvHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer static", r.Header.Get("Authorization"))
		assert.Equal(t, "env-1", r.Header.Get(headerEnvID))
		assert.Empty(t, r.Header.Get(headerAPIKey))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"code":0,"data":{"ok":true},"requestId":"r1"}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	client := NewClient(Config{EnvID: "env-1", AccessToken: "static", APIKey: "k", BaseURL: srv.URL}, WithObserver(obs))
	resp, err := client.Get(context.Background(), "/ping", nil)
	require.NoError(t, err)

	var data struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, resp.Decode(&data))
	assert.True(t, data.OK)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, []string{"cloudbase:get:success"}, obs.outcomes)
}

func TestClientSendsAPIKeyWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get(headerAPIKey))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: srv.URL})
	_, err := client.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
}

func TestClientExchangesAndCachesToken(t *testing.T) {
	var exchanges int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/getAccessToken" {
			atomic.AddInt32(&exchanges, 1)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "key", body["apiKey"])
			assert.Equal(t, "secret", body["secretKey"])
			_, _ = w.Write([]byte(`{"data":{"accessToken":"exchanged","expiresIn":3600}}`))
			return
		}
		assert.Equal(t, "Bearer exchanged", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get(headerAPIKey))
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "key", SecretKey: "secret", BaseURL: srv.URL})
	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), "/data", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&exchanges))
}

func TestClientUnauthorizedClearsCache(t *testing.T) {
	var exchanges int32
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/getAccessToken" {
			atomic.AddInt32(&exchanges, 1)
			_, _ = w.Write([]byte(`{"data":{"accessToken":"t","expiresIn":3600}}`))
			return
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "key", SecretKey: "secret", BaseURL: srv.URL})
	_, err := client.Get(context.Background(), "/data", nil)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "HTTP 401: token expired", err.Error())

	_, err = client.Get(context.Background(), "/data", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&exchanges))
}

func TestClientBusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":40001,"requestId":"abc"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.Post(context.Background(), "/x", map[string]string{"a": "b"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 40001, apiErr.Code)
	assert.Equal(t, "abc", apiErr.RequestID)
	assert.Equal(t, "API error: 40001", err.Error())
}

func TestClientHTTPErrorFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.Get(context.Background(), "/x", nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Code)
	assert.Equal(t, "HTTP 502: Bad Gateway", err.Error())
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(Config{BaseURL: url})
	_, err := client.Get(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestRequestOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bearer":
			assert.Equal(t, "Bearer override", r.Header.Get("Authorization"))
		case "/anon":
			assert.Empty(t, r.Header.Get("Authorization"))
			assert.Empty(t, r.Header.Get(headerAPIKey))
			assert.Equal(t, "dev-1", r.Header.Get("X-Device-Id"))
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(Config{AccessToken: "static", APIKey: "k", BaseURL: srv.URL})
	_, err := client.Get(context.Background(), "/bearer", nil, WithBearer("override"))
	require.NoError(t, err)
	_, err = client.Get(context.Background(), "/anon", nil, WithoutAuth(), WithHeader("X-Device-Id", "dev-1"))
	require.NoError(t, err)
}

func TestUpdateConfigResetsCache(t *testing.T) {
	client := NewClient(Config{})
	client.cache = &cachedToken{token: "old", expiresAt: time.Now().Add(time.Hour).UnixMilli()}

	client.UpdateConfig(Config{EnvID: "env-2"})
	assert.NotNil(t, client.cache)
	assert.Equal(t, "env-2", client.Config().EnvID)

	client.UpdateConfig(Config{AccessToken: "new"})
	assert.Nil(t, client.cache)
	assert.Equal(t, "new", client.Config().AccessToken)

	client.cache = &cachedToken{token: "x"}
	client.SetAccessToken("other")
	assert.Nil(t, client.cache)
}
