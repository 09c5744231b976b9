package wechat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseQueryAddsAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tcb/databasequery", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		assert.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "env-1", body["env"])
		assert.Equal(t, `db.collection("posts").get()`, body["query"])

		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok","pager":{"Offset":0,"Limit":10,"Total":1},"data":["{\"_id\":\"p1\",\"title\":\"Hello\"}"]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{Env: "env-1", AccessToken: "tok", BaseURL: srv.URL})
	res, err := client.DatabaseQuery(context.Background(), `db.collection("posts").get()`)
	require.NoError(t, err)
	require.NotNil(t, res.Pager)
	assert.Equal(t, 1, res.Pager.Total)

	var docs []struct {
		ID    string `json:"_id"`
		Title string `json:"title"`
	}
	require.NoError(t, res.Data.Decode(&docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Hello", docs[0].Title)
}

func TestErrcodeBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":40001,"errmsg":"invalid credential"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).DatabaseCount(context.Background(), `db.collection("a").count()`)
	require.Error(t, err)
	assert.Equal(t, "wechat cloud API error: invalid credential (40001)", err.Error())
}

func TestHTTPErrorAndNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	_, err := NewClient(Config{BaseURL: srv.URL}).UploadFile(context.Background(), "a.png")
	require.Error(t, err)
	assert.Equal(t, "HTTP 503: Service Unavailable", err.Error())

	base := srv.URL
	srv.Close()
	_, err = NewClient(Config{BaseURL: base}).UploadFile(context.Background(), "a.png")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestGetAccessTokenOmitsAccessTokenParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/cgi-bin/token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "client_credential", q.Get("grant_type"))
		assert.Equal(t, "app", q.Get("appid"))
		assert.Equal(t, "secret", q.Get("secret"))
		assert.Empty(t, q.Get("access_token"))
		_, _ = w.Write([]byte(`{"access_token":"new","expires_in":7200}`))
	}))
	defer srv.Close()

	tok, err := NewClient(Config{AccessToken: "old", BaseURL: srv.URL}).GetAccessToken(context.Background(), "app", "secret")
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
	assert.Equal(t, int64(7200), tok.ExpiresIn)
}

func TestInvokeCloudFunctionEncodesDataAsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sum", body["function_name"])
		assert.Equal(t, `{"a":1,"b":2}`, body["data"])
		_, _ = w.Write([]byte(`{"errcode":0,"resp_data":"{\"sum\":3}"}`))
	}))
	defer srv.Close()

	res, err := NewClient(Config{Env: "e", BaseURL: srv.URL}).InvokeCloudFunction(context.Background(), "sum", map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)

	var out struct {
		Sum int `json:"sum"`
	}
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, 3, out.Sum)
}

func TestBatchDownloadAndMigrateStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tcb/batchdownloadfile":
			_, _ = w.Write([]byte(`{"errcode":0,"file_list":[{"fileid":"f1","download_url":"https://x/f1","status":0}]}`))
		case "/tcb/databasemigratequery":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(42), body["job_id"])
			_, _ = w.Write([]byte(`{"errcode":0,"status":"success","record_success":10,"record_fail":0}`))
		}
	}))
	defer srv.Close()

	client := NewClient(Config{Env: "e", AccessToken: "t", BaseURL: srv.URL})
	links, err := client.BatchDownloadFile(context.Background(), []DownloadRequest{{FileID: "f1", MaxAge: 3600}})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://x/f1", links[0].DownloadURL)

	status, err := client.GetDatabaseMigrateStatus(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "success", status.Status)
	assert.Equal(t, 10, status.RecordSuccess)
}

type staticProvider struct {
	token string
	calls int
}

func (s *staticProvider) Token(context.Context) (string, error) {
	s.calls++
	return s.token, nil
}

func TestTokenProviderUsedWhenNoStaticToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "provided", r.URL.Query().Get("access_token"))
		_, _ = w.Write([]byte(`{"errcode":0,"count":3}`))
	}))
	defer srv.Close()

	provider := &staticProvider{token: "provided"}
	client := NewClient(Config{BaseURL: srv.URL}, WithTokenProvider(provider))
	res, err := client.DatabaseCount(context.Background(), `db.collection("a").count()`)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 1, provider.calls)
}

type cachingProvider struct {
	staticProvider
	invalidated int
}

func (p *cachingProvider) Invalidate() { p.invalidated++ }

func TestRejectedTokenIsInvalidated(t *testing.T) {
	for _, errcode := range []string{"40001", "42001"} {
		t.Run(errcode, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"errcode":` + errcode + `,"errmsg":"access_token rejected"}`))
			}))
			defer srv.Close()

			provider := &cachingProvider{staticProvider: staticProvider{token: "stale"}}
			_, err := NewClient(Config{BaseURL: srv.URL}, WithTokenProvider(provider)).DatabaseCount(context.Background(), `db.collection("a").count()`)
			require.Error(t, err)
			assert.Equal(t, 1, provider.invalidated)
		})
	}
}

func TestOtherErrcodesKeepToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":-501007,"errmsg":"invalid parameters"}`))
	}))
	defer srv.Close()

	provider := &cachingProvider{staticProvider: staticProvider{token: "tok"}}
	_, err := NewClient(Config{BaseURL: srv.URL}, WithTokenProvider(provider)).DatabaseCount(context.Background(), `db.collection("a").count()`)
	require.Error(t, err)
	assert.Zero(t, provider.invalidated)
}
