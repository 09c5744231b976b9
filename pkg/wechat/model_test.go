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

func TestBuildFind(t *testing.T) {
	q, err := BuildFind("posts", FindOptions{
		Where:   map[string]interface{}{"status": "published"},
		OrderBy: &Order{Field: "publishTime", Desc: true},
		Limit:   10,
		Skip:    20,
	})
	require.NoError(t, err)
	assert.Equal(t, `db.collection("posts").where({"status":"published"}).orderBy("publishTime", "desc").limit(10).skip(20).get()`, q)

	q, err = BuildFind("posts", FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, `db.collection("posts").get()`, q)
}

func TestBuildFindQuotesCollection(t *testing.T) {
	q, err := BuildFind(`bad")`, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, `db.collection("bad\")").get()`, q)
}

func TestBuildCount(t *testing.T) {
	q, err := BuildCount("posts", nil)
	require.NoError(t, err)
	assert.Equal(t, `db.collection("posts").count()`, q)

	q, err = BuildCount("posts", map[string]interface{}{"views": Cmd("$gt", 3)})
	require.NoError(t, err)
	assert.Equal(t, `db.collection("posts").where({"views":{"$gt":3}}).count()`, q)
}

func TestModelAPIRoutesToEndpoints(t *testing.T) {
	seen := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		seen[r.URL.Path] = body["query"]
		switch r.URL.Path {
		case "/tcb/databaseadd":
			_, _ = w.Write([]byte(`{"errcode":0,"id_list":["n1"]}`))
		case "/tcb/databaseupdate":
			_, _ = w.Write([]byte(`{"errcode":0,"matched":1,"modified":1}`))
		case "/tcb/databasedelete":
			_, _ = w.Write([]byte(`{"errcode":0,"deleted":1}`))
		case "/tcb/databaseaggregate":
			_, _ = w.Write([]byte(`{"errcode":0,"data":["{\"total\":5}"]}`))
		default:
			_, _ = w.Write([]byte(`{"errcode":0,"data":[]}`))
		}
	}))
	defer srv.Close()

	m := NewModelAPI(NewClient(Config{Env: "e", AccessToken: "t", BaseURL: srv.URL}))
	ctx := context.Background()

	ids, err := m.Create(ctx, "posts", map[string]string{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, ids)
	assert.Equal(t, `db.collection("posts").add({data: {"title":"x"}})`, seen["/tcb/databaseadd"])

	upd, err := m.Update(ctx, "posts", "n1", map[string]string{"title": "y"})
	require.NoError(t, err)
	assert.Equal(t, 1, upd.Modified)
	assert.Equal(t, `db.collection("posts").doc("n1").update({data: {"title":"y"}})`, seen["/tcb/databaseupdate"])

	_, err = m.Replace(ctx, "posts", "n1", map[string]string{"title": "z"})
	require.NoError(t, err)
	assert.Equal(t, `db.collection("posts").doc("n1").set({data: {"title":"z"}})`, seen["/tcb/databaseupdate"])

	deleted, err := m.Delete(ctx, "posts", "n1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, `db.collection("posts").doc("n1").remove()`, seen["/tcb/databasedelete"])

	_, err = m.FindByID(ctx, "posts", "n1", nil)
	require.NoError(t, err)
	assert.Equal(t, `db.collection("posts").doc("n1").get()`, seen["/tcb/databasequery"])

	var rows []map[string]int
	_, err = m.Aggregate(ctx, "posts", []interface{}{map[string]interface{}{"$count": "total"}}, &rows)
	require.NoError(t, err)
	assert.Equal(t, `db.collection("posts").aggregate([{"$count":"total"}]).end()`, seen["/tcb/databaseaggregate"])
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0]["total"])
}
