package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Order sorts a find query on one field.
type Order struct {
	Field string
	Desc  bool
}

// FindOptions shapes a find query.
type FindOptions struct {
	Where   map[string]interface{}
	OrderBy *Order
	Limit   int
	Skip    int
}

// ModelAPI expresses collection operations as database query strings.
type ModelAPI struct {
	api *Client
}

// NewModelAPI wraps client.
func NewModelAPI(client *Client) *ModelAPI {
	return &ModelAPI{api: client}
}

// Cmd builds a command operator object such as {"$gt": 3}.
func Cmd(command string, value interface{}) map[string]interface{} {
	return map[string]interface{}{command: value}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode query value: %w", err)
	}
	return string(b), nil
}

func collection(name string) string {
	return "db.collection(" + quote(name) + ")"
}

// BuildFind renders a find query string.
func BuildFind(coll string, opts FindOptions) (string, error) {
	var b strings.Builder
	b.WriteString(collection(coll))
	if len(opts.Where) > 0 {
		where, err := encode(opts.Where)
		if err != nil {
			return "", err
		}
		b.WriteString(".where(" + where + ")")
	}
	if opts.OrderBy != nil {
		dir := "asc"
		if opts.OrderBy.Desc {
			dir = "desc"
		}
		b.WriteString(".orderBy(" + quote(opts.OrderBy.Field) + ", " + quote(dir) + ")")
	}
	if opts.Limit > 0 {
		b.WriteString(".limit(" + strconv.Itoa(opts.Limit) + ")")
	}
	if opts.Skip > 0 {
		b.WriteString(".skip(" + strconv.Itoa(opts.Skip) + ")")
	}
	b.WriteString(".get()")
	return b.String(), nil
}

// BuildCount renders a count query string.
func BuildCount(coll string, where map[string]interface{}) (string, error) {
	q := collection(coll)
	if len(where) > 0 {
		w, err := encode(where)
		if err != nil {
			return "", err
		}
		q += ".where(" + w + ")"
	}
	return q + ".count()", nil
}

func docQuery(coll, id, tail string) string {
	return collection(coll) + ".doc(" + quote(id) + ")" + tail
}

// Create inserts data and returns the new ids.
func (m *ModelAPI) Create(ctx context.Context, coll string, data interface{}) ([]string, error) {
	doc, err := encode(data)
	if err != nil {
		return nil, err
	}
	res, err := m.api.DatabaseAdd(ctx, collection(coll)+".add({data: "+doc+"})")
	if err != nil {
		return nil, err
	}
	return res.IDList, nil
}

// Find lists documents and decodes them into dest when it is non-nil.
func (m *ModelAPI) Find(ctx context.Context, coll string, opts FindOptions, dest interface{}) (*QueryResult, error) {
	q, err := BuildFind(coll, opts)
	if err != nil {
		return nil, err
	}
	res, err := m.api.DatabaseQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	if dest != nil {
		if err := res.Data.Decode(dest); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// FindByID loads a document into dest, which should be a pointer to a slice.
func (m *ModelAPI) FindByID(ctx context.Context, coll, id string, dest interface{}) (*QueryResult, error) {
	res, err := m.api.DatabaseQuery(ctx, docQuery(coll, id, ".get()"))
	if err != nil {
		return nil, err
	}
	if dest != nil {
		if err := res.Data.Decode(dest); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Update patches the fields in data.
func (m *ModelAPI) Update(ctx context.Context, coll, id string, data interface{}) (*UpdateResult, error) {
	doc, err := encode(data)
	if err != nil {
		return nil, err
	}
	return m.api.DatabaseUpdate(ctx, docQuery(coll, id, ".update({data: "+doc+"})"))
}

// Replace overwrites the whole document.
func (m *ModelAPI) Replace(ctx context.Context, coll, id string, data interface{}) (*UpdateResult, error) {
	doc, err := encode(data)
	if err != nil {
		return nil, err
	}
	return m.api.DatabaseUpdate(ctx, docQuery(coll, id, ".set({data: "+doc+"})"))
}

// Delete removes a document.
func (m *ModelAPI) Delete(ctx context.Context, coll, id string) (int, error) {
	res, err := m.api.DatabaseDelete(ctx, docQuery(coll, id, ".remove()"))
	if err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

// Count returns the number of documents matching where.
func (m *ModelAPI) Count(ctx context.Context, coll string, where map[string]interface{}) (int, error) {
	q, err := BuildCount(coll, where)
	if err != nil {
		return 0, err
	}
	res, err := m.api.DatabaseCount(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Aggregate runs pipeline and decodes the output into dest when it is non-nil.
func (m *ModelAPI) Aggregate(ctx context.Context, coll string, pipeline []interface{}, dest interface{}) (*QueryResult, error) {
	p, err := encode(pipeline)
	if err != nil {
		return nil, err
	}
	res, err := m.api.DatabaseAggregate(ctx, collection(coll)+".aggregate("+p+").end()")
	if err != nil {
		return nil, err
	}
	if dest != nil {
		if err := res.Data.Decode(dest); err != nil {
			return nil, err
		}
	}
	return res, nil
}
