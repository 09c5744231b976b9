package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Pager is the paging block of a query result.
type Pager struct {
	Offset int `json:"Offset"`
	Limit  int `json:"Limit"`
	Total  int `json:"Total"`
}

// Documents holds result documents. The API serialises each one as a JSON string.
type Documents []json.RawMessage

// Decode unmarshals the documents into dest, which should be a pointer to a slice.
func (d Documents) Decode(dest interface{}) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, doc := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		trimmed := bytes.TrimSpace(doc)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			var text string
			if err := json.Unmarshal(trimmed, &text); err != nil {
				return fmt.Errorf("decode document %d: %w", i, err)
			}
			buf.WriteString(text)
			continue
		}
		buf.Write(trimmed)
	}
	buf.WriteByte(']')
	return json.Unmarshal(buf.Bytes(), dest)
}

// QueryResult is returned by databasequery and databaseaggregate.
type QueryResult struct {
	Pager *Pager    `json:"pager,omitempty"`
	Data  Documents `json:"data"`
}

// UpdateResult is returned by databaseupdate.
type UpdateResult struct {
	Matched  int    `json:"matched"`
	Modified int    `json:"modified"`
	ID       string `json:"id,omitempty"`
}

// AddResult is returned by databaseadd.
type AddResult struct {
	IDList []string `json:"id_list"`
}

// DeleteResult is returned by databasedelete.
type DeleteResult struct {
	Deleted int `json:"deleted"`
}

// CountResult is returned by databasecount.
type CountResult struct {
	Count int `json:"count"`
}

type queryRequest struct {
	Env   string `json:"env"`
	Query string `json:"query"`
}

func (c *Client) query(ctx context.Context, op, query string, dest interface{}) error {
	return c.post(ctx, op, "/tcb/"+op, queryRequest{Env: c.Env(), Query: query}, dest)
}

// DatabaseQuery runs a read query.
func (c *Client) DatabaseQuery(ctx context.Context, query string) (*QueryResult, error) {
	var out QueryResult
	if err := c.query(ctx, "databasequery", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DatabaseUpdate runs an update or set query.
func (c *Client) DatabaseUpdate(ctx context.Context, query string) (*UpdateResult, error) {
	var out UpdateResult
	if err := c.query(ctx, "databaseupdate", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DatabaseAdd runs an insert query.
func (c *Client) DatabaseAdd(ctx context.Context, query string) (*AddResult, error) {
	var out AddResult
	if err := c.query(ctx, "databaseadd", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DatabaseDelete runs a remove query.
func (c *Client) DatabaseDelete(ctx context.Context, query string) (*DeleteResult, error) {
	var out DeleteResult
	if err := c.query(ctx, "databasedelete", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DatabaseCount runs a count query.
func (c *Client) DatabaseCount(ctx context.Context, query string) (*CountResult, error) {
	var out CountResult
	if err := c.query(ctx, "databasecount", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DatabaseAggregate runs an aggregation pipeline query.
func (c *Client) DatabaseAggregate(ctx context.Context, query string) (*QueryResult, error) {
	var out QueryResult
	if err := c.query(ctx, "databaseaggregate", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
