package cloudbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
)

// Operator is a condition operator understood by the model API.
type Operator string

const (
	OpEq     Operator = "eq"
	OpNeq    Operator = "neq"
	OpGt     Operator = "gt"
	OpGte    Operator = "gte"
	OpLt     Operator = "lt"
	OpLte    Operator = "lte"
	OpIn     Operator = "in"
	OpNin    Operator = "nin"
	OpLike   Operator = "like"
	OpExists Operator = "exists"
)

func (o Operator) valid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpLike, OpExists:
		return true
	}
	return false
}

// Condition is a single field predicate.
type Condition struct {
	Field string      `json:"field"`
	Op    Operator    `json:"op"`
	Value interface{} `json:"value"`
}

// Where is either a list of conditions or a raw filter object.
type Where struct {
	Conditions []Condition
	Raw        map[string]interface{}
}

// Conditions builds a Where from predicates.
func Conditions(conds ...Condition) *Where {
	return &Where{Conditions: conds}
}

// RawWhere passes filter through unchanged.
func RawWhere(filter map[string]interface{}) *Where {
	return &Where{Raw: filter}
}

// Build folds conditions into {field: {op: value}}. Conditions on the same field merge.
func (w *Where) Build() (map[string]interface{}, error) {
	if w == nil {
		return map[string]interface{}{}, nil
	}
	if w.Conditions == nil {
		if w.Raw == nil {
			return map[string]interface{}{}, nil
		}
		return w.Raw, nil
	}
	out := make(map[string]interface{}, len(w.Conditions))
	for _, cond := range w.Conditions {
		if !cond.Op.valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported operator %q", cond.Op))
		}
		field, ok := out[cond.Field].(map[string]interface{})
		if !ok {
			field = map[string]interface{}{}
			out[cond.Field] = field
		}
		field[string(cond.Op)] = cond.Value
	}
	return out, nil
}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

// OrderBy is either a raw string or a list of sort keys.
type OrderBy struct {
	Raw  string
	Keys []Order
}

// Build renders "f1 asc,f2 desc".
func (o *OrderBy) Build() string {
	if o == nil {
		return ""
	}
	if o.Raw != "" {
		return o.Raw
	}
	parts := make([]string, 0, len(o.Keys))
	for _, k := range o.Keys {
		dir := "asc"
		if k.Desc {
			dir = "desc"
		}
		parts = append(parts, k.Field+" "+dir)
	}
	return strings.Join(parts, ",")
}

// QueryOptions configures a Find call.
type QueryOptions struct {
	Where    *Where
	OrderBy  *OrderBy
	PageSize int
	Page     int
	Limit    int
	Offset   int
	Select   []string
	Exclude  []string
}

// Values renders the options as query parameters.
func (q QueryOptions) Values() (url.Values, error) {
	v := url.Values{}
	if q.Where != nil {
		where, err := q.Where.Build()
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(where)
		if err != nil {
			return nil, fmt.Errorf("encode where: %w", err)
		}
		v.Set("where", string(encoded))
	}
	if ob := q.OrderBy.Build(); ob != "" {
		v.Set("orderBy", ob)
	}
	setPositive(v, "pageSize", q.PageSize)
	setPositive(v, "page", q.Page)
	setPositive(v, "limit", q.Limit)
	setPositive(v, "offset", q.Offset)
	if len(q.Select) > 0 {
		v.Set("select", strings.Join(q.Select, ","))
	}
	if len(q.Exclude) > 0 {
		v.Set("exclude", strings.Join(q.Exclude, ","))
	}
	return v, nil
}

func setPositive(v url.Values, key string, n int) {
	if n > 0 {
		v.Set(key, strconv.Itoa(n))
	}
}

// Page is a Find result. List holds the raw records.
type Page struct {
	List     json.RawMessage `json:"list"`
	Total    int             `json:"total"`
	Page     int             `json:"page,omitempty"`
	PageSize int             `json:"pageSize,omitempty"`
}

// OperationResult reports the effect of a write.
type OperationResult struct {
	Affected int      `json:"affected,omitempty"`
	IDs      []string `json:"ids,omitempty"`
}

// ModelAPI performs CRUD calls against /model/v1/<model>.
type ModelAPI struct {
	api *Client
}

// NewModelAPI wraps client.
func NewModelAPI(client *Client) *ModelAPI {
	return &ModelAPI{api: client}
}

// Client returns the underlying HTTP client.
func (m *ModelAPI) Client() *Client {
	return m.api
}

func modelPath(model string, parts ...string) string {
	p := "/model/v1/" + url.PathEscape(model)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// Create inserts records. A single record is sent as a one-element list.
func (m *ModelAPI) Create(ctx context.Context, model string, data interface{}) (*OperationResult, error) {
	resp, err := m.api.Post(ctx, modelPath(model), map[string]interface{}{"data": asList(data)})
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

// CreateBatch inserts several records.
func (m *ModelAPI) CreateBatch(ctx context.Context, model string, records []interface{}) (*OperationResult, error) {
	return m.Create(ctx, model, records)
}

// Find lists records. When dest is non-nil the list is decoded into it.
func (m *ModelAPI) Find(ctx context.Context, model string, opts QueryOptions, dest interface{}) (*Page, error) {
	params, err := opts.Values()
	if err != nil {
		return nil, err
	}
	resp, err := m.api.Get(ctx, modelPath(model), params)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := resp.Decode(&page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	if dest != nil && len(page.List) > 0 {
		if err := json.Unmarshal(page.List, dest); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
	}
	return &page, nil
}

// FindByID loads one record into dest.
func (m *ModelAPI) FindByID(ctx context.Context, model, id string, dest interface{}) error {
	resp, err := m.api.Get(ctx, modelPath(model, id), nil)
	if err != nil {
		return err
	}
	return resp.Decode(dest)
}

// Update changes a single record by id.
func (m *ModelAPI) Update(ctx context.Context, model, id string, data interface{}) (*OperationResult, error) {
	resp, err := m.api.Put(ctx, modelPath(model, id), map[string]interface{}{"data": data})
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

// UpdateBatch changes every record matching where.
func (m *ModelAPI) UpdateBatch(ctx context.Context, model string, data interface{}, where *Where) (*OperationResult, error) {
	body := map[string]interface{}{"data": data}
	if where != nil {
		built, err := where.Build()
		if err != nil {
			return nil, err
		}
		body["where"] = built
	}
	resp, err := m.api.Put(ctx, modelPath(model), body)
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

// Delete removes a single record by id.
func (m *ModelAPI) Delete(ctx context.Context, model, id string) (*OperationResult, error) {
	resp, err := m.api.Delete(ctx, modelPath(model, id), nil)
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

// DeleteBatch removes every record matching where.
func (m *ModelAPI) DeleteBatch(ctx context.Context, model string, where *Where) (*OperationResult, error) {
	body := map[string]interface{}{}
	if where != nil {
		built, err := where.Build()
		if err != nil {
			return nil, err
		}
		body["where"] = built
	}
	resp, err := m.api.Delete(ctx, modelPath(model), body)
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

// Count returns the number of records matching where.
func (m *ModelAPI) Count(ctx context.Context, model string, where *Where) (int, error) {
	params, err := QueryOptions{Where: where}.Values()
	if err != nil {
		return 0, err
	}
	resp, err := m.api.Get(ctx, modelPath(model, "count"), params)
	if err != nil {
		return 0, err
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := resp.Decode(&out); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return out.Count, nil
}

func asList(data interface{}) interface{} {
	switch data.(type) {
	case []interface{}, []map[string]interface{}:
		return data
	}
	raw, err := json.Marshal(data)
	if err == nil && len(raw) > 0 && raw[0] == '[' {
		return data
	}
	return []interface{}{data}
}

func decodeResult(resp *Response) (*OperationResult, error) {
	var out OperationResult
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &out, nil
}
