package service

import (
	"context"
	"fmt"
	"html"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/noah-isme/cloudblog-api/internal/models"
	"github.com/noah-isme/cloudblog-api/pkg/cloudbase"
	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
	"github.com/noah-isme/cloudblog-api/pkg/export"
)

const (
	// DefaultArticleModel is the data model holding blog posts.
	DefaultArticleModel = "blog_tpl_post"

	defaultArticlePageSize = 10
	excerptRunes           = 150
	readRunesPerMinute     = 200

	noSummary   = "No summary"
	unknownDate = "Unknown date"
)

// Export formats accepted by ArticleService.Export.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// ArticleAPI performs GET requests against the article model endpoints.
type ArticleAPI interface {
	Get(ctx context.Context, path string, query url.Values, opts ...cloudbase.RequestOption) (*cloudbase.Response, error)
}

// ArticleAPIFactory builds an ArticleAPI bound to an environment.
type ArticleAPIFactory func(envID string) ArticleAPI

// SessionTokens supplies the environment and a usable session token.
type SessionTokens interface {
	EnvID() string
	EnsureToken(ctx context.Context) (string, error)
	InvalidateToken(ctx context.Context, token string)
}

// ArticleCache is the subset of CacheService used for list pages.
type ArticleCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// ArticleConfig tunes ArticleService.
type ArticleConfig struct {
	Model         string
	DefaultAuthor string
	CacheTTL      time.Duration
}

// ExportFile is a rendered article listing.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ArticleService reads posts from the CloudBase gateway on behalf of the session.
type ArticleService struct {
	session   SessionTokens
	factory   ArticleAPIFactory
	cache     ArticleCache
	cfg       ArticleConfig
	validator *validator.Validate
	logger    *zap.Logger
	policy    *bluemonday.Policy
	renderers map[string]export.Renderer

	mu      sync.Mutex
	clients map[string]ArticleAPI
}

// NewArticleService constructs an ArticleService. cache may be nil.
func NewArticleService(session SessionTokens, factory ArticleAPIFactory, cache ArticleCache, cfg ArticleConfig, logger *zap.Logger) *ArticleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultArticleModel
	}
	return &ArticleService{
		session:   session,
		factory:   factory,
		cache:     cache,
		cfg:       cfg,
		validator: validator.New(),
		logger:    logger,
		policy:    bluemonday.StrictPolicy(),
		renderers: map[string]export.Renderer{
			FormatCSV: export.NewCSVRenderer(),
			FormatPDF: export.NewPDFRenderer(),
		},
		clients:   make(map[string]ArticleAPI),
	}
}

// ArticleBaseURL returns the model API root for envID on the gateway pattern.
func ArticleBaseURL(gatewayPattern, envID string) string {
	return cloudbase.GatewayURL(gatewayPattern, envID) + "/v1/model/prod"
}

// List returns one page of posts.
func (s *ArticleService) List(ctx context.Context, req models.ArticleListRequest) (*models.ArticlePage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid article query")
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultArticlePageSize
	}
	if req.PageNumber <= 0 {
		req.PageNumber = 1
	}

	api, token, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}

	key := s.listCacheKey(req)
	var cached models.ArticlePage
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		cached.FromCache = true
		return &cached, nil
	}

	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(req.PageSize))
	query.Set("pageNumber", strconv.Itoa(req.PageNumber))
	setNonEmpty(query, "category", req.Category)
	setNonEmpty(query, "tag", req.Tag)
	setNonEmpty(query, "keyword", req.Keyword)
	setNonEmpty(query, "status", req.Status)

	resp, err := s.fetch(ctx, api, token, "/"+url.PathEscape(s.cfg.Model)+"/list", query)
	if err != nil {
		s.logger.Error("failed to fetch article list", zap.Error(err))
		return nil, UpstreamError(err, "failed to fetch article list")
	}

	var page models.ArticlePage
	if err := resp.Decode(&page); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "invalid article list response")
	}
	if page.Records == nil {
		page.Records = []models.Article{}
	}
	if page.PageSize == 0 {
		page.PageSize = req.PageSize
	}
	if page.PageNumber == 0 {
		page.PageNumber = req.PageNumber
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, page, s.cfg.CacheTTL)
	}
	return &page, nil
}

// Get returns a single post.
func (s *ArticleService) Get(ctx context.Context, id string) (*models.Article, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "article id is required")
	}
	api, token, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}

	path := "/" + url.PathEscape(s.cfg.Model) + "/" + url.PathEscape(id) + "/get"
	resp, err := s.fetch(ctx, api, token, path, nil)
	if err != nil {
		if cloudbase.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "article not found")
		}
		s.logger.Error("failed to fetch article", zap.String("id", id), zap.Error(err))
		return nil, UpstreamError(err, "failed to fetch article")
	}

	var body struct {
		Record *models.Article `json:"record"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "invalid article response")
	}
	if body.Record == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "article not found")
	}
	return body.Record, nil
}

// Summaries lists posts in card form.
func (s *ArticleService) Summaries(ctx context.Context, req models.ArticleListRequest) (*models.ArticleSummaryPage, error) {
	page, err := s.List(ctx, req)
	if err != nil {
		return nil, err
	}
	out := &models.ArticleSummaryPage{
		Items:      make([]models.ArticleSummary, 0, len(page.Records)),
		Total:      page.Total,
		PageSize:   page.PageSize,
		PageNumber: page.PageNumber,
		FromCache:  page.FromCache,
	}
	for _, a := range page.Records {
		out.Items = append(out.Items, s.Transform(a))
	}
	return out, nil
}

// Transform converts a post into its card shape.
func (s *ArticleService) Transform(a models.Article) models.ArticleSummary {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	author := a.Author
	if author == "" {
		author = s.cfg.DefaultAuthor
	}
	plain := s.plainText(a.Content)
	return models.ArticleSummary{
		ID:         a.ID,
		Title:      a.Title,
		Excerpt:    s.excerpt(a.Excerpt, plain),
		Date:       formatPublishDate(a.PublishTime),
		ReadTime:   readTime(plain),
		Tags:       tags,
		CoverImage: a.CoverImage,
		Author:     author,
	}
}

// Export renders a list page as CSV or PDF.
func (s *ArticleService) Export(ctx context.Context, req models.ArticleListRequest, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	page, err := s.Summaries(ctx, req)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Title: "Articles",
		Columns: []export.Column{
			{Name: "ID", Weight: 1.2},
			{Name: "Title", Weight: 3},
			{Name: "Date", Weight: 1.2},
			{Name: "Author", Weight: 1.4},
			{Name: "Read Time", Weight: 1},
			{Name: "Tags", Weight: 2},
		},
		Rows: make([][]string, 0, len(page.Items)),
	}
	for _, item := range page.Items {
		table.Rows = append(table.Rows, []string{
			item.ID,
			item.Title,
			item.Date,
			item.Author,
			fmt.Sprintf("%d min", item.ReadTime),
			strings.Join(item.Tags, ", "),
		})
	}

	body, err := renderer.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("articles_page_%d.%s", page.PageNumber, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        body,
	}, nil
}

func (s *ArticleService) prepare(ctx context.Context) (ArticleAPI, string, error) {
	envID := s.session.EnvID()
	if envID == "" {
		return nil, "", appErrors.ErrNotConfigured
	}
	token, err := s.session.EnsureToken(ctx)
	if err != nil {
		return nil, "", UpstreamError(err, "failed to obtain session token")
	}
	return s.client(envID), token, nil
}

// fetch sends the request with token. When the gateway rejects the token it is dropped
// from the session and the request is retried once with a fresh one.
func (s *ArticleService) fetch(ctx context.Context, api ArticleAPI, token, path string, query url.Values) (*cloudbase.Response, error) {
	resp, err := api.Get(ctx, path, query, cloudbase.WithBearer(token))
	if err == nil || !cloudbase.IsUnauthorized(err) {
		return resp, err
	}

	s.logger.Warn("session token rejected, renewing", zap.String("path", path), zap.Error(err))
	s.session.InvalidateToken(ctx, token)
	token, err = s.session.EnsureToken(ctx)
	if err != nil {
		return nil, UpstreamError(err, "failed to renew session token")
	}
	resp, err = api.Get(ctx, path, query, cloudbase.WithBearer(token))
	if cloudbase.IsUnauthorized(err) {
		s.session.InvalidateToken(ctx, token)
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "session token rejected by gateway")
	}
	return resp, err
}

func (s *ArticleService) client(envID string) ArticleAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	api, ok := s.clients[envID]
	if !ok {
		api = s.factory(envID)
		s.clients[envID] = api
	}
	return api
}

func (s *ArticleService) listCacheKey(req models.ArticleListRequest) string {
	return fmt.Sprintf("articles:%s:%s:list:%d:%d:%s:%s:%s:%s",
		s.session.EnvID(), s.cfg.Model, req.PageSize, req.PageNumber,
		url.QueryEscape(req.Category), url.QueryEscape(req.Tag), url.QueryEscape(req.Keyword), req.Status)
}

func (s *ArticleService) plainText(content string) string {
	if content == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(content)))
}

func (s *ArticleService) excerpt(explicit, plain string) string {
	if explicit != "" {
		return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(explicit)))
	}
	if plain == "" {
		return noSummary
	}
	runes := []rune(plain)
	if len(runes) > excerptRunes {
		runes = runes[:excerptRunes]
	}
	return string(runes) + "..."
}

func readTime(content string) int {
	n := utf8.RuneCountInString(content)
	minutes := int(math.Ceil(float64(n) / readRunesPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

var publishLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func formatPublishDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return unknownDate
	}
	for _, layout := range publishLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format("2006-01-02")
		}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC().Format("2006-01-02")
	}
	return unknownDate
}

func setNonEmpty(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
