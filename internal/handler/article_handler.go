package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cloudblog-api/internal/middleware"
	"github.com/noah-isme/cloudblog-api/internal/models"
	"github.com/noah-isme/cloudblog-api/internal/service"
	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
	"github.com/noah-isme/cloudblog-api/pkg/response"
)

const viewSummary = "summary"

type articleService interface {
	List(ctx context.Context, req models.ArticleListRequest) (*models.ArticlePage, error)
	Summaries(ctx context.Context, req models.ArticleListRequest) (*models.ArticleSummaryPage, error)
	Get(ctx context.Context, id string) (*models.Article, error)
	Transform(a models.Article) models.ArticleSummary
	Export(ctx context.Context, req models.ArticleListRequest, format string) (*service.ExportFile, error)
}

// ArticleHandler serves blog posts read through the session.
type ArticleHandler struct {
	service articleService
}

// NewArticleHandler creates a new handler.
func NewArticleHandler(svc articleService) *ArticleHandler {
	return &ArticleHandler{service: svc}
}

// List godoc
// @Summary List articles
// @Description Page through posts. view=summary returns the card shape.
// @Tags Articles
// @Produce json
// @Param pageSize query int false "Page size (default 10)"
// @Param pageNumber query int false "Page number (default 1)"
// @Param category query string false "Category"
// @Param tag query string false "Tag"
// @Param keyword query string false "Keyword"
// @Param status query string false "published, draft or archived"
// @Param view query string false "summary"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /articles [get]
func (h *ArticleHandler) List(c *gin.Context) {
	var req models.ArticleListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid article query"))
		return
	}

	if c.Query("view") == viewSummary {
		page, err := h.service.Summaries(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		middleware.SetCacheHit(c, page.FromCache)
		respond(c, http.StatusOK, page)
		return
	}

	page, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, page.FromCache)
	respond(c, http.StatusOK, page)
}

// Get godoc
// @Summary Get article
// @Tags Articles
// @Produce json
// @Param id path string true "Article ID"
// @Param view query string false "summary"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /articles/{id} [get]
func (h *ArticleHandler) Get(c *gin.Context) {
	article, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if c.Query("view") == viewSummary {
		response.OK(c, h.service.Transform(*article))
		return
	}
	response.OK(c, article)
}

// Export godoc
// @Summary Export article listing
// @Description Render one list page as CSV or PDF
// @Tags Articles
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /articles/export [get]
func (h *ArticleHandler) Export(c *gin.Context) {
	var req models.ArticleListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid article query"))
		return
	}
	file, err := h.service.Export(c.Request.Context(), req, c.DefaultQuery("format", service.FormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
