package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
	"github.com/noah-isme/cloudblog-api/pkg/response"
)

// IndexHandler serves the service index and unmatched routes.
type IndexHandler struct {
	name      string
	version   string
	apiPrefix string
}

// NewIndexHandler creates a new handler.
func NewIndexHandler(name, version, apiPrefix string) *IndexHandler {
	return &IndexHandler{name: name, version: version, apiPrefix: strings.TrimRight(apiPrefix, "/")}
}

// Index lists the entry points of the API.
func (h *IndexHandler) Index(c *gin.Context) {
	response.OK(c, gin.H{
		"name":     h.name,
		"version":  h.version,
		"articles": h.apiPrefix + "/articles",
		"session":  h.apiPrefix + "/auth/state",
		"account":  h.apiPrefix + "/account/me",
	})
}

// NotFound redirects unknown GET pages to the index and answers API misses with a 404 envelope.
func (h *IndexHandler) NotFound(c *gin.Context) {
	path := c.Request.URL.Path
	inAPI := path == h.apiPrefix || strings.HasPrefix(path, h.apiPrefix+"/")
	if c.Request.Method == http.MethodGet && !inAPI {
		c.Redirect(http.StatusFound, "/")
		return
	}
	response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
}
