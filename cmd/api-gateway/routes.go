package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/cloudblog-api/api/swagger"
	"github.com/noah-isme/cloudblog-api/internal/handler"
	"github.com/noah-isme/cloudblog-api/internal/middleware"
	"github.com/noah-isme/cloudblog-api/internal/service"
	"github.com/noah-isme/cloudblog-api/pkg/config"
	"github.com/noah-isme/cloudblog-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/cloudblog-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/cloudblog-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	index   *handler.IndexHandler
	session *handler.SessionHandler
	account *handler.AccountHandler
	article *handler.ArticleHandler
	metrics *handler.MetricsHandler

	codeRate   gin.HandlerFunc
	verifyRate gin.HandlerFunc
	auth       gin.HandlerFunc
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metrics != nil {
		r.Use(middleware.Metrics(metrics))
	}
	r.Use(middleware.WithResponseMeta())

	r.GET("/", h.index.Index)
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/anonymous", h.session.AnonymousSignIn)
	auth.POST("/refresh", h.session.Refresh)
	auth.POST("/logout", h.session.Logout)
	auth.GET("/state", h.session.State)
	auth.GET("/env", h.session.Env)
	auth.PUT("/env", h.session.SetEnv)

	account := api.Group("/account")
	account.POST("/verification-code", chain(h.codeRate, h.account.SendVerificationCode)...)
	account.POST("/register", chain(h.verifyRate, h.account.Register)...)
	account.POST("/login", chain(h.verifyRate, h.account.Login)...)
	account.POST("/reset-password", chain(h.verifyRate, h.account.ResetPassword)...)
	account.GET("/me", chain(h.auth, h.account.Me)...)

	articles := api.Group("/articles")
	articles.GET("", h.article.List)
	articles.GET("/export", h.article.Export)
	articles.GET("/:id", h.article.Get)

	r.NoRoute(h.index.NotFound)
	return r
}

// chain drops nil middleware so optional guards can be left unset.
func chain(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}
