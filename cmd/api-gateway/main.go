package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/cloudblog-api/internal/handler"
	"github.com/noah-isme/cloudblog-api/internal/middleware"
	"github.com/noah-isme/cloudblog-api/internal/models"
	"github.com/noah-isme/cloudblog-api/internal/repository"
	"github.com/noah-isme/cloudblog-api/internal/service"
	"github.com/noah-isme/cloudblog-api/pkg/cache"
	"github.com/noah-isme/cloudblog-api/pkg/cloudbase"
	"github.com/noah-isme/cloudblog-api/pkg/config"
	"github.com/noah-isme/cloudblog-api/pkg/database"
	"github.com/noah-isme/cloudblog-api/pkg/jobs"
	"github.com/noah-isme/cloudblog-api/pkg/jwtutil"
	"github.com/noah-isme/cloudblog-api/pkg/logger"
)

// @title cloudblog API
// @version 1.0.0
// @description Blog backend-for-frontend over CloudBase
// @BasePath /api/v1
// @schemes http https

const (
	serviceName    = "cloudblog-api"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()

	var (
		redisClient *redis.Client
		db          *sqlx.DB
		err         error
	)
	if cfg.Storage.Driver == config.StorageRedis || cfg.Articles.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}
	if cfg.Storage.Driver == config.StoragePostgres {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
	}

	store, err := repository.OpenLocalStorage(ctx, cfg.Storage, repository.StorageDeps{Redis: redisClient, DB: db})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	devices := service.NewDeviceService(store, repository.NewMemoryStorage(), logr)
	session := service.NewSessionService(ctx, store, devices, func(envID string) service.AuthGateway {
		return cloudbase.NewAuthClient(cfg.CloudBase.GatewayURL, envID,
			cloudbase.WithLogger(logr), cloudbase.WithObserver(metrics))
	}, service.SessionConfig{
		EnvID:            cfg.CloudBase.EnvID,
		RefreshThreshold: cfg.Auth.RefreshThreshold,
		UpstreamTimeout:  cfg.CloudBase.Timeout,
		AutoAnonymous:    cfg.Auth.AutoAnonymous,
	}, metrics, logr)
	if err := session.RestoreAuth(ctx); err != nil {
		logr.Warn("failed to restore session", zap.Error(err))
	}

	cb := cloudbase.NewClient(cloudbase.Config{
		EnvID:       cfg.CloudBase.EnvID,
		APIKey:      cfg.CloudBase.APIKey,
		SecretKey:   cfg.CloudBase.SecretKey,
		AccessToken: cfg.CloudBase.AccessToken,
		BaseURL:     cfg.CloudBase.BaseURL,
		Timeout:     cfg.CloudBase.Timeout,
	}, cloudbase.WithLogger(logr), cloudbase.WithObserver(metrics))
	users := repository.NewUserRepository(cloudbase.NewModelAPI(cb))

	deliveries := jobs.NewQueue(service.CodeDeliveryJob, service.NewCodeDeliveryHandler(logr), jobs.QueueConfig{
		Workers:    cfg.Verification.DeliveryWorkers,
		BufferSize: 64,
		MaxRetries: 2,
		RetryDelay: time.Second,
		Logger:     logr,
	})
	deliveries.Start(ctx)
	defer deliveries.Stop()

	signer := jwtutil.NewSigner(cfg.JWT.Secret, cfg.JWT.Expiration)
	accounts := service.NewAccountService(users, store, signer, deliveries, metrics, cfg.Verification.CodeTTL, nil, logr)
	go sweepCodes(ctx, accounts, cfg.Verification.CodeTTL, logr)

	var articleCache service.ArticleCache
	if cfg.Articles.CacheEnabled {
		articleCache = service.NewCacheService(repository.NewCacheRepository(redisClient), metrics, cfg.Articles.CacheTTL, logr, true)
	}
	articles := service.NewArticleService(session, func(envID string) service.ArticleAPI {
		return cloudbase.NewClient(cloudbase.Config{
			EnvID:   envID,
			BaseURL: service.ArticleBaseURL(cfg.CloudBase.GatewayURL, envID),
			Timeout: cfg.CloudBase.Timeout,
		}, cloudbase.WithLogger(logr), cloudbase.WithObserver(metrics))
	}, articleCache, service.ArticleConfig{
		Model:         cfg.Articles.Model,
		DefaultAuthor: cfg.Articles.DefaultAuthor,
		CacheTTL:      cfg.Articles.CacheTTL,
	}, logr)

	checks := map[string]handler.ReadinessCheck{
		"storage": func(ctx context.Context) error {
			_, _, err := store.GetItem(ctx, models.DeviceIDKey)
			return err
		},
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if db != nil {
		checks["postgres"] = db.PingContext
	}

	codeLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:   rate.Limit(cfg.Verification.RatePerMinute / 60),
		Burst:  cfg.Verification.Burst,
		Logger: logr,
	})
	defer codeLimiter.Stop()
	verifyLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:   rate.Limit(cfg.Verification.VerifyRatePerMinute / 60),
		Burst:  cfg.Verification.VerifyBurst,
		Logger: logr,
	})
	defer verifyLimiter.Stop()

	r := newRouter(cfg, logr, metrics, routeHandlers{
		index:      handler.NewIndexHandler(serviceName, serviceVersion, cfg.APIPrefix),
		session:    handler.NewSessionHandler(session, cfg.Env != config.EnvProduction),
		account:    handler.NewAccountHandler(accounts),
		article:    handler.NewArticleHandler(articles),
		metrics:    handler.NewMetricsHandler(metrics, checks),
		codeRate:   codeLimiter.Middleware(),
		verifyRate: verifyLimiter.Middleware(),
		auth:       middleware.JWT(signer),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env), zap.String("cloudbase_env", session.EnvID()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logr.Info("server stopped")
	return nil
}

// sweepCodes drops expired verification codes until ctx is done.
func sweepCodes(ctx context.Context, accounts *service.AccountService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = service.DefaultCodeTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := accounts.SweepExpiredCodes(ctx); n > 0 {
				logr.Debug("swept expired verification codes", zap.Int("count", n))
			}
		}
	}
}
