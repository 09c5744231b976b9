// Package main provides blogctl, a terminal client for the blog's CloudBase environment.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/cloudblog-api/internal/repository"
	"github.com/noah-isme/cloudblog-api/internal/service"
	"github.com/noah-isme/cloudblog-api/pkg/cloudbase"
	"github.com/noah-isme/cloudblog-api/pkg/config"
	"github.com/noah-isme/cloudblog-api/pkg/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	storePath string
	envID     string
	gateway   string
	verbose   bool

	cfg    *config.Config
	logger *zap.Logger
	client *clientApp
}

// clientApp holds the services shared by the session and article commands.
type clientApp struct {
	store    *repository.FileStorage
	devices  *service.DeviceService
	session  *service.SessionService
	articles *service.ArticleService
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "blogctl",
		Short: "Terminal client for the cloudblog CloudBase environment",
		Long: `blogctl signs in to a CloudBase environment anonymously and reads blog posts.

The session token and device id are kept in a JSON file so later invocations
reuse them. Configuration comes from .env and the environment, flags win.

Examples:
  blogctl signin --env my-env-1a2b
  blogctl articles list --size 5
  blogctl articles get 8f2c --markdown
  blogctl wechat count blog_tpl_post
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.storePath, "store", defaultStorePath(), "JSON file holding the session token and device id")
	cmd.PersistentFlags().StringVar(&opts.envID, "env", "", "CloudBase environment id (defaults to CLOUDBASE_ENV_ID)")
	cmd.PersistentFlags().StringVar(&opts.gateway, "gateway", "", "gateway URL pattern, %s is replaced by the env id")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests to stderr")

	cmd.AddCommand(
		signinCmd(opts),
		refreshCmd(opts),
		logoutCmd(opts),
		stateCmd(opts),
		deviceIDCmd(opts),
		articlesCmd(opts),
		wechatCmd(opts),
	)
	return cmd
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cloudblog", "storage.json")
	}
	return filepath.Join(home, ".cloudblog", "storage.json")
}

func (o *rootOptions) load() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.envID != "" {
		cfg.CloudBase.EnvID = o.envID
	}
	if o.gateway != "" {
		cfg.CloudBase.GatewayURL = o.gateway
	}
	o.cfg = cfg

	o.logger, err = logger.NewCLI(cfg.Log.Level, o.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}

// app opens the file store and builds the session on first use.
func (o *rootOptions) app(ctx context.Context) (*clientApp, error) {
	if o.client != nil {
		return o.client, nil
	}

	store, err := repository.NewFileStorage(o.storePath)
	if err != nil {
		return nil, err
	}

	cfg := o.cfg
	devices := service.NewDeviceService(store, repository.NewMemoryStorage(), o.logger)
	session := service.NewSessionService(ctx, store, devices, func(envID string) service.AuthGateway {
		return cloudbase.NewAuthClient(cfg.CloudBase.GatewayURL, envID, cloudbase.WithLogger(o.logger))
	}, service.SessionConfig{
		EnvID:            cfg.CloudBase.EnvID,
		RefreshThreshold: cfg.Auth.RefreshThreshold,
		UpstreamTimeout:  cfg.CloudBase.Timeout,
		AutoAnonymous:    cfg.Auth.AutoAnonymous,
	}, nil, o.logger)
	if err := session.RestoreAuth(ctx); err != nil {
		o.logger.Warn("failed to restore session", zap.Error(err))
	}

	articles := service.NewArticleService(session, func(envID string) service.ArticleAPI {
		return cloudbase.NewClient(cloudbase.Config{
			EnvID:   envID,
			BaseURL: service.ArticleBaseURL(cfg.CloudBase.GatewayURL, envID),
			Timeout: cfg.CloudBase.Timeout,
		}, cloudbase.WithLogger(o.logger))
	}, nil, service.ArticleConfig{
		Model:         cfg.Articles.Model,
		DefaultAuthor: cfg.Articles.DefaultAuthor,
	}, o.logger)

	o.client = &clientApp{store: store, devices: devices, session: session, articles: articles}
	return o.client, nil
}
