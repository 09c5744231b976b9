package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageFile     = "file"
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	CloudBase    CloudBaseConfig
	Wechat       WechatConfig
	Auth         AuthConfig
	Storage      StorageConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Verification VerificationConfig
	Articles     ArticleConfig
	CORS         CORSConfig
	Log          LogConfig
}

// CloudBaseConfig describes the CloudBase environment and its HTTP endpoints.
type CloudBaseConfig struct {
	EnvID       string
	Region      string
	APIKey      string
	SecretKey   string
	AccessToken string
	BaseURL     string
	// GatewayURL may contain a single %s placeholder for the env id.
	GatewayURL string
	Timeout    time.Duration
}

// WechatConfig describes the WeChat Cloud API credentials.
type WechatConfig struct {
	Env       string
	AppID     string
	AppSecret string
	BaseURL   string
	Timeout   time.Duration
}

// AuthConfig tunes the session token lifecycle.
type AuthConfig struct {
	RefreshThreshold time.Duration
	AutoAnonymous    bool
}

// StorageConfig selects the durable client storage backend.
type StorageConfig struct {
	Driver string
	File   string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// VerificationConfig controls verification code issuance and delivery.
type VerificationConfig struct {
	CodeTTL         time.Duration
	RatePerMinute   float64
	Burst           int
	DeliveryWorkers int
	// rate applied to register and reset-password, which consume codes
	VerifyRatePerMinute float64
	VerifyBurst         int
}

// ArticleConfig governs the article model and its list cache.
type ArticleConfig struct {
	Model         string
	DefaultAuthor string
	CacheEnabled  bool
	CacheTTL      time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *fs.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.CloudBase = CloudBaseConfig{
		EnvID:       v.GetString("CLOUDBASE_ENV_ID"),
		Region:      v.GetString("CLOUDBASE_REGION"),
		APIKey:      v.GetString("CLOUDBASE_API_KEY"),
		SecretKey:   v.GetString("CLOUDBASE_SECRET_KEY"),
		AccessToken: v.GetString("CLOUDBASE_ACCESS_TOKEN"),
		BaseURL:     v.GetString("CLOUDBASE_BASE_URL"),
		GatewayURL:  v.GetString("CLOUDBASE_GATEWAY_URL"),
		Timeout:     parseDuration(v.GetString("CLOUDBASE_TIMEOUT"), 10*time.Second),
	}

	cfg.Wechat = WechatConfig{
		Env:       v.GetString("WECHAT_ENV"),
		AppID:     v.GetString("WECHAT_APP_ID"),
		AppSecret: v.GetString("WECHAT_APP_SECRET"),
		BaseURL:   v.GetString("WECHAT_BASE_URL"),
		Timeout:   parseDuration(v.GetString("WECHAT_TIMEOUT"), 10*time.Second),
	}

	cfg.Auth = AuthConfig{
		RefreshThreshold: parseDuration(v.GetString("TOKEN_REFRESH_THRESHOLD"), 5*time.Minute),
		AutoAnonymous:    v.GetBool("AUTH_AUTO_ANONYMOUS"),
	}

	cfg.Storage = StorageConfig{
		Driver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		File:   v.GetString("STORAGE_FILE"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 7*24*time.Hour),
	}

	burst := v.GetInt("CODE_RATE_BURST")
	if burst <= 0 {
		burst = 3
	}
	verifyBurst := v.GetInt("CODE_VERIFY_RATE_BURST")
	if verifyBurst <= 0 {
		verifyBurst = 5
	}
	cfg.Verification = VerificationConfig{
		CodeTTL:             parseDuration(v.GetString("VERIFICATION_CODE_TTL"), 10*time.Minute),
		RatePerMinute:       v.GetFloat64("CODE_RATE_LIMIT"),
		Burst:               burst,
		DeliveryWorkers:     v.GetInt("CODE_DELIVERY_WORKERS"),
		VerifyRatePerMinute: v.GetFloat64("CODE_VERIFY_RATE_LIMIT"),
		VerifyBurst:         verifyBurst,
	}

	cfg.Articles = ArticleConfig{
		Model:         v.GetString("ARTICLE_MODEL"),
		DefaultAuthor: v.GetString("ARTICLE_DEFAULT_AUTHOR"),
		CacheEnabled:  v.GetBool("ENABLE_ARTICLE_CACHE"),
		CacheTTL:      parseDuration(v.GetString("ARTICLE_CACHE_TTL"), 2*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("CLOUDBASE_ENV_ID", "")
	v.SetDefault("CLOUDBASE_REGION", "ap-shanghai")
	v.SetDefault("CLOUDBASE_API_KEY", "")
	v.SetDefault("CLOUDBASE_SECRET_KEY", "")
	v.SetDefault("CLOUDBASE_ACCESS_TOKEN", "")
	v.SetDefault("CLOUDBASE_BASE_URL", "https://api.cloudbase.cn")
	v.SetDefault("CLOUDBASE_GATEWAY_URL", "https://%s.api.tcloudbasegateway.com")
	v.SetDefault("CLOUDBASE_TIMEOUT", "10s")

	v.SetDefault("WECHAT_ENV", "")
	v.SetDefault("WECHAT_APP_ID", "")
	v.SetDefault("WECHAT_APP_SECRET", "")
	v.SetDefault("WECHAT_BASE_URL", "https://api.weixin.qq.com")
	v.SetDefault("WECHAT_TIMEOUT", "10s")

	v.SetDefault("TOKEN_REFRESH_THRESHOLD", "5m")
	v.SetDefault("AUTH_AUTO_ANONYMOUS", true)

	v.SetDefault("STORAGE_DRIVER", StorageFile)
	v.SetDefault("STORAGE_FILE", "./data/storage.json")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "cloudblog")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "168h")

	v.SetDefault("VERIFICATION_CODE_TTL", "10m")
	v.SetDefault("CODE_RATE_LIMIT", 3)
	v.SetDefault("CODE_RATE_BURST", 3)
	v.SetDefault("CODE_VERIFY_RATE_LIMIT", 10)
	v.SetDefault("CODE_VERIFY_RATE_BURST", 5)
	v.SetDefault("CODE_DELIVERY_WORKERS", 1)

	v.SetDefault("ARTICLE_MODEL", "blog_tpl_post")
	v.SetDefault("ARTICLE_DEFAULT_AUTHOR", "cloudblog")
	v.SetDefault("ENABLE_ARTICLE_CACHE", false)
	v.SetDefault("ARTICLE_CACHE_TTL", "2m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
