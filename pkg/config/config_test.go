package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "https://api.cloudbase.cn", cfg.CloudBase.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.CloudBase.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Auth.RefreshThreshold)
	assert.True(t, cfg.Auth.AutoAnonymous)
	assert.Equal(t, StorageFile, cfg.Storage.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 10*time.Minute, cfg.Verification.CodeTTL)
	assert.Equal(t, float64(10), cfg.Verification.VerifyRatePerMinute)
	assert.Equal(t, 5, cfg.Verification.VerifyBurst)
	assert.Equal(t, "blog_tpl_post", cfg.Articles.Model)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORAGE_DRIVER", "Redis")
	v.Set("TOKEN_REFRESH_THRESHOLD", "90s")
	v.Set("CLOUDBASE_TIMEOUT", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)

	assert.Equal(t, StorageRedis, cfg.Storage.Driver)
	assert.Equal(t, 90*time.Second, cfg.Auth.RefreshThreshold)
	assert.Equal(t, 10*time.Second, cfg.CloudBase.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
