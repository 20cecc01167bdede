package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "OPENAI_MODEL", "SYSTEM_PROMPT",
		"PROVIDER_TIMEOUT", "SESSION_TTL", "STREAM_LOCK_TTL", "RATE_LIMIT_WHITELIST",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "gpt-4-turbo", cfg.Model)
	assert.Equal(t, DefaultSystemPrompt, cfg.SystemPrompt)
	assert.Equal(t, 2*time.Minute, cfg.ProviderTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.StreamLockTTL)
	assert.Empty(t, cfg.RateLimitWhitelist)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("ENV", "staging")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("PROVIDER_TIMEOUT", "30s")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 192.168.0.0/16 ,")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "staging", cfg.Env)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.RateLimitWhitelist)
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "not-a-duration")
	cfg := Load()
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
}

func TestLoadProductionRequiresCollaborators(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("OPENAI_API_KEY", "")

	assert.Panics(t, func() { Load() })
}
