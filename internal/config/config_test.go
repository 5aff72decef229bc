package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":                            os.Getenv("PORT"),
		"DATABASE_URL":                    os.Getenv("DATABASE_URL"),
		"REDIS_URL":                       os.Getenv("REDIS_URL"),
		"LOG_LEVEL":                       os.Getenv("LOG_LEVEL"),
		"RATE_LIMIT_MESSAGE_SEND_PER_MIN": os.Getenv("RATE_LIMIT_MESSAGE_SEND_PER_MIN"),
		"RATE_LIMIT_TYPING_PER_MIN":       os.Getenv("RATE_LIMIT_TYPING_PER_MIN"),
		"RATE_LIMIT_PRESENCE_PER_MIN":     os.Getenv("RATE_LIMIT_PRESENCE_PER_MIN"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("PORT")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("RATE_LIMIT_MESSAGE_SEND_PER_MIN")
		os.Unsetenv("RATE_LIMIT_TYPING_PER_MIN")
		os.Unsetenv("RATE_LIMIT_PRESENCE_PER_MIN")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 30, cfg.MessageSendPerMin)
		assert.Equal(t, 60, cfg.TypingPerMin)
		assert.Equal(t, 20, cfg.PresencePerMin)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "3000")
		os.Setenv("LOG_LEVEL", "debug")
		os.Setenv("RATE_LIMIT_MESSAGE_SEND_PER_MIN", "10")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 10, cfg.MessageSendPerMin)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})
}
