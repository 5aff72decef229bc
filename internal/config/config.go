package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Per-event-type rate limit ceilings, events per rolling minute.
	MessageSendPerMin int `env:"RATE_LIMIT_MESSAGE_SEND_PER_MIN" envDefault:"30"`
	TypingPerMin      int `env:"RATE_LIMIT_TYPING_PER_MIN" envDefault:"60"`
	PresencePerMin    int `env:"RATE_LIMIT_PRESENCE_PER_MIN" envDefault:"20"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
