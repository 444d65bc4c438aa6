package server

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the signaling server's environment-driven configuration.
type Config struct {
	ListenAddr    string `env:"LISTEN_ADDR" env-default:":8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" env-default:"*"`
	LogLevel      string `env:"LOG_LEVEL" env-default:"info"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env config: %w", err)
	}
	return &cfg, nil
}
