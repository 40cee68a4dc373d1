package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Env is the process environment.
type Env struct {
	HAURL     string `envconfig:"HA_URL" required:"true"`
	HAToken   string `envconfig:"HA_TOKEN" required:"true"`
	ConfigDir string `envconfig:"CONFIG_DIR" default:"./configs"`
	ReadOnly  bool   `envconfig:"READ_ONLY" default:"false"`
	APIPort   string `envconfig:"API_PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadDotEnv reads .env (or the given files) into the environment. Variables
// that are already set win.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// ProcessEnv decodes the environment into Env.
func ProcessEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if _, err := zapcore.ParseLevel(env.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", env.LogLevel, err)
	}
	return &env, nil
}

// Logger builds the process logger: development output at debug level,
// production JSON otherwise.
func (e *Env) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(e.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", e.LogLevel, err)
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(e.LogLevel, "debug") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
