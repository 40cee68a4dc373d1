package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"autotheme/internal/solar"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "autotheme.yaml"

// ThemeConfig names the input_boolean helpers holding the theme mode.
type ThemeConfig struct {
	AutoSwitchEntity string `yaml:"auto_switch_entity"`
	IsDarkEntity     string `yaml:"is_dark_entity"`
}

// StaticLocation is a fixed observer position.
type StaticLocation struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// LocationConfig selects the location source. With Static set the observer
// entity is not used.
type LocationConfig struct {
	Observer string          `yaml:"observer"`
	Static   *StaticLocation `yaml:"static"`
}

// APIConfig controls the status API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// Config is the parsed autotheme.yaml.
type Config struct {
	Theme    ThemeConfig    `yaml:"theme"`
	Location LocationConfig `yaml:"location"`
	API      APIConfig      `yaml:"api"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Theme: ThemeConfig{
			AutoSwitchEntity: "theme_auto_switch",
			IsDarkEntity:     "theme_dark_mode",
		},
		Location: LocationConfig{
			Observer: "zone.home",
		},
		API: APIConfig{
			Enabled: true,
			Prefix:  "/",
		},
	}
}

// Validate reports every problem found, combined into one error.
func (c *Config) Validate() error {
	var errs error
	if c.Theme.AutoSwitchEntity == "" {
		errs = multierr.Append(errs, errors.New("theme.auto_switch_entity is required"))
	}
	if c.Theme.IsDarkEntity == "" {
		errs = multierr.Append(errs, errors.New("theme.is_dark_entity is required"))
	}
	if c.Theme.AutoSwitchEntity != "" && c.Theme.AutoSwitchEntity == c.Theme.IsDarkEntity {
		errs = multierr.Append(errs, errors.New("theme.auto_switch_entity and theme.is_dark_entity must differ"))
	}

	if static := c.Location.Static; static != nil {
		if err := solar.ValidateCoordinates(static.Latitude, static.Longitude); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("location.static: %w", err))
		}
	} else if c.Location.Observer == "" {
		errs = multierr.Append(errs, errors.New("location.observer is required without location.static"))
	}

	if c.API.Prefix == "" || c.API.Prefix[0] != '/' {
		errs = multierr.Append(errs, fmt.Errorf("api.prefix %q must start with /", c.API.Prefix))
	}
	return errs
}

// Loader reads the configuration file from a directory
type Loader struct {
	configDir string
	logger    *zap.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(configDir string, logger *zap.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger.Named("config"),
	}
}

// Path is the full path of the configuration file.
func (l *Loader) Path() string {
	return filepath.Join(l.configDir, FileName)
}

// Load parses and validates the configuration file. Keys missing from the
// file keep their defaults; a missing file yields Default().
func (l *Loader) Load() (*Config, error) {
	path := l.Path()
	l.logger.Debug("Loading config", zap.String("path", path))

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.logger.Warn("No config file found, using defaults", zap.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	fields := []zap.Field{
		zap.String("auto_switch_entity", cfg.Theme.AutoSwitchEntity),
		zap.String("is_dark_entity", cfg.Theme.IsDarkEntity),
	}
	if cfg.Location.Static != nil {
		fields = append(fields,
			zap.Float64("latitude", cfg.Location.Static.Latitude),
			zap.Float64("longitude", cfg.Location.Static.Longitude))
	} else {
		fields = append(fields, zap.String("observer", cfg.Location.Observer))
	}
	l.logger.Info("Config loaded successfully", fields...)
	return cfg, nil
}
