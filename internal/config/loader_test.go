package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
	return dir
}

func TestLoader_Load(t *testing.T) {
	dir := writeConfig(t, `theme:
  auto_switch_entity: desk_auto_theme
  is_dark_entity: desk_dark_theme
location:
  observer: device_tracker.laptop
api:
  prefix: /autotheme
`)

	cfg, err := NewLoader(dir, zaptest.NewLogger(t)).Load()
	require.NoError(t, err)

	want := &Config{
		Theme: ThemeConfig{
			AutoSwitchEntity: "desk_auto_theme",
			IsDarkEntity:     "desk_dark_theme",
		},
		Location: LocationConfig{Observer: "device_tracker.laptop"},
		API:      APIConfig{Enabled: true, Prefix: "/autotheme"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_StaticLocation(t *testing.T) {
	dir := writeConfig(t, `location:
  static:
    latitude: 51.4779
    longitude: -0.0015
`)

	cfg, err := NewLoader(dir, zap.NewNop()).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Location.Static)
	assert.Equal(t, StaticLocation{Latitude: 51.4779, Longitude: -0.0015}, *cfg.Location.Static)
	assert.Equal(t, "theme_auto_switch", cfg.Theme.AutoSwitchEntity, "defaults survive partial files")
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader(t.TempDir(), zaptest.NewLogger(t)).Load()
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "theme: [unterminated\n")

	_, err := NewLoader(dir, zap.NewNop()).Load()
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestConfig_ValidateReportsEverything(t *testing.T) {
	cfg := &Config{
		Theme:    ThemeConfig{AutoSwitchEntity: "same", IsDarkEntity: "same"},
		Location: LocationConfig{Static: &StaticLocation{Latitude: 91}},
		API:      APIConfig{Prefix: "api"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)

	cfg = &Config{Theme: ThemeConfig{}, API: APIConfig{Prefix: "/"}}
	assert.Len(t, multierr.Errors(cfg.Validate()), 3)

	assert.NoError(t, Default().Validate())
}

func TestLoader_InvalidFileIsRejected(t *testing.T) {
	dir := writeConfig(t, `location:
  observer: ""
`)

	_, err := NewLoader(dir, zap.NewNop()).Load()
	assert.ErrorContains(t, err, "location.observer is required")
}
