package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 切换到空目录，避免读取仓库里的 .env
func isolate(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	assert.Equal(t, "http://localhost:8080/", cfg.AssetBaseURL)
	assert.Equal(t, PreferencesSQLite, cfg.PreferencesBackend)
	assert.Equal(t, "en", cfg.DefaultLanguage)
	assert.Equal(t, "en", cfg.DefaultNarrativeLan)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)

	current := GetCurrentConfig()
	require.NotNil(t, current)
	assert.Equal(t, cfg.APIBaseURL, current.APIBaseURL)
}

func TestLoadNormalizesURLs(t *testing.T) {
	isolate(t)
	t.Setenv("API_BASE_URL", "https://example.test/api/")
	t.Setenv("ASSET_BASE_URL", "https://cdn.example.test/static")
	t.Setenv("PREFERENCES_BACKEND", "memory")
	t.Setenv("DEFAULT_LANGUAGE", "cs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/api", cfg.APIBaseURL)
	assert.Equal(t, "https://cdn.example.test/static/", cfg.AssetBaseURL)
	assert.Equal(t, "cs", cfg.DefaultNarrativeLan)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	isolate(t)
	t.Setenv("PREFERENCES_BACKEND", "redis")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PREFERENCES_BACKEND")
}

func TestParseEnvError(t *testing.T) {
	isolate(t)
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoadServerDefaults(t *testing.T) {
	isolate(t)
	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "themes", cfg.ThemesDir)
	assert.Equal(t, 120, cfg.RateLimit)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
