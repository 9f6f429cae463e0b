package app

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Corphon/SceneIntruderClient/internal/api"
	"github.com/Corphon/SceneIntruderClient/internal/config"
	"github.com/Corphon/SceneIntruderClient/internal/di"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/services"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		APIBaseURL:          baseURL + "/api",
		AssetBaseURL:        baseURL + "/",
		RequestTimeout:      5 * time.Second,
		DataDir:             filepath.Join(dir, "data"),
		PreferencesBackend:  config.PreferencesFile,
		DefaultLanguage:     "en",
		DefaultNarrativeLan: "en",
		DefaultModel:        "test-model",
		LogDir:              filepath.Join(dir, "logs"),
		LogLevel:            "debug",
	}
}

func newDevBackend(t *testing.T) *httptest.Server {
	t.Helper()
	logger := utils.NewDiscardLogger()
	store, err := api.NewStore(api.StoreOptions{DataDir: t.TempDir(), BcryptCost: bcrypt.MinCost, Logger: logger})
	require.NoError(t, err)
	tokens, err := api.NewTokenConfig("app-test-secret", true, logger)
	require.NoError(t, err)
	feed := api.NewSaveFeed(logger)
	t.Cleanup(feed.CloseAll)

	router, err := api.SetupRouter(api.RouterOptions{
		Store:         store,
		Manifest:      services.DefaultManifest(),
		Authenticator: api.NewAuthenticator(tokens, api.NewResponseHelper()),
		Feed:          feed,
		ThemesDir:     filepath.Join("..", "..", "themes"),
		Logger:        logger,
	})
	require.NoError(t, err)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}

func TestNewRegistersServices(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	a, err := New(context.Background(), Options{Config: cfg, LogOutput: io.Discard})
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	for _, name := range []string{
		di.ServiceLogger, di.ServiceMetrics, di.ServicePreferences, di.ServiceAPIClient,
		di.ServiceThemes, di.ServiceSession, di.ServicePersistence, di.ServiceProgress,
		di.ServiceUser, di.ServiceGame, di.ServiceStats, di.ServiceItems,
	} {
		assert.True(t, a.Container().Has(name), name)
	}
	assert.Equal(t, "test-model", a.Session().ModelName())
	assert.False(t, a.IsDebugMode())

	logs, err := os.ReadDir(cfg.LogDir)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestPreferencesSurviveRestart(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	first, err := New(context.Background(), Options{Config: cfg, LogOutput: io.Discard})
	require.NoError(t, err)
	first.Session().SetAppLanguage("de")
	first.Session().SetModelName("other-model")
	require.NoError(t, first.Shutdown(context.Background()))

	select {
	case <-first.Done():
	default:
		t.Fatal("Done should be closed after Shutdown")
	}
	require.NoError(t, first.Shutdown(context.Background()))

	second, err := New(context.Background(), Options{Config: cfg, LogOutput: io.Discard})
	require.NoError(t, err)
	defer second.Shutdown(context.Background())
	assert.Equal(t, "de", second.Session().AppLanguage())
	assert.Equal(t, "other-model", second.Session().ModelName())
}

func TestNewRejectsMissingManifestFile(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.ManifestPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), Options{Config: cfg, LogOutput: io.Discard})
	assert.Error(t, err)
}

func TestAppPlaysAgainstDevBackend(t *testing.T) {
	server := newDevBackend(t)
	cfg := testConfig(t, server.URL)
	ctx := context.Background()

	a, err := New(ctx, Options{Config: cfg, LogOutput: io.Discard})
	require.NoError(t, err)

	assert.True(t, a.Themes().LoadManifestAll(ctx))
	_, err = a.Users().SignIn(ctx, "runner@example.com", "secret-pass")
	require.NoError(t, err)
	require.NoError(t, a.Game().ActivateTheme(ctx, "grim_warden"))
	require.NoError(t, a.Game().SubmitPlayerAction(ctx, "knock on the gate"))

	// left unsaved, Shutdown flushes it
	a.Session().AppendTurn(models.NewTurn(models.RoleModel, "The gate answers."))
	require.NoError(t, a.Shutdown(ctx))

	assert.Positive(t, a.Metrics().GetCounterValue(utils.MetricSaveAttempts))
	assert.Zero(t, a.Metrics().GetCounterValue(utils.MetricSaveFailures))

	resumed, err := New(ctx, Options{Config: testConfig(t, server.URL), LogOutput: io.Discard})
	require.NoError(t, err)
	defer resumed.Shutdown(ctx)
	_, err = resumed.Users().SignIn(ctx, "runner@example.com", "secret-pass")
	require.NoError(t, err)
	require.NoError(t, resumed.Game().ActivateTheme(ctx, "grim_warden"))
	assert.Len(t, resumed.Session().GameHistory(), 2)
}
