package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

const grimConfigPath = "themes/grim_warden/config.json"

func TestEnsureLoadedCachesAssets(t *testing.T) {
	assets := newFakeAssets().withGrimWarden()
	themes := newTestThemeService(assets)
	ctx := context.Background()

	require.True(t, themes.EnsureLoaded(ctx, "grim_warden"))
	require.True(t, themes.EnsureLoaded(ctx, "grim_warden"))

	assert.True(t, themes.IsReady("grim_warden"))
	assert.Equal(t, 1, assets.callCount(grimConfigPath))
	assert.Equal(t, 1, assets.callCount("themes/grim_warden/texts.json"))
	assert.Equal(t, 1, assets.callCount("themes/grim_warden/prompts-config.json"))
	assert.Positive(t, themes.metrics.GetCounterValue(utils.MetricAssetCacheHits))

	cfg := themes.GetThemeConfig("grim_warden")
	require.NotNil(t, cfg)
	assert.Equal(t, 120, cfg.BaseAttributes.Integrity)
	assert.Equal(t, models.DefaultBaseAptitude, cfg.BaseAttributes.Aptitude)
	assert.Equal(t, "master_initial", cfg.StartingPrompt)
}

func TestEnsureLoadedRetriesAfterFailure(t *testing.T) {
	assets := newFakeAssets().withGrimWarden()
	assets.setFailure(grimConfigPath, transportFailure(grimConfigPath))
	themes := newTestThemeService(assets)
	ctx := context.Background()

	assert.False(t, themes.EnsureLoaded(ctx, "grim_warden"))
	assert.False(t, themes.IsReady("grim_warden"))
	assert.Nil(t, themes.GetThemeConfig("grim_warden"))

	assets.setFailure(grimConfigPath, nil)
	assert.True(t, themes.EnsureLoaded(ctx, "grim_warden"))
	assert.Equal(t, 2, assets.callCount(grimConfigPath))
	assert.Equal(t, 1, assets.callCount("themes/grim_warden/texts.json"))
}

func TestEnsureLoadedNonPlayableFailureCountsAsSuccess(t *testing.T) {
	themes := newTestThemeService(newFakeAssets())

	assert.True(t, themes.EnsureLoaded(context.Background(), "echo_sleepers"))
	assert.False(t, themes.IsReady("echo_sleepers"))
	assert.False(t, themes.EnsureLoaded(context.Background(), "salt_reavers"))
	assert.False(t, themes.EnsureLoaded(context.Background(), "atlantis"))
}

func TestEnsureLoadedConcurrentCallersFetchOnce(t *testing.T) {
	assets := newFakeAssets().withGrimWarden()
	assets.block = make(chan struct{})
	themes := newTestThemeService(assets)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = themes.EnsureLoaded(context.Background(), "grim_warden")
		}()
	}
	require.Eventually(t, func() bool { return assets.callCount(grimConfigPath) > 0 }, time.Second, 5*time.Millisecond)
	close(assets.block)
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.Equal(t, 1, assets.callCount(grimConfigPath))
}

func TestLoadManifestAllReportsFailures(t *testing.T) {
	themes := newTestThemeService(newFakeAssets().withGrimWarden())

	assert.False(t, themes.LoadManifestAll(context.Background()))
	assert.True(t, themes.IsReady("grim_warden"))
	assert.False(t, themes.IsReady("salt_reavers"))
}

func TestGetTextLanguageFallback(t *testing.T) {
	themes := newTestThemeService(newFakeAssets().withGrimWarden())
	require.True(t, themes.EnsureLoaded(context.Background(), "grim_warden"))

	text, ok := themes.GetText("grim_warden", "theme_name", "de-AT")
	require.True(t, ok)
	assert.Equal(t, "Der Grimme Wächter", text)

	text, ok = themes.GetText("grim_warden", "greeting", "de-AT")
	require.True(t, ok)
	assert.Equal(t, "Hello", text)

	_, ok = themes.GetText("grim_warden", "missing", "en")
	assert.False(t, ok)
	_, ok = themes.GetText("salt_reavers", "theme_name", "en")
	assert.False(t, ok)

	assert.Equal(t, []string{"pt-BR", "pt", "en"}, languageCandidates("pt-BR", "en"))
	assert.Equal(t, []string{"en"}, languageCandidates("en", "en"))
}

func TestItemAndTraitDataAreCachedEvenWhenMissing(t *testing.T) {
	assets := newFakeAssets().withGrimWarden()
	themes := newTestThemeService(assets)
	ctx := context.Background()

	items := themes.FetchAndCacheItemData(ctx, "grim_warden", "relic")
	require.Len(t, items, 1)
	assert.Equal(t, "ash_lantern", items[0].ID)

	assert.Empty(t, themes.FetchAndCacheItemData(ctx, "grim_warden", "tool"))
	assert.Empty(t, themes.FetchAndCacheItemData(ctx, "grim_warden", "tool"))
	assert.Equal(t, 1, assets.callCount("themes/grim_warden/data/tool_items.json"))

	traits := themes.FetchAndCacheTraitData(ctx, "grim_warden")
	require.Contains(t, traits, "stoic")
	assert.Equal(t, "stoic", traits["stoic"].Key)
	themes.FetchAndCacheTraitData(ctx, "grim_warden")
	assert.Equal(t, 1, assets.callCount("themes/grim_warden/data/traits.json"))

	assert.Empty(t, themes.FetchAndCacheTraitData(ctx, "salt_reavers"))
	assert.Empty(t, themes.FetchAndCacheTraitData(ctx, "salt_reavers"))
	assert.Equal(t, 1, assets.callCount("themes/salt_reavers/data/traits.json"))
}

func TestPromptFileResultsAreCached(t *testing.T) {
	assets := newFakeAssets().withGrimWarden()
	themes := newTestThemeService(assets)
	ctx := context.Background()

	result, err := themes.FetchAndCachePromptFile(ctx, "grim_warden", "master_initial")
	require.NoError(t, err)
	assert.Equal(t, models.PromptLoaded, result.Status)
	text, ok := themes.GetLoadedPromptText("grim_warden", "master_initial")
	require.True(t, ok)
	assert.Equal(t, "Begin at the gate.", text)

	result, err = themes.FetchAndCachePromptFile(ctx, "grim_warden", "master_combat")
	require.NoError(t, err)
	assert.Equal(t, models.PromptNotFound, result.Status)
	_, ok = themes.GetLoadedPromptText("grim_warden", "master_combat")
	assert.False(t, ok)

	result, err = themes.FetchAndCachePromptFile(ctx, "grim_warden", "master_unknown")
	require.NoError(t, err)
	assert.Equal(t, models.PromptURLMissing, result.Status)

	for _, name := range []string{"master_initial", "master_combat", "master_unknown"} {
		_, err := themes.FetchAndCachePromptFile(ctx, "grim_warden", name)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, assets.callCount("themes/grim_warden/prompts/master_initial.txt"))
	assert.Equal(t, 1, assets.callCount("themes/grim_warden/prompts/master_combat.txt"))
	assert.Equal(t, 1, assets.callCount("themes/grim_warden/prompts-config.json"))

	_, err = themes.FetchAndCachePromptFile(ctx, "atlantis", "master_initial")
	assert.Error(t, err)
}

func TestPromptTransportFailureIsNotCached(t *testing.T) {
	const path = "themes/grim_warden/prompts/master_initial.txt"
	assets := newFakeAssets().withGrimWarden()
	assets.setFailure(path, transportFailure(path))
	themes := newTestThemeService(assets)
	ctx := context.Background()

	_, err := themes.FetchAndCachePromptFile(ctx, "grim_warden", "master_initial")
	require.Error(t, err)
	assert.False(t, themes.GetAllPromptsForTheme(ctx, "grim_warden"))

	assets.setFailure(path, nil)
	result, err := themes.FetchAndCachePromptFile(ctx, "grim_warden", "master_initial")
	require.NoError(t, err)
	assert.Equal(t, models.PromptLoaded, result.Status)
	assert.True(t, themes.GetAllPromptsForTheme(ctx, "grim_warden"))
}

func TestPromptURLTableFailureCachedAsEmpty(t *testing.T) {
	assets := newFakeAssets()
	themes := newTestThemeService(assets)
	ctx := context.Background()

	assert.True(t, themes.GetAllPromptsForTheme(ctx, "salt_reavers"))
	result, err := themes.FetchAndCachePromptFile(ctx, "salt_reavers", "master_initial")
	require.NoError(t, err)
	assert.Equal(t, models.PromptURLMissing, result.Status)
	assert.Equal(t, 1, assets.callCount("themes/salt_reavers/prompts-config.json"))
}

func TestClearCacheForcesReload(t *testing.T) {
	assets := newFakeAssets().withGrimWarden()
	themes := newTestThemeService(assets)
	ctx := context.Background()

	require.True(t, themes.EnsureLoaded(ctx, "grim_warden"))
	themes.ClearCache()
	assert.False(t, themes.IsReady("grim_warden"))
	assert.Nil(t, themes.GetThemeConfig("grim_warden"))

	require.True(t, themes.EnsureLoaded(ctx, "grim_warden"))
	assert.Equal(t, 2, assets.callCount(grimConfigPath))
}

func TestClearCacheDiscardsInFlightLoad(t *testing.T) {
	assets := newFakeAssets().withGrimWarden()
	assets.block = make(chan struct{})
	themes := newTestThemeService(assets)

	done := make(chan struct{})
	go func() {
		defer close(done)
		themes.EnsureLoaded(context.Background(), "grim_warden")
	}()
	require.Eventually(t, func() bool { return assets.callCount(grimConfigPath) > 0 }, time.Second, 5*time.Millisecond)

	themes.ClearCache()
	close(assets.block)
	<-done

	assert.False(t, themes.IsReady("grim_warden"))
}
