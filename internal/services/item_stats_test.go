package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/models"
)

func activeGame(t *testing.T) *gameHarness {
	t.Helper()
	assets := newFakeAssets().withGrimWarden()
	assets.json["themes/grim_warden/data/relic_items.json"] = []models.ItemDefinition{
		{ID: "ash_lantern", ItemType: "relic", Slot: "hand"},
		{ID: "bone_dice", ItemType: "relic"},
	}
	h := newGameHarness(t, assets)
	require.NoError(t, h.game.ActivateTheme(context.Background(), "grim_warden"))
	return h
}

func TestItemServiceAddAndRemove(t *testing.T) {
	h := activeGame(t)
	items := h.game.Items()
	ctx := context.Background()

	require.NoError(t, items.AddItem(ctx, "relic", "ash_lantern", 1))
	require.NoError(t, items.AddItem(ctx, "relic", "ash_lantern", 2))
	assert.Equal(t, []models.InventoryItem{{ItemID: "ash_lantern", ItemType: "relic", Quantity: 3}}, h.session.CurrentInventory())

	assert.True(t, apperrors.IsNotFoundError(items.AddItem(ctx, "relic", "crown", 1)))
	assert.True(t, apperrors.IsValidationError(items.AddItem(ctx, "relic", "ash_lantern", 0)))
	assert.True(t, apperrors.IsValidationError(items.RemoveItem("ash_lantern", 5)))
	assert.True(t, apperrors.IsNotFoundError(items.RemoveItem("crown", 1)))

	slot, err := items.Equip(ctx, "ash_lantern")
	require.NoError(t, err)
	assert.Equal(t, "hand", slot)
	assert.Equal(t, models.EquippedItems{"hand": "ash_lantern"}, h.session.EquippedItems())

	require.NoError(t, items.RemoveItem("ash_lantern", 3))
	assert.Empty(t, h.session.CurrentInventory())
	assert.Empty(t, h.session.EquippedItems())
}

func TestItemServiceEquipRules(t *testing.T) {
	h := activeGame(t)
	items := h.game.Items()
	ctx := context.Background()

	_, err := items.Equip(ctx, "ash_lantern")
	assert.True(t, apperrors.IsNotFoundError(err))

	require.NoError(t, items.AddItem(ctx, "relic", "bone_dice", 1))
	_, err = items.Equip(ctx, "bone_dice")
	assert.True(t, apperrors.IsValidationError(err))

	assert.True(t, apperrors.IsNotFoundError(items.Unequip("hand")))
	require.NoError(t, items.AddItem(ctx, "relic", "ash_lantern", 1))
	_, err = items.Equip(ctx, "ash_lantern")
	require.NoError(t, err)
	require.NoError(t, items.Unequip("hand"))
	assert.Empty(t, h.session.EquippedItems())
}

func TestItemServiceRequiresActiveTheme(t *testing.T) {
	h := newGameHarness(t, newFakeAssets().withGrimWarden())
	_, err := h.game.Items().GetItem(context.Background(), "relic", "ash_lantern")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestStatsServiceClampsToEffectiveMaxima(t *testing.T) {
	h := activeGame(t)
	stats := h.game.Stats()

	got := stats.Apply(StatChange{Integrity: -30, Willpower: 50, Strain: 9, AddConditions: []string{"bleeding", "shaken", "bleeding"}})
	assert.Equal(t, 90, got.CurrentIntegrity)
	assert.Equal(t, 60, got.CurrentWillpower)
	assert.Equal(t, models.DefaultThemeConfig().MaxStrainLevel, got.StrainLevel)
	assert.Equal(t, []string{"bleeding", "shaken"}, got.Conditions)
	assert.Equal(t, got.StrainLevel, h.session.CurrentStrainLevel())

	got = stats.Apply(StatChange{Integrity: -500, Strain: -1, RemoveConditions: []string{"bleeding"}})
	assert.Zero(t, got.CurrentIntegrity)
	assert.Equal(t, []string{"shaken"}, got.Conditions)
	assert.True(t, stats.IsDefeated())

	got = stats.Restore()
	assert.Equal(t, 120, got.CurrentIntegrity)
	assert.Zero(t, got.StrainLevel)
	assert.Empty(t, h.session.ActiveConditions())
	assert.False(t, stats.IsDefeated())
}

func TestRecordNarrationAppliesStatsAndItems(t *testing.T) {
	h := activeGame(t)

	require.NoError(t, h.game.RecordNarration(context.Background(), Narration{
		Text:       "A lantern flickers in the ash.",
		StatChange: StatChange{Willpower: -10},
		ItemsGained: []models.InventoryItem{
			{ItemID: "ash_lantern", ItemType: "relic", Quantity: 1},
			{ItemID: "crown", ItemType: "relic", Quantity: 1},
		},
	}))
	assert.Equal(t, 50, h.session.RunStats().CurrentWillpower)
	assert.Equal(t, []models.InventoryItem{{ItemID: "ash_lantern", ItemType: "relic", Quantity: 1}}, h.session.CurrentInventory())
}

func TestApplyConditions(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, applyConditions([]string{"a", "b"}, []string{"c", "", "a"}, []string{"b"}))
	assert.Equal(t, []string{}, applyConditions(nil, nil, nil))
	assert.Equal(t, 3, clamp(5, 0, 3))
	assert.Equal(t, 0, clamp(5, 0, -1))
}
