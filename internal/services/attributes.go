// internal/services/attributes.go
package services

import "github.com/Corphon/SceneIntruderClient/internal/models"

// Derived attributes are recomputed on every call from the theme's base values
// and the player's progression bonuses. Nil inputs fall back to defaults.

func baseAttributes(cfg *models.ThemeConfig) models.BaseAttributes {
	if cfg == nil {
		return models.DefaultThemeConfig().BaseAttributes
	}
	return cfg.BaseAttributes
}

// EffectiveMaxIntegrity base integrity plus the max-integrity bonus.
func EffectiveMaxIntegrity(cfg *models.ThemeConfig, progress *models.UserThemeProgress) int {
	bonus := 0
	if progress != nil {
		bonus = progress.MaxIntegrityBonus
	}
	return baseAttributes(cfg).Integrity + bonus
}

// EffectiveMaxWillpower base willpower plus the max-willpower bonus.
func EffectiveMaxWillpower(cfg *models.ThemeConfig, progress *models.UserThemeProgress) int {
	bonus := 0
	if progress != nil {
		bonus = progress.MaxWillpowerBonus
	}
	return baseAttributes(cfg).Willpower + bonus
}

// EffectiveAptitude base aptitude plus the aptitude bonus.
func EffectiveAptitude(cfg *models.ThemeConfig, progress *models.UserThemeProgress) int {
	bonus := 0
	if progress != nil {
		bonus = progress.AptitudeBonus
	}
	return baseAttributes(cfg).Aptitude + bonus
}

// EffectiveResilience base resilience plus the resilience bonus.
func EffectiveResilience(cfg *models.ThemeConfig, progress *models.UserThemeProgress) int {
	bonus := 0
	if progress != nil {
		bonus = progress.ResilienceBonus
	}
	return baseAttributes(cfg).Resilience + bonus
}

// PlayerLevel is the progression level, 1 without progression.
func PlayerLevel(progress *models.UserThemeProgress) int {
	if progress == nil || progress.Level < models.DefaultPlayerLevel {
		return models.DefaultPlayerLevel
	}
	return progress.Level
}

// XPForNextLevel is the XP needed to leave level. Themes without an explicit
// table use 100 XP per level.
func XPForNextLevel(cfg *models.ThemeConfig, level int) int {
	if level < 1 {
		level = 1
	}
	if cfg != nil && len(cfg.XPPerLevel) > 0 {
		if level-1 < len(cfg.XPPerLevel) {
			return cfg.XPPerLevel[level-1]
		}
		return cfg.XPPerLevel[len(cfg.XPPerLevel)-1]
	}
	return 100 * level
}
