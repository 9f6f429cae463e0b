// internal/models/progress.go
package models

// 可选的恩赐类型
const (
	BoonMaxIntegrity = "max_integrity"
	BoonMaxWillpower = "max_willpower"
	BoonAptitude     = "aptitude"
	BoonResilience   = "resilience"
	BoonTrait        = "trait"
)

// UserThemeProgress 用户在某个主题下的持久角色成长，权威副本在服务端
type UserThemeProgress struct {
	UserID            string   `json:"user_id,omitempty"`
	ThemeID           string   `json:"theme_id"`
	Level             int      `json:"level"`
	CurrentXP         int      `json:"current_xp"`
	MaxIntegrityBonus int      `json:"max_integrity_bonus"`
	MaxWillpowerBonus int      `json:"max_willpower_bonus"`
	AptitudeBonus     int      `json:"aptitude_bonus"`
	ResilienceBonus   int      `json:"resilience_bonus"`
	AcquiredTraitKeys []string `json:"acquired_traits"`
	CharacterName     string   `json:"character_name,omitempty"`
}

// NewUserThemeProgress 返回一级的空白成长记录
func NewUserThemeProgress(userID, themeID string) *UserThemeProgress {
	return &UserThemeProgress{
		UserID:            userID,
		ThemeID:           themeID,
		Level:             DefaultPlayerLevel,
		AcquiredTraitKeys: []string{},
	}
}

// Clone 深拷贝，调用方拿到的副本可以随意修改
func (p *UserThemeProgress) Clone() *UserThemeProgress {
	if p == nil {
		return nil
	}
	clone := *p
	clone.AcquiredTraitKeys = append([]string(nil), p.AcquiredTraitKeys...)
	return &clone
}

// HasTrait 是否已获得特质
func (p *UserThemeProgress) HasTrait(key string) bool {
	if p == nil {
		return false
	}
	for _, existing := range p.AcquiredTraitKeys {
		if existing == key {
			return true
		}
	}
	return false
}

// BoonSelection 玩家在升级后选择的恩赐
type BoonSelection struct {
	Type     string `json:"type"`
	Value    int    `json:"value,omitempty"`
	TraitKey string `json:"trait_key,omitempty"`
}
