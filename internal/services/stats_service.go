// internal/services/stats_service.go
package services

import (
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// StatChange 一次叙事带来的本局数值变化
type StatChange struct {
	Integrity        int      `json:"integrity,omitempty"`
	Willpower        int      `json:"willpower,omitempty"`
	Strain           int      `json:"strain,omitempty"`
	AddConditions    []string `json:"add_conditions,omitempty"`
	RemoveConditions []string `json:"remove_conditions,omitempty"`
}

// IsZero 没有任何变化
func (c StatChange) IsZero() bool {
	return c.Integrity == 0 && c.Willpower == 0 && c.Strain == 0 &&
		len(c.AddConditions) == 0 && len(c.RemoveConditions) == 0
}

// StatsService 调整本局即时数值：完整度与意志限制在 [0, 有效最大值]，压力限制在 [0, 主题上限]
type StatsService struct {
	session *SessionService
	themes  *ThemeService
	logger  *utils.Logger
}

// NewStatsService 创建数值服务
func NewStatsService(session *SessionService, themes *ThemeService, logger *utils.Logger) *StatsService {
	return &StatsService{
		session: session,
		themes:  themes,
		logger:  logger.With("stats"),
	}
}

// Apply 应用变化并返回新的数值
func (s *StatsService) Apply(change StatChange) models.RunStats {
	maxIntegrity := s.session.EffectiveMaxIntegrity()
	maxWillpower := s.session.EffectiveMaxWillpower()
	maxStrain := models.DefaultThemeConfig().MaxStrainLevel
	if cfg := s.themes.GetThemeConfig(s.session.CurrentTheme()); cfg != nil {
		maxStrain = cfg.MaxStrainLevel
	}

	stats := s.session.UpdateRunStats(func(r *models.RunStats) {
		r.CurrentIntegrity = clamp(r.CurrentIntegrity+change.Integrity, 0, maxIntegrity)
		r.CurrentWillpower = clamp(r.CurrentWillpower+change.Willpower, 0, maxWillpower)
		r.StrainLevel = clamp(r.StrainLevel+change.Strain, 0, maxStrain)
		r.Conditions = applyConditions(r.Conditions, change.AddConditions, change.RemoveConditions)
	})

	if stats.CurrentIntegrity == 0 && change.Integrity < 0 {
		s.logger.Info("完整度耗尽", map[string]interface{}{"theme_id": s.session.CurrentTheme()})
	}
	return stats
}

// Restore 恢复到有效最大值并清除压力和状态
func (s *StatsService) Restore() models.RunStats {
	maxIntegrity := s.session.EffectiveMaxIntegrity()
	maxWillpower := s.session.EffectiveMaxWillpower()
	return s.session.UpdateRunStats(func(r *models.RunStats) {
		r.CurrentIntegrity = maxIntegrity
		r.CurrentWillpower = maxWillpower
		r.StrainLevel = 0
		r.Conditions = []string{}
	})
}

// IsDefeated 完整度为0
func (s *StatsService) IsDefeated() bool {
	return s.session.CurrentTheme() != "" && s.session.RunStats().CurrentIntegrity == 0
}

func applyConditions(current, add, remove []string) []string {
	removed := make(map[string]bool, len(remove))
	for _, c := range remove {
		removed[c] = true
	}
	seen := make(map[string]bool, len(current)+len(add))
	out := make([]string, 0, len(current)+len(add))
	for _, list := range [][]string{current, add} {
		for _, c := range list {
			if c == "" || removed[c] || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
