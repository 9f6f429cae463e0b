// internal/services/progress_service.go
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/Corphon/SceneIntruderClient/internal/apiclient"
	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// 恩赐的默认增量，BoonSelection.Value 为 0 时使用
const (
	defaultMaxIntegrityBoon = 10
	defaultMaxWillpowerBoon = 10
	defaultAptitudeBoon     = 1
	defaultResilienceBoon   = 1

	maxCharacterNameLength = 40
)

// ProgressService 管理玩家在主题下的持久成长
type ProgressService struct {
	session *SessionService
	themes  *ThemeService
	backend BackendRequester
	logger  *utils.Logger
}

// NewProgressService 创建成长服务
func NewProgressService(session *SessionService, themes *ThemeService, backend BackendRequester, logger *utils.Logger) *ProgressService {
	return &ProgressService{
		session: session,
		themes:  themes,
		backend: backend,
		logger:  logger.With("progress"),
	}
}

// FetchUserThemeProgress 读取用户在主题下的成长记录。
// 没有记录时返回一级的新记录；主题是当前主题时写入会话。
func (s *ProgressService) FetchUserThemeProgress(ctx context.Context, themeID string) (*models.UserThemeProgress, error) {
	user := s.session.CurrentUser()
	if user == nil {
		return nil, apperrors.NewUnauthorizedError("需要登录", nil)
	}

	var progress models.UserThemeProgress
	err := s.backend.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/users/me/themes/" + url.PathEscape(themeID) + "/progress",
		Token:  user.Token,
	}, &progress)

	var result *models.UserThemeProgress
	switch {
	case err == nil:
		result = &progress
		if result.ThemeID == "" {
			result.ThemeID = themeID
		}
		if result.UserID == "" {
			result.UserID = user.ID
		}
		if result.Level < models.DefaultPlayerLevel {
			result.Level = models.DefaultPlayerLevel
		}
		if result.AcquiredTraitKeys == nil {
			result.AcquiredTraitKeys = []string{}
		}
	case apperrors.StatusOf(err) == http.StatusNotFound:
		result = models.NewUserThemeProgress(user.ID, themeID)
	default:
		s.logger.Error("读取成长记录失败", map[string]interface{}{
			"user_id": user.ID, "theme_id": themeID, "error": err.Error(),
		})
		return nil, apperrors.WrapError(err, "读取成长记录失败", apperrors.ErrorTypeError)
	}

	if s.session.CurrentTheme() == themeID {
		s.session.SetPlayerProgress(result)
	}
	return result.Clone(), nil
}

// ApplyBoon 应用升级后选择的恩赐，并清除等待标志
func (s *ProgressService) ApplyBoon(ctx context.Context, selection models.BoonSelection) (*models.UserThemeProgress, error) {
	if !s.session.IsBoonSelectionPending() {
		return nil, apperrors.NewValidationError("当前没有待选择的恩赐", nil)
	}

	value := selection.Value
	switch selection.Type {
	case models.BoonMaxIntegrity, models.BoonMaxWillpower, models.BoonAptitude, models.BoonResilience:
		if value < 0 {
			return nil, apperrors.NewValidationError("恩赐数值不能为负", nil)
		}
	case models.BoonTrait:
		if err := s.validateTrait(ctx, selection.TraitKey); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("未知的恩赐类型: %s", selection.Type), nil)
	}

	updated := s.session.UpdatePlayerProgress(func(p *models.UserThemeProgress) {
		switch selection.Type {
		case models.BoonMaxIntegrity:
			p.MaxIntegrityBonus += orDefault(value, defaultMaxIntegrityBoon)
		case models.BoonMaxWillpower:
			p.MaxWillpowerBonus += orDefault(value, defaultMaxWillpowerBoon)
		case models.BoonAptitude:
			p.AptitudeBonus += orDefault(value, defaultAptitudeBoon)
		case models.BoonResilience:
			p.ResilienceBonus += orDefault(value, defaultResilienceBoon)
		case models.BoonTrait:
			p.AcquiredTraitKeys = append(p.AcquiredTraitKeys, selection.TraitKey)
		}
	})
	s.session.SetBoonSelectionPending(false)
	if selection.Type == models.BoonTrait {
		s.session.SetTraitSelectionPending(false)
	}

	s.logger.Info("已应用恩赐", map[string]interface{}{
		"theme_id": updated.ThemeID, "type": selection.Type, "trait": selection.TraitKey,
	})
	return updated, nil
}

func (s *ProgressService) validateTrait(ctx context.Context, traitKey string) error {
	if strings.TrimSpace(traitKey) == "" {
		return apperrors.NewValidationError("特质不能为空", nil)
	}
	if s.session.PlayerProgress().HasTrait(traitKey) {
		return apperrors.NewValidationError("已拥有该特质: "+traitKey, nil)
	}
	themeID := s.session.CurrentTheme()
	if s.themes == nil || themeID == "" {
		return nil
	}
	traits := s.themes.FetchAndCacheTraitData(ctx, themeID)
	if len(traits) == 0 {
		// 主题没有特质表时不做校验
		return nil
	}
	if _, ok := traits[traitKey]; !ok {
		return apperrors.NewNotFoundError("主题中没有该特质: "+traitKey, nil)
	}
	return nil
}

// SetCharacterName 设置角色名
func (s *ProgressService) SetCharacterName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewValidationError("角色名不能为空", nil)
	}
	if utf8.RuneCountInString(name) > maxCharacterNameLength {
		return apperrors.NewValidationError(fmt.Sprintf("角色名不能超过%d个字符", maxCharacterNameLength), nil)
	}
	s.session.UpdatePlayerProgress(func(p *models.UserThemeProgress) {
		p.CharacterName = name
	})
	return nil
}

// AddExperience 增加经验并处理升级。每升一级设置恩赐等待标志，并向历史追加一条系统消息。
func (s *ProgressService) AddExperience(xp int) (levelsGained int) {
	if xp <= 0 {
		return 0
	}
	var cfg *models.ThemeConfig
	if s.themes != nil {
		cfg = s.themes.GetThemeConfig(s.session.CurrentTheme())
	}

	updated := s.session.UpdatePlayerProgress(func(p *models.UserThemeProgress) {
		if p.Level < models.DefaultPlayerLevel {
			p.Level = models.DefaultPlayerLevel
		}
		p.CurrentXP += xp
		for {
			needed := XPForNextLevel(cfg, p.Level)
			if needed <= 0 || p.CurrentXP < needed {
				break
			}
			p.CurrentXP -= needed
			p.Level++
			levelsGained++
		}
	})

	if levelsGained > 0 {
		s.session.SetBoonSelectionPending(true)
		s.session.AppendTurn(models.NewSystemTurn(models.SenderLevelUp, fmt.Sprintf("Level %d", updated.Level)))
		s.logger.Info("玩家升级", map[string]interface{}{
			"theme_id": updated.ThemeID, "level": updated.Level, "levels_gained": levelsGained,
		})
	}
	return levelsGained
}

func orDefault(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
