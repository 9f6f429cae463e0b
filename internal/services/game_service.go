// internal/services/game_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// GameService 主题激活与回合流程的编排
type GameService struct {
	themes      *ThemeService
	session     *SessionService
	persistence *PersistenceService
	progress    *ProgressService
	stats       *StatsService
	items       *ItemService
	logger      *utils.Logger
}

// NewGameService 创建游戏服务
func NewGameService(themes *ThemeService, session *SessionService, persistence *PersistenceService, progress *ProgressService, logger *utils.Logger) *GameService {
	return &GameService{
		themes:      themes,
		session:     session,
		persistence: persistence,
		progress:    progress,
		stats:       NewStatsService(session, themes, logger),
		items:       NewItemService(session, themes, logger),
		logger:      logger.With("game"),
	}
}

// Stats 本局数值服务
func (g *GameService) Stats() *StatsService { return g.stats }

// Items 道具服务
func (g *GameService) Items() *ItemService { return g.items }

// ActivateTheme 激活主题：加载资源、清空本局状态、读取成长与存档。
// 没有存档时以有效最大值开始新的一局。
func (g *GameService) ActivateTheme(ctx context.Context, themeID string) error {
	desc, ok := g.themes.Manifest().Get(themeID)
	if !ok {
		return apperrors.NewNotFoundError("未知主题: "+themeID, nil)
	}
	if !desc.Playable {
		return apperrors.NewValidationError("主题不可游玩: "+themeID, nil)
	}
	user := g.session.CurrentUser()
	if desc.LockedForAnonymous && user == nil {
		return apperrors.NewUnauthorizedError("该主题需要登录: "+themeID, nil)
	}
	if !g.themes.EnsureLoaded(ctx, themeID) {
		return apperrors.NewProcessingError("主题资源加载失败: "+themeID, nil)
	}

	g.session.ClearVolatileGameState()
	g.session.SetCurrentTheme(themeID)
	g.session.SetPlayerProgress(nil)

	if user != nil && g.progress != nil {
		if _, err := g.progress.FetchUserThemeProgress(ctx, themeID); err != nil {
			g.logger.Warn("成长记录读取失败，使用一级记录", map[string]interface{}{"theme_id": themeID, "error": err.Error()})
			g.session.SetPlayerProgress(models.NewUserThemeProgress(user.ID, themeID))
		}
	}
	if g.session.PlayerProgress() == nil {
		userID := ""
		if user != nil {
			userID = user.ID
		}
		g.session.SetPlayerProgress(models.NewUserThemeProgress(userID, themeID))
	}

	loaded, err := g.persistence.LoadGameState(ctx, themeID)
	if err != nil {
		return err
	}
	if loaded == nil || loaded.RunStats == nil {
		g.startFreshRun(themeID)
	}

	g.prefetch(ctx, themeID)
	g.logger.Info("主题已激活", map[string]interface{}{
		"theme_id": themeID, "resumed": loaded != nil, "turns": len(g.session.GameHistory()),
	})
	return nil
}

func (g *GameService) startFreshRun(themeID string) {
	g.session.SetRunStats(models.RunStats{
		CurrentIntegrity: g.session.EffectiveMaxIntegrity(),
		CurrentWillpower: g.session.EffectiveMaxWillpower(),
		Conditions:       []string{},
	})
	g.session.SetInitialGameLoad(true)
	if cfg := g.themes.GetThemeConfig(themeID); cfg != nil && g.session.CurrentPromptType() == "" {
		g.session.SetCurrentPromptType(cfg.StartingPrompt)
	}
}

// prefetch 预取道具、特质和提示文件，失败只记录日志
func (g *GameService) prefetch(ctx context.Context, themeID string) {
	cfg := g.themes.GetThemeConfig(themeID)

	var eg errgroup.Group
	if cfg != nil {
		for _, itemType := range cfg.ItemTypes {
			itemType := itemType
			eg.Go(func() error {
				g.themes.FetchAndCacheItemData(ctx, themeID, itemType)
				return nil
			})
		}
	}
	eg.Go(func() error {
		g.themes.FetchAndCacheTraitData(ctx, themeID)
		return nil
	})
	eg.Go(func() error {
		if !g.themes.GetAllPromptsForTheme(ctx, themeID) {
			return fmt.Errorf("提示文件未全部加载")
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		g.logger.Warn("预取主题资源不完整", map[string]interface{}{"theme_id": themeID, "error": err.Error()})
	}
}

// SwitchTheme 切换主题，先保存当前主题；保存失败时不切换，避免丢失未保存回合
func (g *GameService) SwitchTheme(ctx context.Context, themeID string) error {
	current := g.session.CurrentTheme()
	if current == themeID {
		return nil
	}
	if current != "" {
		if err := g.persistence.SaveCurrentGameState(ctx, false); err != nil {
			return apperrors.WrapError(err, "切换主题前保存失败", apperrors.ErrorTypeError)
		}
	}
	return g.ActivateTheme(ctx, themeID)
}

// SubmitPlayerAction 记录玩家行动并保存
func (g *GameService) SubmitPlayerAction(ctx context.Context, action string) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return apperrors.NewValidationError("行动不能为空", nil)
	}
	if g.session.CurrentTheme() == "" {
		return apperrors.NewValidationError("没有进行中的游戏", nil)
	}

	g.session.AppendTurn(models.NewTurn(models.RoleUser, action))
	g.session.SetInitialGameLoad(false)
	g.session.SetRunActive(true)
	return g.persistence.SaveCurrentGameState(ctx, false)
}

// Narration 模型返回的一次叙事
type Narration struct {
	Text             string
	DashboardUpdates models.DashboardUpdates
	Indicators       models.GameStateIndicators
	SuggestedActions []string
	XPAwarded        int
	StatChange       StatChange
	ItemsGained      []models.InventoryItem
}

// RecordNarration 记录模型叙事与其附带的状态更新并保存
func (g *GameService) RecordNarration(ctx context.Context, n Narration) error {
	if g.session.CurrentTheme() == "" {
		return apperrors.NewValidationError("没有进行中的游戏", nil)
	}

	g.session.AppendTurn(models.NewTurn(models.RoleModel, n.Text))
	if len(n.DashboardUpdates) > 0 {
		g.session.MergeDashboardUpdates(n.DashboardUpdates)
	}
	if n.Indicators != nil {
		g.session.SetLastGameStateIndicators(n.Indicators)
	}
	if n.SuggestedActions != nil {
		g.session.SetLastSuggestedActions(n.SuggestedActions)
	}
	if !n.StatChange.IsZero() {
		g.stats.Apply(n.StatChange)
	}
	for _, item := range n.ItemsGained {
		if err := g.items.AddItem(ctx, item.ItemType, item.ItemID, item.Quantity); err != nil {
			g.logger.Warn("忽略无效道具", map[string]interface{}{"item_id": item.ItemID, "error": err.Error()})
		}
	}
	if n.XPAwarded > 0 && g.progress != nil {
		g.progress.AddExperience(n.XPAwarded)
	}
	return g.persistence.SaveCurrentGameState(ctx, false)
}

// ChooseBoon 应用恩赐并强制保存
func (g *GameService) ChooseBoon(ctx context.Context, selection models.BoonSelection) error {
	if g.progress == nil {
		return apperrors.NewProcessingError("成长服务不可用", nil)
	}
	if _, err := g.progress.ApplyBoon(ctx, selection); err != nil {
		return err
	}
	return g.persistence.SaveCurrentGameState(ctx, true)
}

// ThemeText 当前主题的文本，缺失时返回 key 本身
func (g *GameService) ThemeText(key string) string {
	if text, ok := g.themes.GetText(g.session.CurrentTheme(), key, g.session.AppLanguage()); ok {
		return text
	}
	return key
}
