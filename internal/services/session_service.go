// internal/services/session_service.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/storage"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

const preferenceWriteTimeout = 5 * time.Second

// ThemeConfigSource 派生属性计算需要的主题配置
type ThemeConfigSource interface {
	GetThemeConfig(themeID string) *models.ThemeConfig
}

// DeltaToken 标识一次增量快照，用于之后退休已保存的前缀
type DeltaToken struct {
	epoch uint64
	count int
}

// Count 快照中的回合数
func (t DeltaToken) Count() int { return t.count }

// SessionService 当前游戏会话的唯一状态来源。
// 所有字段由同一把读写锁保护，setter 是唯一的修改途径。
type SessionService struct {
	mu     sync.RWMutex
	prefMu sync.Mutex
	themes ThemeConfigSource
	prefs  storage.PreferenceStore
	logger *utils.Logger

	currentTheme         string
	appLanguage          string
	narrativeLanguage    string
	modelName            string
	landingSelectedTheme string

	currentUser *models.User
	apiUsage    *models.APIUsageStats

	runStats         models.RunStats
	history          []models.Turn
	delta            []models.Turn
	epoch            uint64
	promptType       string
	dashboardUpdates models.DashboardUpdates
	indicators       models.GameStateIndicators
	suggestedActions []string
	panelStates      models.PanelStates
	evolvedLore      string
	progress         *models.UserThemeProgress
	inventory        []models.InventoryItem
	equipped         models.EquippedItems
	newWorldUnlock   string

	initialGameLoad       bool
	runActive             bool
	traitSelectionPending bool
	boonSelectionPending  bool
}

// SessionServiceOptions 构造参数
type SessionServiceOptions struct {
	Themes                   ThemeConfigSource
	Preferences              storage.PreferenceStore
	Logger                   *utils.Logger
	DefaultLanguage          string
	DefaultNarrativeLanguage string
	DefaultModel             string
}

// NewSessionService 创建会话状态，并从偏好存储读取一次持久化的值
func NewSessionService(opts SessionServiceOptions) *SessionService {
	prefs := opts.Preferences
	if prefs == nil {
		prefs = storage.NewMemoryPreferenceStore(nil)
	}
	s := &SessionService{
		themes:            opts.Themes,
		prefs:             prefs,
		logger:            opts.Logger.With("session"),
		appLanguage:       opts.DefaultLanguage,
		narrativeLanguage: opts.DefaultNarrativeLanguage,
		modelName:         opts.DefaultModel,
	}
	if s.narrativeLanguage == "" {
		s.narrativeLanguage = s.appLanguage
	}

	ctx, cancel := context.WithTimeout(context.Background(), preferenceWriteTimeout)
	defer cancel()
	for key, target := range map[string]*string{
		storage.KeyCurrentTheme:         &s.currentTheme,
		storage.KeyAppLanguage:          &s.appLanguage,
		storage.KeyNarrativeLanguage:    &s.narrativeLanguage,
		storage.KeyModelName:            &s.modelName,
		storage.KeyLandingSelectedTheme: &s.landingSelectedTheme,
	} {
		value, ok, err := prefs.Get(ctx, key)
		if err != nil {
			s.logger.Warn("读取偏好失败，使用默认值", map[string]interface{}{"key": key, "error": err.Error()})
			continue
		}
		if ok && value != "" {
			*target = value
		}
	}
	return s
}

// persist 把键的最新内存值写入偏好存储，空值删除该键
func (s *SessionService) persist(key string, read func() string) {
	s.prefMu.Lock()
	defer s.prefMu.Unlock()

	s.mu.RLock()
	value := read()
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), preferenceWriteTimeout)
	defer cancel()

	var err error
	if value == "" {
		err = s.prefs.Delete(ctx, key)
	} else {
		err = s.prefs.Set(ctx, key, value)
	}
	if err != nil {
		s.logger.Warn("写入偏好失败", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

// ---- 持久化偏好 ----

// CurrentTheme 当前激活的主题，为空表示没有进行中的游戏
func (s *SessionService) CurrentTheme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTheme
}

// SetCurrentTheme 设置当前主题并写入偏好
func (s *SessionService) SetCurrentTheme(themeID string) {
	s.mu.Lock()
	s.currentTheme = themeID
	s.mu.Unlock()
	s.persist(storage.KeyCurrentTheme, func() string { return s.currentTheme })
}

// AppLanguage 界面语言
func (s *SessionService) AppLanguage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appLanguage
}

// SetAppLanguage 设置界面语言并写入偏好
func (s *SessionService) SetAppLanguage(lang string) {
	s.mu.Lock()
	s.appLanguage = lang
	s.mu.Unlock()
	s.persist(storage.KeyAppLanguage, func() string { return s.appLanguage })
}

// NarrativeLanguage 叙事语言
func (s *SessionService) NarrativeLanguage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.narrativeLanguage
}

// SetNarrativeLanguage 设置叙事语言并写入偏好
func (s *SessionService) SetNarrativeLanguage(lang string) {
	s.mu.Lock()
	s.narrativeLanguage = lang
	s.mu.Unlock()
	s.persist(storage.KeyNarrativeLanguage, func() string { return s.narrativeLanguage })
}

// ModelName 叙事模型
func (s *SessionService) ModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelName
}

// SetModelName 设置叙事模型并写入偏好
func (s *SessionService) SetModelName(name string) {
	s.mu.Lock()
	s.modelName = name
	s.mu.Unlock()
	s.persist(storage.KeyModelName, func() string { return s.modelName })
}

// LandingSelectedTheme 首页选中的主题
func (s *SessionService) LandingSelectedTheme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.landingSelectedTheme
}

// SetLandingSelectedTheme 设置首页选中主题并写入偏好
func (s *SessionService) SetLandingSelectedTheme(themeID string) {
	s.mu.Lock()
	s.landingSelectedTheme = themeID
	s.mu.Unlock()
	s.persist(storage.KeyLandingSelectedTheme, func() string { return s.landingSelectedTheme })
}

// ---- 用户 ----

// CurrentUser 当前用户的副本，未登录为 nil
func (s *SessionService) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentUser == nil {
		return nil
	}
	user := *s.currentUser
	user.APIUsage = s.currentUser.APIUsage.Clone()
	return &user
}

// SetCurrentUser 设置当前用户，同时导入（或清空）该用户的 API 用量快照
func (s *SessionService) SetCurrentUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user == nil {
		s.currentUser = nil
		s.apiUsage = nil
		return
	}
	clone := *user
	clone.APIUsage = user.APIUsage.Clone()
	s.currentUser = &clone
	s.apiUsage = user.APIUsage.Clone()
}

// APIUsage API 用量快照
func (s *SessionService) APIUsage() *models.APIUsageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiUsage.Clone()
}

// SetAPIUsage 更新 API 用量快照
func (s *SessionService) SetAPIUsage(usage *models.APIUsageStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiUsage = usage.Clone()
}

// ---- 历史与增量 ----

// GameHistory 完整历史的副本
func (s *SessionService) GameHistory() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Turn(nil), s.history...)
}

// SetGameHistory 替换历史并清空未保存增量
func (s *SessionService) SetGameHistory(history []models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]models.Turn(nil), history...)
	s.delta = nil
	s.epoch++
}

// AppendTurn 在同一次加锁中追加到历史和未保存增量
func (s *SessionService) AppendTurn(turn models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
	s.delta = append(s.delta, turn)
}

// UnsavedDelta 未保存增量的副本，总是历史的后缀
func (s *SessionService) UnsavedDelta() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Turn(nil), s.delta...)
}

// DeltaSnapshot 返回当前增量与标识它的令牌
func (s *SessionService) DeltaSnapshot() ([]models.Turn, DeltaToken) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Turn(nil), s.delta...), DeltaToken{epoch: s.epoch, count: len(s.delta)}
}

// RetireDelta 移除快照对应的增量前缀。快照之后历史被重置过时不做任何事并返回 false。
func (s *SessionService) RetireDelta(token DeltaToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retireDeltaLocked(token)
}

func (s *SessionService) retireDeltaLocked(token DeltaToken) bool {
	if token.epoch != s.epoch || token.count > len(s.delta) {
		return false
	}
	remaining := s.delta[token.count:]
	if len(remaining) == 0 {
		s.delta = nil
	} else {
		s.delta = append([]models.Turn(nil), remaining...)
	}
	return true
}

// ---- 回合辅助状态 ----

// CurrentPromptType 当前提示类型
func (s *SessionService) CurrentPromptType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.promptType
}

// SetCurrentPromptType 设置提示类型
func (s *SessionService) SetCurrentPromptType(promptType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptType = promptType
}

// LastDashboardUpdates 仪表盘字段缓存的副本
func (s *SessionService) LastDashboardUpdates() models.DashboardUpdates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAnyMap(s.dashboardUpdates)
}

// SetLastDashboardUpdates 替换仪表盘字段缓存
func (s *SessionService) SetLastDashboardUpdates(updates models.DashboardUpdates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dashboardUpdates = copyAnyMap(updates)
}

// MergeDashboardUpdates 合并模型返回的仪表盘字段
func (s *SessionService) MergeDashboardUpdates(updates models.DashboardUpdates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dashboardUpdates == nil {
		s.dashboardUpdates = models.DashboardUpdates{}
	}
	for k, v := range updates {
		s.dashboardUpdates[k] = v
	}
}

// LastGameStateIndicators 状态指示的副本
func (s *SessionService) LastGameStateIndicators() models.GameStateIndicators {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAnyMap(s.indicators)
}

// SetLastGameStateIndicators 替换状态指示
func (s *SessionService) SetLastGameStateIndicators(indicators models.GameStateIndicators) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indicators = copyAnyMap(indicators)
}

// LastSuggestedActions 建议行动
func (s *SessionService) LastSuggestedActions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.suggestedActions...)
}

// SetLastSuggestedActions 设置建议行动
func (s *SessionService) SetLastSuggestedActions(actions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestedActions = append([]string(nil), actions...)
}

// PanelStates 面板展开状态
func (s *SessionService) PanelStates() models.PanelStates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyBoolMap(s.panelStates)
}

// SetPanelState 设置单个面板的展开状态
func (s *SessionService) SetPanelState(panelID string, expanded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panelStates == nil {
		s.panelStates = models.PanelStates{}
	}
	s.panelStates[panelID] = expanded
}

// SetPanelStates 替换全部面板状态
func (s *SessionService) SetPanelStates(states models.PanelStates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelStates = copyBoolMap(states)
}

// EvolvedLore 演化后的世界设定
func (s *SessionService) EvolvedLore() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evolvedLore
}

// SetEvolvedLore 设置演化后的世界设定
func (s *SessionService) SetEvolvedLore(lore string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evolvedLore = lore
}

// ---- 本局数值与成长 ----

// RunStats 本局即时数值的副本
func (s *SessionService) RunStats() models.RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runStats.Clone()
}

// SetRunStats 替换本局即时数值
func (s *SessionService) SetRunStats(stats models.RunStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runStats = stats.Clone()
}

// UpdateRunStats 在锁内修改本局数值并返回修改后的副本
func (s *SessionService) UpdateRunStats(mutate func(stats *models.RunStats)) models.RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.runStats)
	return s.runStats.Clone()
}

// PlayerProgress 成长记录的副本
func (s *SessionService) PlayerProgress() *models.UserThemeProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.Clone()
}

// SetPlayerProgress 替换成长记录
func (s *SessionService) SetPlayerProgress(progress *models.UserThemeProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = progress.Clone()
}

// UpdatePlayerProgress 在锁内修改成长记录，没有记录时为当前主题新建一条
func (s *SessionService) UpdatePlayerProgress(mutate func(p *models.UserThemeProgress)) *models.UserThemeProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		userID := ""
		if s.currentUser != nil {
			userID = s.currentUser.ID
		}
		s.progress = models.NewUserThemeProgress(userID, s.currentTheme)
	}
	mutate(s.progress)
	return s.progress.Clone()
}

// CurrentInventory 背包
func (s *SessionService) CurrentInventory() []models.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.InventoryItem(nil), s.inventory...)
}

// SetCurrentInventory 替换背包
func (s *SessionService) SetCurrentInventory(items []models.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory = append([]models.InventoryItem(nil), items...)
}

// EquippedItems 装备
func (s *SessionService) EquippedItems() models.EquippedItems {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyStringMap(s.equipped)
}

// SetEquippedItems 替换装备
func (s *SessionService) SetEquippedItems(items models.EquippedItems) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equipped = copyStringMap(items)
}

// UpdateInventory 在锁内同时修改背包与装备，mutate 返回错误时不做任何修改
func (s *SessionService) UpdateInventory(mutate func(items []models.InventoryItem, equipped models.EquippedItems) ([]models.InventoryItem, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	equipped := copyStringMap(s.equipped)
	if equipped == nil {
		equipped = models.EquippedItems{}
	}
	items, err := mutate(append([]models.InventoryItem(nil), s.inventory...), equipped)
	if err != nil {
		return err
	}
	s.inventory = items
	s.equipped = equipped
	return nil
}

// NewWorldUnlock 待提交的新世界解锁
func (s *SessionService) NewWorldUnlock() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newWorldUnlock
}

// SetNewWorldUnlock 设置待提交的新世界解锁
func (s *SessionService) SetNewWorldUnlock(themeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newWorldUnlock = themeID
}

// ---- 标志 ----

// IsInitialGameLoad 是否是首次加载
func (s *SessionService) IsInitialGameLoad() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialGameLoad
}

// SetInitialGameLoad 设置首次加载标志
func (s *SessionService) SetInitialGameLoad(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialGameLoad = v
}

// IsRunActive 本局是否进行中
func (s *SessionService) IsRunActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runActive
}

// SetRunActive 设置本局进行中标志
func (s *SessionService) SetRunActive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runActive = v
}

// IsTraitSelectionPending 是否等待选择特质
func (s *SessionService) IsTraitSelectionPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.traitSelectionPending
}

// SetTraitSelectionPending 设置特质选择标志
func (s *SessionService) SetTraitSelectionPending(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traitSelectionPending = v
}

// IsBoonSelectionPending 是否等待选择恩赐
func (s *SessionService) IsBoonSelectionPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boonSelectionPending
}

// SetBoonSelectionPending 设置恩赐选择标志
func (s *SessionService) SetBoonSelectionPending(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boonSelectionPending = v
}

// ---- 派生属性，每次调用重新计算 ----

func (s *SessionService) derivedInputs() (*models.ThemeConfig, *models.UserThemeProgress) {
	s.mu.RLock()
	themeID := s.currentTheme
	progress := s.progress.Clone()
	s.mu.RUnlock()

	var cfg *models.ThemeConfig
	if s.themes != nil && themeID != "" {
		cfg = s.themes.GetThemeConfig(themeID)
	}
	return cfg, progress
}

// PlayerLevel 当前等级
func (s *SessionService) PlayerLevel() int {
	_, progress := s.derivedInputs()
	return PlayerLevel(progress)
}

// EffectiveMaxIntegrity 有效最大完整度
func (s *SessionService) EffectiveMaxIntegrity() int {
	return EffectiveMaxIntegrity(s.derivedInputs())
}

// EffectiveMaxWillpower 有效最大意志
func (s *SessionService) EffectiveMaxWillpower() int {
	return EffectiveMaxWillpower(s.derivedInputs())
}

// EffectiveAptitude 有效天资
func (s *SessionService) EffectiveAptitude() int {
	return EffectiveAptitude(s.derivedInputs())
}

// EffectiveResilience 有效韧性
func (s *SessionService) EffectiveResilience() int {
	return EffectiveResilience(s.derivedInputs())
}

// AcquiredTraitKeys 已获得的特质
func (s *SessionService) AcquiredTraitKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.progress == nil {
		return []string{}
	}
	return append([]string{}, s.progress.AcquiredTraitKeys...)
}

// CurrentStrainLevel 当前压力等级
func (s *SessionService) CurrentStrainLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runStats.StrainLevel
}

// ActiveConditions 当前状态效果
func (s *SessionService) ActiveConditions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.runStats.Conditions...)
}

// ---- 重置 ----

// ClearVolatileGameState 清空本局相关状态，保留语言、模型和用户
func (s *SessionService) ClearVolatileGameState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearVolatileLocked()
}

func (s *SessionService) clearVolatileLocked() {
	s.history = nil
	s.delta = nil
	s.epoch++
	s.promptType = ""
	s.dashboardUpdates = nil
	s.indicators = nil
	s.suggestedActions = nil
	s.panelStates = nil
	s.evolvedLore = ""
	s.runStats = models.RunStats{}
	s.initialGameLoad = false
	s.runActive = false
	s.traitSelectionPending = false
	s.boonSelectionPending = false
	s.inventory = nil
	s.equipped = nil
	s.newWorldUnlock = ""
}

// ResetForLogout 登出：清除用户、本局状态、当前主题和成长记录
func (s *SessionService) ResetForLogout() {
	s.mu.Lock()
	s.currentUser = nil
	s.apiUsage = nil
	s.clearVolatileLocked()
	s.currentTheme = ""
	s.progress = nil
	s.mu.Unlock()
	s.persist(storage.KeyCurrentTheme, func() string { return s.currentTheme })
}

// ---- 持久化支持 ----

// SnapshotForSave 在一次加锁中构造保存载荷并取走待提交的世界解锁
func (s *SessionService) SnapshotForSave() (models.GameStatePayload, DeltaToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := models.GameStatePayload{
		ThemeID:                  s.currentTheme,
		GameHistoryDelta:         append([]models.Turn{}, s.delta...),
		LastDashboardUpdates:     copyAnyMap(s.dashboardUpdates),
		LastGameStateIndicators:  copyAnyMap(s.indicators),
		CurrentPromptType:        s.promptType,
		CurrentNarrativeLanguage: s.narrativeLanguage,
		LastSuggestedActions:     append([]string{}, s.suggestedActions...),
		PanelStates:              copyBoolMap(s.panelStates),
		ModelName:                s.modelName,
		PlayerProgress:           s.progress.Clone(),
		CurrentInventory:         append([]models.InventoryItem{}, s.inventory...),
		EquippedItems:            copyStringMap(s.equipped),
		RunStats:                 s.runStats.Clone(),
		IsBoonSelectionPending:   s.boonSelectionPending,
		NewWorldUnlock:           s.newWorldUnlock,
	}
	s.newWorldUnlock = ""
	return payload, DeltaToken{epoch: s.epoch, count: len(s.delta)}
}

// CompleteSave 保存成功后写入演化设定并退休已提交的增量
func (s *SessionService) CompleteSave(token DeltaToken, evolvedLore *string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evolvedLore != nil && token.epoch == s.epoch {
		s.evolvedLore = *evolvedLore
	}
	return s.retireDeltaLocked(token)
}

// ApplyLoadedGameState 应用从后端读取的状态：替换历史（清空增量）和辅助字段
func (s *SessionService) ApplyLoadedGameState(state *models.LoadedGameState) {
	if state == nil {
		return
	}
	s.mu.Lock()
	s.history = append([]models.Turn(nil), state.GameHistory...)
	s.delta = nil
	s.epoch++
	s.evolvedLore = state.EvolvedLore
	s.dashboardUpdates = copyAnyMap(state.LastDashboardUpdates)
	s.indicators = copyAnyMap(state.LastGameStateIndicators)
	s.promptType = state.CurrentPromptType
	s.suggestedActions = append([]string(nil), state.LastSuggestedActions...)
	s.panelStates = copyBoolMap(state.PanelStates)
	s.inventory = append([]models.InventoryItem(nil), state.CurrentInventory...)
	s.equipped = copyStringMap(state.EquippedItems)
	if state.RunStats != nil {
		s.runStats = state.RunStats.Clone()
	}
	s.boonSelectionPending = state.IsBoonSelectionPending
	modelChanged := state.ModelName != "" && state.ModelName != s.modelName
	if modelChanged {
		s.modelName = state.ModelName
	}
	s.initialGameLoad = len(state.GameHistory) == 0
	s.runActive = len(state.GameHistory) > 0
	s.mu.Unlock()

	if modelChanged {
		s.persist(storage.KeyModelName, func() string { return s.modelName })
	}
}

func copyAnyMap[M ~map[string]interface{}](in M) M {
	if in == nil {
		return nil
	}
	out := make(M, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyBoolMap(in models.PanelStates) models.PanelStates {
	if in == nil {
		return nil
	}
	out := make(models.PanelStates, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStringMap(in models.EquippedItems) models.EquippedItems {
	if in == nil {
		return nil
	}
	out := make(models.EquippedItems, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
