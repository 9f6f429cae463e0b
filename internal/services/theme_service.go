// internal/services/theme_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// 资源类别，用于日志和指标
const (
	assetConfig     = "config"
	assetTexts      = "texts"
	assetPromptURLs = "prompts_config"
	assetPrompt     = "prompt"
	assetItems      = "items"
	assetTraits     = "traits"
)

// themeAssets 单个主题已加载的资源，首次请求时创建，逐步填充
type themeAssets struct {
	config     *models.ThemeConfig
	texts      models.TextTable
	promptURLs map[string]string
	prompts    map[string]models.PromptResult
	traits     map[string]models.TraitDefinition
	items      map[string][]models.ItemDefinition
}

func newThemeAssets() *themeAssets {
	return &themeAssets{
		prompts: make(map[string]models.PromptResult),
		items:   make(map[string][]models.ItemDefinition),
	}
}

func (a *themeAssets) ready() bool {
	return a != nil && a.config != nil && a.texts != nil
}

func (a *themeAssets) complete() bool {
	return a.ready() && a.promptURLs != nil
}

// ThemeService 主题资源缓存。正向结果在 ClearCache 之前一直有效。
type ThemeService struct {
	manifest    *ThemeManifest
	fetcher     AssetFetcher
	defaultLang string
	logger      *utils.Logger
	metrics     *utils.MetricsCollector
	locks       *LockManager

	mu         sync.RWMutex
	assets     map[string]*themeAssets
	generation uint64

	group singleflight.Group
}

// ThemeServiceOptions 构造参数
type ThemeServiceOptions struct {
	Manifest        *ThemeManifest
	Fetcher         AssetFetcher
	DefaultLanguage string
	Logger          *utils.Logger
	Metrics         *utils.MetricsCollector
}

// NewThemeService 创建主题资源缓存
func NewThemeService(opts ThemeServiceOptions) *ThemeService {
	manifest := opts.Manifest
	if manifest == nil {
		manifest = DefaultManifest()
	}
	defaultLang := opts.DefaultLanguage
	if defaultLang == "" {
		defaultLang = "en"
	}
	return &ThemeService{
		manifest:    manifest,
		fetcher:     opts.Fetcher,
		defaultLang: defaultLang,
		logger:      opts.Logger.With("theme"),
		metrics:     opts.Metrics,
		locks:       NewLockManager(),
		assets:      make(map[string]*themeAssets),
	}
}

// Manifest 返回主题清单
func (s *ThemeService) Manifest() *ThemeManifest {
	return s.manifest
}

// record 返回主题记录，不存在时创建。调用方必须持有写锁。
func (s *ThemeService) recordLocked(themeID string) *themeAssets {
	rec, ok := s.assets[themeID]
	if !ok {
		rec = newThemeAssets()
		s.assets[themeID] = rec
	}
	return rec
}

// EnsureLoaded 确保主题的配置、文本和提示地址表都已加载。
// 已完整加载时不访问网络；否则并发获取缺失的部分。
// 可游玩主题的配置或文本加载失败时返回 false 且不缓存，之后可以重试。
func (s *ThemeService) EnsureLoaded(ctx context.Context, themeID string) bool {
	desc, ok := s.manifest.Get(themeID)
	if !ok {
		s.logger.Warn("未知主题", map[string]interface{}{"theme_id": themeID})
		return false
	}

	if s.isComplete(themeID) {
		s.metrics.IncrementCounter(utils.MetricAssetCacheHits)
		return true
	}

	result := true
	_ = s.locks.WithLock(themeID, func() error {
		s.mu.RLock()
		gen := s.generation
		var needConfig, needTexts, needPromptURLs bool
		rec := s.assets[themeID]
		needConfig = rec == nil || rec.config == nil
		needTexts = rec == nil || rec.texts == nil
		needPromptURLs = rec == nil || rec.promptURLs == nil
		s.mu.RUnlock()

		if !needConfig && !needTexts && !needPromptURLs {
			return nil
		}

		var (
			cfg        *models.ThemeConfig
			texts      models.TextTable
			promptURLs map[string]string
			configErr  error
			textsErr   error
		)

		var g errgroup.Group
		if needConfig {
			g.Go(func() error {
				var decoded models.ThemeConfig
				configErr = s.fetchJSON(ctx, assetConfig, desc.Path+"config.json", &decoded)
				if configErr == nil {
					if decoded.ID == "" {
						decoded.ID = themeID
					}
					cfg = &decoded
				}
				return nil
			})
		}
		if needTexts {
			g.Go(func() error {
				var decoded models.TextTable
				textsErr = s.fetchJSON(ctx, assetTexts, desc.Path+"texts.json", &decoded)
				if textsErr == nil {
					if decoded == nil {
						decoded = models.TextTable{}
					}
					texts = decoded
				}
				return nil
			})
		}
		if needPromptURLs {
			g.Go(func() error {
				var decoded map[string]string
				if err := s.fetchJSON(ctx, assetPromptURLs, desc.Path+"prompts-config.json", &decoded); err != nil {
					s.logger.Warn("提示地址表加载失败，按空表缓存", map[string]interface{}{
						"theme_id": themeID, "error": err.Error(),
					})
				}
				if decoded == nil {
					decoded = map[string]string{}
				}
				promptURLs = decoded
				return nil
			})
		}
		_ = g.Wait()

		s.mu.Lock()
		if s.generation == gen {
			rec := s.recordLocked(themeID)
			if cfg != nil {
				rec.config = cfg
			}
			if texts != nil {
				rec.texts = texts
			}
			if promptURLs != nil {
				rec.promptURLs = promptURLs
			}
		}
		s.mu.Unlock()

		for name, err := range map[string]error{assetConfig: configErr, assetTexts: textsErr} {
			if err == nil {
				continue
			}
			fields := map[string]interface{}{"theme_id": themeID, "asset": name, "error": err.Error()}
			if desc.Playable {
				s.logger.Error("主题关键资源加载失败", fields)
				result = false
			} else {
				s.logger.Warn("非游玩主题资源加载失败，忽略", fields)
			}
		}
		return nil
	})
	return result
}

// LoadManifestAll 并发加载清单中的全部主题，不会提前中止，返回所有结果的与
func (s *ThemeService) LoadManifestAll(ctx context.Context) bool {
	entries := s.manifest.All()
	results := make([]bool, len(entries))

	var g errgroup.Group
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			results[i] = s.EnsureLoaded(ctx, entry.ID)
			return nil
		})
	}
	_ = g.Wait()

	all := true
	for _, ok := range results {
		all = all && ok
	}
	return all
}

// IsReady 配置和文本都已加载
func (s *ThemeService) IsReady(themeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assets[themeID].ready()
}

func (s *ThemeService) isComplete(themeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.assets[themeID]
	return ok && rec.complete()
}

// GetThemeConfig 已加载的主题配置，未加载时返回 nil。返回值只读。
func (s *ThemeService) GetThemeConfig(themeID string) *models.ThemeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.assets[themeID]; ok {
		return rec.config
	}
	return nil
}

// GetText 查找主题文本：先按 lang，再按 lang 的基础语言，最后按默认语言。
// 返回 false 表示调用方应使用全局文本。
func (s *ThemeService) GetText(themeID, key, lang string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.assets[themeID]
	if !ok || rec.texts == nil {
		return "", false
	}
	for _, candidate := range languageCandidates(lang, s.defaultLang) {
		if table, ok := rec.texts[candidate]; ok {
			if text, ok := table[key]; ok {
				return text, true
			}
		}
	}
	return "", false
}

// languageCandidates 去重后的查找顺序
func languageCandidates(lang, defaultLang string) []string {
	candidates := make([]string, 0, 3)
	add := func(tag string) {
		if tag == "" {
			return
		}
		for _, existing := range candidates {
			if existing == tag {
				return
			}
		}
		candidates = append(candidates, tag)
	}

	add(lang)
	if tag, err := language.Parse(lang); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			add(base.String())
		}
	}
	add(defaultLang)
	return candidates
}

// FetchAndCacheItemData 主题某类道具定义。每个 (主题, 类型) 最多请求一次，
// 失败和空结果都按空列表缓存。
func (s *ThemeService) FetchAndCacheItemData(ctx context.Context, themeID, itemType string) []models.ItemDefinition {
	if cached, ok := s.cachedItems(themeID, itemType); ok {
		s.metrics.IncrementCounter(utils.MetricAssetCacheHits)
		return cached
	}
	desc, ok := s.manifest.Get(themeID)
	if !ok {
		return nil
	}

	key := fmt.Sprintf("items:%s:%s", themeID, itemType)
	value, _, _ := s.group.Do(key, func() (interface{}, error) {
		if cached, ok := s.cachedItems(themeID, itemType); ok {
			return cached, nil
		}
		gen := s.currentGeneration()

		var items []models.ItemDefinition
		if err := s.fetchJSON(ctx, assetItems, desc.Path+"data/"+itemType+"_items.json", &items); err != nil {
			s.logger.Warn("道具定义加载失败，按空缓存", map[string]interface{}{
				"theme_id": themeID, "item_type": itemType, "error": err.Error(),
			})
			items = nil
		}
		if items == nil {
			items = []models.ItemDefinition{}
		}

		s.mu.Lock()
		if s.generation == gen {
			s.recordLocked(themeID).items[itemType] = items
		}
		s.mu.Unlock()
		return items, nil
	})

	items, _ := value.([]models.ItemDefinition)
	return append([]models.ItemDefinition{}, items...)
}

func (s *ThemeService) cachedItems(themeID, itemType string) ([]models.ItemDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.assets[themeID]
	if !ok {
		return nil, false
	}
	items, ok := rec.items[itemType]
	if !ok {
		return nil, false
	}
	return append([]models.ItemDefinition{}, items...), true
}

// FetchAndCacheTraitData 主题特质定义，缓存策略与道具相同
func (s *ThemeService) FetchAndCacheTraitData(ctx context.Context, themeID string) map[string]models.TraitDefinition {
	if cached, ok := s.cachedTraits(themeID); ok {
		s.metrics.IncrementCounter(utils.MetricAssetCacheHits)
		return cached
	}
	desc, ok := s.manifest.Get(themeID)
	if !ok {
		return map[string]models.TraitDefinition{}
	}

	_, _, _ = s.group.Do("traits:"+themeID, func() (interface{}, error) {
		if _, ok := s.cachedTraits(themeID); ok {
			return nil, nil
		}
		gen := s.currentGeneration()

		var traits map[string]models.TraitDefinition
		if err := s.fetchJSON(ctx, assetTraits, desc.Path+"data/traits.json", &traits); err != nil {
			s.logger.Warn("特质定义加载失败，按空缓存", map[string]interface{}{
				"theme_id": themeID, "error": err.Error(),
			})
			traits = nil
		}
		if traits == nil {
			traits = map[string]models.TraitDefinition{}
		}
		for key, def := range traits {
			if def.Key == "" {
				def.Key = key
				traits[key] = def
			}
		}

		s.mu.Lock()
		if s.generation == gen {
			s.recordLocked(themeID).traits = traits
		}
		s.mu.Unlock()
		return nil, nil
	})

	cached, _ := s.cachedTraits(themeID)
	if cached == nil {
		cached = map[string]models.TraitDefinition{}
	}
	return cached
}

func (s *ThemeService) cachedTraits(themeID string) (map[string]models.TraitDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.assets[themeID]
	if !ok || rec.traits == nil {
		return nil, false
	}
	out := make(map[string]models.TraitDefinition, len(rec.traits))
	for k, v := range rec.traits {
		out[k] = v
	}
	return out, true
}

// FetchAndCachePromptFile 获取提示文件。Loaded、URLMissing、NotFound 三种结果都会缓存；
// 其他错误直接返回，不缓存。
func (s *ThemeService) FetchAndCachePromptFile(ctx context.Context, themeID, name string) (models.PromptResult, error) {
	desc, ok := s.manifest.Get(themeID)
	if !ok {
		return models.PromptResult{}, apperrors.NewNotFoundError("未知主题: "+themeID, nil)
	}
	if cached, ok := s.cachedPrompt(themeID, name); ok {
		s.metrics.IncrementCounter(utils.MetricAssetCacheHits)
		return cached, nil
	}

	urls := s.ensurePromptURLs(ctx, themeID, desc)

	value, err, _ := s.group.Do("prompt:"+themeID+":"+name, func() (interface{}, error) {
		if cached, ok := s.cachedPrompt(themeID, name); ok {
			return cached, nil
		}
		gen := s.currentGeneration()

		var result models.PromptResult
		url, ok := urls[name]
		if !ok || url == "" {
			result = models.PromptResult{Status: models.PromptURLMissing}
		} else {
			text, err := s.fetchText(ctx, assetPrompt, url)
			switch {
			case err == nil:
				result = models.LoadedPrompt(text)
			case errors.Is(err, apperrors.ErrResourceNotFound):
				result = models.PromptResult{Status: models.PromptNotFound}
			default:
				return models.PromptResult{}, fmt.Errorf("获取提示文件 %s/%s 失败: %w", themeID, name, err)
			}
		}

		s.mu.Lock()
		if s.generation == gen {
			s.recordLocked(themeID).prompts[name] = result
		}
		s.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return models.PromptResult{}, err
	}
	return value.(models.PromptResult), nil
}

// GetLoadedPromptText 已加载的提示文本，两种标记状态都返回 false
func (s *ThemeService) GetLoadedPromptText(themeID, name string) (string, bool) {
	cached, ok := s.cachedPrompt(themeID, name)
	if !ok {
		return "", false
	}
	return cached.Content()
}

// GetAllPromptsForTheme 并发获取主题的所有提示文件。任何一个返回错误时为 false，
// 没有提示时为 true。
func (s *ThemeService) GetAllPromptsForTheme(ctx context.Context, themeID string) bool {
	desc, ok := s.manifest.Get(themeID)
	if !ok {
		return false
	}
	urls := s.ensurePromptURLs(ctx, themeID, desc)

	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	sort.Strings(names)

	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			_, err := s.FetchAndCachePromptFile(ctx, themeID, name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("主题提示文件加载不完整", map[string]interface{}{"theme_id": themeID, "error": err.Error()})
		return false
	}
	return true
}

// ClearCache 清空全部主题资源，进行中的请求结果会被丢弃
func (s *ThemeService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = make(map[string]*themeAssets)
	s.generation++
}

func (s *ThemeService) cachedPrompt(themeID, name string) (models.PromptResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.assets[themeID]
	if !ok {
		return models.PromptResult{}, false
	}
	result, ok := rec.prompts[name]
	return result, ok
}

// ensurePromptURLs 返回提示地址表，必要时加载；失败按空表缓存
func (s *ThemeService) ensurePromptURLs(ctx context.Context, themeID string, desc models.ThemeDescriptor) map[string]string {
	if urls, ok := s.cachedPromptURLs(themeID); ok {
		return urls
	}

	_ = s.locks.WithLock(themeID, func() error {
		if _, ok := s.cachedPromptURLs(themeID); ok {
			return nil
		}
		gen := s.currentGeneration()
		var urls map[string]string
		if err := s.fetchJSON(ctx, assetPromptURLs, desc.Path+"prompts-config.json", &urls); err != nil {
			s.logger.Warn("提示地址表加载失败，按空表缓存", map[string]interface{}{
				"theme_id": themeID, "error": err.Error(),
			})
		}
		if urls == nil {
			urls = map[string]string{}
		}
		s.mu.Lock()
		if s.generation == gen {
			s.recordLocked(themeID).promptURLs = urls
		}
		s.mu.Unlock()
		return nil
	})

	urls, _ := s.cachedPromptURLs(themeID)
	return urls
}

func (s *ThemeService) cachedPromptURLs(themeID string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.assets[themeID]
	if !ok || rec.promptURLs == nil {
		return nil, false
	}
	out := make(map[string]string, len(rec.promptURLs))
	for k, v := range rec.promptURLs {
		out[k] = v
	}
	return out, true
}

func (s *ThemeService) currentGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *ThemeService) fetchJSON(ctx context.Context, kind, path string, out interface{}) error {
	if s.fetcher == nil {
		return fmt.Errorf("no asset fetcher configured")
	}
	err := s.fetcher.FetchJSON(ctx, path, out)
	s.metrics.RecordAssetFetch(kind, err == nil)
	return err
}

func (s *ThemeService) fetchText(ctx context.Context, kind, path string) (string, error) {
	if s.fetcher == nil {
		return "", fmt.Errorf("no asset fetcher configured")
	}
	text, err := s.fetcher.FetchText(ctx, path)
	s.metrics.RecordAssetFetch(kind, err == nil)
	return text, err
}
