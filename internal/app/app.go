// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Corphon/SceneIntruderClient/internal/apiclient"
	"github.com/Corphon/SceneIntruderClient/internal/config"
	"github.com/Corphon/SceneIntruderClient/internal/di"
	"github.com/Corphon/SceneIntruderClient/internal/services"
	"github.com/Corphon/SceneIntruderClient/internal/storage"
	"github.com/Corphon/SceneIntruderClient/internal/telemetry"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

const serviceName = "scene-intruder-client"

// Options 应用构造参数
type Options struct {
	Config *config.Config
	// LogOutput 为 nil 时写到标准输出
	LogOutput io.Writer
	// HTTPClient 可选，测试时注入
	HTTPClient *http.Client
	// Container 为 nil 时新建容器
	Container *di.Container
}

// App 客户端会话核心的装配结果
type App struct {
	config          *config.Config
	logger          *utils.Logger
	metrics         *utils.MetricsCollector
	container       *di.Container
	prefs           storage.PreferenceStore
	client          *apiclient.Client
	shutdownTracing telemetry.ShutdownFunc

	stopChan chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// New 按依赖顺序初始化：日志、追踪、指标、偏好存储、网络协作者、服务
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := utils.NewLogger(out, utils.ParseLogLevel(cfg.LogLevel))
	if cfg.DebugMode {
		logger.SetLogLevel(utils.DEBUG)
	}
	if cfg.LogDir != "" {
		logFile := filepath.Join(cfg.LogDir, fmt.Sprintf("client_%s.log", time.Now().Format("2006-01-02")))
		if err := logger.InitLogFile(logFile); err != nil {
			logger.Warn("日志文件初始化失败，仅输出到控制台", map[string]interface{}{"error": err.Error()})
		}
	}

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("追踪初始化失败，继续运行", map[string]interface{}{"error": err.Error()})
	}

	a := &App{
		config:          cfg,
		logger:          logger,
		metrics:         utils.NewMetricsCollector(),
		container:       opts.Container,
		shutdownTracing: shutdownTracing,
		stopChan:        make(chan struct{}),
	}
	if a.container == nil {
		a.container = di.NewContainer()
	}

	manifest := services.DefaultManifest()
	if cfg.ManifestPath != "" {
		if manifest, err = services.LoadManifestFile(cfg.ManifestPath); err != nil {
			_ = logger.Close()
			return nil, err
		}
	}

	prefs, err := storage.OpenPreferenceStore(cfg.PreferencesBackend, cfg.DataDir, cfg.PreferencesPath)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("打开偏好存储失败: %w", err)
	}
	a.prefs = prefs

	a.client = apiclient.New(apiclient.Options{
		APIBaseURL:   cfg.APIBaseURL,
		AssetBaseURL: cfg.AssetBaseURL,
		Timeout:      cfg.RequestTimeout,
		Token:        cfg.AuthToken,
		HTTPClient:   opts.HTTPClient,
		Logger:       logger,
		Metrics:      a.metrics,
	})

	a.initServices(manifest)
	logger.Info("客户端已初始化", map[string]interface{}{
		"api_base_url": cfg.APIBaseURL,
		"preferences":  cfg.PreferencesBackend,
		"services":     len(a.container.GetNames()),
	})
	return a, nil
}

// initServices 按依赖顺序创建服务并注册到容器
func (a *App) initServices(manifest *services.ThemeManifest) {
	c := a.container
	c.Register(di.ServiceLogger, a.logger)
	c.Register(di.ServiceMetrics, a.metrics)
	c.Register(di.ServicePreferences, a.prefs)
	c.Register(di.ServiceAPIClient, a.client)

	themes := services.NewThemeService(services.ThemeServiceOptions{
		Manifest:        manifest,
		Fetcher:         a.client,
		DefaultLanguage: a.config.DefaultLanguage,
		Logger:          a.logger,
		Metrics:         a.metrics,
	})
	c.Register(di.ServiceThemes, themes)

	session := services.NewSessionService(services.SessionServiceOptions{
		Themes:                   themes,
		Preferences:              a.prefs,
		Logger:                   a.logger,
		DefaultLanguage:          a.config.DefaultLanguage,
		DefaultNarrativeLanguage: a.config.DefaultNarrativeLan,
		DefaultModel:             a.config.DefaultModel,
	})
	c.Register(di.ServiceSession, session)

	persistence := services.NewPersistenceService(session, a.client, a.logger, a.metrics)
	c.Register(di.ServicePersistence, persistence)

	progress := services.NewProgressService(session, themes, a.client, a.logger)
	c.Register(di.ServiceProgress, progress)

	c.Register(di.ServiceUser, services.NewUserService(session, persistence, a.client, a.client, a.logger))
	game := services.NewGameService(themes, session, persistence, progress, a.logger)
	c.Register(di.ServiceGame, game)
	c.Register(di.ServiceStats, game.Stats())
	c.Register(di.ServiceItems, game.Items())
}

// Config 当前配置
func (a *App) Config() *config.Config { return a.config }

// Logger 根日志
func (a *App) Logger() *utils.Logger { return a.logger }

// Metrics 指标收集器
func (a *App) Metrics() *utils.MetricsCollector { return a.metrics }

// Container 依赖注入容器
func (a *App) Container() *di.Container { return a.container }

// IsDebugMode 是否调试模式
func (a *App) IsDebugMode() bool { return a.config.DebugMode }

// Themes 主题资源缓存
func (a *App) Themes() *services.ThemeService {
	return di.MustResolve[*services.ThemeService](a.container, di.ServiceThemes)
}

// Session 会话状态
func (a *App) Session() *services.SessionService {
	return di.MustResolve[*services.SessionService](a.container, di.ServiceSession)
}

// Persistence 持久化引擎
func (a *App) Persistence() *services.PersistenceService {
	return di.MustResolve[*services.PersistenceService](a.container, di.ServicePersistence)
}

// Progress 成长服务
func (a *App) Progress() *services.ProgressService {
	return di.MustResolve[*services.ProgressService](a.container, di.ServiceProgress)
}

// Users 用户服务
func (a *App) Users() *services.UserService {
	return di.MustResolve[*services.UserService](a.container, di.ServiceUser)
}

// Game 游戏编排
func (a *App) Game() *services.GameService {
	return di.MustResolve[*services.GameService](a.container, di.ServiceGame)
}

// Items 道具服务
func (a *App) Items() *services.ItemService {
	return di.MustResolve[*services.ItemService](a.container, di.ServiceItems)
}

// Done 在 Shutdown 完成后关闭
func (a *App) Done() <-chan struct{} { return a.stopChan }

// Shutdown 尽力保存当前进度，然后关闭偏好存储、追踪和日志文件。多次调用只执行一次。
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		if err := a.Persistence().SaveCurrentGameState(ctx, false); err != nil {
			a.logger.Warn("退出前保存失败", map[string]interface{}{"error": err.Error()})
			errs = append(errs, err)
		}
		if a.prefs != nil {
			if err := a.prefs.Close(); err != nil {
				errs = append(errs, fmt.Errorf("关闭偏好存储: %w", err))
			}
		}
		if a.shutdownTracing != nil {
			if err := a.shutdownTracing(ctx); err != nil {
				errs = append(errs, fmt.Errorf("关闭追踪: %w", err))
			}
		}
		a.logger.Info("客户端已关闭", nil)
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
		a.stopErr = errors.Join(errs...)
		close(a.stopChan)
	})
	return a.stopErr
}
