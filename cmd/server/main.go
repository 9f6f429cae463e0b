// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Corphon/SceneIntruderClient/internal/api"
	"github.com/Corphon/SceneIntruderClient/internal/config"
	"github.com/Corphon/SceneIntruderClient/internal/services"
	"github.com/Corphon/SceneIntruderClient/internal/telemetry"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

func main() {
	log.Println("🚀 启动开发后端...")

	// 1. 加载配置
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 日志与指标
	logger := utils.GetLogger()
	if cfg.DebugMode {
		logger.SetLogLevel(utils.DEBUG)
	}
	if err := logger.InitLogFile(filepath.Join(cfg.LogDir, "server_"+time.Now().Format("2006-01-02")+".log")); err != nil {
		log.Printf("⚠️ 日志文件初始化失败: %v", err)
	}
	defer logger.Close()
	metrics := utils.GetMetricsCollector()

	// 3. 追踪
	shutdownTracing, err := telemetry.Setup(context.Background(), "scene-intruder-devserver", cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("追踪初始化失败", map[string]interface{}{"error": err.Error()})
	}

	// 4. 存储与认证
	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if err := config.EnsureDir(dir); err != nil {
			log.Fatalf("创建目录失败: %v", err)
		}
	}
	store, err := api.NewStore(api.StoreOptions{DataDir: cfg.DataDir, Logger: logger})
	if err != nil {
		log.Fatalf("初始化存储失败: %v", err)
	}
	tokenConfig, err := api.NewTokenConfig(cfg.AuthSecretKey, cfg.DebugMode, logger)
	if err != nil {
		log.Fatalf("初始化令牌配置失败: %v", err)
	}

	manifest, err := services.LoadManifestFile(filepath.Join(cfg.ThemesDir, "manifest.yaml"))
	if err != nil {
		logger.Info("主题目录没有 manifest.yaml，使用内嵌清单", map[string]interface{}{"themes_dir": cfg.ThemesDir})
		manifest = services.DefaultManifest()
	}

	limiter := api.DefaultRateLimiter(cfg.RateLimit)
	defer limiter.Stop()
	feed := api.NewSaveFeed(logger)
	defer feed.CloseAll()

	// 5. 路由
	router, err := api.SetupRouter(api.RouterOptions{
		Store:         store,
		Manifest:      manifest,
		Authenticator: api.NewAuthenticator(tokenConfig, api.NewResponseHelper()),
		Feed:          feed,
		RateLimiter:   limiter,
		ThemesDir:     cfg.ThemesDir,
		DebugMode:     cfg.DebugMode,
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        otel.Tracer("scene-intruder-devserver"),
	})
	if err != nil {
		log.Fatalf("❌ 设置路由失败: %v", err)
	}

	log.Printf("🌐 开发后端启动在端口 %s", cfg.Port)
	log.Printf("🔗 API: http://localhost:%s/api  资源: http://localhost:%s/themes/", cfg.Port, cfg.Port)
	serve(router, cfg.Port, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn("关闭追踪失败", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("指标汇总", metrics.GetMetrics())
}

// serve 运行 HTTP 服务直到收到中断信号，然后优雅关闭
func serve(handler http.Handler, port string, logger *utils.Logger) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器强制关闭", map[string]interface{}{"error": err.Error()})
		return
	}
	log.Println("✅ 服务器已关闭")
}
