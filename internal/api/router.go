// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/Corphon/SceneIntruderClient/internal/services"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// RouterOptions 路由依赖
type RouterOptions struct {
	Store         *Store
	Manifest      *services.ThemeManifest
	Authenticator *Authenticator
	Feed          *SaveFeed
	RateLimiter   *RateLimiter
	ThemesDir     string
	DebugMode     bool
	Logger        *utils.Logger
	Metrics       *utils.MetricsCollector
	Tracer        trace.Tracer
}

// SetupRouter 配置HTTP路由
func SetupRouter(opts RouterOptions) (*gin.Engine, error) {
	if opts.Store == nil || opts.Manifest == nil || opts.Authenticator == nil {
		return nil, fmt.Errorf("路由依赖未正确初始化")
	}
	if opts.Feed == nil {
		opts.Feed = NewSaveFeed(opts.Logger)
	}

	if !opts.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	rh := NewResponseHelper()
	handler := NewHandler(opts.Store, opts.Manifest, opts.Authenticator, opts.Feed, rh, opts.Logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(TracingMiddleware(opts.Tracer))
	r.Use(LoggingMiddleware(opts.Logger.With("http"), opts.Metrics))
	r.Use(CORSMiddleware())

	// 主题静态资源，路径与清单中的 themes/<id>/ 一致
	if opts.ThemesDir != "" {
		r.Static("/themes", opts.ThemesDir)
	}

	// WebSocket 支持
	r.GET("/ws/gamestates/:themeId", queryTokenAuth(), opts.Authenticator.RequireAuth(), handler.GameStateWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.GET("/themes", handler.ListThemes)
		api.POST("/auth/login", opts.RateLimiter.Middleware(rh), handler.Login)

		authed := api.Group("")
		authed.Use(opts.Authenticator.RequireAuth(), opts.RateLimiter.Middleware(rh))
		{
			authed.POST("/gamestates", handler.SaveGameState)
			authed.GET("/gamestates/:themeId", handler.GetGameState)
			authed.GET("/users/me/themes/:themeId/progress", handler.GetThemeProgress)
			authed.GET("/users/me/unlocks", handler.GetUnlockedWorlds)
		}
	}

	return r, nil
}

// DefaultRateLimiter 每分钟 limit 次
func DefaultRateLimiter(limit int) *RateLimiter {
	return NewRateLimiter(limit, time.Minute)
}
