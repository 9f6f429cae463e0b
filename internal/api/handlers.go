// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/services"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// Handler 开发后端的 HTTP 处理器
type Handler struct {
	store    *Store
	manifest *services.ThemeManifest
	auth     *Authenticator
	feed     *SaveFeed
	rh       *ResponseHelper
	logger   *utils.Logger
	started  time.Time
}

// NewHandler 创建处理器
func NewHandler(store *Store, manifest *services.ThemeManifest, authenticator *Authenticator, feed *SaveFeed, rh *ResponseHelper, logger *utils.Logger) *Handler {
	return &Handler{
		store:    store,
		manifest: manifest,
		auth:     authenticator,
		feed:     feed,
		rh:       rh,
		logger:   logger.With("api"),
		started:  time.Now(),
	}
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	h.rh.Success(c, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"ws_connections": h.feed.Count(),
	})
}

// ListThemes 返回主题清单
func (h *Handler) ListThemes(c *gin.Context) {
	h.rh.Success(c, h.manifest.All())
}

// Login 登录，首次使用的邮箱会自动注册
func (h *Handler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.rh.BadRequest(c, "邮箱和密码不能为空")
		return
	}

	account, err := h.store.Authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.rh.Unauthorized(c, ErrorInvalidCredentials, "邮箱或密码错误")
			return
		}
		h.logger.Error("登录失败", map[string]interface{}{"error": err.Error()})
		h.rh.InternalError(c, "登录失败")
		return
	}

	token, err := h.auth.IssueToken(account.ID, account.Tier)
	if err != nil {
		h.logger.Error("签发令牌失败", map[string]interface{}{"user_id": account.ID, "error": err.Error()})
		h.rh.InternalError(c, "登录失败")
		return
	}

	usage := account.APIUsage
	h.rh.Success(c, models.User{
		ID:       account.ID,
		Email:    account.Email,
		Username: account.Username,
		Tier:     account.Tier,
		Token:    token,
		APIUsage: usage.Clone(),
	})
}

// SaveGameState 保存增量存档并推送事件
func (h *Handler) SaveGameState(c *gin.Context) {
	userID, _ := GetUserFromContext(c)

	var payload models.GameStatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorGameStateInvalid, "存档格式错误", err.Error())
		return
	}
	if _, ok := h.manifest.Get(payload.ThemeID); !ok {
		h.rh.NotFound(c, ErrorThemeNotFound, "主题不存在")
		return
	}
	for _, turn := range payload.GameHistoryDelta {
		if turn.ID == "" || turn.Role == "" {
			h.rh.Error(c, http.StatusBadRequest, ErrorGameStateInvalid, "回合缺少 id 或 role")
			return
		}
	}

	resp, err := h.store.SaveGameState(userID, payload)
	if err != nil {
		h.logger.Error("保存存档失败", map[string]interface{}{
			"user_id": userID, "theme_id": payload.ThemeID, "error": err.Error(),
		})
		h.rh.InternalError(c, "保存存档失败")
		return
	}

	event := map[string]interface{}{
		"type":         "save_event",
		"theme_id":     payload.ThemeID,
		"status":       services.SaveStatusSaved,
		"turns":        len(payload.GameHistoryDelta),
		"turns_stored": resp.TurnsStored,
		"timestamp":    time.Now().Format(time.RFC3339),
	}
	if resp.EvolvedLore != nil {
		event["evolved_lore"] = *resp.EvolvedLore
	}
	h.feed.Publish(userID, payload.ThemeID, event)

	h.rh.Success(c, resp)
}

// GetGameState 读取存档
func (h *Handler) GetGameState(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	themeID := c.Param("themeId")
	if _, ok := h.manifest.Get(themeID); !ok {
		h.rh.NotFound(c, ErrorThemeNotFound, "主题不存在")
		return
	}

	state, err := h.store.LoadGameState(userID, themeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.rh.NotFound(c, ErrorGameStateNotFound, "没有存档")
			return
		}
		h.logger.Error("读取存档失败", map[string]interface{}{"user_id": userID, "theme_id": themeID, "error": err.Error()})
		h.rh.InternalError(c, "读取存档失败")
		return
	}
	h.rh.Success(c, state)
}

// GetThemeProgress 读取用户在主题下的成长记录
func (h *Handler) GetThemeProgress(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	themeID := c.Param("themeId")
	if _, ok := h.manifest.Get(themeID); !ok {
		h.rh.NotFound(c, ErrorThemeNotFound, "主题不存在")
		return
	}

	progress, err := h.store.LoadProgress(userID, themeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.rh.NotFound(c, ErrorProgressNotFound, "没有成长记录")
			return
		}
		h.logger.Error("读取成长记录失败", map[string]interface{}{"user_id": userID, "theme_id": themeID, "error": err.Error()})
		h.rh.InternalError(c, "读取成长记录失败")
		return
	}
	h.rh.Success(c, progress)
}

// GetUnlockedWorlds 用户已解锁的主题
func (h *Handler) GetUnlockedWorlds(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	themes, err := h.store.UnlockedWorlds(userID)
	if err != nil {
		h.rh.InternalError(c, "读取解锁记录失败")
		return
	}
	h.rh.Success(c, gin.H{"themes": themes})
}
