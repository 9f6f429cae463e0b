// internal/services/persistence_service.go
package services

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Corphon/SceneIntruderClient/internal/apiclient"
	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// PersistenceService 把会话中未保存的历史增量同步到后端，不丢失也不重复回合
type PersistenceService struct {
	session *SessionService
	backend BackendRequester
	logger  *utils.Logger
	metrics *utils.MetricsCollector
	events  *SaveEventBus

	// 同一时间只有一个保存在进行，其余调用合并到下一轮并等待其结果
	mu       sync.Mutex
	inFlight bool
	next     *savePass
}

// savePass 一轮排队保存，done 关闭后 err 可读
type savePass struct {
	force bool
	done  chan struct{}
	err   error
}

// NewPersistenceService 创建持久化服务
func NewPersistenceService(session *SessionService, backend BackendRequester, logger *utils.Logger, metrics *utils.MetricsCollector) *PersistenceService {
	return &PersistenceService{
		session: session,
		backend: backend,
		logger:  logger.With("persistence"),
		metrics: metrics,
		events:  NewSaveEventBus(),
	}
}

// Events 保存结果事件
func (p *PersistenceService) Events() *SaveEventBus {
	return p.events
}

// SaveCurrentGameState 保存当前游戏状态。
// 没有用户或主题时直接返回 nil；只有在有未保存回合、等待恩赐选择或 force 时才会请求。
// 已有保存在进行时，本次调用加入下一轮保存，阻塞到该轮结束并返回该轮的错误。
func (p *PersistenceService) SaveCurrentGameState(ctx context.Context, force bool) error {
	if !p.hasSaveContext() {
		return nil
	}

	p.mu.Lock()
	if p.inFlight {
		if p.next == nil {
			p.next = &savePass{done: make(chan struct{})}
		}
		pass := p.next
		pass.force = pass.force || force
		p.mu.Unlock()

		p.metrics.IncrementCounter(utils.MetricSaveQueued)
		p.events.publish(SaveEvent{ThemeID: p.session.CurrentTheme(), Status: SaveStatusQueued})
		p.logger.Debug("保存进行中，等待下一轮", map[string]interface{}{"force": force})
		select {
		case <-pass.done:
			return pass.err
		case <-ctx.Done():
			return apperrors.WrapError(ctx.Err(), "等待排队保存时取消", apperrors.ErrorTypeError)
		}
	}
	p.inFlight = true
	p.mu.Unlock()

	err := p.saveOnce(ctx, force)
	for {
		p.mu.Lock()
		pass := p.next
		if pass == nil {
			p.inFlight = false
			p.mu.Unlock()
			return err
		}
		p.next = nil
		p.mu.Unlock()

		pass.err = p.saveOnce(ctx, pass.force)
		close(pass.done)
	}
}

func (p *PersistenceService) hasSaveContext() bool {
	user := p.session.CurrentUser()
	themeID := p.session.CurrentTheme()
	if user == nil || themeID == "" {
		p.metrics.IncrementCounter(utils.MetricSaveSkipped)
		p.logger.Debug("没有用户或主题，跳过保存", map[string]interface{}{
			"has_user": user != nil, "theme_id": themeID,
		})
		return false
	}
	return true
}

func (p *PersistenceService) saveOnce(ctx context.Context, force bool) error {
	user := p.session.CurrentUser()
	if user == nil || p.session.CurrentTheme() == "" {
		p.metrics.IncrementCounter(utils.MetricSaveSkipped)
		return nil
	}
	if !force && len(p.session.UnsavedDelta()) == 0 && !p.session.IsBoonSelectionPending() {
		p.metrics.IncrementCounter(utils.MetricSaveSkipped)
		return nil
	}

	payload, token := p.session.SnapshotForSave()
	fields := map[string]interface{}{
		"user_id":  user.ID,
		"theme_id": payload.ThemeID,
		"turns":    token.Count(),
		"force":    force,
	}

	start := time.Now()
	var resp models.SaveGameStateResponse
	err := p.backend.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/gamestates",
		Body:   payload,
		Token:  user.Token,
	}, &resp)
	p.metrics.RecordSave(err == nil, time.Since(start))

	if err != nil {
		fields["error"] = err.Error()
		fields["transport"] = apperrors.IsTransportError(err)
		p.logger.Error("保存游戏状态失败，保留未保存回合", fields)
		p.events.publish(SaveEvent{ThemeID: payload.ThemeID, Status: SaveStatusFailed, Turns: token.Count(), Message: err.Error()})
		return apperrors.WrapError(err, "保存游戏状态失败", apperrors.ErrorTypeError)
	}

	if !p.session.CompleteSave(token, resp.EvolvedLore) {
		p.logger.Warn("保存期间会话已重置，忽略结果", fields)
		return nil
	}
	p.logger.Info("游戏状态已保存", fields)
	p.events.publish(SaveEvent{ThemeID: payload.ThemeID, Status: SaveStatusSaved, Turns: token.Count()})
	return nil
}

// LoadGameState 从后端读取主题的存档并应用到会话。没有存档时返回 (nil, nil)。
func (p *PersistenceService) LoadGameState(ctx context.Context, themeID string) (*models.LoadedGameState, error) {
	user := p.session.CurrentUser()
	if user == nil {
		p.logger.Debug("未登录，跳过读取存档", map[string]interface{}{"theme_id": themeID})
		return nil, nil
	}

	var state models.LoadedGameState
	err := p.backend.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/gamestates/" + url.PathEscape(themeID),
		Token:  user.Token,
	}, &state)
	if err != nil {
		if apperrors.StatusOf(err) == http.StatusNotFound {
			p.logger.Info("没有存档", map[string]interface{}{"user_id": user.ID, "theme_id": themeID})
			return nil, nil
		}
		p.logger.Error("读取存档失败", map[string]interface{}{
			"user_id": user.ID, "theme_id": themeID, "error": err.Error(),
		})
		return nil, apperrors.WrapError(err, "读取存档失败", apperrors.ErrorTypeError)
	}

	if state.ThemeID == "" {
		state.ThemeID = themeID
	}
	p.session.ApplyLoadedGameState(&state)
	p.logger.Info("存档已加载", map[string]interface{}{
		"user_id": user.ID, "theme_id": themeID, "turns": len(state.GameHistory),
	})
	return &state, nil
}
