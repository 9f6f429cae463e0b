// internal/services/user_service.go
package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/Corphon/SceneIntruderClient/internal/apiclient"
	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// TokenSink 登录状态变化时更新网络协作者的默认令牌
type TokenSink interface {
	SetToken(token string)
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserService 处理登录与登出对会话的影响
type UserService struct {
	session     *SessionService
	persistence *PersistenceService
	backend     BackendRequester
	tokens      TokenSink
	logger      *utils.Logger
}

// NewUserService 创建用户服务，tokens 可以为 nil
func NewUserService(session *SessionService, persistence *PersistenceService, backend BackendRequester, tokens TokenSink, logger *utils.Logger) *UserService {
	return &UserService{
		session:     session,
		persistence: persistence,
		backend:     backend,
		tokens:      tokens,
		logger:      logger.With("user"),
	}
}

// SignIn 登录并把用户（含 API 用量）写入会话
func (s *UserService) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("邮箱和密码不能为空", nil)
	}

	var user models.User
	err := s.backend.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   LoginRequest{Email: email, Password: password},
	}, &user)
	if err != nil {
		if apperrors.StatusOf(err) == http.StatusUnauthorized {
			return nil, apperrors.NewUnauthorizedError("邮箱或密码错误", err)
		}
		return nil, apperrors.WrapError(err, "登录失败", apperrors.ErrorTypeError)
	}
	if user.ID == "" || user.Token == "" {
		return nil, apperrors.NewProcessingError("登录响应缺少用户或令牌", nil)
	}

	s.session.SetCurrentUser(&user)
	if s.tokens != nil {
		s.tokens.SetToken(user.Token)
	}
	s.logger.Info("用户已登录", map[string]interface{}{"user_id": user.ID})
	return s.session.CurrentUser(), nil
}

// SignOut 尽力保存当前进度后重置会话
func (s *UserService) SignOut(ctx context.Context) error {
	user := s.session.CurrentUser()
	if user == nil {
		return nil
	}

	var saveErr error
	if s.persistence != nil {
		if saveErr = s.persistence.SaveCurrentGameState(ctx, false); saveErr != nil {
			s.logger.Warn("登出前保存失败", map[string]interface{}{"user_id": user.ID, "error": saveErr.Error()})
		}
	}

	s.session.ResetForLogout()
	if s.tokens != nil {
		s.tokens.SetToken("")
	}
	s.logger.Info("用户已登出", map[string]interface{}{"user_id": user.ID})
	return saveErr
}
