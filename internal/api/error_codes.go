// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"
	ErrorUnauthorized  = "UNAUTHORIZED"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 账户相关错误
	ErrorInvalidCredentials = "INVALID_CREDENTIALS"
	ErrorTokenInvalid       = "TOKEN_INVALID"
	ErrorTokenExpired       = "TOKEN_EXPIRED"

	// 主题与存档相关错误
	ErrorThemeNotFound     = "THEME_NOT_FOUND"
	ErrorGameStateNotFound = "GAMESTATE_NOT_FOUND"
	ErrorGameStateInvalid  = "GAMESTATE_INVALID"
	ErrorProgressNotFound  = "PROGRESS_NOT_FOUND"
)
