// internal/services/interfaces.go
package services

import (
	"context"

	"github.com/Corphon/SceneIntruderClient/internal/apiclient"
)

// AssetFetcher 获取主题静态资源，404 时返回包装了 errors.ErrResourceNotFound 的错误
type AssetFetcher interface {
	FetchJSON(ctx context.Context, path string, out interface{}) error
	FetchText(ctx context.Context, path string) (string, error)
}

// BackendRequester 调用后端 API
type BackendRequester interface {
	Do(ctx context.Context, req apiclient.Request, out interface{}) error
}

var (
	_ AssetFetcher     = (*apiclient.Client)(nil)
	_ BackendRequester = (*apiclient.Client)(nil)
)
