// internal/apiclient/assets.go
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
)

const maxAssetBody = 8 << 20

// ErrAssetTooLarge 资源超过大小上限，不会被截断后返回
var ErrAssetTooLarge = errors.New("asset exceeds size limit")

// FetchJSON 获取静态 JSON 资源。path 相对于资源根地址，也可以是完整 URL。
// 404 返回包装了 errors.ErrResourceNotFound 的错误。
func (c *Client) FetchJSON(ctx context.Context, path string, out interface{}) error {
	raw, err := c.fetchAsset(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode asset %s: %w", path, err)
	}
	return nil
}

// FetchText 获取静态文本资源
func (c *Client) FetchText(ctx context.Context, path string) (string, error) {
	raw, err := c.fetchAsset(ctx, path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// AssetURL 把相对路径解析为完整地址
func (c *Client) AssetURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.assetBaseURL + strings.TrimPrefix(path, "/")
}

func (c *Client) fetchAsset(ctx context.Context, path string) ([]byte, error) {
	target := c.AssetURL(path)

	ctx, span := c.tracer.Start(ctx, "asset GET", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("url.full", target))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		span.SetStatus(codes.Error, "build request")
		return nil, apperrors.NewTransportError(http.MethodGet, path, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordAPIRequest(http.MethodGet, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, apperrors.NewTransportError(http.MethodGet, path, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordAPIRequest(http.MethodGet, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return nil, apperrors.NewStatusError(http.MethodGet, path, resp.StatusCode, "", "")
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAsset+1))
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.NewTransportError(http.MethodGet, path, err)
	}
	if int64(len(raw)) > c.maxAsset {
		span.SetStatus(codes.Error, "asset too large")
		return nil, apperrors.NewProcessingError(
			fmt.Sprintf("资源超过 %d 字节上限: %s", c.maxAsset, path), ErrAssetTooLarge)
	}
	return raw, nil
}
