// internal/apiclient/client.go
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

const (
	tracerName = "github.com/Corphon/SceneIntruderClient/internal/apiclient"

	// HeaderRequestID 每个请求携带的关联ID
	HeaderRequestID = "X-Request-ID"

	maxErrorBody = 64 << 10
)

// Request 一次后端 API 调用
type Request struct {
	Method string
	Path   string
	Body   interface{}
	// Token 为空时使用 Client 的默认令牌
	Token string
}

// Options 客户端构造参数
type Options struct {
	APIBaseURL   string
	AssetBaseURL string
	Timeout      time.Duration
	Token        string
	HTTPClient   *http.Client
	Logger       *utils.Logger
	Metrics      *utils.MetricsCollector
	Tracer       trace.Tracer
	// MaxAssetBytes 单个静态资源的大小上限，默认 8 MiB
	MaxAssetBytes int64
}

// Client 后端与静态资源的 HTTP 协作者
type Client struct {
	apiBaseURL   string
	assetBaseURL string
	httpClient   *http.Client
	logger       *utils.Logger
	metrics      *utils.MetricsCollector
	tracer       trace.Tracer
	maxAsset     int64

	tokenMu sync.RWMutex
	token   string
}

// envelope 后端统一响应格式
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *envelopeError  `json:"error,omitempty"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// New 创建客户端
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	maxAsset := opts.MaxAssetBytes
	if maxAsset <= 0 {
		maxAsset = maxAssetBody
	}
	assetBase := opts.AssetBaseURL
	if assetBase != "" && !strings.HasSuffix(assetBase, "/") {
		assetBase += "/"
	}
	return &Client{
		apiBaseURL:   strings.TrimSuffix(opts.APIBaseURL, "/"),
		assetBaseURL: assetBase,
		token:        opts.Token,
		httpClient:   httpClient,
		logger:       opts.Logger.With("apiclient"),
		metrics:      opts.Metrics,
		tracer:       tracer,
		maxAsset:     maxAsset,
	}
}

// Do 调用后端 API，成功时把信封中的 data 解码到 out（out 可为 nil）。
// 失败时返回 *errors.RequestError，Status 为 0 表示传输层失败。
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	path := "/" + strings.TrimPrefix(req.Path, "/")

	ctx, span := c.tracer.Start(ctx, "api "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			span.SetStatus(codes.Error, "encode body")
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+path, body)
	if err != nil {
		span.SetStatus(codes.Error, "build request")
		return apperrors.NewTransportError(method, path, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	httpReq.Header.Set(HeaderRequestID, requestID)
	if token := c.tokenFor(req); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordAPIRequest(method, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.logger.Warn("request failed before response", map[string]interface{}{
			"method": method, "path": path, "request_id": requestID, "error": err.Error(),
		})
		return apperrors.NewTransportError(method, path, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordAPIRequest(method, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := decodeFailure(method, path, resp)
		span.SetStatus(codes.Error, reqErr.Code)
		c.logger.Debug("request rejected", map[string]interface{}{
			"method": method, "path": path, "status": resp.StatusCode, "code": reqErr.Code, "request_id": requestID,
		})
		return reqErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if err == io.EOF {
			return nil
		}
		span.SetStatus(codes.Error, "decode response")
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		span.SetStatus(codes.Error, "decode data")
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}

func (c *Client) tokenFor(req Request) string {
	if req.Token != "" {
		return req.Token
	}
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// SetToken 替换默认令牌（登录/登出后）
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.token = token
}

func decodeFailure(method, path string, resp *http.Response) *apperrors.RequestError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		detail := env.Error.Message
		if env.Error.Details != "" {
			detail += ": " + env.Error.Details
		}
		return apperrors.NewStatusError(method, path, resp.StatusCode, env.Error.Code, detail)
	}
	return apperrors.NewStatusError(method, path, resp.StatusCode, "", strings.TrimSpace(string(raw)))
}
