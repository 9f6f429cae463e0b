// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

const (
	wsSendBuffer   = 32
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 开发后端允许任意来源
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 一个订阅存档事件的连接
type WebSocketClient struct {
	conn      WebSocketConnection
	userID    string
	themeID   string
	send      chan []byte
	sendMu    sync.Mutex
	closed    int32 // 原子操作标志，0=开启，1=关闭
	createdAt time.Time
}

// Close 安全关闭客户端连接；发送通道由写协程读到关闭后退出
func (client *WebSocketClient) Close() {
	client.sendMu.Lock()
	defer client.sendMu.Unlock()
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.send)
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// trySend 非阻塞入队，队列已满时返回 false
func (client *WebSocketClient) trySend(msg []byte) bool {
	client.sendMu.Lock()
	defer client.sendMu.Unlock()
	if client.IsClosed() {
		return true
	}
	select {
	case client.send <- msg:
		return true
	default:
		return false
	}
}

// feedKey 订阅按 用户/主题 分组
func feedKey(userID, themeID string) string {
	return userID + "/" + themeID
}

// SaveFeed 把存档结果推送给同一用户同一主题的 WebSocket 订阅者
type SaveFeed struct {
	mu          sync.RWMutex
	connections map[string]map[*WebSocketClient]struct{}
	logger      *utils.Logger
}

// NewSaveFeed 创建推送中心
func NewSaveFeed(logger *utils.Logger) *SaveFeed {
	return &SaveFeed{
		connections: make(map[string]map[*WebSocketClient]struct{}),
		logger:      logger.With("ws"),
	}
}

func (f *SaveFeed) register(client *WebSocketClient) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := feedKey(client.userID, client.themeID)
	if f.connections[key] == nil {
		f.connections[key] = make(map[*WebSocketClient]struct{})
	}
	f.connections[key][client] = struct{}{}
	f.logger.Info("WebSocket 客户端已连接", map[string]interface{}{"user_id": client.userID, "theme_id": client.themeID})
}

func (f *SaveFeed) unregister(client *WebSocketClient) {
	f.mu.Lock()
	key := feedKey(client.userID, client.themeID)
	if clients, ok := f.connections[key]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(f.connections, key)
		}
	}
	f.mu.Unlock()

	client.Close()
	f.logger.Info("WebSocket 客户端已断开", map[string]interface{}{"user_id": client.userID, "theme_id": client.themeID})
}

// Publish 向订阅者发送消息，发送队列已满的客户端会被断开
func (f *SaveFeed) Publish(userID, themeID string, message map[string]interface{}) {
	if f == nil {
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		f.logger.Error("序列化推送消息失败", map[string]interface{}{"error": err.Error()})
		return
	}

	f.mu.RLock()
	clients := make([]*WebSocketClient, 0, len(f.connections[feedKey(userID, themeID)]))
	for client := range f.connections[feedKey(userID, themeID)] {
		clients = append(clients, client)
	}
	f.mu.RUnlock()

	var slow []*WebSocketClient
	for _, client := range clients {
		if !client.trySend(msgBytes) {
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		f.logger.Warn("客户端消息队列已满，断开连接", map[string]interface{}{"user_id": client.userID})
		f.unregister(client)
	}
}

// Count 当前连接数
func (f *SaveFeed) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	total := 0
	for _, clients := range f.connections {
		total += len(clients)
	}
	return total
}

// CloseAll 断开全部连接
func (f *SaveFeed) CloseAll() {
	f.mu.Lock()
	all := f.connections
	f.connections = make(map[string]map[*WebSocketClient]struct{})
	f.mu.Unlock()

	for _, clients := range all {
		for client := range clients {
			client.Close()
		}
	}
}
