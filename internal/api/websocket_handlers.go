// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsInbound 客户端发来的消息
type wsInbound struct {
	Type string `json:"type"`
}

// GameStateWebSocket 订阅当前用户在某主题下的存档事件。
// 浏览器无法设置请求头，令牌也可以通过 ?token= 传入。
func (h *Handler) GameStateWebSocket(c *gin.Context) {
	themeID := c.Param("themeId")
	if _, ok := h.manifest.Get(themeID); !ok {
		h.rh.NotFound(c, ErrorThemeNotFound, "主题不存在")
		return
	}
	userID, ok := GetUserFromContext(c)
	if !ok {
		h.rh.Unauthorized(c, ErrorUnauthorized, "需要登录")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket 升级失败", map[string]interface{}{"error": err.Error()})
		return
	}

	client := &WebSocketClient{
		conn:      conn,
		userID:    userID,
		themeID:   themeID,
		send:      make(chan []byte, wsSendBuffer),
		createdAt: time.Now(),
	}
	h.feed.register(client)

	go h.writePump(client)
	h.sendJSON(client, map[string]interface{}{
		"type":      "connected",
		"theme_id":  themeID,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	h.readPump(client)
}

// readPump 读取直到连接断开，处理 ping 消息
func (h *Handler) readPump(client *WebSocketClient) {
	defer h.feed.unregister(client)

	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket 读取结束", map[string]interface{}{"user_id": client.userID, "error": err.Error()})
			}
			return
		}
		_ = client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendJSON(client, map[string]interface{}{"type": "error", "error": "invalid message"})
			continue
		}
		if msg.Type == "ping" {
			h.sendJSON(client, map[string]interface{}{"type": "pong", "timestamp": time.Now().Format(time.RFC3339)})
		}
	}
}

// writePump 是连接上唯一的写者
func (h *Handler) writePump(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendJSON(client *WebSocketClient, message map[string]interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	client.trySend(data)
}

// queryTokenAuth 把 ?token= 转成 Authorization 头，供 WebSocket 握手使用
func queryTokenAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if token := c.Query("token"); token != "" {
				c.Request.Header.Set("Authorization", "Bearer "+token)
			}
		}
		c.Next()
	}
}
