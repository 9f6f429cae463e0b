// internal/models/turn.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// 回合发送方
const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
)

// 系统消息的发送方分类
const (
	SenderSystem       = "system"
	SenderSystemError  = "system_error"
	SenderLevelUp      = "level_up"
	SenderWorldUnlock  = "world_unlock"
	SenderPlayerAction = "player"
)

// TurnPart 回合内容的一个片段
type TurnPart struct {
	Text string `json:"text"`
}

// TurnMetadata 系统消息的附加信息
type TurnMetadata struct {
	Sender string `json:"sender,omitempty"`
}

// Turn 历史中的一次交换，创建后不再修改
type Turn struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	Parts     []TurnPart    `json:"parts"`
	Metadata  *TurnMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewTurn 创建带唯一ID的回合，ID 让后端可以按回合去重追加
func NewTurn(role string, texts ...string) Turn {
	parts := make([]TurnPart, 0, len(texts))
	for _, text := range texts {
		parts = append(parts, TurnPart{Text: text})
	}
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}
}

// NewSystemTurn 创建带发送方分类的系统消息
func NewSystemTurn(sender, text string) Turn {
	turn := NewTurn(RoleSystem, text)
	turn.Metadata = &TurnMetadata{Sender: sender}
	return turn
}

// Text 拼接所有片段
func (t Turn) Text() string {
	if len(t.Parts) == 1 {
		return t.Parts[0].Text
	}
	var out string
	for i, part := range t.Parts {
		if i > 0 {
			out += "\n"
		}
		out += part.Text
	}
	return out
}
