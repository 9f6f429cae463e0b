// internal/services/save_events.go
package services

import (
	"sync"
	"time"
)

// 保存事件状态
const (
	SaveStatusSaved  = "saved"
	SaveStatusFailed = "failed"
	SaveStatusQueued = "queued"
)

// SaveEvent 一次保存尝试的结果
type SaveEvent struct {
	ThemeID string    `json:"theme_id"`
	Status  string    `json:"status"`
	Turns   int       `json:"turns"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// SaveEventBus 把保存结果广播给订阅者，慢订阅者会丢失事件而不会阻塞保存
type SaveEventBus struct {
	mutex       sync.Mutex
	subscribers map[chan SaveEvent]bool
}

// NewSaveEventBus 创建事件总线
func NewSaveEventBus() *SaveEventBus {
	return &SaveEventBus{subscribers: make(map[chan SaveEvent]bool)}
}

// Subscribe 订阅保存事件，缓冲区为10
func (b *SaveEventBus) Subscribe() chan SaveEvent {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subscriber := make(chan SaveEvent, 10)
	b.subscribers[subscriber] = true
	return subscriber
}

// Unsubscribe 取消订阅并关闭通道
func (b *SaveEventBus) Unsubscribe(subscriber chan SaveEvent) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.subscribers[subscriber] {
		delete(b.subscribers, subscriber)
		close(subscriber)
	}
}

func (b *SaveEventBus) publish(event SaveEvent) {
	if b == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	for subscriber := range b.subscribers {
		select {
		case subscriber <- event:
		default:
		}
	}
}
