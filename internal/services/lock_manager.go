// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 按键（主题ID、用户主题存档）分配互斥锁
type LockManager struct {
	locks      map[string]*LockInfo
	globalLock sync.Mutex
	lockTTL    time.Duration
	maxLocks   int
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex    *sync.Mutex
	LastUsed time.Time
	// 正在等待或持有此锁的调用数，大于0时不会被清理
	refs int
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	return &LockManager{
		locks:    make(map[string]*LockInfo),
		lockTTL:  30 * time.Minute,
		maxLocks: 200,
	}
}

func (lm *LockManager) acquire(key string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, exists := lm.locks[key]
	if !exists {
		info = &LockInfo{Mutex: &sync.Mutex{}}
		lm.locks[key] = info
	}
	info.refs++
	info.LastUsed = time.Now()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info.refs--
	info.LastUsed = time.Now()
	if len(lm.locks) > lm.maxLocks {
		lm.cleanupLocked()
	}
}

// WithLock 在键锁保护下执行 fn
func (lm *LockManager) WithLock(key string, fn func() error) error {
	info := lm.acquire(key)
	info.Mutex.Lock()
	defer func() {
		info.Mutex.Unlock()
		lm.release(info)
	}()
	return fn()
}

// Size 当前持有的锁数量
func (lm *LockManager) Size() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.locks)
}

// 只清理长时间未使用且没有引用的锁
func (lm *LockManager) cleanupLocked() {
	now := time.Now()
	for key, info := range lm.locks {
		if info.refs == 0 && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.locks, key)
		}
	}
}
