// internal/storage/preferences.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// 本地持久化的偏好键，每个键在对应的 setter 中写入、进程启动时读取一次
const (
	KeyCurrentTheme         = "current_theme"
	KeyAppLanguage          = "app_language"
	KeyNarrativeLanguage    = "narrative_language"
	KeyModelName            = "model_name"
	KeyLandingSelectedTheme = "landing_selected_theme"
)

// PreferenceStore 进程无关的键值存储
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// OpenPreferenceStore 按后端名称打开偏好存储，path 为空时放在 dataDir 下
func OpenPreferenceStore(backend, dataDir, path string) (PreferenceStore, error) {
	switch backend {
	case "sqlite":
		if path == "" {
			if dataDir == "" {
				dataDir = "."
			}
			if _, err := NewFileStorage(dataDir); err != nil {
				return nil, err
			}
			path = filepath.Join(dataDir, "preferences.db")
		}
		return OpenSQLitePreferenceStore(path)
	case "file":
		if path == "" {
			path = dataDir
		}
		return NewFilePreferenceStore(path)
	case "memory":
		return NewMemoryPreferenceStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown preferences backend %q", backend)
	}
}

// MemoryPreferenceStore 内存实现，用于测试和 PREFERENCES_BACKEND=memory
type MemoryPreferenceStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryPreferenceStore 可选地带初始值
func NewMemoryPreferenceStore(initial map[string]string) *MemoryPreferenceStore {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &MemoryPreferenceStore{values: values}
}

// Get 读取
func (s *MemoryPreferenceStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

// Set 写入
func (s *MemoryPreferenceStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete 删除
func (s *MemoryPreferenceStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Close 无操作
func (s *MemoryPreferenceStore) Close() error { return nil }

const preferencesFile = "preferences.json"

// FilePreferenceStore 单个 JSON 文件保存全部偏好
type FilePreferenceStore struct {
	files *FileStorage
}

// NewFilePreferenceStore 在 dir 下创建 preferences.json
func NewFilePreferenceStore(dir string) (*FilePreferenceStore, error) {
	files, err := NewFileStorage(dir)
	if err != nil {
		return nil, err
	}
	return &FilePreferenceStore{files: files}, nil
}

func (s *FilePreferenceStore) load() (map[string]string, error) {
	values := map[string]string{}
	if err := s.files.LoadJSONFile("", preferencesFile, &values); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return values, nil
}

// Get 读取
func (s *FilePreferenceStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	values, err := s.load()
	if err != nil {
		return "", false, fmt.Errorf("读取偏好失败: %w", err)
	}
	value, ok := values[key]
	return value, ok, nil
}

// Set 写入
func (s *FilePreferenceStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	values := map[string]string{}
	return s.files.UpdateJSONFile("", preferencesFile, &values, func(bool) error {
		values[key] = value
		return nil
	})
}

// Delete 删除
func (s *FilePreferenceStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	values := map[string]string{}
	return s.files.UpdateJSONFile("", preferencesFile, &values, func(bool) error {
		delete(values, key)
		return nil
	})
}

// Close 无操作
func (s *FilePreferenceStore) Close() error { return nil }
