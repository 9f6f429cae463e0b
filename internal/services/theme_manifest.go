// internal/services/theme_manifest.go
package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Corphon/SceneIntruderClient/internal/models"
)

//go:embed manifest.yaml
var embeddedManifest []byte

// ThemeManifest 构建时确定的主题清单，运行期只读
type ThemeManifest struct {
	entries []models.ThemeDescriptor
	byID    map[string]models.ThemeDescriptor
}

type manifestFile struct {
	Themes []models.ThemeDescriptor `yaml:"themes"`
}

// DefaultManifest 返回内嵌的主题清单
func DefaultManifest() *ThemeManifest {
	manifest, err := ParseManifest(embeddedManifest)
	if err != nil {
		panic(fmt.Sprintf("内嵌主题清单无效: %v", err))
	}
	return manifest
}

// LoadManifestFile 从 YAML 文件读取主题清单
func LoadManifestFile(path string) (*ThemeManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取主题清单失败: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest 解析并校验 YAML 清单：ID 唯一、路径非空并以 "/" 结尾
func ParseManifest(data []byte) (*ThemeManifest, error) {
	var file manifestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析主题清单失败: %w", err)
	}
	return NewThemeManifest(file.Themes)
}

// NewThemeManifest 从描述列表构造清单
func NewThemeManifest(entries []models.ThemeDescriptor) (*ThemeManifest, error) {
	m := &ThemeManifest{byID: make(map[string]models.ThemeDescriptor, len(entries))}
	for _, entry := range entries {
		entry.ID = strings.TrimSpace(entry.ID)
		if entry.ID == "" {
			return nil, fmt.Errorf("主题ID不能为空")
		}
		if _, dup := m.byID[entry.ID]; dup {
			return nil, fmt.Errorf("主题ID重复: %s", entry.ID)
		}
		if entry.Path == "" {
			return nil, fmt.Errorf("主题 %s 缺少路径", entry.ID)
		}
		if !strings.HasSuffix(entry.Path, "/") {
			entry.Path += "/"
		}
		m.byID[entry.ID] = entry
		m.entries = append(m.entries, entry)
	}
	return m, nil
}

// Get 按ID查找
func (m *ThemeManifest) Get(themeID string) (models.ThemeDescriptor, bool) {
	if m == nil {
		return models.ThemeDescriptor{}, false
	}
	d, ok := m.byID[themeID]
	return d, ok
}

// All 按清单顺序返回副本
func (m *ThemeManifest) All() []models.ThemeDescriptor {
	if m == nil {
		return nil
	}
	return append([]models.ThemeDescriptor(nil), m.entries...)
}

// Playable 可游玩的主题
func (m *ThemeManifest) Playable() []models.ThemeDescriptor {
	var out []models.ThemeDescriptor
	for _, entry := range m.All() {
		if entry.Playable {
			out = append(out, entry)
		}
	}
	return out
}
