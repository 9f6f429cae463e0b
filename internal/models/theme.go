// internal/models/theme.go
package models

import "encoding/json"

// 基础属性默认值，主题配置缺省时使用
const (
	DefaultBaseIntegrity  = 100
	DefaultBaseWillpower  = 50
	DefaultBaseAptitude   = 10
	DefaultBaseResilience = 10
	DefaultPlayerLevel    = 1
)

// ThemeDescriptor 主题清单中的一项，构建时确定，运行期只读
type ThemeDescriptor struct {
	ID                 string `json:"id" yaml:"id"`
	Path               string `json:"path" yaml:"path"`
	Playable           bool   `json:"playable" yaml:"playable"`
	LockedForAnonymous bool   `json:"locked_for_anonymous" yaml:"locked_for_anonymous"`
}

// BaseAttributes 主题的基础属性
type BaseAttributes struct {
	Integrity  int `json:"integrity"`
	Willpower  int `json:"willpower"`
	Aptitude   int `json:"aptitude"`
	Resilience int `json:"resilience"`
}

// PanelConfig 仪表盘面板布局
type PanelConfig struct {
	ID                string      `json:"id"`
	TitleKey          string      `json:"title_key"`
	Type              string      `json:"type"`
	InitiallyExpanded bool        `json:"initially_expanded"`
	Items             []PanelItem `json:"items,omitempty"`
}

// PanelItem 面板中的单个显示项
type PanelItem struct {
	ID       string `json:"id"`
	LabelKey string `json:"label_key"`
	Type     string `json:"type"`
	MaxValue int    `json:"max_value,omitempty"`
}

// DashboardConfig 左右两侧的面板
type DashboardConfig struct {
	LeftPanel  []PanelConfig `json:"left_panel"`
	RightPanel []PanelConfig `json:"right_panel"`
}

// ThemeConfig 单个主题的规则、属性与界面布局。
// 所有可选字段在解码时都有明确的默认值。
type ThemeConfig struct {
	ID              string          `json:"id"`
	NameKey         string          `json:"name_key"`
	LoreKey         string          `json:"lore_key"`
	BaseAttributes  BaseAttributes  `json:"base_attributes"`
	MaxStrainLevel  int             `json:"max_strain_level"`
	ItemTypes       []string        `json:"item_types"`
	Dashboard       DashboardConfig `json:"dashboard_config"`
	StartingPrompt  string          `json:"starting_prompt"`
	XPPerLevel      []int           `json:"xp_per_level"`
	BoonsPerLevelUp int             `json:"boons_per_level_up"`
}

// DefaultThemeConfig 返回全部字段取默认值的配置
func DefaultThemeConfig() ThemeConfig {
	return ThemeConfig{
		BaseAttributes: BaseAttributes{
			Integrity:  DefaultBaseIntegrity,
			Willpower:  DefaultBaseWillpower,
			Aptitude:   DefaultBaseAptitude,
			Resilience: DefaultBaseResilience,
		},
		MaxStrainLevel:  4,
		StartingPrompt:  "master_initial",
		BoonsPerLevelUp: 1,
	}
}

// UnmarshalJSON 先填充默认值再解码，缺失字段保留默认值
func (c *ThemeConfig) UnmarshalJSON(data []byte) error {
	type rawThemeConfig ThemeConfig
	decoded := rawThemeConfig(DefaultThemeConfig())
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = ThemeConfig(decoded)
	return nil
}

// UnmarshalJSON 缺失的属性保留默认值
func (a *BaseAttributes) UnmarshalJSON(data []byte) error {
	type rawBaseAttributes BaseAttributes
	decoded := rawBaseAttributes(DefaultThemeConfig().BaseAttributes)
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*a = BaseAttributes(decoded)
	return nil
}

// TextTable 语言 -> 键 -> 文本
type TextTable map[string]map[string]string

// ItemDefinition 主题道具定义，来自 data/{itemType}_items.json
type ItemDefinition struct {
	ID          string         `json:"id"`
	ItemType    string         `json:"item_type"`
	NameKey     string         `json:"name_key"`
	Description string         `json:"description,omitempty"`
	Slot        string         `json:"slot,omitempty"`
	Rarity      string         `json:"rarity,omitempty"`
	Effects     map[string]int `json:"effects,omitempty"`
}

// TraitDefinition 主题特质定义，来自 data/traits.json
type TraitDefinition struct {
	Key            string         `json:"key"`
	NameKey        string         `json:"name_key"`
	DescriptionKey string         `json:"description_key"`
	Effects        map[string]int `json:"effects,omitempty"`
}
