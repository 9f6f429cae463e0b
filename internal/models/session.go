// internal/models/session.go
package models

// User 当前登录用户
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Username string         `json:"username,omitempty"`
	Tier     string         `json:"tier,omitempty"`
	Token    string         `json:"token,omitempty"`
	APIUsage *APIUsageStats `json:"api_usage,omitempty"`
}

// APIUsageStats 用户的模型调用用量快照
type APIUsageStats struct {
	Used       int            `json:"used"`
	Limit      int            `json:"limit"`
	ResetsAt   string         `json:"resets_at,omitempty"`
	ModelUsage map[string]int `json:"model_usage,omitempty"`
}

// Clone 深拷贝
func (u *APIUsageStats) Clone() *APIUsageStats {
	if u == nil {
		return nil
	}
	clone := *u
	if u.ModelUsage != nil {
		clone.ModelUsage = make(map[string]int, len(u.ModelUsage))
		for k, v := range u.ModelUsage {
			clone.ModelUsage[k] = v
		}
	}
	return &clone
}

// RunStats 单次游玩中的即时数值，只有主题处于激活状态时才有意义
type RunStats struct {
	CurrentIntegrity int      `json:"current_integrity"`
	CurrentWillpower int      `json:"current_willpower"`
	StrainLevel      int      `json:"strain_level"`
	Conditions       []string `json:"conditions"`
}

// Clone 深拷贝
func (r RunStats) Clone() RunStats {
	r.Conditions = append([]string(nil), r.Conditions...)
	return r
}

// InventoryItem 背包中的道具
type InventoryItem struct {
	ItemID   string `json:"item_id"`
	ItemType string `json:"item_type"`
	Quantity int    `json:"quantity"`
}

// EquippedItems 槽位 -> 道具ID
type EquippedItems map[string]string

// PanelStates 面板ID -> 是否展开
type PanelStates map[string]bool

// DashboardUpdates 模型返回的仪表盘字段缓存
type DashboardUpdates map[string]interface{}

// GameStateIndicators 模型返回的状态指示
type GameStateIndicators map[string]interface{}
