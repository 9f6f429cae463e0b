// internal/models/gamestate.go
package models

// GameStatePayload 一次保存提交给后端的增量
type GameStatePayload struct {
	ThemeID                  string              `json:"theme_id"`
	GameHistoryDelta         []Turn              `json:"game_history_delta"`
	LastDashboardUpdates     DashboardUpdates    `json:"last_dashboard_updates"`
	LastGameStateIndicators  GameStateIndicators `json:"last_game_state_indicators"`
	CurrentPromptType        string              `json:"current_prompt_type"`
	CurrentNarrativeLanguage string              `json:"current_narrative_language"`
	LastSuggestedActions     []string            `json:"last_suggested_actions"`
	PanelStates              PanelStates         `json:"panel_states"`
	ModelName                string              `json:"model_name"`
	PlayerProgress           *UserThemeProgress  `json:"player_progress,omitempty"`
	CurrentInventory         []InventoryItem     `json:"current_inventory"`
	EquippedItems            EquippedItems       `json:"equipped_items"`
	RunStats                 RunStats            `json:"run_stats"`
	IsBoonSelectionPending   bool                `json:"is_boon_selection_pending"`
	NewWorldUnlock           string              `json:"new_world_unlock,omitempty"`
}

// SaveGameStateResponse 保存成功后的响应
type SaveGameStateResponse struct {
	EvolvedLore *string `json:"evolved_lore,omitempty"`
	TurnsStored int     `json:"turns_stored"`
}

// LoadedGameState 从后端读取的权威状态
type LoadedGameState struct {
	ThemeID                 string              `json:"theme_id"`
	GameHistory             []Turn              `json:"game_history"`
	EvolvedLore             string              `json:"evolved_lore,omitempty"`
	LastDashboardUpdates    DashboardUpdates    `json:"last_dashboard_updates,omitempty"`
	LastGameStateIndicators GameStateIndicators `json:"last_game_state_indicators,omitempty"`
	CurrentPromptType       string              `json:"current_prompt_type,omitempty"`
	LastSuggestedActions    []string            `json:"last_suggested_actions,omitempty"`
	PanelStates             PanelStates         `json:"panel_states,omitempty"`
	CurrentInventory        []InventoryItem     `json:"current_inventory,omitempty"`
	EquippedItems           EquippedItems       `json:"equipped_items,omitempty"`
	RunStats                *RunStats           `json:"run_stats,omitempty"`
	IsBoonSelectionPending  bool                `json:"is_boon_selection_pending"`
	ModelName               string              `json:"model_name,omitempty"`
}
