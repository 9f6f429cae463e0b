// internal/models/prompt.go
package models

// PromptStatus 提示文件缓存条目的状态
type PromptStatus int

const (
	// PromptLoaded 文本已加载
	PromptLoaded PromptStatus = iota + 1
	// PromptNotFound URL 存在但文件返回 404，许多提示文件是可选覆盖
	PromptNotFound
	// PromptURLMissing 主题的 prompts-config.json 中没有该名称
	PromptURLMissing
)

// String 用于日志
func (s PromptStatus) String() string {
	switch s {
	case PromptLoaded:
		return "loaded"
	case PromptNotFound:
		return "not_found"
	case PromptURLMissing:
		return "url_missing"
	default:
		return "unknown"
	}
}

// PromptResult 提示文件的缓存结果
type PromptResult struct {
	Status PromptStatus
	Text   string
}

// LoadedPrompt 构造已加载结果
func LoadedPrompt(text string) PromptResult {
	return PromptResult{Status: PromptLoaded, Text: text}
}

// Content 只有 Loaded 状态才返回文本
func (r PromptResult) Content() (string, bool) {
	if r.Status != PromptLoaded {
		return "", false
	}
	return r.Text, true
}
