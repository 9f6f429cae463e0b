// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 偏好存储后端
const (
	PreferencesSQLite = "sqlite"
	PreferencesFile   = "file"
	PreferencesMemory = "memory"
)

// 当前配置的单例实例
var (
	currentConfig *Config
	configMutex   sync.RWMutex
)

// Config 客户端会话核心的配置
type Config struct {
	// 后端与静态资源
	APIBaseURL     string        `env:"API_BASE_URL" envDefault:"http://localhost:8080/api"`
	AssetBaseURL   string        `env:"ASSET_BASE_URL" envDefault:"http://localhost:8080/"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	AuthToken      string        `env:"AUTH_TOKEN"`
	ManifestPath   string        `env:"MANIFEST_PATH"`

	// 本地持久化偏好
	DataDir             string `env:"DATA_DIR" envDefault:"data"`
	PreferencesBackend  string `env:"PREFERENCES_BACKEND" envDefault:"sqlite"`
	PreferencesPath     string `env:"PREFERENCES_PATH"`
	DefaultLanguage     string `env:"DEFAULT_LANGUAGE" envDefault:"en"`
	DefaultModel        string `env:"DEFAULT_MODEL" envDefault:"gemini-2.5-flash"`
	DefaultNarrativeLan string `env:"DEFAULT_NARRATIVE_LANGUAGE"`

	// 日志与追踪
	LogDir       string `env:"LOG_DIR" envDefault:"logs"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	DebugMode    bool   `env:"DEBUG_MODE" envDefault:"false"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// ServerConfig 开发用后端的配置
type ServerConfig struct {
	Port          string `env:"PORT" envDefault:"8080"`
	ThemesDir     string `env:"THEMES_DIR" envDefault:"themes"`
	DataDir       string `env:"SERVER_DATA_DIR" envDefault:"data/server"`
	AuthSecretKey string `env:"AUTH_SECRET_KEY"`
	LogDir        string `env:"LOG_DIR" envDefault:"logs"`
	DebugMode     bool   `env:"DEBUG_MODE" envDefault:"true"`
	RateLimit     int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	OTelEndpoint  string `env:"OTEL_ENDPOINT"`
}

// ParseEnv 从环境变量解析到目标结构
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load 从环境变量加载客户端配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	cfg := &Config{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	configMutex.Lock()
	currentConfig = cfg
	configMutex.Unlock()

	return cfg, nil
}

// LoadServer 从环境变量加载开发后端配置
func LoadServer() (*ServerConfig, error) {
	_ = godotenv.Load()

	cfg := &ServerConfig{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.ThemesDir) == "" {
		return nil, fmt.Errorf("THEMES_DIR 不能为空")
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	for name, raw := range map[string]*string{"API_BASE_URL": &c.APIBaseURL, "ASSET_BASE_URL": &c.AssetBaseURL} {
		value := strings.TrimSpace(*raw)
		if _, err := url.ParseRequestURI(value); err != nil {
			return fmt.Errorf("%s 无效: %w", name, err)
		}
		*raw = value
	}
	if !strings.HasSuffix(c.AssetBaseURL, "/") {
		c.AssetBaseURL += "/"
	}
	c.APIBaseURL = strings.TrimSuffix(c.APIBaseURL, "/")

	switch c.PreferencesBackend {
	case PreferencesSQLite, PreferencesFile, PreferencesMemory:
	default:
		return fmt.Errorf("未知的 PREFERENCES_BACKEND: %q", c.PreferencesBackend)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if strings.TrimSpace(c.DefaultLanguage) == "" {
		c.DefaultLanguage = "en"
	}
	if c.DefaultNarrativeLan == "" {
		c.DefaultNarrativeLan = c.DefaultLanguage
	}
	return nil
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return nil
	}
	configCopy := *currentConfig
	return &configCopy
}

// EnsureDir 确保目录存在
func EnsureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", path, err)
		}
	}
	return nil
}
