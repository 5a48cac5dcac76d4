// Package config loads server configuration from YAML with env overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location relative to the working dir.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DataDir     string `yaml:"dataDir"`
	ChatDBDir   string `yaml:"chatDBDir"`
	UsersDBPath string `yaml:"usersDBPath"`
	AuditDBPath string `yaml:"auditDBPath"`
	UploadsDir  string `yaml:"uploadsDir"`

	OllamaBaseURL          string   `yaml:"ollamaBaseURL"`
	OllamaCommand          string   `yaml:"ollamaCommand"`
	DefaultModel           string   `yaml:"defaultModel"`
	RestrictedKeywords     []string `yaml:"restrictedKeywords"`
	HistoryLimit           int      `yaml:"historyLimit"`
	KeepModelOnLoadFailure bool     `yaml:"keepModelOnLoadFailure"`

	AuthSecret  string `yaml:"authSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	RedisAddr           string   `yaml:"redisAddr"`
	RedisPassword       string   `yaml:"redisPassword"`
	AskRateLimitPerMin  int      `yaml:"askRateLimitPerMinute"`
	LoadRateLimitPerMin int      `yaml:"loadRateLimitPerMinute"`
	MaxUploadBytes      int64    `yaml:"maxUploadBytes"`
	AllowedExtensions   []string `yaml:"allowedExtensions"`
	TrustedProxies      []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseJWTLeeway parses the configured leeway, defaulting to 30s.
func ParseJWTLeeway(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse jwtLeeway: %w", err)
	}
	return d, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "database"
	}
	if cfg.ChatDBDir == "" {
		cfg.ChatDBDir = filepath.Join(cfg.DataDir, "userchats")
	}
	if cfg.UsersDBPath == "" {
		cfg.UsersDBPath = filepath.Join(cfg.DataDir, "users.db")
	}
	if cfg.AuditDBPath == "" {
		cfg.AuditDBPath = filepath.Join(cfg.DataDir, "logs.db")
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = "uploads"
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{"txt", "md", "csv", "html", "pdf"}
	}
}

func applyEnvOverrides(cfg *FileConfig) {
	if v := os.Getenv("LOCALCHAT_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOCALCHAT_OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := os.Getenv("LOCALCHAT_DEFAULT_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := os.Getenv("LOCALCHAT_AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := os.Getenv("LOCALCHAT_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("LOCALCHAT_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LOCALCHAT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryLimit = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or LOCALCHAT_PORT)")
	}
	if cfg.AuthSecret == "" {
		return errors.New("config: authSecret is required (set in config.yaml or LOCALCHAT_AUTH_SECRET)")
	}
	if cfg.DefaultModel == "" {
		return errors.New("config: defaultModel is required (set in config.yaml)")
	}
	if cfg.HistoryLimit < 0 {
		return errors.New("config: historyLimit must not be negative")
	}
	return nil
}
