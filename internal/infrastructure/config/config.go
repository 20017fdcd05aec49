package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the full gateway configuration, shared by the server and worker
// roles.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Worker   WorkerConfig   `mapstructure:"worker"`

	LLMBackends              []BackendConfig `mapstructure:"llm_backends"`
	PrimaryBackendName       string          `mapstructure:"primary_backend_name"`
	RoutingBackendName       string          `mapstructure:"routing_backend_name"`
	HighAvailabilityStrategy string          `mapstructure:"high_availability_strategy"` // none, failover
	LLMBackendTimeoutSeconds int             `mapstructure:"llm_backend_timeout_seconds"`

	AgentModelPrefix           string `mapstructure:"agent_model_prefix"`
	CacheUpdateIntervalMinutes int    `mapstructure:"llm_cache_update_interval_minutes"`
	TaskRetentionMinutes       int    `mapstructure:"task_retention_minutes"`
	TaskLeaseMinutes           int    `mapstructure:"task_lease_minutes"`

	ToolsFile         string `mapstructure:"tools_file"`
	SearxngBaseURL    string `mapstructure:"searxng_base_url"`
	RoutingPromptFile string `mapstructure:"routing_prompt_file"`
	SystemAdminEmail  string `mapstructure:"system_admin_email"`
	Timezone          string `mapstructure:"timezone"`

	Users            []UserConfig `mapstructure:"users"`
	RatelimitDefault string       `mapstructure:"ratelimit_default"`

	AuditLogPath string `mapstructure:"audit_log_path"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, production
}

// DatabaseConfig configures the shared task store.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkerConfig configures the task executor role.
type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// BackendConfig describes one upstream LLM endpoint.
type BackendConfig struct {
	Name           string `mapstructure:"name"`
	Type           string `mapstructure:"type"` // openai-compatible, ollama-compatible
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	DefaultModel   string `mapstructure:"default_model"`
	AutoLoad       bool   `mapstructure:"auto_load"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// UserConfig describes one API principal.
type UserConfig struct {
	Key               string `mapstructure:"key"`
	Username          string `mapstructure:"username"`
	DisplayName       string `mapstructure:"display_name"`
	RateLimit         string `mapstructure:"rate_limit"`
	PersonaPromptFile string `mapstructure:"persona_prompt_file"`
}

// Load reads layered configuration: defaults, then ~/.harpou-gateway/
// config.yaml, then a project-local config.yaml, then HARPOU_* environment
// overrides.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".harpou-gateway")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("HARPOU")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ConfigFilePath returns the local config file path in use, if any. Used by
// the principal hot-reload watcher.
func ConfigFilePath() string {
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			return localPath
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "production")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "gateway.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll_interval", "500ms")

	v.SetDefault("high_availability_strategy", "none")
	v.SetDefault("llm_backend_timeout_seconds", 300)
	v.SetDefault("agent_model_prefix", "harpou-agent/")
	v.SetDefault("llm_cache_update_interval_minutes", 5)
	v.SetDefault("task_retention_minutes", 15)
	v.SetDefault("task_lease_minutes", 10)
	v.SetDefault("ratelimit_default", "100/hour")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("audit_log_path", "logs/audit.jsonl")
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.LLMBackends))
	for _, b := range cfg.LLMBackends {
		if b.Name == "" {
			return fmt.Errorf("llm_backends: backend with empty name")
		}
		if seen[b.Name] {
			return fmt.Errorf("llm_backends: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true
	}
	if cfg.PrimaryBackendName != "" && !seen[cfg.PrimaryBackendName] {
		return fmt.Errorf("primary_backend_name %q is not a configured backend", cfg.PrimaryBackendName)
	}
	if cfg.RoutingBackendName != "" && !seen[cfg.RoutingBackendName] {
		return fmt.Errorf("routing_backend_name %q is not a configured backend", cfg.RoutingBackendName)
	}
	return nil
}
