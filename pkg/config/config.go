package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized MoonMind knob. Unknown keys in the YAML
// file are rejected at load time.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
	LogJSON    bool   `yaml:"log_json"`
	LogFile    string `yaml:"log_file"`

	DatabaseURL                    string `yaml:"database_url"`
	DatabaseMaxOpenConns           int    `yaml:"database_max_open_conns"`
	DatabaseMaxIdleConns           int    `yaml:"database_max_idle_conns"`
	DatabaseConnMaxLifetimeSeconds int    `yaml:"database_conn_max_lifetime_seconds"`
	RequestTimeoutSeconds          int    `yaml:"request_timeout_seconds"`

	ArtifactRoot     string `yaml:"artifact_root"`
	ArtifactMaxBytes int64  `yaml:"artifact_max_bytes"`

	RetryBackoffBaseSeconds   int `yaml:"retry_backoff_base_seconds"`
	RetryBackoffMaxSeconds    int `yaml:"retry_backoff_max_seconds"`
	DefaultRetryDelaySeconds  int `yaml:"default_retry_delay_seconds"`
	LeaseSweepIntervalSeconds int `yaml:"lease_sweep_interval_seconds"`

	LiveSessionProvider          string `yaml:"live_session_provider"`
	LiveSessionTTLMinutes        int    `yaml:"live_session_ttl_minutes"`
	LiveSessionRWGrantTTLMinutes int    `yaml:"live_session_rw_grant_ttl_minutes"`
	LiveSessionAllowWeb          bool   `yaml:"live_session_allow_web"`

	DefaultPublishMode string `yaml:"default_publish_mode"`
	DefaultRuntime     string `yaml:"default_runtime"`

	ManifestRequiredCapabilities []string `yaml:"manifest_required_capabilities"`
	AllowManifestPathSource      bool     `yaml:"allow_manifest_path_source"`

	SkillsLocalMirrorRoot  string   `yaml:"skills_local_mirror_root"`
	SkillsLegacyMirrorRoot string   `yaml:"skills_legacy_mirror_root"`
	SkillPolicyMode        string   `yaml:"skill_policy_mode"`
	AllowedSkills          []string `yaml:"allowed_skills"`
	DefaultSkill           string   `yaml:"default_skill"`
	SkillCacheRoot         string   `yaml:"skill_cache_root"`
	SkillSignatureRequired bool     `yaml:"skill_signature_required"`

	NotificationsWebhookURL     string `yaml:"notifications_webhook_url"`
	NotificationsAuthorization  string `yaml:"notifications_authorization"`
	NotificationsTimeoutSeconds int    `yaml:"notifications_timeout_seconds"`
	NotificationsEnabled        bool   `yaml:"notifications_enabled"`

	MoonMindCIRepository string `yaml:"moonmind_ci_repository"`
}

// Default returns the documented defaults
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		LogJSON:    true,

		DatabaseMaxOpenConns:           20,
		DatabaseMaxIdleConns:           5,
		DatabaseConnMaxLifetimeSeconds: 1800,
		RequestTimeoutSeconds:          30,

		ArtifactRoot:     "/var/lib/moonmind/artifacts",
		ArtifactMaxBytes: 50 << 20,

		RetryBackoffBaseSeconds:   30,
		RetryBackoffMaxSeconds:    3600,
		DefaultRetryDelaySeconds:  60,
		LeaseSweepIntervalSeconds: 15,

		LiveSessionProvider:          "tmate",
		LiveSessionTTLMinutes:        60,
		LiveSessionRWGrantTTLMinutes: 30,
		LiveSessionAllowWeb:          false,

		DefaultPublishMode: "pr",
		DefaultRuntime:     "codex",

		ManifestRequiredCapabilities: []string{"manifest"},

		SkillPolicyMode: "permissive",
		DefaultSkill:    "speckit",
		SkillCacheRoot:  "/var/lib/moonmind/skills",

		NotificationsTimeoutSeconds: 5,
	}
}

// Load overlays the YAML file at path onto the defaults. Unknown keys
// fail the load.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enums and ranges
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	switch c.DefaultPublishMode {
	case "none", "branch", "pr":
	default:
		return fmt.Errorf("default_publish_mode must be one of none, branch, pr; got %q", c.DefaultPublishMode)
	}
	switch c.DefaultRuntime {
	case "codex", "gemini", "claude":
	default:
		return fmt.Errorf("default_runtime must be one of codex, gemini, claude; got %q", c.DefaultRuntime)
	}
	if c.LiveSessionProvider != "tmate" {
		return fmt.Errorf("live_session_provider must be tmate; got %q", c.LiveSessionProvider)
	}
	switch c.SkillPolicyMode {
	case "allowlist", "permissive":
	default:
		return fmt.Errorf("skill_policy_mode must be allowlist or permissive; got %q", c.SkillPolicyMode)
	}
	if c.ArtifactMaxBytes <= 0 {
		return fmt.Errorf("artifact_max_bytes must be positive; got %d", c.ArtifactMaxBytes)
	}
	if c.RetryBackoffBaseSeconds <= 0 || c.RetryBackoffMaxSeconds < c.RetryBackoffBaseSeconds {
		return fmt.Errorf("retry backoff window is invalid: base=%d max=%d",
			c.RetryBackoffBaseSeconds, c.RetryBackoffMaxSeconds)
	}
	if c.DefaultRetryDelaySeconds <= 0 {
		return fmt.Errorf("default_retry_delay_seconds must be positive; got %d", c.DefaultRetryDelaySeconds)
	}
	if c.LiveSessionTTLMinutes <= 0 || c.LiveSessionRWGrantTTLMinutes <= 0 {
		return fmt.Errorf("live session TTLs must be positive")
	}
	if c.NotificationsEnabled {
		if c.NotificationsWebhookURL == "" {
			return fmt.Errorf("notifications_webhook_url is required when notifications are enabled")
		}
		if c.NotificationsTimeoutSeconds < 1 {
			return fmt.Errorf("notifications_timeout_seconds must be at least 1; got %d", c.NotificationsTimeoutSeconds)
		}
	}
	return nil
}

// Duration helpers keep the knob names second-based while callers work in
// time.Duration.

func (c *Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.RetryBackoffBaseSeconds) * time.Second
}

func (c *Config) RetryBackoffMax() time.Duration {
	return time.Duration(c.RetryBackoffMaxSeconds) * time.Second
}

func (c *Config) DefaultRetryDelay() time.Duration {
	return time.Duration(c.DefaultRetryDelaySeconds) * time.Second
}

func (c *Config) LeaseSweepInterval() time.Duration {
	return time.Duration(c.LeaseSweepIntervalSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) NotificationsTimeout() time.Duration {
	return time.Duration(c.NotificationsTimeoutSeconds) * time.Second
}

func (c *Config) LiveSessionTTL() time.Duration {
	return time.Duration(c.LiveSessionTTLMinutes) * time.Minute
}

func (c *Config) DatabaseConnMaxLifetime() time.Duration {
	return time.Duration(c.DatabaseConnMaxLifetimeSeconds) * time.Second
}
