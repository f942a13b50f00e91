// Package config handles configuration loading, validation, and persistence
// for the agentlink client.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir      = "config"
	DefaultConfigFile     = "agentlink.json"
	DefaultYAMLConfigFile = "agentlink.yml"
	DefaultServerPort     = 30000
	DefaultAPIListen      = "127.0.0.1:5080"
)

// Config is the root configuration structure for agentlink.
type Config struct {
	mu   sync.RWMutex
	path string

	Server     ServerConfig     `json:"server" yaml:"server"`
	Connection ConnectionConfig `json:"connection" yaml:"connection"`
	API        APIConfig        `json:"api" yaml:"api"`
	MQTT       MQTTConfig       `json:"mqtt" yaml:"mqtt"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// ServerConfig identifies the game server and the account used on it.
type ServerConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// ConnectionConfig tunes the handshake and session.
type ConnectionConfig struct {
	HandshakeTimeoutSec  int    `json:"handshake_timeout_sec" yaml:"handshake_timeout_sec"`
	AllowUnauthenticated bool   `json:"allow_unauthenticated" yaml:"allow_unauthenticated"`
	ReconnectDelaySec    int    `json:"reconnect_delay_sec" yaml:"reconnect_delay_sec"`
	LocalPort            int    `json:"local_port" yaml:"local_port"`
	Lang                 string `json:"lang" yaml:"lang"`
}

// HandshakeTimeout returns the handshake deadline as a duration.
func (c ConnectionConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSec) * time.Second
}

// ReconnectDelay returns the reconnect delay; 0 disables reconnecting.
func (c ConnectionConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySec) * time.Second
}

// APIConfig holds the agent HTTP API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Listen         string   `json:"listen" yaml:"listen"`
	Token          string   `json:"token" yaml:"token"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps" yaml:"rate_limit_rps"`
}

// MQTTConfig holds MQTT bridge settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BrokerURL   string `json:"broker_url" yaml:"broker_url"`
	Port        int    `json:"port" yaml:"port"`
	UseTLS      bool   `json:"use_tls" yaml:"use_tls"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
}

// JournalConfig holds the session journal settings.
type JournalConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Path          string `json:"path" yaml:"path"`
	RetentionDays int    `json:"retention_days" yaml:"retention_days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	Directory  string `json:"directory" yaml:"directory"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Console    bool   `json:"console" yaml:"console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: DefaultServerPort,
		},
		Connection: ConnectionConfig{
			HandshakeTimeoutSec: 10,
			Lang:                "en",
		},
		API: APIConfig{
			Enabled:        true,
			Listen:         DefaultAPIListen,
			AllowedOrigins: []string{"http://localhost:3000"},
			RateLimitRPS:   20,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			BrokerURL:   "localhost",
			Port:        1883,
			ClientID:    "agentlink",
			TopicPrefix: "agentlink",
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          "data/journal.db",
			RetentionDays: 14,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Console:    true,
		},
	}
}

// Load reads configuration from configDir. A YAML file takes precedence over
// the JSON one; when neither exists a default JSON file is written.
func Load(configDir string) (*Config, error) {
	yamlPath := filepath.Join(configDir, DefaultYAMLConfigFile)
	if data, err := os.ReadFile(yamlPath); err == nil {
		cfg := DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", yamlPath, err)
		}
		cfg.path = yamlPath
		log.Info().Str("path", yamlPath).Msg("configuration loaded")
		return cfg, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file %s: %w", yamlPath, err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so the file lists every option known to this build.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk in the format of its path.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch filepath.Ext(c.path) {
	case ".yml", ".yaml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server configuration.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// SetServer updates the server configuration.
func (c *Config) SetServer(s ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = s
}

// GetConnection returns a copy of the connection configuration.
func (c *Config) GetConnection() ConnectionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Connection
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath sets the file Save writes to.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server.Username == ""
}
