package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServer(&cfg.Server, result)
	validateConnection(&cfg.Connection, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)
	validateJournal(&cfg.Journal, result)
	validateLogging(&cfg.Logging, result)

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	if strings.TrimSpace(s.Host) == "" {
		result.AddError("server.host", "server host is required")
	}
	validatePort(s.Port, "server.port", result)

	if strings.TrimSpace(s.Username) == "" {
		result.AddError("server.username", "player name is required")
	} else if len(s.Username) > 20 {
		result.AddWarning("server.username", "player names longer than 20 characters are refused by most servers")
	}
	if s.Password == "" {
		result.AddWarning("server.password", "empty password, servers with disallow_empty_password will deny access")
	}
}

func validateConnection(c *ConnectionConfig, result *ValidationResult) {
	if c.HandshakeTimeoutSec < 1 {
		result.AddError("connection.handshake_timeout_sec", "handshake timeout must be at least 1 second")
	}
	if c.ReconnectDelaySec < 0 {
		result.AddError("connection.reconnect_delay_sec", "reconnect delay cannot be negative")
	}
	if c.LocalPort != 0 {
		validatePort(c.LocalPort, "connection.local_port", result)
	}
	if c.AllowUnauthenticated {
		result.AddWarning("connection.allow_unauthenticated",
			"commands will be sent even if the server never confirms authentication")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	host, port, err := net.SplitHostPort(a.Listen)
	if err != nil {
		result.AddError("api.listen", fmt.Sprintf("invalid listen address %q: %v", a.Listen, err))
		return
	}
	if port == "" {
		result.AddError("api.listen", "listen address needs a port")
	}
	if a.Token == "" && host != "127.0.0.1" && host != "localhost" && host != "::1" {
		result.AddWarning("api.token", "API listens on a non-loopback address without a token")
	}
	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if strings.TrimSpace(m.TopicPrefix) == "" {
		result.AddError("mqtt.topic_prefix", "topic prefix is required when enabled")
	} else if strings.ContainsAny(m.TopicPrefix, "#+") {
		result.AddError("mqtt.topic_prefix", "topic prefix cannot contain wildcards")
	}
}

func validateJournal(j *JournalConfig, result *ValidationResult) {
	if !j.Enabled {
		return
	}
	if strings.TrimSpace(j.Path) == "" {
		result.AddError("journal.path", "journal path is required when enabled")
	}
	if j.RetentionDays < 1 {
		result.AddError("journal.retention_days", "retention days must be at least 1")
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddError("logging.level", fmt.Sprintf("unknown log level %q", l.Level))
	}
	if l.MaxSizeMB < 1 {
		result.AddWarning("logging.max_size_mb", "log rotation size below 1 MB, using 1 MB")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
