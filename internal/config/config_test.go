package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_CreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Fatalf("server port = %d, want %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Path() != filepath.Join(dir, DefaultConfigFile) {
		t.Fatalf("path = %s", cfg.Path())
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !cfg.IsFirstRun() {
		t.Fatalf("fresh config should be a first run")
	}
}

func TestLoad_OverlaysDefaultsAndResaves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	partial := `{"server": {"host": "game.example.net", "port": 30001, "username": "agent"}}`
	if err := os.WriteFile(path, []byte(partial), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "game.example.net" || cfg.Server.Port != 30001 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Connection.HandshakeTimeout() != 10*time.Second {
		t.Fatalf("handshake timeout = %s, want default 10s", cfg.Connection.HandshakeTimeout())
	}
	if cfg.Journal.RetentionDays != 14 {
		t.Fatalf("journal retention = %d, want default", cfg.Journal.RetentionDays)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("re-saved file is not JSON: %v", err)
	}
	for _, key := range []string{"connection", "api", "mqtt", "journal", "logging"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("re-saved file is missing %q", key)
		}
	}
}

func TestLoad_PrefersYAML(t *testing.T) {
	dir := t.TempDir()
	yml := "server:\n  host: yaml.example.net\n  username: yamlagent\nmqtt:\n  enabled: true\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultYAMLConfigFile), []byte(yml), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(`{"server":{"host":"json"}}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "yaml.example.net" || cfg.Server.Username != "yamlagent" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Port != 1883 {
		t.Fatalf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Fatalf("server port = %d, want default", cfg.Server.Port)
	}
}

func TestLoad_BadJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Username = "agent"
	cfg.Server.Password = "secret"

	if r := Validate(cfg); !r.IsValid() {
		t.Fatalf("default config with a user should be valid: %v", r.Errors)
	}

	cases := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"empty host", func(c *Config) { c.Server.Host = " " }, "server.host"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"no user", func(c *Config) { c.Server.Username = "" }, "server.username"},
		{"zero timeout", func(c *Config) { c.Connection.HandshakeTimeoutSec = 0 }, "connection.handshake_timeout_sec"},
		{"bad listen", func(c *Config) { c.API.Listen = "nope" }, "api.listen"},
		{"mqtt wildcard", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicPrefix = "a/#" }, "mqtt.topic_prefix"},
		{"journal retention", func(c *Config) { c.Journal.RetentionDays = 0 }, "journal.retention_days"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			c.Server.Username = "agent"
			tc.mut(c)
			r := Validate(c)
			found := false
			for _, e := range r.Errors {
				if e.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected error on %s, got %v", tc.field, r.Errors)
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Username = "agent"
	cfg.Connection.AllowUnauthenticated = true
	cfg.API.Listen = "0.0.0.0:5080"

	r := Validate(cfg)
	if !r.IsValid() {
		t.Fatalf("unexpected errors: %v", r.Errors)
	}
	fields := map[string]bool{}
	for _, w := range r.Warnings {
		fields[w.Field] = true
	}
	for _, f := range []string{"server.password", "connection.allow_unauthenticated", "api.token"} {
		if !fields[f] {
			t.Fatalf("missing warning on %s: %v", f, r.Warnings)
		}
	}
}

func TestRunSetup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	answers := strings.Join([]string{
		"play.example.net", // host
		"",                 // port
		"agent",            // player name
		"hunter2",          // password
		"5",                // handshake timeout
		"no",               // allow unauthenticated
		"3",                // reconnect delay
		"yes",              // api
		"",                 // listen
		"tok",              // token
		"no",               // mqtt
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := runSetup(cfg, strings.NewReader(answers), &out); err != nil {
		t.Fatalf("runSetup: %v\n%s", err, out.String())
	}
	if cfg.Server.Host != "play.example.net" || cfg.Server.Port != DefaultServerPort {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.Username != "agent" || cfg.Server.Password != "hunter2" {
		t.Fatalf("credentials = %+v", cfg.Server)
	}
	if cfg.Connection.HandshakeTimeoutSec != 5 || cfg.Connection.ReconnectDelaySec != 3 {
		t.Fatalf("connection = %+v", cfg.Connection)
	}
	if cfg.API.Token != "tok" || cfg.API.Listen != DefaultAPIListen {
		t.Fatalf("api = %+v", cfg.API)
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
}

func TestRunSetup_InvalidGivesUpOnEOF(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	var out bytes.Buffer
	if err := runSetup(cfg, strings.NewReader(""), &out); err == nil {
		t.Fatalf("expected validation failure with no player name")
	}
	if _, err := os.Stat(cfg.Path()); !os.IsNotExist(err) {
		t.Fatalf("invalid config should not be saved")
	}
}
