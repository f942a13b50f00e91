package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration.
func RunSetupWizard(cfg *Config) error {
	return runSetup(cfg, os.Stdin, os.Stdout)
}

type prompter struct {
	reader *bufio.Reader
	out    io.Writer
	eof    bool
}

func runSetup(cfg *Config, in io.Reader, out io.Writer) error {
	p := &prompter{reader: bufio.NewReader(in), out: out}

	for {
		fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
		fmt.Fprintln(out, "║         agentlink - First Run Setup          ║")
		fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")
		fmt.Fprintln(out)

		fmt.Fprintln(out, "── Game Server ──")
		cfg.Server.Host = p.promptString("Server host", cfg.Server.Host)
		cfg.Server.Port = p.promptInt("Server port", cfg.Server.Port)

		fmt.Fprintln(out)
		fmt.Fprintln(out, "── Player Account ──")
		cfg.Server.Username = p.promptString("Player name", cfg.Server.Username)
		cfg.Server.Password = p.promptPassword("Password")

		fmt.Fprintln(out)
		fmt.Fprintln(out, "── Connection ──")
		cfg.Connection.HandshakeTimeoutSec = p.promptInt("Handshake timeout (seconds)", cfg.Connection.HandshakeTimeoutSec)
		cfg.Connection.AllowUnauthenticated = p.promptBool("Continue if the server never confirms auth",
			cfg.Connection.AllowUnauthenticated)
		cfg.Connection.ReconnectDelaySec = p.promptInt("Reconnect delay in seconds (0 disables)", cfg.Connection.ReconnectDelaySec)

		fmt.Fprintln(out)
		fmt.Fprintln(out, "── Agent API ──")
		cfg.API.Enabled = p.promptBool("Enable HTTP API", cfg.API.Enabled)
		if cfg.API.Enabled {
			cfg.API.Listen = p.promptString("Listen address", cfg.API.Listen)
			cfg.API.Token = p.promptString("Bearer token (blank for none)", cfg.API.Token)
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "── MQTT Bridge ──")
		cfg.MQTT.Enabled = p.promptBool("Enable MQTT bridge", cfg.MQTT.Enabled)
		if cfg.MQTT.Enabled {
			cfg.MQTT.BrokerURL = p.promptString("Broker host", cfg.MQTT.BrokerURL)
			cfg.MQTT.Port = p.promptInt("Broker port", cfg.MQTT.Port)
			cfg.MQTT.TopicPrefix = p.promptString("Topic prefix", cfg.MQTT.TopicPrefix)
		}

		// Validate before saving
		result := Validate(cfg)
		if result.IsValid() {
			for _, w := range result.Warnings {
				log.Warn().Str("field", w.Field).Msg(w.Message)
			}
			break
		}

		fmt.Fprintln(out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		retry := p.promptString("Would you like to try again? (yes/no)", "yes")
		if p.eof || strings.ToLower(retry) != "yes" {
			return fmt.Errorf("configuration validation failed")
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✓ Configuration saved successfully!")
	fmt.Fprintln(out)

	return nil
}

func (p *prompter) readLine() string {
	input, err := p.reader.ReadString('\n')
	if err != nil {
		p.eof = true
	}
	return strings.TrimSpace(input)
}

func (p *prompter) promptString(prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(p.out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(p.out, "  %s: ", prompt)
	}

	input := p.readLine()
	if input == "" {
		return defaultVal
	}
	return input
}

func (p *prompter) promptPassword(prompt string) string {
	fmt.Fprintf(p.out, "  %s: ", prompt)
	return p.readLine()
}

func (p *prompter) promptInt(prompt string, defaultVal int) int {
	fmt.Fprintf(p.out, "  %s [%d]: ", prompt, defaultVal)

	input := p.readLine()
	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(p.out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (p *prompter) promptBool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(p.out, "  %s [%s]: ", prompt, defaultStr)

	input := strings.ToLower(p.readLine())
	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
