// Package config loads Chimera settings from a YAML file with environment
// variable overlay. Precedence: environment > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	// Host is the bind address. Empty means all interfaces.
	Host string `yaml:"host"`

	// Port is the listen port.
	Port int `yaml:"port"`

	// AuthToken, when non-empty, requires Bearer auth on every request.
	AuthToken string `yaml:"auth_token"`
}

// Addr returns the host:port listen address.
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BrowserSettings configures browser-head sessions.
type BrowserSettings struct {
	// Headless controls whether heads run without a visible window.
	// Visible windows are required for the interactive login step.
	Headless bool `yaml:"headless"`

	// UserDataDir is the persistent Chromium profile directory. Login
	// cookies survive restarts through this profile.
	UserDataDir string `yaml:"user_data_dir"`

	// ScreenshotDir is where per-head screenshot frames are written.
	ScreenshotDir string `yaml:"screenshot_dir"`

	// AllowedDomains restricts goto targets to these domains
	// (comma-separated). Empty allows all.
	AllowedDomains string `yaml:"allowed_domains"`

	// StartupTimeoutSec bounds how long a spawn waits for the head to
	// leave the Spawning state.
	StartupTimeoutSec int `yaml:"startup_timeout_sec"`

	// ToolTimeoutSec bounds a single tool dispatch.
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`

	// ChatTurnTimeoutSec bounds a full scripted chat turn.
	ChatTurnTimeoutSec int `yaml:"chat_turn_timeout_sec"`

	// ScreenshotIntervalSec is the background capture cadence.
	ScreenshotIntervalSec int `yaml:"screenshot_interval_sec"`

	// HealthIntervalSec is the background health check cadence.
	HealthIntervalSec int `yaml:"health_interval_sec"`
}

// AllowedDomainList splits the comma-separated allowlist into trimmed,
// non-empty entries.
func (b BrowserSettings) AllowedDomainList() []string {
	if strings.TrimSpace(b.AllowedDomains) == "" {
		return nil
	}

	var out []string
	for _, domain := range strings.Split(b.AllowedDomains, ",") {
		if domain = strings.TrimSpace(domain); domain != "" {
			out = append(out, domain)
		}
	}
	return out
}

// OpenAISettings configures the hosted OpenAI-compatible provider.
type OpenAISettings struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OllamaSettings configures the local Ollama provider.
type OllamaSettings struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Settings is the full Chimera configuration.
type Settings struct {
	// DefaultProvider is used when a chat request names an unknown model.
	DefaultProvider string `yaml:"default_provider"`

	Server  ServerSettings  `yaml:"server"`
	Browser BrowserSettings `yaml:"browser"`
	OpenAI  OpenAISettings  `yaml:"openai"`
	Ollama  OllamaSettings  `yaml:"ollama"`
}

// DefaultPath returns the default config file location
// (~/.chimera/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".chimera", "config.yaml")
}

// Defaults returns the built-in settings before any file or environment
// overlay.
func Defaults() *Settings {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".chimera")

	return &Settings{
		DefaultProvider: "ollama",
		Server: ServerSettings{
			Port: 8000,
		},
		Browser: BrowserSettings{
			Headless:              false,
			UserDataDir:           filepath.Join(dataDir, "browser-profile"),
			ScreenshotDir:         filepath.Join(dataDir, "screenshots"),
			StartupTimeoutSec:     45,
			ToolTimeoutSec:        20,
			ChatTurnTimeoutSec:    120,
			ScreenshotIntervalSec: 5,
			HealthIntervalSec:     15,
		},
		OpenAI: OpenAISettings{
			Model: "gpt-4o",
		},
		Ollama: OllamaSettings{
			BaseURL: "http://localhost:11434",
			Model:   "llava:latest",
		},
	}
}

// Load reads settings from path (DefaultPath if empty), applies environment
// overrides, and fills defaults. A missing config file is not an error; the
// defaults plus environment are used.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultPath()
	}

	settings := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// No file; defaults + env only.
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(settings)

	if settings.Server.Port <= 0 {
		return nil, fmt.Errorf("invalid server port: %d", settings.Server.Port)
	}

	return settings, nil
}

// applyEnv overlays environment variables onto the settings. Environment
// always wins over file values.
func applyEnv(s *Settings) {
	setString(&s.DefaultProvider, "CHIMERA_DEFAULT_PROVIDER")
	setString(&s.Server.AuthToken, "CHIMERA_TOKEN")
	setBool(&s.Browser.Headless, "CHIMERA_HEADLESS")
	setString(&s.Browser.AllowedDomains, "CHIMERA_ALLOWED_DOMAINS")
	setString(&s.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&s.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&s.OpenAI.Model, "OPENAI_MODEL")
	setString(&s.Ollama.BaseURL, "OLLAMA_BASE_URL")
	setString(&s.Ollama.Model, "OLLAMA_MODEL")

	if v := os.Getenv("CHIMERA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
