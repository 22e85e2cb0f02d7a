package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory    MemoryConfig              `json:"memory" yaml:"memory"`
	Agent     AgentConfig               `json:"agent" yaml:"agent"`
	Browser   BrowserConfig             `json:"browser" yaml:"browser"`
	Policy    PolicyConfig              `json:"policy" yaml:"policy"`
	Metrics   MetricsConfig             `json:"metrics" yaml:"metrics"`
	Log       LogConfig                 `json:"log" yaml:"log"`
}

type AppConfig struct {
	Name string `json:"name" yaml:"name"`
	// Provider pins a provider by name; empty picks the first enabled one.
	Provider   string `json:"provider" yaml:"provider"`
	PromptsDir string `json:"prompts_dir" yaml:"prompts_dir"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey            string `json:"api_key" yaml:"api_key"`
	Model             string `json:"model" yaml:"model"`
	BaseURL           string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	RequestsPerMinute int    `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

// AgentConfig bounds the control loop.
type AgentConfig struct {
	// MaxAttempts caps attempted actions per session.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// ReplacementRetries is how many extra replacement requests a step gets
	// after the first one fails.
	ReplacementRetries int      `json:"replacement_retries" yaml:"replacement_retries"`
	VerifierHistory    int      `json:"verifier_history" yaml:"verifier_history"`
	MaxVerifications   int      `json:"max_verifications" yaml:"max_verifications"`
	ActionTimeout      Duration `json:"action_timeout" yaml:"action_timeout"`
	GenerateTimeout    Duration `json:"generate_timeout" yaml:"generate_timeout"`
	SessionIdleTTL     Duration `json:"session_idle_ttl" yaml:"session_idle_ttl"`
	ReapInterval       Duration `json:"reap_interval" yaml:"reap_interval"`
}

type BrowserConfig struct {
	Headless  bool   `json:"headless" yaml:"headless"`
	UserAgent string `json:"user_agent" yaml:"user_agent"`
	Width     int    `json:"width" yaml:"width"`
	Height    int    `json:"height" yaml:"height"`
	// SearchMode is "page" to submit queries on the search engine page or
	// "api" to resolve the top result through DuckDuckGo first.
	SearchMode string `json:"search_mode" yaml:"search_mode"`
}

type PolicyConfig struct {
	DenyKinds    []string `json:"deny_kinds" yaml:"deny_kinds"`
	DenyPatterns []string `json:"deny_patterns" yaml:"deny_patterns"`
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	LLMLogPath string `json:"llm_log_path" yaml:"llm_log_path"`
}

// Duration reads "30s"-style strings or integer seconds from JSON and YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch t := v.(type) {
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(t * float64(time.Second)))
	case int:
		*d = Duration(time.Duration(t) * time.Second)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		App:       AppConfig{Name: "autopilot"},
		Gateways:  map[string]GatewayConfig{},
		Providers: map[string]ProviderConfig{},
		Memory:    MemoryConfig{Type: "sqlite", Path: "autopilot.db"},
		Agent: AgentConfig{
			MaxAttempts:        60,
			ReplacementRetries: 1,
			VerifierHistory:    10,
			MaxVerifications:   5,
			ActionTimeout:      Duration(30 * time.Second),
			GenerateTimeout:    Duration(45 * time.Second),
			SessionIdleTTL:     Duration(30 * time.Minute),
			ReapInterval:       Duration(time.Minute),
		},
		Browser: BrowserConfig{Width: 1366, Height: 900, SearchMode: "page"},
		Metrics: MetricsConfig{Addr: ":9464"},
		Log:     LogConfig{Level: "info", Format: "json", LLMLogPath: filepath.Join("logs", "llm.jsonl")},
	}
}

// Load reads path (YAML or JSON by extension) over the defaults, then fills
// secrets from the environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

var providerEnv = map[string]string{
	"gemini":     "GEMINI_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

func (c *Config) applyEnv() {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if c.Gateways == nil {
		c.Gateways = map[string]GatewayConfig{}
	}
	for name, env := range providerEnv {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		p, ok := c.Providers[name]
		if !ok {
			// A key in the environment is enough to enable a provider.
			p.Enabled = true
		}
		if p.APIKey == "" {
			p.APIKey = key
		}
		c.Providers[name] = p
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if p, ok := c.Providers["ollama"]; ok && p.BaseURL == "" {
			p.BaseURL = host
			c.Providers["ollama"] = p
		}
	}
	for name, env := range map[string]string{"telegram": "TELEGRAM_BOT_TOKEN", "discord": "DISCORD_BOT_TOKEN"} {
		if g, ok := c.Gateways[name]; ok && g.Token == "" {
			g.Token = os.Getenv(env)
			c.Gateways[name] = g
		}
	}
}

// Validate rejects settings the control loop cannot run with.
func (c *Config) Validate() error {
	a := c.Agent
	switch {
	case a.MaxAttempts <= 0:
		return fmt.Errorf("agent.max_attempts must be positive, got %d", a.MaxAttempts)
	case a.ReplacementRetries < 0:
		return fmt.Errorf("agent.replacement_retries must not be negative, got %d", a.ReplacementRetries)
	case a.VerifierHistory <= 0:
		return fmt.Errorf("agent.verifier_history must be positive, got %d", a.VerifierHistory)
	case a.MaxVerifications <= 0:
		return fmt.Errorf("agent.max_verifications must be positive, got %d", a.MaxVerifications)
	case a.ActionTimeout <= 0 || a.GenerateTimeout <= 0:
		return errors.New("agent timeouts must be positive")
	case a.SessionIdleTTL < 0 || a.ReapInterval < 0:
		return errors.New("agent session expiry settings must not be negative")
	}
	if m := c.Browser.SearchMode; m != "" && m != "page" && m != "api" {
		return fmt.Errorf("browser.search_mode must be page or api, got %q", m)
	}
	return nil
}

// GetDefaultProvider returns the pinned provider, or the first enabled one
// in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	if c.App.Provider != "" {
		if p, ok := c.Providers[c.App.Provider]; ok && p.Enabled {
			return c.App.Provider, p
		}
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns the named gateway config if it is enabled and has a token.
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
