package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config holds all peterbot configuration.
type Config struct {
	// Core settings
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"` // discord, telegram

	// Chat platform credentials
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`

	// Generation backend
	LLM LLMConfig `yaml:"llm"`

	// Conversation history storage
	History HistoryConfig `yaml:"history"`

	// Streaming reply behaviour
	Stream StreamConfig `yaml:"stream"`

	// When and how the bot answers
	Behavior BehaviorConfig `yaml:"behavior"`

	Persona   PersonaConfig   `yaml:"persona"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Token string `yaml:"token"`
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout int    `yaml:"poll_timeout"` // seconds
}

// HistoryConfig configures the conversation store.
type HistoryConfig struct {
	Driver    string `yaml:"driver"` // memory, redis, pebble, sqlite
	RedisURL  string `yaml:"redis_url"`
	Path      string `yaml:"path"` // pebble directory or sqlite file
	KeyPrefix string `yaml:"key_prefix"`
	TTL       string `yaml:"ttl"`
	MaxTurns  int    `yaml:"max_turns"`
}

// StreamConfig configures the reply reconciler.
type StreamConfig struct {
	FlushInterval  string `yaml:"flush_interval"`
	TypingInterval string `yaml:"typing_interval"`
}

// BehaviorConfig configures the dispatcher.
type BehaviorConfig struct {
	// ReplyProbability is the chance of answering a message that neither
	// mentions nor replies to the bot. 0 disables unprompted replies.
	ReplyProbability float64        `yaml:"reply_probability"`
	Messages         MessagesConfig `yaml:"messages"`
}

// MessagesConfig holds the fixed user-facing texts.
type MessagesConfig struct {
	Overloaded  string `yaml:"overloaded"`
	Malfunction string `yaml:"malfunction"`
	Empty       string `yaml:"empty"`
}

// PersonaConfig points at the persona file.
type PersonaConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RateLimitConfig paces outgoing platform calls per channel.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "peterbot",
		Platform: "discord",

		Telegram: TelegramConfig{
			PollTimeout: 30,
		},

		LLM: DefaultLLMConfig(),

		History: HistoryConfig{
			Driver:    "memory",
			RedisURL:  "redis://localhost:6379/0",
			Path:      "data/history",
			KeyPrefix: "conversation:",
			TTL:       "2h",
			MaxTurns:  40,
		},

		Stream: StreamConfig{
			FlushInterval:  "1s",
			TypingInterval: "8s",
		},

		Behavior: BehaviorConfig{
			ReplyProbability: 0,
			Messages: MessagesConfig{
				Overloaded:  "Hehehe, my brain's all full up right now. Try me again in a bit!",
				Malfunction: "Hehehe, sorry folks, I had a bit of a malfunction there!",
				Empty:       "Hehehe... I got nothin'.",
			},
		},

		Persona: PersonaConfig{
			File:  "persona.yaml",
			Watch: true,
		},

		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},

		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Platform tokens
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		c.Discord.Token = token
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		c.Telegram.Token = token
	}

	// LLM API key from environment (later keys win)
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = ProviderGemini
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = ProviderOpenAI
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		c.LLM.BaseURL = url
		c.LLM.Provider = ProviderOllama
	}
	if model := os.Getenv("TEXT_MODEL"); model != "" {
		c.LLM.TextModel = model
	}
	if model := os.Getenv("VISION_MODEL"); model != "" {
		c.LLM.VisionModel = model
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		c.History.RedisURL = url
		c.History.Driver = "redis"
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if p := os.Getenv("REPLY_PROBABILITY"); p != "" {
		if v, err := strconv.ParseFloat(p, 64); err == nil {
			c.Behavior.ReplyProbability = v
		}
	}

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
		c.Metrics.Enabled = true
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetHistoryTTL returns the conversation TTL as a duration.
func (c *Config) GetHistoryTTL() time.Duration {
	d, err := time.ParseDuration(c.History.TTL)
	if err != nil || d <= 0 {
		return 2 * time.Hour
	}
	return d
}

// GetFlushInterval returns the minimum interval between streamed edits.
func (c *Config) GetFlushInterval() time.Duration {
	d, err := time.ParseDuration(c.Stream.FlushInterval)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

// GetTypingInterval returns the typing indicator refresh period.
func (c *Config) GetTypingInterval() time.Duration {
	d, err := time.ParseDuration(c.Stream.TypingInterval)
	if err != nil || d <= 0 {
		return 8 * time.Second
	}
	return d
}

// GetMaxImageBytes returns the per-image download cap in bytes.
func (c *Config) GetMaxImageBytes() int64 {
	n, err := humanize.ParseBytes(c.LLM.MaxImageSize)
	if err != nil || n == 0 {
		return 8 * 1000 * 1000
	}
	return int64(n)
}

// ValidPlatforms lists the supported chat platforms.
var ValidPlatforms = []string{"discord", "telegram"}

// ValidHistoryDrivers lists the supported history drivers.
var ValidHistoryDrivers = []string{"memory", "redis", "pebble", "sqlite"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidPlatforms, c.Platform) {
		return fmt.Errorf("invalid platform: %s (valid: %v)", c.Platform, ValidPlatforms)
	}
	switch c.Platform {
	case "discord":
		if c.Discord.Token == "" {
			return fmt.Errorf("discord token not configured (set DISCORD_TOKEN)")
		}
	case "telegram":
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram token not configured (set TELEGRAM_TOKEN)")
		}
	}

	if err := c.LLM.Validate(); err != nil {
		return err
	}

	if !contains(ValidHistoryDrivers, c.History.Driver) {
		return fmt.Errorf("invalid history driver: %s (valid: %v)", c.History.Driver, ValidHistoryDrivers)
	}
	if c.History.MaxTurns < 0 {
		return fmt.Errorf("history.max_turns must not be negative")
	}

	if p := c.Behavior.ReplyProbability; p < 0 || p > 1 {
		return fmt.Errorf("behavior.reply_probability must be within [0,1], got %v", p)
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
