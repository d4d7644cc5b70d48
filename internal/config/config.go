// Package config provides configuration management for the MathLens service.
// Configuration is loaded from environment variables (optionally seeded from a
// .env file) with sensible defaults, then overlaid with an optional CUE file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultHost     = "0.0.0.0"
	DefaultPort     = 8080
	DefaultLogLevel = "info"
	DefaultDataDir  = "."

	// Environment variable names that are read outside the tagged struct
	EnvEnvFile    = "MATHLENS_ENV_FILE"
	EnvConfigFile = "MATHLENS_CONFIG_FILE"

	// Database filename
	DBFilename = "mathlens.db"

	// Completion defaults
	ProviderOpenAI        = "openai"
	ProviderGemini        = "gemini"
	DefaultProvider       = ProviderOpenAI
	DefaultOpenAIModel    = "gpt-4"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultTemperature    = 0.3
	DefaultCompletionTime = 120 * time.Second

	// Renderer defaults
	DefaultManimPath     = "manim"
	DefaultRenderQuality = "l"
	DefaultRenderTimeout = 5 * time.Minute
	DefaultPollAttempts  = 5
	DefaultPollInterval  = time.Second
)

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	LogLevel() string
	LogFile() string
	LogJournal() bool

	DataDir() string
	DBPath() string
	ScriptsDir() string
	MediaDir() string
	VideoRoot() string
	StaticDir() string

	CompletionProvider() string
	CompletionAPIKey() string
	CompletionBaseURL() string
	CompletionModel() string
	CompletionTemperature() float32
	CompletionTimeout() time.Duration
	ProxyAddr() string

	PromptTemplate() string

	ManimPath() string
	RenderQuality() string
	RenderTimeout() time.Duration
	PollAttempts() int
	PollInterval() time.Duration
	PublishStatic() bool
	RepairStripDot() bool

	CORSOrigins() []string
	APIToken() string
	SlackWebhookURL() string
}

type settings struct {
	Host       string `env:"MATHLENS_HOST"`
	Port       int    `env:"MATHLENS_PORT"`
	LogLevel   string `env:"MATHLENS_LOG_LEVEL"`
	LogFile    string `env:"MATHLENS_LOG_FILE"`
	LogJournal bool   `env:"MATHLENS_LOG_JOURNAL"`
	DataDir    string `env:"MATHLENS_DATA_DIR"`

	Provider       string        `env:"MATHLENS_COMPLETION_PROVIDER"`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	GeminiAPIKey   string        `env:"GEMINI_API_KEY"`
	GoogleAPIKey   string        `env:"GOOGLE_API_KEY"`
	BaseURL        string        `env:"MATHLENS_COMPLETION_BASE_URL"`
	Model          string        `env:"MATHLENS_MODEL"`
	Temperature    float32       `env:"MATHLENS_TEMPERATURE" envDefault:"0.3"`
	CompletionTime time.Duration `env:"MATHLENS_COMPLETION_TIMEOUT" envDefault:"120s"`
	ProxyAddr      string        `env:"MATHLENS_PROXY"`

	PromptTemplateFile string `env:"MATHLENS_PROMPT_TEMPLATE_FILE"`

	ManimPath     string        `env:"MATHLENS_MANIM_PATH"`
	RenderQuality string        `env:"MATHLENS_RENDER_QUALITY"`
	RenderTimeout time.Duration `env:"MATHLENS_RENDER_TIMEOUT" envDefault:"5m"`
	PollAttempts  int           `env:"MATHLENS_POLL_ATTEMPTS" envDefault:"5"`
	PollInterval  time.Duration `env:"MATHLENS_POLL_INTERVAL" envDefault:"1s"`
	PublishStatic bool          `env:"MATHLENS_PUBLISH_STATIC" envDefault:"true"`
	StripDot      bool          `env:"MATHLENS_REPAIR_STRIP_DOT" envDefault:"true"`

	CORSOrigins     []string `env:"MATHLENS_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	APIToken        string   `env:"MATHLENS_API_TOKEN"`
	SlackWebhookURL string   `env:"MATHLENS_SLACK_WEBHOOK_URL"`
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	s              settings
	promptTemplate string
}

// New creates a new EnvConfig with defaults, .env values, environment
// overrides and the optional CUE overlay, in that order of precedence.
func New() (*EnvConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	var s settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg := &EnvConfig{s: s}
	cfg.applyDefaults()

	if path := cfg.s.PromptTemplateFile; path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template file: %w", err)
		}
		cfg.promptTemplate = string(content)
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		overlay, err := LoadOverlay(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", EnvConfigFile, err)
		}
		cfg.apply(overlay)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile seeds the process environment from a .env file. Variables that
// are already set are left untouched.
func loadEnvFile() error {
	path := os.Getenv(EnvEnvFile)
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (c *EnvConfig) applyDefaults() {
	if c.s.Host == "" {
		c.s.Host = DefaultHost
	}
	if c.s.Port == 0 {
		c.s.Port = DefaultPort
	}
	if c.s.LogLevel == "" {
		c.s.LogLevel = DefaultLogLevel
	}
	if c.s.DataDir == "" {
		c.s.DataDir = DefaultDataDir
	}
	c.s.Provider = strings.ToLower(strings.TrimSpace(c.s.Provider))
	if c.s.Provider == "" {
		c.s.Provider = DefaultProvider
	}
	if c.s.Model == "" {
		if c.s.Provider == ProviderGemini {
			c.s.Model = DefaultGeminiModel
		} else {
			c.s.Model = DefaultOpenAIModel
		}
	}
	if c.s.BaseURL == "" && c.s.Provider == ProviderOpenAI {
		c.s.BaseURL = DefaultOpenAIBaseURL
	}
	if c.s.ManimPath == "" {
		c.s.ManimPath = DefaultManimPath
	}
	if c.s.RenderQuality == "" {
		c.s.RenderQuality = DefaultRenderQuality
	}
}

func (c *EnvConfig) apply(o *Overlay) {
	if o == nil {
		return
	}
	if o.PromptTemplate != nil {
		c.promptTemplate = *o.PromptTemplate
	}
	if o.Model != nil {
		c.s.Model = *o.Model
	}
	if o.Temperature != nil {
		c.s.Temperature = float32(*o.Temperature)
	}
	if len(o.CORSOrigins) > 0 {
		c.s.CORSOrigins = o.CORSOrigins
	}
}

func (c *EnvConfig) validate() error {
	if c.s.Port < 1 || c.s.Port > 65535 {
		return fmt.Errorf("invalid MATHLENS_PORT: port must be between 1 and 65535")
	}
	switch c.s.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("invalid MATHLENS_COMPLETION_PROVIDER %q: want %s or %s", c.s.Provider, ProviderOpenAI, ProviderGemini)
	}
	if c.s.Temperature < 0 || c.s.Temperature > 2 {
		return fmt.Errorf("invalid MATHLENS_TEMPERATURE: must be between 0 and 2")
	}
	switch c.s.RenderQuality {
	case "l", "m", "h", "p", "k":
	default:
		return fmt.Errorf("invalid MATHLENS_RENDER_QUALITY %q: want one of l, m, h, p, k", c.s.RenderQuality)
	}
	if c.s.PollAttempts < 1 {
		return fmt.Errorf("invalid MATHLENS_POLL_ATTEMPTS: must be at least 1")
	}
	if c.s.PollInterval < 0 {
		return fmt.Errorf("invalid MATHLENS_POLL_INTERVAL: must not be negative")
	}
	return nil
}

// Host returns the interface the HTTP server binds to
func (c *EnvConfig) Host() string {
	return c.s.Host
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.s.Port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.s.LogLevel
}

// LogFile returns the rotating log file path; empty disables file logging
func (c *EnvConfig) LogFile() string {
	return c.s.LogFile
}

func (c *EnvConfig) LogJournal() bool {
	return c.s.LogJournal
}

// DataDir returns the root directory for all generated state
func (c *EnvConfig) DataDir() string {
	return c.s.DataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.s.DataDir, DBFilename)
}

// ScriptsDir holds one generated source file per request
func (c *EnvConfig) ScriptsDir() string {
	return filepath.Join(c.s.DataDir, "generated_scripts")
}

// MediaDir is handed to the renderer as its media root
func (c *EnvConfig) MediaDir() string {
	return filepath.Join(c.s.DataDir, "media")
}

// VideoRoot is where the renderer places videos under MediaDir
func (c *EnvConfig) VideoRoot() string {
	return filepath.Join(c.MediaDir(), "videos")
}

// StaticDir holds published copies of rendered videos
func (c *EnvConfig) StaticDir() string {
	return filepath.Join(c.s.DataDir, "static")
}

func (c *EnvConfig) CompletionProvider() string {
	return c.s.Provider
}

// CompletionAPIKey returns the credential for the configured provider.
// An empty value means the completion client stays unconfigured.
func (c *EnvConfig) CompletionAPIKey() string {
	if c.s.Provider == ProviderGemini {
		if c.s.GeminiAPIKey != "" {
			return c.s.GeminiAPIKey
		}
		return c.s.GoogleAPIKey
	}
	return c.s.OpenAIAPIKey
}

func (c *EnvConfig) CompletionBaseURL() string {
	return strings.TrimRight(c.s.BaseURL, "/")
}

func (c *EnvConfig) CompletionModel() string {
	return c.s.Model
}

func (c *EnvConfig) CompletionTemperature() float32 {
	return c.s.Temperature
}

func (c *EnvConfig) CompletionTimeout() time.Duration {
	if c.s.CompletionTime <= 0 {
		return DefaultCompletionTime
	}
	return c.s.CompletionTime
}

// ProxyAddr returns the outbound proxy for completion calls, falling back to
// the conventional proxy variables.
func (c *EnvConfig) ProxyAddr() string {
	if c.s.ProxyAddr != "" {
		return c.s.ProxyAddr
	}
	for _, name := range []string{"ALL_PROXY", "all_proxy", "HTTPS_PROXY", "https_proxy"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// PromptTemplate returns the process-wide template override; empty means the
// built-in default is used.
func (c *EnvConfig) PromptTemplate() string {
	return c.promptTemplate
}

func (c *EnvConfig) ManimPath() string {
	return c.s.ManimPath
}

func (c *EnvConfig) RenderQuality() string {
	return c.s.RenderQuality
}

func (c *EnvConfig) RenderTimeout() time.Duration {
	if c.s.RenderTimeout <= 0 {
		return DefaultRenderTimeout
	}
	return c.s.RenderTimeout
}

func (c *EnvConfig) PollAttempts() int {
	return c.s.PollAttempts
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.s.PollInterval
}

func (c *EnvConfig) PublishStatic() bool {
	return c.s.PublishStatic
}

func (c *EnvConfig) RepairStripDot() bool {
	return c.s.StripDot
}

// CORSOrigins returns the allowed browser origins; "*" allows any origin
func (c *EnvConfig) CORSOrigins() []string {
	var out []string
	for _, o := range c.s.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *EnvConfig) APIToken() string {
	return c.s.APIToken
}

func (c *EnvConfig) SlackWebhookURL() string {
	return c.s.SlackWebhookURL
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
