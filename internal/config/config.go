package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// Config holds all configuration for the genforge server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Jobs      JobsConfig
	Webhook   WebhookConfig
	Session   SessionConfig
	Admin     AdminConfig
	Storage   StorageConfig
	Providers ProvidersConfig
}

// ServerConfig configures the HTTP surface. BaseURL is the externally
// reachable URL of this service; vendors need it to call our webhook.
type ServerConfig struct {
	Port               int      `env:"PORT" envDefault:"8080"`
	Env                string   `env:"ENV" envDefault:"development"`
	BaseURL            string   `env:"BASE_URL"`
	RequestsPerMinute  int      `env:"API_REQUESTS_PER_MINUTE" envDefault:"120"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConns        int           `env:"DATABASE_MAX_CONNS" envDefault:"25"`
	MinConns        int           `env:"DATABASE_MIN_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"5m"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

type JobsConfig struct {
	PollInterval       time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	PollMaxAttempts    int           `env:"POLL_MAX_ATTEMPTS" envDefault:"60"`
	DefaultUserCredits int           `env:"DEFAULT_USER_CREDITS" envDefault:"20"`
	DemoUserID         string        `env:"DEMO_USER_ID" envDefault:"00000000-0000-0000-0000-000000000001"`
}

type WebhookConfig struct {
	Secret string `env:"WEBHOOK_SECRET"`
}

type SessionConfig struct {
	Secret string        `env:"SESSION_SECRET"`
	TTL    time.Duration `env:"SESSION_TTL" envDefault:"720h"`
}

// AdminConfig guards the credit-grant endpoint. An empty password disables it.
type AdminConfig struct {
	Password string `env:"ADMIN_PASSWORD"`
}

type StorageConfig struct {
	Dir string `env:"STORAGE_DIR" envDefault:"./data/assets"`
}

type ProvidersConfig struct {
	Text2Image  string        `env:"PROVIDER_TEXT2IMAGE" envDefault:"simulation"`
	Text2Mesh   string        `env:"PROVIDER_TEXT2MESH" envDefault:"simulation"`
	Texturing   string        `env:"PROVIDER_TEXTURING" envDefault:"simulation"`
	Image2Video string        `env:"PROVIDER_IMAGE2VIDEO" envDefault:"simulation"`
	HTTPTimeout time.Duration `env:"VENDOR_HTTP_TIMEOUT" envDefault:"30s"`

	OpenAI     OpenAIConfig
	Meshy      MeshyConfig
	Runway     RunwayConfig
	Simulation SimulationConfig
}

type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`
	Model   string `env:"OPENAI_MODEL" envDefault:"dall-e-3"`
}

type MeshyConfig struct {
	APIKey  string `env:"MESHY_API_KEY"`
	BaseURL string `env:"MESHY_BASE_URL" envDefault:"https://api.meshy.ai"`
}

type RunwayConfig struct {
	APIKey  string `env:"RUNWAY_API_KEY"`
	BaseURL string `env:"RUNWAY_BASE_URL" envDefault:"https://api.dev.runwayml.com"`
}

type SimulationConfig struct {
	Text2ImageLatency  time.Duration `env:"SIM_LATENCY_TEXT2IMAGE" envDefault:"2s"`
	Text2MeshLatency   time.Duration `env:"SIM_LATENCY_TEXT2MESH" envDefault:"8s"`
	TexturingLatency   time.Duration `env:"SIM_LATENCY_TEXTURING" envDefault:"6s"`
	Image2VideoLatency time.Duration `env:"SIM_LATENCY_IMAGE2VIDEO" envDefault:"10s"`
}

// Selection returns the configured provider name for tool, defaulting to the
// simulation provider.
func (p ProvidersConfig) Selection(tool models.Tool) string {
	var name string
	switch tool {
	case models.ToolText2Image:
		name = p.Text2Image
	case models.ToolText2Mesh:
		name = p.Text2Mesh
	case models.ToolTexturing:
		name = p.Texturing
	case models.ToolImage2Video:
		name = p.Image2Video
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "simulation"
	}
	return name
}

// Latencies returns the simulated completion latency per tool.
func (s SimulationConfig) Latencies() map[models.Tool]time.Duration {
	return map[models.Tool]time.Duration{
		models.ToolText2Image:  s.Text2ImageLatency,
		models.ToolText2Mesh:   s.Text2MeshLatency,
		models.ToolTexturing:   s.TexturingLatency,
		models.ToolImage2Video: s.Image2VideoLatency,
	}
}

// DemoUser returns the parsed demo identity. Load has already validated it.
func (j JobsConfig) DemoUser() uuid.UUID {
	id, _ := uuid.Parse(j.DemoUserID)
	return id
}

// Load reads configuration from the environment (and optional .env files) and
// returns a validated Config. Returns a descriptive error if any required
// value is missing or invalid.
func Load() (*Config, error) {
	// Missing env files are fine; real environment variables take precedence.
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Webhook.Secret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}

	if c.Server.BaseURL != "" &&
		!strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("BASE_URL must start with http:// or https://, got %q", c.Server.BaseURL)
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")

	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Jobs.PollInterval)
	}
	if c.Jobs.PollMaxAttempts <= 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got %d", c.Jobs.PollMaxAttempts)
	}
	if c.Jobs.DefaultUserCredits < 0 {
		return fmt.Errorf("DEFAULT_USER_CREDITS must not be negative, got %d", c.Jobs.DefaultUserCredits)
	}
	if _, err := uuid.Parse(c.Jobs.DemoUserID); err != nil {
		return fmt.Errorf("DEMO_USER_ID must be a UUID, got %q", c.Jobs.DemoUserID)
	}

	if strings.TrimSpace(c.Storage.Dir) == "" {
		return fmt.Errorf("STORAGE_DIR must not be empty")
	}

	return nil
}
