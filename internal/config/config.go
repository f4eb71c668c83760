package config

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// DatabaseURL, if set, enables durable chat-history persistence via
	// chatstore; absent means the process runs in-memory only and chat
	// history does not survive a restart.
	DatabaseURL string `env:"DATABASE_URL"`

	// Hardware transport: the session core talks to connected wearables
	// over MQTT, one topic tree per user (see internal/hardware).
	MQTTBrokerURL string `env:"MQTT_BROKER_URL" envDefault:"tcp://localhost:1883"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"session-engine"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	// Session lifecycle.
	GracePeriod    time.Duration `env:"GRACE_PERIOD" envDefault:"60s"`
	SilenceTimeout time.Duration `env:"SILENCE_TIMEOUT" envDefault:"1500ms"`

	// Optional chimes played over the device speaker; empty disables each.
	WelcomeSoundURL    string `env:"WELCOME_SOUND_URL"`
	ProcessingSoundURL string `env:"PROCESSING_SOUND_URL"`

	// Agent (LLM) backend.
	AgentProvider    string        `env:"AGENT_PROVIDER" envDefault:"openai"`
	AgentAPIKey      string        `env:"AGENT_API_KEY"`
	AgentBaseURL     string        `env:"AGENT_BASE_URL"`
	AgentModel       string        `env:"AGENT_MODEL" envDefault:"gpt-4o-mini"`
	AgentMaxTokens   int           `env:"AGENT_MAX_TOKENS" envDefault:"600"`
	AgentTemperature float64       `env:"AGENT_TEMPERATURE" envDefault:"0.4"`
	AgentDeadline    time.Duration `env:"AGENT_DEADLINE" envDefault:"30s"`

	// Photo durability backend: "none" (recents ring only), "local", "s3",
	// or "tiered" (local-first, async S3 mirror).
	PhotoBackend  string `env:"PHOTO_BACKEND" envDefault:"none"`
	PhotoLocalDir string `env:"PHOTO_LOCAL_DIR" envDefault:"./photos"`
	PhotoS3Bucket string `env:"PHOTO_S3_BUCKET"`
	PhotoS3Region string `env:"PHOTO_S3_REGION"`
	PhotoS3Prefix string `env:"PHOTO_S3_PREFIX"`

	// Settings storage (theme, per-user timezone override, etc).
	SettingsFile string `env:"SETTINGS_FILE" envDefault:"./data/settings.json"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	// CookieSecret is loaded from COOKIE_SECRET, or auto-generated if unset.
	// No component of this module reads it.
	CookieSecret          string `env:"COOKIE_SECRET"`
	CookieSecretGenerated bool   // true when auto-generated (not from env/config)

	AuthEnabled        bool    `env:"AUTH_ENABLED" envDefault:"true"`
	AuthToken          string  `env:"AUTH_TOKEN"`
	AuthTokenGenerated bool    // true when auto-generated (not from env/config)
	WriteToken         string  `env:"WRITE_TOKEN"` // separate token for write operations; if not set, writes use AuthToken
	RateLimitRPS       float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
	CORSOrigins        string  `env:"CORS_ORIGINS"` // comma-separated allowed origins; empty = allow all (*)
	LogLevel           string  `env:"LOG_LEVEL" envDefault:"info"`

	// DebugEndpoints enables the dev-only /api/debug/kill-session route.
	DebugEndpoints bool `env:"DEBUG_ENDPOINTS" envDefault:"false"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	MQTTBrokerURL string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}

	if cfg.CookieSecret == "" {
		if secret, err := randomToken(); err == nil {
			cfg.CookieSecret = secret
			cfg.CookieSecretGenerated = true
		}
	}

	// When auth is explicitly disabled, clear any tokens so middleware passes everything through.
	if !cfg.AuthEnabled {
		cfg.AuthToken = ""
		cfg.WriteToken = ""
	} else if cfg.AuthToken == "" {
		// Auto-generate AUTH_TOKEN if not configured. This ensures the API is always
		// protected from automated scanners. The token changes on each restart; set
		// AUTH_TOKEN in .env for a persistent one.
		if token, err := randomToken(); err == nil {
			cfg.AuthToken = token
			cfg.AuthTokenGenerated = true
		}
	}

	return cfg, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
