package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"archie-core-shopify-app/internal/domain"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

// Config is the process configuration read from the environment
type Config struct {
	APIKey     string  `env:"SHOPIFY_API_KEY,required"`
	APISecret  string  `env:"SHOPIFY_API_SECRET,required"`
	Scopes     string  `env:"SHOPIFY_API_SCOPES,default=read_products"`
	APIVersion string  `env:"SHOPIFY_API_VERSION,default=2024-10"`
	RateLimit  float64 `env:"SHOPIFY_API_RATE_LIMIT,default=2"`
	GrantMode  string  `env:"SHOPIFY_API_GRANT_MODE,default=OFFLINE"`
	Embedded   bool    `env:"SHOPIFY_APPBRIDGE_ENABLED,default=true"`
	// BillingEnabled turns on the Billable middleware
	BillingEnabled bool   `env:"SHOPIFY_BILLING_ENABLED,default=false"`
	PlansFile      string `env:"SHOPIFY_PLANS_FILE"`

	AppURL         string `env:"APP_URL,default=http://localhost:8080"`
	Port           string `env:"PORT,default=8080"`
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`
	SwaggerFile    string `env:"SWAGGER_FILE,default=./docs/swagger.json"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`

	StoreDriver   string `env:"STORE_DRIVER,default=mongo"`
	MongoURI      string `env:"MONGODB_URI,default=mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGODB_DATABASE,default=shopify_app"`
	RedisURL      string `env:"REDIS_URL,default=redis://localhost:6379/0"`
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	CookieSecure bool          `env:"SESSION_COOKIE_SECURE,default=true"`
	SessionTTL   time.Duration `env:"SESSION_TTL,default=24h"`
	TokenLeeway  time.Duration `env:"SESSION_TOKEN_LEEWAY,default=0s"`

	ChargeExpirySchedule string        `env:"CHARGE_EXPIRY_SCHEDULE,default=5 0 * * *"`
	QueueWorkers         int           `env:"JOB_QUEUE_WORKERS,default=4"`
	QueueBuffer          int           `env:"JOB_QUEUE_BUFFER,default=256"`
	JobTimeout           time.Duration `env:"JOB_TIMEOUT,default=2m"`
}

// LoadDotEnv loads .env into the environment. A missing file is not an error.
func LoadDotEnv(filenames ...string) bool {
	return godotenv.Load(filenames...) == nil
}

// Load decodes and validates the configuration from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envdecode cannot
func (c *Config) Validate() error {
	var errs []error
	switch domain.GrantMode(c.GrantMode) {
	case domain.GrantModeOffline, domain.GrantModePerUser:
	default:
		errs = append(errs, fmt.Errorf("SHOPIFY_API_GRANT_MODE must be %s or %s, got %q", domain.GrantModeOffline, domain.GrantModePerUser, c.GrantMode))
	}
	switch c.StoreDriver {
	case StoreDriverMongo, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", StoreDriverMongo, StoreDriverMemory, c.StoreDriver))
	}
	if c.QueueWorkers <= 0 {
		errs = append(errs, errors.New("JOB_QUEUE_WORKERS must be positive"))
	}
	if !strings.HasPrefix(c.AppURL, "http://") && !strings.HasPrefix(c.AppURL, "https://") {
		errs = append(errs, fmt.Errorf("APP_URL must be an absolute url, got %q", c.AppURL))
	}
	return errors.Join(errs...)
}

// ScopeList returns the requested OAuth scopes
func (c *Config) ScopeList() []string {
	return splitList(c.Scopes)
}

// OriginList returns the CORS origins, or nil for the defaults
func (c *Config) OriginList() []string {
	return splitList(c.AllowedOrigins)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
