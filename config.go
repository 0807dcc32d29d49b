package session

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/kelseyhightower/envconfig"
)

// Config gathers the knobs embedders usually want from the environment.
// Everything here has a constructor option equivalent; this just keeps
// twelve-factor deployments from hand-wiring them.
type Config struct {
	// BaseURL is the backend API root.
	BaseURL string `envconfig:"PORTAL_API_URL" default:"http://localhost:8000"`
	// CredentialsPath is where the file store keeps the bundle. Empty means
	// the embedder wires its own store.
	CredentialsPath string `envconfig:"PORTAL_CREDENTIALS_PATH"`
	// RedisAddr switches credential storage to redis when set.
	RedisAddr string `envconfig:"PORTAL_REDIS_ADDR"`
	// HTTPTimeout bounds identity and gateway requests.
	HTTPTimeout time.Duration `envconfig:"PORTAL_HTTP_TIMEOUT" default:"30s"`
	// SkewTolerance is the clock skew allowed when judging token expiry.
	SkewTolerance time.Duration `envconfig:"PORTAL_CLOCK_SKEW" default:"30s"`
	// WatchInterval is the polling cadence for file/sqlite store watchers.
	WatchInterval time.Duration `envconfig:"PORTAL_WATCH_INTERVAL" default:"500ms"`
	// FreshnessInterval is how often the manager re-inspects the token.
	FreshnessInterval time.Duration `envconfig:"PORTAL_FRESHNESS_INTERVAL" default:"1m"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
	)
}
