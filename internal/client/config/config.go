package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/services"
	"github.com/dmitrijs2005/momentkeeper/internal/client/syncer"
)

// Config holds runtime settings for the momentkeeper client.
type Config struct {
	ServerURL string
	AppToken  string
	// UserToken overrides the token stored by registration.
	UserToken string
	DBPath    string

	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	SweepConcurrency    int

	RetryBase        time.Duration
	RetryCap         time.Duration
	RetryMaxAttempts int
	PollInterval     time.Duration
	PollAttempts     int

	PageSize int
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	p := syncer.DefaultPolicy()

	c.ServerURL = "http://127.0.0.1:8080"
	c.DBPath = defaultDBPath()
	c.RequestTimeout = 15 * time.Second
	c.OnlineCheckInterval = services.DefaultCheckInterval
	c.SyncInterval = time.Minute
	c.SweepConcurrency = syncer.DefaultConcurrency
	c.RetryBase = p.Base
	c.RetryCap = p.Cap
	c.RetryMaxAttempts = p.MaxAttempts
	c.PollInterval = syncer.DefaultPollInterval
	c.PollAttempts = syncer.DefaultPollAttempts
	c.PageSize = api.DefaultPageSize
	c.LogLevel = "warn"
}

// Policy returns the backoff policy described by c.
func (c *Config) Policy() syncer.Policy {
	p := syncer.DefaultPolicy()
	p.Base = c.RetryBase
	p.Cap = c.RetryCap
	p.MaxAttempts = c.RetryMaxAttempts
	return p
}

// PollPolicy returns the enrichment polling policy described by c.
func (c *Config) PollPolicy() syncer.Policy {
	return syncer.PollPolicy(c.PollInterval, c.PollAttempts)
}

func (c *Config) normalize() {
	c.SweepConcurrency = syncer.ClampConcurrency(c.SweepConcurrency)
	c.PageSize = api.ClampPageSize(c.PageSize)
	if c.OnlineCheckInterval <= 0 {
		c.OnlineCheckInterval = services.DefaultCheckInterval
	}
	if c.SyncInterval < 0 {
		c.SyncInterval = 0
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present), the environment and a dotenv file, and
// command-line flags. Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	cfg.normalize()
	return cfg
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "momentkeeper.db"
	}
	return filepath.Join(dir, "momentkeeper", "moments.db")
}
