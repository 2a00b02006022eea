package config

import "time"

// Config holds runtime settings for the TimeGrid CLI.
//
// Fields:
//   - ServerEndpointAddr: base URL of the backend HTTP API.
//   - DatabasePath: path of the local SQLite cache file.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - FeedRefreshInterval: how often subscribed calendar feeds are refetched.
//   - DrainDelay: pause between successfully synced queue operations.
//   - RateLimitCooldown: how long sync stays quiet after the server throttles.
//   - MaxSyncAttempts: retries before a failing queued operation is parked.
//
// Units: intervals are time.Duration values (e.g., 3*time.Second).
type Config struct {
	ServerEndpointAddr  string
	DatabasePath        string
	OnlineCheckInterval time.Duration
	FeedRefreshInterval time.Duration
	DrainDelay          time.Duration
	RateLimitCooldown   time.Duration
	MaxSyncAttempts     int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabasePath = "timegrid.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.FeedRefreshInterval = 5 * time.Minute
	c.DrainDelay = 100 * time.Millisecond
	c.RateLimitCooldown = 30 * time.Second
	c.MaxSyncAttempts = 5
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
