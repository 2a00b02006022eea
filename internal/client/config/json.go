package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/flagx"
	"github.com/dmitrijs2005/timegrid/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DatabasePath        string         `json:"database_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	FeedRefreshInterval timex.Duration `json:"feed_refresh_interval"`
	DrainDelay          timex.Duration `json:"drain_delay"`
	RateLimitCooldown   timex.Duration `json:"rate_limit_cooldown"`
	MaxSyncAttempts     int            `json:"max_sync_attempts"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Behavior:
//   - Reads and unmarshals the JSON into JsonConfig.
//   - Copies known fields into the provided Config.
//   - Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	cfg.DatabasePath = jc.DatabasePath
	cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	cfg.FeedRefreshInterval = time.Duration(jc.FeedRefreshInterval.Duration)
	if jc.DrainDelay.Duration > 0 {
		cfg.DrainDelay = time.Duration(jc.DrainDelay.Duration)
	}
	if jc.RateLimitCooldown.Duration > 0 {
		cfg.RateLimitCooldown = time.Duration(jc.RateLimitCooldown.Duration)
	}
	if jc.MaxSyncAttempts > 0 {
		cfg.MaxSyncAttempts = jc.MaxSyncAttempts
	}
}
