// Package config loads runtime configuration for the TimeGrid CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the backend HTTP API
//	-d string   path of the local database file
//	-i int      online status check interval (seconds)
//	-r int      calendar feed refresh interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "http://127.0.0.1:8080",
//	  "database_path": "timegrid.db",
//	  "online_check_interval": "3s",
//	  "feed_refresh_interval": "5m",
//	  "max_sync_attempts": 5
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
