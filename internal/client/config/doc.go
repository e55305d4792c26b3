// Package config loads runtime configuration for the momentkeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Environment, after loading a dotenv file (-env, or ./.env when
//     present): MOMENTS_SERVER_URL, MOMENTS_APP_TOKEN, MOMENTS_USER_TOKEN.
//  4. Command-line flags, which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "https://moments.example.com",
//	  "db_path": "/var/lib/momentkeeper/moments.db",
//	  "online_check_interval": "3s",
//	  "sync_interval": "1m",
//	  "sweep_concurrency": 4,
//	  "retry_base": "500ms",
//	  "retry_cap": "30s",
//	  "retry_max_attempts": 5,
//	  "poll_interval": "2s",
//	  "poll_attempts": 10,
//	  "page_size": 20,
//	  "log_level": "info"
//	}
package config
