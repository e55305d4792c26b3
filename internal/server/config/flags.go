package config

import (
	"github.com/urfave/cli/v2"
)

// Flags binds cfg fields to command-line flags and environment variables.
// Current cfg values become flag defaults, so the resulting precedence is
// defaults, then JSON, then environment, then flags.
//
// The -c/-config flag is listed so the parser accepts it; LoadConfig reads
// it before the flags are built.
func Flags(cfg *Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "JSON config file"},
		&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Value: cfg.EndpointAddr, Destination: &cfg.EndpointAddr,
			EnvVars: []string{"MOMENTS_ADDRESS"}, Usage: "address and port to run server"},
		&cli.StringFlag{Name: "database", Aliases: []string{"d"}, Value: cfg.DatabaseDSN, Destination: &cfg.DatabaseDSN,
			EnvVars: []string{"MOMENTS_DATABASE_DSN"}, Usage: "database DSN, or \"memory\""},
		&cli.StringFlag{Name: "secret", Aliases: []string{"s"}, Value: cfg.SecretKey, Destination: &cfg.SecretKey,
			EnvVars: []string{"MOMENTS_SECRET_KEY"}, Usage: "user token signing key"},
		&cli.StringFlag{Name: "app-token", Value: cfg.AppToken, Destination: &cfg.AppToken,
			EnvVars: []string{"MOMENTS_APP_TOKEN"}, Usage: "application token clients must present"},
		&cli.DurationFlag{Name: "token-validity", Value: cfg.UserTokenValidity, Destination: &cfg.UserTokenValidity,
			Usage: "user token lifetime (0 for no expiry)"},
		&cli.IntFlag{Name: "daily-limit", Value: cfg.DailyMomentLimit, Destination: &cfg.DailyMomentLimit,
			Usage: "moments per day for free-tier users"},
		&cli.DurationFlag{Name: "window", Value: cfg.RestrictedWindow, Destination: &cfg.RestrictedWindow,
			Usage: "history visible to free-tier users"},
		&cli.Float64Flag{Name: "rate", Value: cfg.RateLimitRPS, Destination: &cfg.RateLimitRPS,
			Usage: "requests per second per user"},
		&cli.IntFlag{Name: "burst", Value: cfg.RateLimitBurst, Destination: &cfg.RateLimitBurst,
			Usage: "request burst per user"},
		&cli.DurationFlag{Name: "enrich-stale", Value: cfg.EnrichmentStaleAfter, Destination: &cfg.EnrichmentStaleAfter,
			Usage: "age after which an unfinished enrichment may be retried"},
		&cli.StringFlag{Name: "gemini-key", Value: cfg.GeminiAPIKey, Destination: &cfg.GeminiAPIKey,
			EnvVars: []string{"GEMINI_API_KEY"}, Usage: "Gemini API key; empty uses the built-in generator"},
		&cli.StringFlag{Name: "gemini-model", Value: cfg.GeminiModel, Destination: &cfg.GeminiModel,
			Usage: "Gemini model name"},
		&cli.StringFlag{Name: "s3-user", Aliases: []string{"u"}, Value: cfg.S3RootUser, Destination: &cfg.S3RootUser,
			EnvVars: []string{"MOMENTS_S3_USER"}, Usage: "S3 root user"},
		&cli.StringFlag{Name: "s3-password", Aliases: []string{"p"}, Value: cfg.S3RootPassword, Destination: &cfg.S3RootPassword,
			EnvVars: []string{"MOMENTS_S3_PASSWORD"}, Usage: "S3 root password"},
		&cli.StringFlag{Name: "s3-bucket", Aliases: []string{"b"}, Value: cfg.S3Bucket, Destination: &cfg.S3Bucket,
			Usage: "S3 bucket for purge archives; empty disables export"},
		&cli.StringFlag{Name: "s3-region", Aliases: []string{"g"}, Value: cfg.S3Region, Destination: &cfg.S3Region,
			Usage: "S3 region"},
		&cli.StringFlag{Name: "s3-endpoint", Aliases: []string{"e"}, Value: cfg.S3BaseEndpoint, Destination: &cfg.S3BaseEndpoint,
			Usage: "S3 base endpoint"},
		&cli.DurationFlag{Name: "shutdown-timeout", Value: cfg.ShutdownTimeout, Destination: &cfg.ShutdownTimeout,
			Usage: "graceful shutdown timeout"},
		&cli.StringFlag{Name: "log-level", Value: cfg.LogLevel, Destination: &cfg.LogLevel,
			EnvVars: []string{"MOMENTS_LOG_LEVEL"}, Usage: "debug, info, warn or error"},
	}
}
