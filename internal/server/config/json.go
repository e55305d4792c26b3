package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds. Absent keys leave the
// current value untouched.
type JsonConfig struct {
	EndpointAddr         *string         `json:"endpoint_addr"`
	DatabaseDSN          *string         `json:"database_dsn"`
	SecretKey            *string         `json:"secret_key"`
	AppToken             *string         `json:"app_token"`
	UserTokenValidity    *timex.Duration `json:"user_token_validity"`
	DailyMomentLimit     *int            `json:"daily_moment_limit"`
	RestrictedWindow     *timex.Duration `json:"restricted_window"`
	RateLimitRPS         *float64        `json:"rate_limit_rps"`
	RateLimitBurst       *int            `json:"rate_limit_burst"`
	EnrichmentStaleAfter *timex.Duration `json:"enrichment_stale_after"`
	GeminiAPIKey         *string         `json:"gemini_api_key"`
	GeminiModel          *string         `json:"gemini_model"`
	S3RootUser           *string         `json:"s3_root_user"`
	S3RootPassword       *string         `json:"s3_root_password"`
	S3Bucket             *string         `json:"s3_bucket"`
	S3Region             *string         `json:"s3_region"`
	S3BaseEndpoint       *string         `json:"s3_base_endpoint"`
	ShutdownTimeout      *timex.Duration `json:"shutdown_timeout"`
	LogLevel             *string         `json:"log_level"`
}

// parseJson loads configuration values from the JSON file at path into cfg.
// An empty path loads nothing. If the file cannot be read or contains
// invalid JSON, the function panics.
func parseJson(cfg *Config, path string) {
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	jc := &JsonConfig{}
	if err := json.Unmarshal(file, jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setValue(&cfg.EndpointAddr, jc.EndpointAddr)
	setValue(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setValue(&cfg.SecretKey, jc.SecretKey)
	setValue(&cfg.AppToken, jc.AppToken)
	setDuration(&cfg.UserTokenValidity, jc.UserTokenValidity)
	setValue(&cfg.DailyMomentLimit, jc.DailyMomentLimit)
	setDuration(&cfg.RestrictedWindow, jc.RestrictedWindow)
	setValue(&cfg.RateLimitRPS, jc.RateLimitRPS)
	setValue(&cfg.RateLimitBurst, jc.RateLimitBurst)
	setDuration(&cfg.EnrichmentStaleAfter, jc.EnrichmentStaleAfter)
	setValue(&cfg.GeminiAPIKey, jc.GeminiAPIKey)
	setValue(&cfg.GeminiModel, jc.GeminiModel)
	setValue(&cfg.S3RootUser, jc.S3RootUser)
	setValue(&cfg.S3RootPassword, jc.S3RootPassword)
	setValue(&cfg.S3Bucket, jc.S3Bucket)
	setValue(&cfg.S3Region, jc.S3Region)
	setValue(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setDuration(&cfg.ShutdownTimeout, jc.ShutdownTimeout)
	setValue(&cfg.LogLevel, jc.LogLevel)
}

func setValue[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
