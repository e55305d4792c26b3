package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/flagx"
	"github.com/dmitrijs2005/momentkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// leave the current value untouched.
type JsonConfig struct {
	ServerURL           *string         `json:"server_url"`
	AppToken            *string         `json:"app_token"`
	DBPath              *string         `json:"db_path"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	SweepConcurrency    *int            `json:"sweep_concurrency"`
	RetryBase           *timex.Duration `json:"retry_base"`
	RetryCap            *timex.Duration `json:"retry_cap"`
	RetryMaxAttempts    *int            `json:"retry_max_attempts"`
	PollInterval        *timex.Duration `json:"poll_interval"`
	PollAttempts        *int            `json:"poll_attempts"`
	PageSize            *int            `json:"page_size"`
	LogLevel            *string         `json:"log_level"`
}

// parseJson overlays cfg with values from the JSON file named by -c or
// -config. It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	path := flagx.ConfigPath(os.Args[1:])
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.AppToken, jc.AppToken)
	setString(&cfg.DBPath, jc.DBPath)
	setString(&cfg.LogLevel, jc.LogLevel)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.SyncInterval, jc.SyncInterval)
	setDuration(&cfg.RetryBase, jc.RetryBase)
	setDuration(&cfg.RetryCap, jc.RetryCap)
	setDuration(&cfg.PollInterval, jc.PollInterval)
	setInt(&cfg.SweepConcurrency, jc.SweepConcurrency)
	setInt(&cfg.RetryMaxAttempts, jc.RetryMaxAttempts)
	setInt(&cfg.PollAttempts, jc.PollAttempts)
	setInt(&cfg.PageSize, jc.PageSize)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
