package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 4, c.SweepConcurrency)
	assert.Equal(t, 500*time.Millisecond, c.RetryBase)
	assert.Equal(t, 30*time.Second, c.RetryCap)
	assert.Equal(t, 5, c.RetryMaxAttempts)
	assert.Equal(t, 2*time.Second, c.PollInterval)
	assert.Equal(t, 10, c.PollAttempts)
	assert.Equal(t, 20, c.PageSize)
	assert.NotEmpty(t, c.DBPath)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}
	t.Chdir(t.TempDir())

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestLoadConfig_NormalizesBounds(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin", "-w", "64", "-page", "500"}
	t.Chdir(t.TempDir())

	cfg := LoadConfig()
	assert.Equal(t, 8, cfg.SweepConcurrency)
	assert.Equal(t, 100, cfg.PageSize)
}

func TestPolicies(t *testing.T) {
	c := Config{RetryBase: time.Second, RetryCap: time.Minute, RetryMaxAttempts: 3, PollInterval: time.Second, PollAttempts: 4}

	p := c.Policy()
	assert.Equal(t, time.Second, p.Base)
	assert.Equal(t, time.Minute, p.Cap)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, uint64(25), p.JitterPercent)

	pp := c.PollPolicy()
	assert.True(t, pp.Fixed)
	assert.Equal(t, 4, pp.MaxAttempts)
}

func TestNormalize_Intervals(t *testing.T) {
	tests := []struct {
		name      string
		check     time.Duration
		sync      time.Duration
		wantCheck time.Duration
		wantSync  time.Duration
	}{
		{"zero check interval", 0, time.Minute, 3 * time.Second, time.Minute},
		{"negative values", -time.Second, -time.Second, 3 * time.Second, 0},
		{"sub-second kept", 500 * time.Millisecond, 0, 500 * time.Millisecond, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{OnlineCheckInterval: tt.check, SyncInterval: tt.sync}
			c.normalize()
			assert.Equal(t, tt.wantCheck, c.OnlineCheckInterval)
			assert.Equal(t, tt.wantSync, c.SyncInterval)
		})
	}
}

func TestLoadConfig_ZeroCheckIntervalFlag(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin", "-i", "0"}
	t.Chdir(t.TempDir())

	cfg := LoadConfig()
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}
