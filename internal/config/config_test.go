// File: internal/config/config_test.go
package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/optinreach/internal/config"
)

func TestNewDefault(t *testing.T) {
	cfg := config.NewDefault()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "local", cfg.Browser.Provider)
	assert.Equal(t, 45*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 5, cfg.Pool.ReuseCap)
	assert.Equal(t, 2*time.Second, cfg.Pool.MinCreateInterval)
	assert.Equal(t, 20, cfg.Run.Concurrency)
	assert.Equal(t, 100, cfg.Run.BatchSize)
	assert.Equal(t, 2, cfg.Run.MaxRetries)
	assert.NotEmpty(t, cfg.Submit.SuccessKeywords)
	assert.NotEmpty(t, cfg.Submit.CaptchaMarkers)
	assert.Equal(t, "outcomes.jsonl", cfg.Ledger.OutcomesFile)
}

func TestNew_FillsDefaultPhases(t *testing.T) {
	cfg := config.NewDefault()

	require.Len(t, cfg.Probe.Phases, 5)
	assert.Equal(t, "immediate", cfg.Probe.Phases[0].Name)
	assert.Equal(t, "final", cfg.Probe.Phases[4].Name)
	// Waits and scroll depth both escalate across phases.
	for i := 1; i < len(cfg.Probe.Phases); i++ {
		assert.Greater(t, cfg.Probe.Phases[i].SettleWait, cfg.Probe.Phases[i-1].SettleWait)
		assert.GreaterOrEqual(t, cfg.Probe.Phases[i].ScrollSteps, cfg.Probe.Phases[i-1].ScrollSteps)
	}
}

func TestNew_HostedRequiresEndpoint(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("browser.provider", "hosted")

	_, err := config.New(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.hosted.endpoint")

	v.Set("browser.hosted.endpoint", "https://sessions.example.com")
	cfg, err := config.New(v)
	require.NoError(t, err)
	assert.Equal(t, "hosted", cfg.Browser.Provider)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *viper.Viper)
	}{
		{"unknown provider", func(v *viper.Viper) { v.Set("browser.provider", "cloudy") }},
		{"zero concurrency", func(v *viper.Viper) { v.Set("run.concurrency", 0) }},
		{"zero batch size", func(v *viper.Viper) { v.Set("run.batch_size", 0) }},
		{"negative retries", func(v *viper.Viper) { v.Set("run.max_retries", -1) }},
		{"zero reuse cap", func(v *viper.Viper) { v.Set("pool.reuse_cap", 0) }},
		{"zero provision attempts", func(v *viper.Viper) { v.Set("pool.provision_attempts", 0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			config.SetDefaults(v)
			tt.mutate(v)
			_, err := config.New(v)
			assert.Error(t, err)
		})
	}
}

func TestValidate_PhaseChecks(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Probe.Phases = []config.PhaseConfig{{Name: "", SettleWait: time.Second}}
	assert.Error(t, cfg.Validate())

	cfg.Probe.Phases = []config.PhaseConfig{{Name: "x", SettleWait: -time.Second}}
	assert.Error(t, cfg.Validate())

	cfg.Probe.Phases = []config.PhaseConfig{{Name: "x", SettleWait: time.Second, ScrollSteps: 2}}
	assert.NoError(t, cfg.Validate())
}
