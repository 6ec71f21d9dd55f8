// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Pool    PoolConfig    `mapstructure:"pool" yaml:"pool"`
	Probe   ProbeConfig   `mapstructure:"probe" yaml:"probe"`
	Submit  SubmitConfig  `mapstructure:"submit" yaml:"submit"`
	Run     RunConfig     `mapstructure:"run" yaml:"run"`
	Ledger  LedgerConfig  `mapstructure:"ledger" yaml:"ledger"`
	Notify  NotifyConfig  `mapstructure:"notify" yaml:"notify"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig selects and tunes the session provider.
type BrowserConfig struct {
	// Provider is "local" (launch headless Chrome) or "hosted" (remote fleet).
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	Hosted            HostedConfig  `mapstructure:"hosted" yaml:"hosted"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// HostedConfig points at the remote browser-session provisioning service.
type HostedConfig struct {
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey    string        `mapstructure:"api_key" yaml:"-"`
	ProjectID string        `mapstructure:"project_id" yaml:"project_id"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PoolConfig governs session reuse and provisioning pressure.
type PoolConfig struct {
	MaxIdle           int           `mapstructure:"max_idle" yaml:"max_idle"`
	ReuseCap          int           `mapstructure:"reuse_cap" yaml:"reuse_cap"`
	MinCreateInterval time.Duration `mapstructure:"min_create_interval" yaml:"min_create_interval"`
	ProvisionAttempts int           `mapstructure:"provision_attempts" yaml:"provision_attempts"`
	ProvisionBackoff  time.Duration `mapstructure:"provision_backoff" yaml:"provision_backoff"`
}

// PhaseConfig is one step of the detection protocol. Immutable configuration.
type PhaseConfig struct {
	Name        string        `mapstructure:"name" yaml:"name"`
	SettleWait  time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	ScrollSteps int           `mapstructure:"scroll_steps" yaml:"scroll_steps"`
}

// ProbeConfig tunes the multi-phase detection engine.
type ProbeConfig struct {
	Phases        []PhaseConfig `mapstructure:"phases" yaml:"phases"`
	ScrollPause   time.Duration `mapstructure:"scroll_pause" yaml:"scroll_pause"`
	IdleWindow    time.Duration `mapstructure:"idle_window" yaml:"idle_window"`
	IdleMaxWait   time.Duration `mapstructure:"idle_max_wait" yaml:"idle_max_wait"`
	StopWhenFound bool          `mapstructure:"stop_when_found" yaml:"stop_when_found"`
}

// SubmitConfig tunes the submission strategist.
type SubmitConfig struct {
	KeyDelay        time.Duration `mapstructure:"key_delay" yaml:"key_delay"`
	PostSubmitWait  time.Duration `mapstructure:"post_submit_wait" yaml:"post_submit_wait"`
	SuccessKeywords []string      `mapstructure:"success_keywords" yaml:"success_keywords"`
	CaptchaMarkers  []string      `mapstructure:"captcha_markers" yaml:"captcha_markers"`
}

// RunConfig governs the orchestration loop.
type RunConfig struct {
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	BatchSize   int           `mapstructure:"batch_size" yaml:"batch_size"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	UTMParams   string        `mapstructure:"utm_params" yaml:"utm_params"`
}

// LedgerConfig names the two file sinks.
type LedgerConfig struct {
	OutcomesFile string `mapstructure:"outcomes_file" yaml:"outcomes_file"`
	SnapshotFile string `mapstructure:"snapshot_file" yaml:"snapshot_file"`
}

// NotifyConfig points at the fire-and-forget status webhook.
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url" yaml:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "optinreach")
	v.SetDefault("logger.log_file", "optinreach.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.provider", "local")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.hosted.timeout", "30s")

	// -- Pool --
	v.SetDefault("pool.max_idle", 10)
	v.SetDefault("pool.reuse_cap", 5)
	v.SetDefault("pool.min_create_interval", "2s")
	v.SetDefault("pool.provision_attempts", 3)
	v.SetDefault("pool.provision_backoff", "1s")

	// -- Probe --
	v.SetDefault("probe.scroll_pause", "250ms")
	v.SetDefault("probe.idle_window", "750ms")
	v.SetDefault("probe.idle_max_wait", "8s")
	v.SetDefault("probe.stop_when_found", true)

	// -- Submit --
	v.SetDefault("submit.key_delay", "45ms")
	v.SetDefault("submit.post_submit_wait", "3s")
	v.SetDefault("submit.success_keywords", []string{
		"thank", "thanks", "success", "subscribed", "confirm", "confirmation",
		"welcome", "check your email", "almost there",
	})
	v.SetDefault("submit.captcha_markers", []string{
		"recaptcha", "hcaptcha", "cf-turnstile", "verify you are human",
		"are you a robot",
	})

	// -- Run --
	v.SetDefault("run.concurrency", 20)
	v.SetDefault("run.batch_size", 100)
	v.SetDefault("run.max_retries", 2)
	v.SetDefault("run.retry_delay", "5s")
	v.SetDefault("run.utm_params", "")

	// -- Ledger --
	v.SetDefault("ledger.outcomes_file", "outcomes.jsonl")
	v.SetDefault("ledger.snapshot_file", "progress.json")

	// -- Notify --
	v.SetDefault("notify.timeout", "10s")
}

// DefaultPhases is the detection protocol used when the config names none.
// Front-loaded with short waits so static pages resolve fast.
func DefaultPhases() []PhaseConfig {
	return []PhaseConfig{
		{Name: "immediate", SettleWait: 1 * time.Second, ScrollSteps: 0},
		{Name: "early", SettleWait: 3 * time.Second, ScrollSteps: 0},
		{Name: "medium", SettleWait: 5 * time.Second, ScrollSteps: 4},
		{Name: "late", SettleWait: 8 * time.Second, ScrollSteps: 6},
		{Name: "final", SettleWait: 12 * time.Second, ScrollSteps: 8},
	}
}

// New creates a configuration from a prepared viper instance.
func New(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("browser.hosted.api_key", "OPTINREACH_BROWSER_API_KEY")
	v.BindEnv("notify.webhook_url", "OPTINREACH_WEBHOOK_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if len(cfg.Probe.Phases) == 0 {
		cfg.Probe.Phases = DefaultPhases()
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefault returns a config populated purely from defaults. Used by tests.
func NewDefault() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := New(v)
	if err != nil {
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// expandPaths resolves "~" in user-supplied file paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Logger.LogFile,
		&c.Ledger.OutcomesFile,
		&c.Ledger.SnapshotFile,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("cannot expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Browser.Provider) {
	case "local":
	case "hosted":
		if c.Browser.Hosted.Endpoint == "" {
			return fmt.Errorf("browser.hosted.endpoint is required for the hosted provider")
		}
	default:
		return fmt.Errorf("browser.provider must be \"local\" or \"hosted\", got %q", c.Browser.Provider)
	}
	if c.Run.Concurrency <= 0 {
		return fmt.Errorf("run.concurrency must be a positive integer")
	}
	if c.Run.BatchSize <= 0 {
		return fmt.Errorf("run.batch_size must be a positive integer")
	}
	if c.Run.MaxRetries < 0 {
		return fmt.Errorf("run.max_retries must not be negative")
	}
	if c.Pool.ReuseCap <= 0 {
		return fmt.Errorf("pool.reuse_cap must be a positive integer")
	}
	if c.Pool.ProvisionAttempts <= 0 {
		return fmt.Errorf("pool.provision_attempts must be a positive integer")
	}
	for i, ph := range c.Probe.Phases {
		if ph.Name == "" {
			return fmt.Errorf("probe.phases[%d] is missing a name", i)
		}
		if ph.SettleWait < 0 || ph.ScrollSteps < 0 {
			return fmt.Errorf("probe.phases[%d] has negative timing", i)
		}
	}
	return nil
}
