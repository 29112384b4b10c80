package commands

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"priceregistry/internal/components/configutil"
	"priceregistry/internal/components/db"
	"priceregistry/internal/components/telemetry"
	"priceregistry/internal/notify"
	"priceregistry/internal/registry"
)

const (
	envDataDir        = "PRICEREGISTRY_DATA_DIR"
	envStateUrl       = "PRICEREGISTRY_STATE_URL"
	envStateAuthToken = "PRICEREGISTRY_STATE_AUTH_TOKEN"
)

type RegistryConfig struct {
	BaseUrl           string  `json:"base_url"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	DumpDir           string  `json:"dump_dir"`
}

type CollectorConfig struct {
	FirstYear        int `json:"first_year"`
	MaxParallelYears int `json:"max_parallel_years"`
}

type ScheduleConfig struct {
	UpdateCron string `json:"update_cron"`
}

type CommandConfig struct {
	Command []string `json:"command"`
}

type NotifyConfig struct {
	Smtp notify.SmtpConfig `json:"smtp"`
}

type Config struct {
	DataDir   string           `json:"data_dir"`
	Registry  RegistryConfig   `json:"registry"`
	Collector CollectorConfig  `json:"collector"`
	Schedule  ScheduleConfig   `json:"schedule"`
	State     db.Config        `json:"state"`
	Enrich    CommandConfig    `json:"enrich"`
	Report    CommandConfig    `json:"report"`
	Notify    NotifyConfig     `json:"notify"`
	Telemetry telemetry.Config `json:"telemetry"`
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Registry.BaseUrl == "" {
		c.Registry.BaseUrl = registry.DefaultBaseUrl
	}
	if c.Registry.TimeoutSeconds == 0 {
		c.Registry.TimeoutSeconds = 60
	}
	if c.Registry.RequestsPerSecond == 0 {
		c.Registry.RequestsPerSecond = 2
	}
	if c.Collector.FirstYear == 0 {
		c.Collector.FirstYear = 2012
	}
	if c.Collector.MaxParallelYears == 0 {
		c.Collector.MaxParallelYears = 4
	}
	if c.Schedule.UpdateCron == "" {
		// mondays at midnight
		c.Schedule.UpdateCron = "0 0 * * 1"
	}
	if c.State.File == "" && c.State.Url == "" {
		c.State.File = filepath.Join(c.DataDir, "state.db")
	}
}

// loadConfig reads the config file and the environment. A missing config
// file leaves every key at its default.
func loadConfig(path string) (Config, error) {
	err := configutil.LoadEnv(".env")
	if err != nil {
		return Config{}, err
	}

	cfg, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config file found, using defaults", "path", path)
		err = nil
	}
	if err != nil {
		return Config{}, err
	}

	configutil.StringFromEnv(&cfg.DataDir, envDataDir)
	configutil.StringFromEnv(&cfg.State.Url, envStateUrl)
	configutil.StringFromEnv(&cfg.State.AuthToken, envStateAuthToken)

	cfg.applyDefaults()
	return cfg, nil
}
