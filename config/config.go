// Package config loads the YAML configuration file that controls pager
// tuning and the vacuum core's maintenance memory budget, grounded on the
// pack's config.go LoadConfig(path) pattern (100day_challenge_backend's
// day50_go_proxy/config/config.go) using gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Pager       PagerConfig       `yaml:"pager"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// PagerConfig controls the storage engine's page size and cache.
type PagerConfig struct {
	DataPath      string `yaml:"data_path"`
	PageSizeBytes int    `yaml:"page_size_bytes,omitempty"`
	MaxCachePages int    `yaml:"max_cache_pages,omitempty"`
}

// MaintenanceConfig controls vacuum scheduling and resource limits.
type MaintenanceConfig struct {
	// WorkMemKiB is the external configuration variable spec section 6
	// names: "memory budget is read from an external configuration
	// variable measured in kibibytes". When BlockInfoMap's estimated
	// footprint exceeds this, BulkDelete switches to the fallback descent.
	WorkMemKiB int64 `yaml:"work_mem_kib,omitempty"`
	// CronExpr schedules periodic vacuum runs, parsed by robfig/cron/v3
	// with the seconds field enabled (maintenance/scheduler.go).
	CronExpr string `yaml:"cron_expr,omitempty"`
	// NoOverlap skips a scheduled run if the previous one is still in
	// flight, mirroring the teacher's job no_overlap flag.
	NoOverlap bool `yaml:"no_overlap,omitempty"`
}

// defaults applied when the corresponding field is the zero value.
const (
	defaultPageSizeBytes = 8192
	defaultMaxCachePages = 1024
	defaultWorkMemKiB    = 4096 // 4 MiB, a conservative default maintenance_work_mem
	defaultCronExpr      = "0 0 3 * * *" // daily at 03:00
)

// Load reads and parses a YAML configuration file at path, filling in
// defaults for any zero-valued fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Pager.PageSizeBytes == 0 {
		c.Pager.PageSizeBytes = defaultPageSizeBytes
	}
	if c.Pager.MaxCachePages == 0 {
		c.Pager.MaxCachePages = defaultMaxCachePages
	}
	if c.Maintenance.WorkMemKiB == 0 {
		c.Maintenance.WorkMemKiB = defaultWorkMemKiB
	}
	if c.Maintenance.CronExpr == "" {
		c.Maintenance.CronExpr = defaultCronExpr
	}
}
