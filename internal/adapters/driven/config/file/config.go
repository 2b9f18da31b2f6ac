package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// Environment variables that override values from the file.
const (
	EnvGitHubToken  = "JIRA_SYNC_GITHUB_TOKEN"
	EnvJiraUsername = "JIRA_SYNC_JIRA_USERNAME"
	EnvJiraAPIToken = "JIRA_SYNC_JIRA_API_TOKEN"
	EnvAdminAddr    = "JIRA_SYNC_ADMIN_ADDR"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the jira-sync configuration file.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Queue     QueueConfig     `toml:"queue"`
	Worker    WorkerConfig    `toml:"worker"`
	Retry     RetryConfig     `toml:"retry"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Dedup     DedupConfig     `toml:"dedup"`
	GitHub    GitHubConfig    `toml:"github"`
	Jira      JiraConfig      `toml:"jira"`
	Logging   LoggingConfig   `toml:"logging"`
	Admin     AdminConfig     `toml:"admin"`
}

// StoreConfig selects where subscriptions, progress and the queue live.
type StoreConfig struct {
	Driver string `toml:"driver"`
	// Path is the data directory. Empty means ~/.jira-sync/data.
	Path string `toml:"path"`
}

// QueueConfig configures the backfill queue.
type QueueConfig struct {
	Name                 string `toml:"name"`
	VisibilityTimeoutSec int    `toml:"visibility_timeout_sec"`
	MaxReceiveCount      int    `toml:"max_receive_count"`
}

// VisibilityTimeout returns how long a received message stays hidden.
func (c QueueConfig) VisibilityTimeout() time.Duration {
	return time.Duration(c.VisibilityTimeoutSec) * time.Second
}

// WorkerConfig configures the worker pool.
type WorkerConfig struct {
	Concurrency    int `toml:"concurrency"`
	PollIntervalMs int `toml:"poll_interval_ms"`
}

// PollInterval returns how long an idle worker sleeps between receives.
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RetryConfig configures exponential backoff for retryable failures.
type RetryConfig struct {
	BaseDelaySec int     `toml:"base_delay_sec"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelaySec  int     `toml:"max_delay_sec"`
}

// RateLimitConfig configures the rate limiter gate.
type RateLimitConfig struct {
	ThresholdPercent float64  `toml:"threshold_percent"`
	MinDelaySec      int      `toml:"min_delay_sec"`
	Queues           []string `toml:"queues"`
}

// MinDelay returns the floor applied to deferrals.
func (c RateLimitConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelaySec) * time.Second
}

// DedupConfig toggles the dedup guard.
type DedupConfig struct {
	Enabled bool `toml:"enabled"`
}

// FanOutConfig holds per-task parallel page counts.
type FanOutConfig struct {
	Cloud      map[string]int `toml:"cloud"`
	Enterprise map[string]int `toml:"enterprise"`
}

// GitHubConfig configures access to GitHub.
type GitHubConfig struct {
	Token string `toml:"token"`
	// InstallationTokens maps installation ids to their own token.
	InstallationTokens map[string]string `toml:"installation_tokens"`
	// APIURL overrides the cloud REST root, mainly for proxies.
	APIURL            string         `toml:"api_url"`
	RequestsPerSecond float64        `toml:"requests_per_second"`
	PageSize          map[string]int `toml:"page_size"`
	DefaultPageSize   int            `toml:"default_page_size"`
	FanOut            FanOutConfig   `toml:"fan_out"`
	SecurityTasks     bool           `toml:"security_tasks"`
}

// Tokens parses the installation token table.
func (c GitHubConfig) Tokens() (map[int64]string, error) {
	out := make(map[int64]string, len(c.InstallationTokens))
	for k, v := range c.InstallationTokens {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: installation id %q", domain.ErrInvalidInput, k)
		}
		out[id] = v
	}
	return out, nil
}

// PageSizes returns the page size table keyed by task type.
func (c GitHubConfig) PageSizes() (map[domain.TaskType]int, error) {
	return taskTable("github.page_size", c.PageSize)
}

// FanOutTable returns the cloud or enterprise fan-out table.
func (c GitHubConfig) FanOutTable(enterprise bool) (map[domain.TaskType]int, error) {
	if enterprise {
		return taskTable("github.fan_out.enterprise", c.FanOut.Enterprise)
	}
	return taskTable("github.fan_out.cloud", c.FanOut.Cloud)
}

func taskTable(name string, in map[string]int) (map[domain.TaskType]int, error) {
	out := make(map[domain.TaskType]int, len(in))
	for k, v := range in {
		t, err := domain.ParseTaskType(k)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if v < 1 {
			return nil, fmt.Errorf("%w: %s.%s must be positive", domain.ErrInvalidInput, name, k)
		}
		out[t] = v
	}
	return out, nil
}

// JiraConfig configures access to Jira. Hosts listed in SharedSecrets
// are called as a Connect app.
type JiraConfig struct {
	Username      string            `toml:"username"`
	APIToken      string            `toml:"api_token"`
	AppKey        string            `toml:"app_key"`
	SharedSecrets map[string]string `toml:"shared_secrets"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// AdminConfig configures the admin HTTP API. An empty address disables it.
type AdminConfig struct {
	Addr string `toml:"addr"`
}

// DefaultConfig returns the configuration used when the file sets nothing.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{Driver: DriverSQLite},
		Queue: QueueConfig{
			Name:                 "backfill",
			VisibilityTimeoutSec: 120,
			MaxReceiveCount:      3,
		},
		Worker: WorkerConfig{
			Concurrency:    4,
			PollIntervalMs: 1000,
		},
		Retry: RetryConfig{
			BaseDelaySec: 60,
			Multiplier:   3,
			MaxDelaySec:  900,
		},
		RateLimit: RateLimitConfig{
			ThresholdPercent: 50,
			MinDelaySec:      600,
			Queues:           []string{"backfill"},
		},
		Dedup: DedupConfig{Enabled: true},
		GitHub: GitHubConfig{
			RequestsPerSecond: 10,
			PageSize: map[string]int{
				string(domain.TaskBranch):     20,
				string(domain.TaskCommit):     20,
				string(domain.TaskPull):       20,
				string(domain.TaskBuild):      20,
				string(domain.TaskDeployment): 20,
			},
			DefaultPageSize: 50,
			FanOut: FanOutConfig{
				Cloud: map[string]int{
					string(domain.TaskPull):       2,
					string(domain.TaskBuild):      2,
					string(domain.TaskDeployment): 2,
				},
				Enterprise: map[string]int{
					string(domain.TaskPull):       1,
					string(domain.TaskBuild):      1,
					string(domain.TaskDeployment): 1,
				},
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultPath returns ~/.jira-sync/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".jira-sync", "config.toml"), nil
}

// Load reads the config file at path over the defaults and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() {
	c.GitHub.Token = getEnv(EnvGitHubToken, c.GitHub.Token)
	c.Jira.Username = getEnv(EnvJiraUsername, c.Jira.Username)
	c.Jira.APIToken = getEnv(EnvJiraAPIToken, c.Jira.APIToken)
	c.Admin.Addr = getEnv(EnvAdminAddr, c.Admin.Addr)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks values that would otherwise fail deep inside a worker.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("%w: store.driver must be %q or %q", domain.ErrInvalidInput, DriverSQLite, DriverMemory)
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("%w: queue.name is required", domain.ErrInvalidInput)
	}
	if c.Queue.VisibilityTimeoutSec < 1 {
		return fmt.Errorf("%w: queue.visibility_timeout_sec must be positive", domain.ErrInvalidInput)
	}
	if c.Queue.MaxReceiveCount < 1 {
		return fmt.Errorf("%w: queue.max_receive_count must be positive", domain.ErrInvalidInput)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("%w: worker.concurrency must be positive", domain.ErrInvalidInput)
	}
	if c.RateLimit.ThresholdPercent < 0 || c.RateLimit.ThresholdPercent > 100 {
		return fmt.Errorf("%w: rate_limit.threshold_percent must be within 0..100", domain.ErrInvalidInput)
	}
	if c.Retry.MaxDelaySec < c.Retry.BaseDelaySec {
		return fmt.Errorf("%w: retry.max_delay_sec is below retry.base_delay_sec", domain.ErrInvalidInput)
	}
	if _, err := c.GitHub.Tokens(); err != nil {
		return fmt.Errorf("github.installation_tokens: %w", err)
	}
	if _, err := c.GitHub.PageSizes(); err != nil {
		return err
	}
	for _, enterprise := range []bool{false, true} {
		if _, err := c.GitHub.FanOutTable(enterprise); err != nil {
			return err
		}
	}
	return nil
}
