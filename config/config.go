package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Search    SearchConfig
	Worker    WorkerConfig
	Block     BlockConfig
	Queue     QueueConfig
	Browser   BrowserConfig
	Scheduler SchedulerConfig
	S3        S3Config
	Database  DatabaseConfig
	DBPath    string
	LogLevel  string
	Sites     map[string]*SiteConfig
}

type SearchConfig struct {
	Term        string
	MaxPages    int // 0 = all pages
	EnrichLimit int // 0 = unlimited
	PageRetries int
}

type WorkerConfig struct {
	Parallelism int
	ListingMax  time.Duration // extraction ceiling per task
	NavMode     string        // click or direct
}

type BlockConfig struct {
	Recheck    bool
	MaxRetries int
	WaitMin    time.Duration
	WaitMax    time.Duration
}

type QueueConfig struct {
	MaxRetries   int
	TTL          time.Duration
	ClaimTimeout time.Duration
	PollInterval time.Duration
}

type BrowserConfig struct {
	Headless         bool
	UserDataDir      string
	SnapshotDir      string
	DebugSnapshotDir string
	SettleMin        time.Duration
	SettleMax        time.Duration
	MainPageMinWait  time.Duration
}

type SchedulerConfig struct {
	Cron            string
	HealthcheckCron string
}

type S3Config struct {
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

type DatabaseConfig struct {
	URL string
}

type SiteConfig struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	BaseURL      string            `yaml:"base_url"`
	SearchPath   string            `yaml:"search_path"`
	ItemPath     string            `yaml:"item_path"`
	RateLimitMS  int               `yaml:"rate_limit_ms"`
	Endpoints    map[string]string `yaml:"endpoints"`
	BlockMarkers []string          `yaml:"block_markers"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Search: SearchConfig{
			Term:        getEnv("SEARCH_TERM", "fender stratocaster"),
			MaxPages:    getEnvInt("MAX_PAGES", 0),
			EnrichLimit: getEnvInt("ENRICH_LIMIT", 0),
			PageRetries: getEnvInt("PAGE_RETRIES", 2),
		},
		Worker: WorkerConfig{
			Parallelism: getEnvInt("WORKER_PARALLELISM", 16),
			ListingMax:  getEnvSeconds("LISTING_MAX_S", 240),
			NavMode:     getEnv("ENRICH_NAV_MODE", "click"),
		},
		Block: BlockConfig{
			Recheck:    getEnvBool("BLOCK_RECHECK", true),
			MaxRetries: getEnvInt("BLOCK_MAX_RETRIES", 3),
			WaitMin:    getEnvSeconds("BLOCK_WAIT_MIN_S", 20),
			WaitMax:    getEnvSeconds("BLOCK_WAIT_MAX_S", 45),
		},
		Queue: QueueConfig{
			MaxRetries:   getEnvInt("QUEUE_MAX_RETRIES", 3),
			TTL:          getEnvSeconds("QUEUE_TTL_S", 43200),
			ClaimTimeout: getEnvSeconds("QUEUE_CLAIM_TIMEOUT_S", 600),
			PollInterval: getEnvSeconds("QUEUE_POLL_S", 5),
		},
		Browser: BrowserConfig{
			Headless:         getEnvBool("HEADLESS", true),
			UserDataDir:      getEnv("USER_DATA_DIR", ".browser-profile"),
			SnapshotDir:      getEnv("SNAPSHOT_DIR", "snapshots"),
			DebugSnapshotDir: getEnv("DEBUG_SNAPSHOT_DIR", "snapshots/debug"),
			SettleMin:        getEnvSeconds("HUMAN_SETTLE_MIN_S", 2),
			SettleMax:        getEnvSeconds("HUMAN_SETTLE_MAX_S", 5),
			MainPageMinWait:  getEnvSeconds("MAIN_PAGE_MIN_WAIT_S", 3),
		},
		Scheduler: SchedulerConfig{
			Cron:            os.Getenv("SCRAPE_CRON"),
			HealthcheckCron: getEnv("HEALTHCHECK_CRON", "30 */6 * * *"),
		},
		S3: S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Prefix:    getEnv("S3_PREFIX", "snapshots"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		DBPath:   getEnv("DB_PATH", "tracker.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Sites:    make(map[string]*SiteConfig),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := cfg.loadSiteConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Worker.Parallelism < 1 {
		return fmt.Errorf("WORKER_PARALLELISM must be >= 1, got %d", c.Worker.Parallelism)
	}
	if c.Block.WaitMin > c.Block.WaitMax {
		return fmt.Errorf("BLOCK_WAIT_MIN_S (%s) exceeds BLOCK_WAIT_MAX_S (%s)", c.Block.WaitMin, c.Block.WaitMax)
	}
	if c.Search.MaxPages < 0 || c.Search.EnrichLimit < 0 {
		return fmt.Errorf("MAX_PAGES and ENRICH_LIMIT must be >= 0")
	}
	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must be >= 1, got %d", c.Queue.MaxRetries)
	}
	return nil
}

func (c *Config) loadSiteConfigs() error {
	configDir := "config/sites"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return fmt.Errorf("parse site config %s: %w", path, err)
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

// WorkerUserDataDir returns the profile directory for one worker slot. Each
// worker gets its own copy; a live chromium profile cannot be shared.
func (c *Config) WorkerUserDataDir(slot int) string {
	return fmt.Sprintf("%s-worker-%d", c.Browser.UserDataDir, slot)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}
