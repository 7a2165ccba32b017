package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	RPC     RPCConfig
	Input   InputConfig
	Audit   AuditConfig
	Output  OutputConfig
	Log     LogConfig
	Metrics MetricsConfig
	Tracing TracingConfig
	Alert   AlertConfig
}

type RPCConfig struct {
	URL              string
	Timeout          time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	RetryMaxAttempts int
	BreakerFailures  int
	BreakerOpen      time.Duration
	LogChunkBlocks   uint64
}

type InputConfig struct {
	WalletsFile  string
	TokensFile   string
	SpendersFile string
	TargetsFile  string
}

type AuditConfig struct {
	Advanced         bool
	FromBlock        uint64
	ToBlock          uint64 // 0 means the current head
	BatchSize        int
	DisplayLimit     int
	ProgressThrottle time.Duration
	ProgressTick     time.Duration
}

type OutputConfig struct {
	File string // empty disables the CSV export
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Addr string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	USDThreshold    float64
}

// Override mutates a loaded config before validation. The CLI uses it to
// apply flags on top of the environment.
type Override func(*Config)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overwriting variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load(overrides ...Override) (*Config, error) {
	cfg := &Config{
		RPC: RPCConfig{
			URL:              strings.TrimSpace(getEnv("RPC_URL", "")),
			Timeout:          time.Duration(getEnvInt("RPC_TIMEOUT_SEC", 30)) * time.Second,
			RateLimitRPS:     getEnvFloat("RPC_RATE_LIMIT_RPS", 10),
			RateLimitBurst:   getEnvInt("RPC_RATE_LIMIT_BURST", 10),
			RetryMaxAttempts: getEnvInt("RPC_RETRY_MAX_ATTEMPTS", 3),
			BreakerFailures:  getEnvInt("RPC_BREAKER_FAILURES", 10),
			BreakerOpen:      time.Duration(getEnvInt("RPC_BREAKER_OPEN_SEC", 15)) * time.Second,
			LogChunkBlocks:   getEnvUint64("LOG_CHUNK_BLOCKS", 0),
		},
		Input: InputConfig{
			WalletsFile:  getEnv("WALLETS_FILE", "wallets.txt"),
			TokensFile:   getEnv("TOKENS_FILE", "tokens.txt"),
			SpendersFile: getEnv("SPENDERS_FILE", "spenders.txt"),
			TargetsFile:  getEnv("TARGETS_FILE", ""),
		},
		Audit: AuditConfig{
			Advanced:         getEnvBool("ADVANCED_MODE", false),
			FromBlock:        getEnvUint64("FROM_BLOCK", 0),
			ToBlock:          getEnvUint64("TO_BLOCK", 0),
			BatchSize:        getEnvInt("BATCH_SIZE", 3),
			DisplayLimit:     getEnvInt("DISPLAY_LIMIT", 100),
			ProgressThrottle: time.Duration(getEnvInt("PROGRESS_THROTTLE_MS", 500)) * time.Millisecond,
			ProgressTick:     time.Duration(getEnvInt("PROGRESS_TICK_MS", 1000)) * time.Millisecond,
		},
		Output: OutputConfig{
			File: os.Getenv("OUTPUT_FILE"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_ENDPOINT", ""),
			Insecure:    getEnvBool("TRACING_INSECURE", true),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("ALERT_SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			USDThreshold:    getEnvFloat("ALERT_USD_THRESHOLD", 10000),
		},
	}
	if _, set := os.LookupEnv("OUTPUT_FILE"); !set {
		cfg.Output.File = "approval_results.csv"
	}

	for _, o := range overrides {
		if o != nil {
			o(cfg)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.Audit.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Audit.BatchSize)
	}
	if c.Audit.DisplayLimit <= 0 {
		return fmt.Errorf("DISPLAY_LIMIT must be positive, got %d", c.Audit.DisplayLimit)
	}
	if c.Audit.ToBlock != 0 && c.Audit.ToBlock < c.Audit.FromBlock {
		return fmt.Errorf("TO_BLOCK (%d) must not be lower than FROM_BLOCK (%d)", c.Audit.ToBlock, c.Audit.FromBlock)
	}
	if c.Audit.ProgressThrottle < 0 || c.Audit.ProgressTick < 0 {
		return fmt.Errorf("progress intervals must not be negative")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("TRACING_ENDPOINT is required when TRACING_ENABLED=true")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Mode returns "advanced" or "basic".
func (c *Config) Mode() string {
	if c.Audit.Advanced {
		return "advanced"
	}
	return "basic"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvUint64(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}
