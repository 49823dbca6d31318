package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all vidstat configuration.
type Config struct {
	API       APIConfig
	Storage   StorageConfig
	Secret    SecretConfig
	Watermark WatermarkConfig
	Pipeline  PipelineConfig
	Warehouse WarehouseConfig
	Metrics   MetricsConfig
	LogLevel  string
}

// APIConfig holds stats API settings.
type APIConfig struct {
	BaseURL         string
	PerPage         int
	Timeout         time.Duration // paginated calls
	SnapshotTimeout time.Duration // single-item calls; 0 = none
	Retries         int
	MediaIDs        []string
}

// StorageConfig holds raw object storage settings.
type StorageConfig struct {
	Backend   string // "s3" or "file"
	Bucket    string
	RawPrefix string
	LocalDir  string
	MirrorDir string // optional local copy of every write
}

// SecretConfig holds credential lookup settings.
type SecretConfig struct {
	Provider string // "secretsmanager" or "env"
	Name     string
	Token    string // only for Provider "env"
}

// WatermarkConfig holds watermark store settings.
type WatermarkConfig struct {
	Backend     string // "dynamodb" or "file"
	Table       string
	File        string
	StrictReads bool
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	FailFast bool
}

// WarehouseConfig holds transform output settings.
type WarehouseConfig struct {
	Prefix string
}

// MetricsConfig holds metrics export and run notification settings.
type MetricsConfig struct {
	PushgatewayURL string
	Job            string
	NotifyURL      string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory, if present, seeds
// variables that are not already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		API: APIConfig{
			BaseURL:         getenv("WISTIA_API_BASE", "https://api.wistia.com"),
			PerPage:         getenvInt("WISTIA_PER_PAGE", 100),
			Timeout:         getenvDuration("WISTIA_HTTP_TIMEOUT", 30*time.Second),
			SnapshotTimeout: getenvDuration("WISTIA_SNAPSHOT_TIMEOUT", 0),
			Retries:         getenvInt("WISTIA_HTTP_RETRIES", 0),
			MediaIDs:        splitList(getenv("MEDIA_IDS", "gskhw4w4lm,v08dlrgr7v")),
		},
		Storage: StorageConfig{
			Backend:   getenv("VIDSTAT_STORAGE", "s3"),
			Bucket:    os.Getenv("S3_BUCKET"),
			RawPrefix: getenv("RAW_PREFIX", "raw/wistia"),
			LocalDir:  getenv("VIDSTAT_LOCAL_DIR", "data"),
			MirrorDir: os.Getenv("VIDSTAT_MIRROR_DIR"),
		},
		Secret: SecretConfig{
			Provider: getenv("VIDSTAT_SECRET_PROVIDER", "secretsmanager"),
			Name:     os.Getenv("WISTIA_SECRET_NAME"),
			Token:    os.Getenv("WISTIA_API_TOKEN"),
		},
		Watermark: WatermarkConfig{
			Backend:     getenv("VIDSTAT_WATERMARK_BACKEND", "dynamodb"),
			Table:       os.Getenv("WATERMARK_TABLE"),
			File:        getenv("VIDSTAT_WATERMARK_FILE", "data/watermarks.json"),
			StrictReads: getenvBool("WATERMARK_STRICT_READS", false),
		},
		Pipeline: PipelineConfig{
			FailFast: getenvBool("PIPELINE_FAIL_FAST", false),
		},
		Warehouse: WarehouseConfig{
			Prefix: getenv("DWH_PREFIX", "dwh/wistia"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: os.Getenv("METRICS_PUSHGATEWAY_URL"),
			Job:            getenv("METRICS_JOB", "vidstat"),
			NotifyURL:      os.Getenv("VIDSTAT_NOTIFY_URL"),
		},
		LogLevel: getenv("VIDSTAT_LOG_LEVEL", "info"),
	}
}

// Validate checks that every setting required by the selected backends is
// present and consistent.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for storage backend s3"))
		}
	case "file":
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("VIDSTAT_LOCAL_DIR is required for storage backend file"))
		}
	default:
		errs = append(errs, fmt.Errorf("VIDSTAT_STORAGE: unknown backend %q", c.Storage.Backend))
	}

	switch c.Secret.Provider {
	case "secretsmanager":
		if c.Secret.Name == "" {
			errs = append(errs, errors.New("WISTIA_SECRET_NAME is required for secret provider secretsmanager"))
		}
	case "env":
		if c.Secret.Token == "" {
			errs = append(errs, errors.New("WISTIA_API_TOKEN is required for secret provider env"))
		}
	default:
		errs = append(errs, fmt.Errorf("VIDSTAT_SECRET_PROVIDER: unknown provider %q", c.Secret.Provider))
	}

	switch c.Watermark.Backend {
	case "dynamodb":
		if c.Watermark.Table == "" {
			errs = append(errs, errors.New("WATERMARK_TABLE is required for watermark backend dynamodb"))
		}
	case "file":
		if c.Watermark.File == "" {
			errs = append(errs, errors.New("VIDSTAT_WATERMARK_FILE is required for watermark backend file"))
		}
	default:
		errs = append(errs, fmt.Errorf("VIDSTAT_WATERMARK_BACKEND: unknown backend %q", c.Watermark.Backend))
	}

	if c.API.PerPage <= 0 {
		errs = append(errs, fmt.Errorf("WISTIA_PER_PAGE must be positive, got %d", c.API.PerPage))
	}
	if c.API.Retries < 0 {
		errs = append(errs, fmt.Errorf("WISTIA_HTTP_RETRIES must not be negative, got %d", c.API.Retries))
	}
	return errors.Join(errs...)
}

// NeedsAWS reports whether any selected backend talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.Storage.Backend == "s3" || c.Secret.Provider == "secretsmanager" || c.Watermark.Backend == "dynamodb"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getenvDuration accepts Go durations ("30s") or plain seconds ("30").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
