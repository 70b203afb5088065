// shared/config.go
package shared

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIGatewayPort    = "8080"
	DefaultWorkerPort        = "8081" // Workers expose their own HTTP endpoint for health checks
	DefaultMaxWorkers        = 3
	DefaultAllowedOrigins    = "*"
	DefaultAllowedVideoHosts = "youtube.com,youtu.be"
	DefaultQueueName         = "jobs"
	DefaultTempDir           = "task_temp_downloads"
	DefaultResultTTL         = 24 * time.Hour
	DefaultRetentionMaxAge   = 6 * time.Hour
	DefaultSweepSchedule     = "0 */6 * * *"
	DefaultMetadataTimeout   = 60 * time.Second
	DefaultArtworkTimeout    = 15 * time.Second
)

// Config holds global configuration for the services
type Config struct {
	APIGatewayPort string `yaml:"api_gateway_port"`
	WorkerPort     string `yaml:"worker_port"`
	MaxWorkers     int    `yaml:"max_workers"`
	// Redis (optional). If RedisAddr is empty, in-memory implementations are used.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	// Queue configuration
	QueueName      string `yaml:"queue_name"`
	QueueMaxLength int    `yaml:"queue_max_length"`
	// CORS and URL validation
	AllowedOrigins    []string `yaml:"allowed_origins"`
	AllowedVideoHosts []string `yaml:"allowed_video_hosts"`
	// Public base URL for API (prefix of artifact download links)
	PublicAPIBaseURL string `yaml:"public_api_base_url"`
	// External binaries configuration
	YtDlpPath  string `yaml:"ytdlp_path"`
	FFmpegPath string `yaml:"ffmpeg_path"`
	// Job execution and retention
	TempDir         string        `yaml:"temp_dir"`
	ResultTTL       time.Duration `yaml:"result_ttl"`
	RetentionMaxAge time.Duration `yaml:"retention_max_age"`
	SweepSchedule   string        `yaml:"sweep_schedule"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
	ArtworkTimeout  time.Duration `yaml:"artwork_timeout"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		APIGatewayPort:    DefaultAPIGatewayPort,
		WorkerPort:        DefaultWorkerPort,
		MaxWorkers:        DefaultMaxWorkers,
		QueueName:         DefaultQueueName,
		AllowedOrigins:    splitAndClean(DefaultAllowedOrigins),
		AllowedVideoHosts: splitAndClean(DefaultAllowedVideoHosts),
		TempDir:           DefaultTempDir,
		ResultTTL:         DefaultResultTTL,
		RetentionMaxAge:   DefaultRetentionMaxAge,
		SweepSchedule:     DefaultSweepSchedule,
		MetadataTimeout:   DefaultMetadataTimeout,
		ArtworkTimeout:    DefaultArtworkTimeout,
	}
}

// LoadConfig loads configuration from CONFIG_FILE (if set) and then environment
// variables, falling back to defaults. An unreadable config file is logged and ignored.
func LoadConfig() *Config {
	cfg := DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fileCfg, err := LoadConfigFile(path)
		if err != nil {
			log.Printf("WARN: %v; continuing with environment and defaults", err)
		} else {
			cfg = fileCfg
		}
	}
	applyEnv(cfg)
	return cfg
}

// LoadConfigFile reads a YAML config file on top of the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.APIGatewayPort = valueOrDefault(os.Getenv("API_GATEWAY_PORT"), cfg.APIGatewayPort)
	cfg.WorkerPort = valueOrDefault(os.Getenv("WORKER_PORT"), cfg.WorkerPort)

	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxWorkers = n
		} else {
			log.Printf("INFO: MAX_WORKERS invalid, using %d", cfg.MaxWorkers)
		}
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}

	// Redis
	cfg.RedisAddr = valueOrDefault(os.Getenv("REDIS_ADDR"), cfg.RedisAddr)
	cfg.RedisPassword = valueOrDefault(os.Getenv("REDIS_PASSWORD"), cfg.RedisPassword)
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RedisDB = n
		}
	}

	// Queue
	cfg.QueueName = valueOrDefault(os.Getenv("QUEUE_NAME"), valueOrDefault(cfg.QueueName, DefaultQueueName))
	if v := os.Getenv("QUEUE_MAX_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.QueueMaxLength = n
		}
	}

	// Allowed origins and video hosts
	if v := os.Getenv("ALLOWED_ORIGINS"); strings.TrimSpace(v) != "" {
		cfg.AllowedOrigins = splitAndClean(v)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = splitAndClean(DefaultAllowedOrigins)
	}
	if v := os.Getenv("ALLOWED_VIDEO_HOSTS"); strings.TrimSpace(v) != "" {
		cfg.AllowedVideoHosts = splitAndClean(v)
	}
	if len(cfg.AllowedVideoHosts) == 0 {
		cfg.AllowedVideoHosts = splitAndClean(DefaultAllowedVideoHosts)
	}

	cfg.PublicAPIBaseURL = valueOrDefault(os.Getenv("PUBLIC_API_BASE_URL"), cfg.PublicAPIBaseURL)
	cfg.YtDlpPath = valueOrDefault(os.Getenv("YTDLP_PATH"), cfg.YtDlpPath)
	cfg.FFmpegPath = valueOrDefault(os.Getenv("FFMPEG_PATH"), cfg.FFmpegPath)
	cfg.TempDir = valueOrDefault(os.Getenv("TEMP_DOWNLOAD_DIR"), valueOrDefault(cfg.TempDir, DefaultTempDir))
	cfg.SweepSchedule = valueOrDefault(os.Getenv("SWEEP_SCHEDULE"), valueOrDefault(cfg.SweepSchedule, DefaultSweepSchedule))

	cfg.ResultTTL = durationEnv("RESULT_TTL", cfg.ResultTTL, DefaultResultTTL)
	cfg.RetentionMaxAge = durationEnv("RETENTION_MAX_AGE", cfg.RetentionMaxAge, DefaultRetentionMaxAge)
	cfg.MetadataTimeout = durationEnv("METADATA_TIMEOUT", cfg.MetadataTimeout, DefaultMetadataTimeout)
	cfg.ArtworkTimeout = durationEnv("ARTWORK_TIMEOUT", cfg.ArtworkTimeout, DefaultArtworkTimeout)
}

// durationEnv parses a Go duration from env; invalid or non-positive values keep current,
// and a non-positive current falls back to def.
func durationEnv(key string, current, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("WARN: %s=%q is not a valid duration, ignoring", key, v)
	}
	if current <= 0 {
		return def
	}
	return current
}

// valueOrDefault returns fallback if s is empty
func valueOrDefault(s string, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// splitAndClean splits a comma-separated list and trims spaces; empty entries are removed
func splitAndClean(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return []string{}
	}
	parts := strings.Split(csv, ",")
	var out []string
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
