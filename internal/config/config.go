package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Worker     WorkerConfig     `yaml:"worker"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	LLM        LLMConfig        `yaml:"llm"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Frames     FramesConfig     `yaml:"frames"`
	Download   DownloadConfig   `yaml:"download"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"8640"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds relational store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"DATABASE_PATH" default:"/data/viralens.db"`
}

// StorageConfig holds object storage configuration for media uploads.
type StorageConfig struct {
	Endpoint      string `yaml:"endpoint" envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey     string `yaml:"access_key" envconfig:"STORAGE_ACCESS_KEY"`
	SecretKey     string `yaml:"secret_key" envconfig:"STORAGE_SECRET_KEY"`
	Bucket        string `yaml:"bucket" envconfig:"STORAGE_BUCKET" default:"post-media"`
	UseSSL        bool   `yaml:"use_ssl" envconfig:"STORAGE_USE_SSL" default:"false"`
	PublicBaseURL string `yaml:"public_base_url" envconfig:"STORAGE_PUBLIC_BASE_URL"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES" default:"3"`
}

// ScraperConfig holds scraping provider configuration.
type ScraperConfig struct {
	BaseURL   string        `yaml:"base_url" envconfig:"SCRAPER_BASE_URL" default:"https://api.scrapeyard.io/v2"`
	APIKey    string        `yaml:"api_key" envconfig:"SCRAPER_API_KEY"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"SCRAPER_TIMEOUT" default:"90s"`
	UserAgent string        `yaml:"user_agent" envconfig:"SCRAPER_USER_AGENT" default:"viralens/1.0"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key" envconfig:"LLM_API_KEY"`
	BaseURL     string        `yaml:"base_url" envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	Model       string        `yaml:"model" envconfig:"LLM_MODEL" default:"gpt-4o"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"LLM_TIMEOUT" default:"3m"`
	MaxComments int           `yaml:"max_comments" envconfig:"LLM_MAX_COMMENTS" default:"5"`
}

// TranscribeConfig holds transcription service configuration.
type TranscribeConfig struct {
	APIKey  string        `yaml:"api_key" envconfig:"TRANSCRIBE_API_KEY"`
	BaseURL string        `yaml:"base_url" envconfig:"TRANSCRIBE_BASE_URL" default:"https://api.openai.com/v1"`
	Model   string        `yaml:"model" envconfig:"TRANSCRIBE_MODEL" default:"whisper-1"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TRANSCRIBE_TIMEOUT" default:"5m"`
}

// FramesConfig holds video frame extraction service configuration.
type FramesConfig struct {
	BaseURL    string        `yaml:"base_url" envconfig:"FRAMES_BASE_URL" default:"http://localhost:8731"`
	APIKey     string        `yaml:"api_key" envconfig:"FRAMES_API_KEY"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"FRAMES_TIMEOUT" default:"2m"`
	FrameCount int           `yaml:"frame_count" envconfig:"FRAMES_COUNT" default:"5"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"2m"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"2s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"30s"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.Scraper.APIKey == "" {
		return fmt.Errorf("SCRAPER_API_KEY is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Frames.FrameCount <= 0 {
		return fmt.Errorf("FRAMES_COUNT must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
