package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("API_KEY", "test-api-key")
	t.Setenv("SCRAPER_API_KEY", "test-scraper-key")
	t.Setenv("LLM_API_KEY", "test-llm-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8640 {
		t.Errorf("Server.Port = %d, want 8640", cfg.Server.Port)
	}
	if cfg.Worker.Count != 2 {
		t.Errorf("Worker.Count = %d, want 2", cfg.Worker.Count)
	}
	if cfg.Worker.PollInterval != 5*time.Second {
		t.Errorf("Worker.PollInterval = %v, want 5s", cfg.Worker.PollInterval)
	}
	if cfg.Frames.FrameCount != 5 {
		t.Errorf("Frames.FrameCount = %d, want 5", cfg.Frames.FrameCount)
	}
	if cfg.LLM.MaxComments != 5 {
		t.Errorf("LLM.MaxComments = %d, want 5", cfg.LLM.MaxComments)
	}
	if cfg.Database.Path != "/data/viralens.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("WORKER_COUNT", "7")
	t.Setenv("FRAMES_COUNT", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Worker.Count != 7 {
		t.Errorf("Worker.Count = %d, want 7", cfg.Worker.Count)
	}
	if cfg.Frames.FrameCount != 3 {
		t.Errorf("Frames.FrameCount = %d, want 3", cfg.Frames.FrameCount)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	setRequiredEnv(t)

	yaml := `
server:
  host: 127.0.0.1
  port: 7777
database:
  path: /tmp/test.db
scraper:
  base_url: https://example.test/v1
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Scraper.BaseURL != "https://example.test/v1" {
		t.Errorf("Scraper.BaseURL = %q", cfg.Scraper.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	setRequiredEnv(t)

	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing server api key",
			mutate:  func(c *Config) { c.Server.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "missing scraper api key",
			mutate:  func(c *Config) { c.Scraper.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "missing llm api key",
			mutate:  func(c *Config) { c.LLM.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "zero frame count",
			mutate:  func(c *Config) { c.Frames.FrameCount = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Server.APIKey = "a"
			cfg.Scraper.APIKey = "b"
			cfg.LLM.APIKey = "c"
			cfg.Database.Path = "/tmp/x.db"
			cfg.Frames.FrameCount = 5

			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerAddress(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 8640}
	if got := cfg.Address(); got != "0.0.0.0:8640" {
		t.Errorf("Address() = %q", got)
	}
}
