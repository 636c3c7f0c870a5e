package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pare")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ClassifyBatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", cfg.ClassifyBatchSize)
	}
	if cfg.ClassifyWorkers != 5 {
		t.Errorf("expected 5 workers, got %d", cfg.ClassifyWorkers)
	}
	if cfg.LLMModel != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %s", cfg.LLMModel)
	}
	if cfg.JobStore != JobStoreMemory {
		t.Errorf("expected memory job store, got %s", cfg.JobStore)
	}
	if cfg.FetchTimeout != 120*time.Second {
		t.Errorf("expected 120s fetch timeout, got %v", cfg.FetchTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pare")
	t.Setenv("CLASSIFY_BATCH_SIZE", "10")
	t.Setenv("CLASSIFY_TIMEOUT", "15")
	t.Setenv("FETCH_TIMEOUT", "2m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ClassifyBatchSize != 10 {
		t.Errorf("expected 10, got %d", cfg.ClassifyBatchSize)
	}
	if cfg.ClassifyTimeout != 15*time.Second {
		t.Errorf("expected 15s, got %v", cfg.ClassifyTimeout)
	}
	if cfg.FetchTimeout != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.FetchTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing database", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL"},
		{"zero batch", map[string]string{"CLASSIFY_BATCH_SIZE": "0"}, "CLASSIFY_BATCH_SIZE"},
		{"negative workers", map[string]string{"CLASSIFY_WORKERS": "-1"}, "CLASSIFY_WORKERS"},
		{"redis without url", map[string]string{"JOB_STORE": "redis", "REDIS_URL": ""}, "REDIS_URL"},
		{"unknown store", map[string]string{"JOB_STORE": "etcd"}, "JOB_STORE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/pare")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}
