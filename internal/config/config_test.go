package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("GRPCAddr = %q", cfg.GRPCAddr)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.StoreBackend != BackendPostgres {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.Hours.StartHour != 9 || cfg.Hours.EndHour != 18 || cfg.Hours.Step != time.Hour {
		t.Errorf("Hours = %+v", cfg.Hours)
	}
	if cfg.Alternatives != 3 {
		t.Errorf("Alternatives = %d", cfg.Alternatives)
	}
	if cfg.DBSlowQuery != 250*time.Millisecond {
		t.Errorf("DBSlowQuery = %s", cfg.DBSlowQuery)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PODOCLINIC_STORE_BACKEND", "Remote")
	t.Setenv("API_URL", "http://api.local/api/")
	t.Setenv("PODOCLINIC_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("PODOCLINIC_HTTP_CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("PODOCLINIC_HOURS_START", "8")
	t.Setenv("PODOCLINIC_HOURS_END", "12")
	t.Setenv("PODOCLINIC_HOURS_STEP", "30m")
	t.Setenv("PODOCLINIC_REMOTE_TIMEOUT", "2s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreBackend != BackendRemote {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.RemoteBaseURL != "http://api.local/api/" {
		t.Errorf("RemoteBaseURL = %q", cfg.RemoteBaseURL)
	}
	if cfg.GRPCAddr != "127.0.0.1:6000" {
		t.Errorf("GRPCAddr = %q", cfg.GRPCAddr)
	}
	if got := strings.Join(cfg.CORSOrigins, "|"); got != "http://a.test|http://b.test" {
		t.Errorf("CORSOrigins = %q", got)
	}
	if cfg.Hours.StartHour != 8 || cfg.Hours.EndHour != 12 || cfg.Hours.Step != 30*time.Minute {
		t.Errorf("Hours = %+v", cfg.Hours)
	}
	if cfg.RemoteTimeout != 2*time.Second {
		t.Errorf("RemoteTimeout = %s", cfg.RemoteTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podoclinic.yaml")
	body := "log:\n  level: debug\nbooking:\n  alternatives: 1\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PODOCLINIC_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Alternatives != 1 {
		t.Errorf("Alternatives = %d", cfg.Alternatives)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want environment to win", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "backend", env: map[string]string{"PODOCLINIC_STORE_BACKEND": "sqlite"}, want: "store.backend"},
		{name: "hours", env: map[string]string{"PODOCLINIC_HOURS_START": "19"}, want: "hours"},
		{name: "step", env: map[string]string{"PODOCLINIC_HOURS_STEP": "90s"}, want: "hours"},
		{name: "duration", env: map[string]string{"PODOCLINIC_REMOTE_TIMEOUT": "soon"}, want: "remote.timeout"},
		{name: "alternatives", env: map[string]string{"PODOCLINIC_BOOKING_ALTERNATIVES": "-1"}, want: "alternatives"},
		{name: "missing file", env: nil, want: "read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			file := ""
			if tt.env == nil {
				file = filepath.Join(t.TempDir(), "missing.yaml")
			}
			_, err := Load(file)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
