package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("SSH_DIAL_TIMEOUT")
	os.Unsetenv("ALLOW_LOCAL_SHELL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port: got %d, want 8080", cfg.Port)
	}
	if cfg.SSHDialTimeout != 10*time.Second {
		t.Errorf("SSHDialTimeout: got %v, want 10s", cfg.SSHDialTimeout)
	}
	if cfg.AllowLocalShell {
		t.Error("AllowLocalShell should default to false")
	}
	if cfg.RedisAddr != "" {
		t.Errorf("RedisAddr should default to empty, got %q", cfg.RedisAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("AUTH_WAIT_TIMEOUT", "45s")
	t.Setenv("ALLOW_LOCAL_SHELL", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port: got %d, want 9999", cfg.Port)
	}
	if cfg.AuthWaitTimeout != 45*time.Second {
		t.Errorf("AuthWaitTimeout: got %v, want 45s", cfg.AuthWaitTimeout)
	}
	if !cfg.AllowLocalShell {
		t.Error("AllowLocalShell should be true")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("CORSAllowedOrigins: got %v", cfg.CORSAllowedOrigins)
	}
}

func TestGetEnvAsDurationInvalid(t *testing.T) {
	t.Setenv("IDLE_TIMEOUT", "garbage")
	if got := getEnvAsDuration("IDLE_TIMEOUT", time.Minute); got != time.Minute {
		t.Errorf("got %v, want fallback 1m", got)
	}
}
