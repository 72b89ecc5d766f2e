package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}
	if cfg.Session.Limit != 20 || cfg.Session.Policy != "sm2" {
		t.Errorf("Unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Scheduler.MinEase != 1.3 || cfg.Scheduler.MasteryReps != 5 {
		t.Errorf("Unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "session:\n  limit: 5\n  policy: leitner\nscheduler:\n  leitnermaxbox: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Limit != 5 || cfg.Session.Policy != "leitner" {
		t.Errorf("File override lost: %+v", cfg.Session)
	}
	if cfg.Scheduler.LeitnerMaxBox != 5 {
		t.Errorf("Expected leitnermaxbox 5, got %d", cfg.Scheduler.LeitnerMaxBox)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.Addr != ":8484" {
		t.Errorf("Default server addr lost: %s", cfg.Server.Addr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("session:\n  limit: 5\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("REVISE_SESSION_LIMIT", "7")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Limit != 7 {
		t.Errorf("Expected env to win, got limit %d", cfg.Session.Limit)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cases := map[string]string{
		"unknown policy": "session:\n  policy: anki\n",
		"zero limit":     "session:\n  limit: 0\n",
		"ease below one": "scheduler:\n  minease: 0.5\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := Load(path, nil); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
