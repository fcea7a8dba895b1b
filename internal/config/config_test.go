package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("REPORT_REFRESH_SECONDS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.RefreshSeconds != 60 {
		t.Fatalf("expected default refresh 60, got %d", cfg.RefreshSeconds)
	}
	if !cfg.RefreshEnabled {
		t.Fatalf("expected refresh enabled by default")
	}
}

func TestLoadRejectsTooSmallRefresh(t *testing.T) {
	t.Setenv("REPORT_REFRESH_SECONDS", "1")
	cfg := Load()
	if cfg.RefreshSeconds != 60 {
		t.Fatalf("expected fallback refresh 60, got %d", cfg.RefreshSeconds)
	}
}
