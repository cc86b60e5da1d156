package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "config.toml"))

	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("server url = %q", cfg.ServerURL)
	}
	if !cfg.SyncEnabled {
		t.Error("sync should default to enabled")
	}
	if cfg.PushDebounce() != 2*time.Second {
		t.Errorf("debounce = %v, want 2s", cfg.PushDebounce())
	}
	if cfg.RequestTimeout() != DefaultRequestTimeout {
		t.Errorf("timeout = %v", cfg.RequestTimeout())
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	want := &Config{
		ServerURL:        "https://sync.example.com",
		SyncEnabled:      false,
		PushDebounceMS:   500,
		RequestTimeoutMS: 3000,
	}
	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.ServerURL != want.ServerURL {
		t.Errorf("server url = %q", got.ServerURL)
	}
	if got.SyncEnabled {
		t.Error("sync_enabled not persisted")
	}
	if got.PushDebounce() != 500*time.Millisecond {
		t.Errorf("debounce = %v", got.PushDebounce())
	}
	if got.RequestTimeout() != 3*time.Second {
		t.Errorf("timeout = %v", got.RequestTimeout())
	}
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("push_debounce_ms = 0\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("empty server url not defaulted: %q", cfg.ServerURL)
	}
	if cfg.PushDebounceMS != DefaultPushDebounceMS {
		t.Errorf("zero debounce not defaulted: %d", cfg.PushDebounceMS)
	}
	if !cfg.SyncEnabled {
		t.Error("sync_enabled omitted from file should stay enabled")
	}
}

func TestLoadRespectsExplicitSyncDisable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("sync_enabled = false\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SyncEnabled {
		t.Error("explicit sync_enabled = false should be honored")
	}
}
