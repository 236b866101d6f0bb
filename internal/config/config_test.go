package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		UserID:       "user-1",
		FeedURL:      "wss://feed.example.com/ws",
		StoreBackend: "bolt",
		Platform:     "android",
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", loaded.UserID, "user-1")
	}
	if loaded.FeedURL != "wss://feed.example.com/ws" {
		t.Errorf("FeedURL = %q", loaded.FeedURL)
	}
	if loaded.StoreBackend != "bolt" {
		t.Errorf("StoreBackend = %q, want bolt", loaded.StoreBackend)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{UserID: "u"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "/data/mc"}
	if got := cfg.StorePath(); got != "/data/mc/cache.db" {
		t.Errorf("StorePath() = %q", got)
	}
	cfg.StoreBackend = "bolt"
	if got := cfg.StorePath(); got != "/data/mc/cache.bolt" {
		t.Errorf("bolt StorePath() = %q", got)
	}
	if got := cfg.AttachmentDir(); got != "/data/mc/attachments" {
		t.Errorf("AttachmentDir() = %q", got)
	}
}
