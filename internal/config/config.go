package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk TOML configuration for the sync engine daemon.
type Config struct {
	// UserID is the local user's id; records it authored are excluded
	// from remote-derived reconciliation.
	UserID string `toml:"user_id"`
	// FeedURL is the websocket endpoint of the remote feed.
	FeedURL string `toml:"feed_url"`
	// UploadURL is the blob store endpoint image assets are PUT to.
	UploadURL string `toml:"upload_url"`
	// DataDir holds the store, the attachment cache, and logs.
	// Empty means ~/.michatapp.
	DataDir string `toml:"data_dir"`
	// StoreBackend selects the KV backing: "sqlite" (default) or "bolt".
	StoreBackend string `toml:"store_backend"`
	// Platform toggles platform-specific path handling; "android" makes
	// resolved attachment paths carry the file:// scheme.
	Platform string `toml:"platform"`
	// EvictMaxAgeDays prunes cached attachments older than this at
	// startup. Zero disables eviction.
	EvictMaxAgeDays int `toml:"evict_max_age_days"`
}

// DefaultDataDir returns ~/.michatapp.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".michatapp")
}

// ResolveDataDir returns the configured data dir or the default.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DefaultDataDir()
}

// StorePath is the KV store file inside the data dir.
func (c *Config) StorePath() string {
	name := "cache.db"
	if c.StoreBackend == "bolt" {
		name = "cache.bolt"
	}
	return filepath.Join(c.ResolveDataDir(), name)
}

// AttachmentDir is the on-disk image cache directory.
func (c *Config) AttachmentDir() string {
	return filepath.Join(c.ResolveDataDir(), "attachments")
}

// LogPath is the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.ResolveDataDir(), "logs", "michatd.log")
}

// Load reads config from the given path. Returns an error if the file is
// missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
