package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// Defaults applied when neither the config file nor the environment
// sets a value.
const (
	DefaultHistoryLimit     = 50
	DefaultQueueCapacity    = 256
	DefaultHeartbeatTimeout = 60 * time.Second
	DefaultListenAddr       = "127.0.0.1:7430"
)

// Config holds the chatsyncd configuration, loaded from config.toml
// with environment variable overrides.
type Config struct {
	// ServerURL is the chat service origin, e.g. "http://localhost:8000".
	// The WebSocket endpoint and history endpoint are derived from it.
	ServerURL string `toml:"server_url" env:"CHATSYNC_SERVER_URL"`

	// ClientID identifies this client to the service. Generated and
	// persisted on first run when empty.
	ClientID string `toml:"client_id" env:"CHATSYNC_CLIENT_ID"`

	// Timezone is the IANA timezone sent in the identification frame.
	Timezone string `toml:"timezone" env:"CHATSYNC_TIMEZONE"`

	// HistoryLimit is the page size for history fetches (service clamps to 1..100).
	HistoryLimit int `toml:"history_limit" env:"CHATSYNC_HISTORY_LIMIT"`

	// QueueCapacity bounds the pre-ready frame buffer. Oldest frames
	// are dropped on overflow.
	QueueCapacity int `toml:"queue_capacity" env:"CHATSYNC_QUEUE_CAPACITY"`

	// HeartbeatTimeout is how long the connection may stay silent
	// before it is considered dead.
	HeartbeatTimeout time.Duration `toml:"heartbeat_timeout" env:"CHATSYNC_HEARTBEAT_TIMEOUT"`

	// ListenAddr is the local HTTP surface (timeline, health, metrics).
	ListenAddr string `toml:"listen_addr" env:"CHATSYNC_LISTEN_ADDR"`
}

// Load reads config from the given path, applies environment
// overrides, then fills defaults and validates. A missing file is not
// an error: the environment alone can carry a full configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	generated := cfg.ClientID == ""
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// A freshly minted client id is written back so the identity (and
	// with it the lock dir and server-side history) survives restarts.
	if generated {
		if err := Save(path, &cfg); err != nil {
			return nil, fmt.Errorf("persisting generated client id: %w", err)
		}
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

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.HistoryLimit > 100 {
		c.HistoryLimit = 100
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server_url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// SocketURL returns the WebSocket endpoint derived from ServerURL.
func (c *Config) SocketURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String()
}
