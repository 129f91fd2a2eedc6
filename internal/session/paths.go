package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.chatsync.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatsync")
}

// Dir returns the per-client directory.
func Dir(clientID string) string {
	return filepath.Join(BaseDir(), "clients", clientID)
}

// LockPath returns the lock file path for a client.
func LockPath(clientID string) string {
	return filepath.Join(Dir(clientID), "LOCK")
}

// LogDir returns the log directory for a client.
func LogDir(clientID string) string {
	return filepath.Join(Dir(clientID), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(clientID string) string {
	return filepath.Join(LogDir(clientID), "chatsyncd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the client directory tree with owner-only permissions.
func EnsureDir(clientID string) error {
	dirs := []string{
		Dir(clientID),
		LogDir(clientID),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
