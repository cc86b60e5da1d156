package device

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.mneme, the root of all on-device state.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mneme")
}

// DBPath returns the local store database path.
func DBPath(baseDir string) string {
	return filepath.Join(baseDir, "mneme.db")
}

// DeviceIDPath returns the file holding the persisted device identity.
func DeviceIDPath(baseDir string) string {
	return filepath.Join(baseDir, "device_id")
}

// LockPath returns the daemon lock file path.
func LockPath(baseDir string) string {
	return filepath.Join(baseDir, "LOCK")
}

// LogDir returns the log directory.
func LogDir(baseDir string) string {
	return filepath.Join(baseDir, "logs")
}

// LogPath returns the daemon log file path.
func LogPath(baseDir string) string {
	return filepath.Join(LogDir(baseDir), "mnemed.log")
}

// ConfigPath returns the config file path.
func ConfigPath(baseDir string) string {
	return filepath.Join(baseDir, "config.toml")
}

// EnsureDirs creates the data directory tree with proper permissions.
func EnsureDirs(baseDir string) error {
	for _, d := range []string{baseDir, LogDir(baseDir)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
