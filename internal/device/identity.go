package device

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ID loads the stable device identity, generating and persisting one on
// first run. The identity never changes for the lifetime of the install;
// the remote store keys the device's user record on it.
func ID(baseDir string) (string, error) {
	path := DeviceIDPath(baseDir)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Corrupt file: regenerate rather than sync under a broken identity.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
