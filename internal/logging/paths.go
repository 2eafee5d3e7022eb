package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.pubrag/logs, or a temp-dir equivalent without a home.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".pubrag", "logs")
	}
	return filepath.Join(home, ".pubrag", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "pubrag.log")
}
