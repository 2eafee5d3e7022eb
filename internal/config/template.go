package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/pubrag/configs"
)

// WriteTemplate writes the commented config template to path.
// Existing files are left alone unless force is set.
func WriteTemplate(path string, force bool) (bool, error) {
	return writeIfAbsent(path, configs.ConfigTemplate, force)
}

// WriteEnvTemplate writes the .env.example template to path.
func WriteEnvTemplate(path string, force bool) (bool, error) {
	return writeIfAbsent(path, configs.EnvTemplate, force)
}

func writeIfAbsent(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
