package config

import (
	"os"

	"github.com/joho/godotenv"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
)

// LoadDotEnv loads <root>/.env into the process environment.
// Variables that are already set keep their values. A missing file is not an
// error; loaded reports whether one was read.
func LoadDotEnv(root string) (loaded bool, err error) {
	path := EnvPath(root)
	if _, statErr := os.Stat(path); statErr != nil {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, perrors.ConfigError("failed to load "+path, err)
	}
	return true, nil
}

// ReadDotEnv parses <root>/.env without touching the process environment.
func ReadDotEnv(root string) (map[string]string, error) {
	values, err := godotenv.Read(EnvPath(root))
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeEnvMissing, "failed to read "+EnvPath(root), err)
	}
	return values, nil
}
