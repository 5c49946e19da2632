package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
)

// Initialize creates a configuration directory with the default settings.
// An existing config.yaml is left alone.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	logger.Printf("Setting up configuration in %q", dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, ConfigurationName)
	switch _, err := os.Stat(configPath); {
	case err == nil:
		logger.Printf("- %s already exists, keeping it", ConfigurationName)
	case errors.Is(err, fs.ErrNotExist):
		logger.Printf("- Writing %s", ConfigurationName)
		if err := os.WriteFile(configPath, defaultConfigData, 0600); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return Load(dir)
}
