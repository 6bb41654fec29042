// Package platform resolves per-OS locations for models and staged audio.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "voxserve"

func DefaultModelDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	dataDir, err := dataDirFor(goos, homeDir, xdgDataHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

// ResolveModelDir returns override when set, otherwise the OS data dir.
func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultModelDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"))
}

// EnsureStagingDir returns the directory staged audio is written to,
// creating it when an override is given. The default is os.TempDir().
func EnsureStagingDir(override string) (string, error) {
	if override == "" {
		return os.TempDir(), nil
	}

	dir := filepath.Clean(override)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create staging directory %s: %w", dir, err)
	}
	return dir, nil
}

func dataDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, appDirName), nil
		}
		return filepath.Join(homeDir, ".local", "share", appDirName), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", appDirName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}
