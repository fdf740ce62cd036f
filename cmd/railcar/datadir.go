// ABOUTME: XDG-based data directory resolution for the railcar CLI.
// ABOUTME: Checks XDG_DATA_HOME, falls back to ~/.local/share/railcar.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultDataDir returns the default directory for railcar persistent state.
// It checks XDG_DATA_HOME first, then falls back to ~/.local/share/railcar.
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "railcar"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "railcar"), nil
}

// defaultHistoryPath returns where run history is recorded when -history is
// not given.
func defaultHistoryPath() (string, error) {
	dir, err := defaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
