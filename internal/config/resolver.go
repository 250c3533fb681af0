package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the configuration file looked up in the search path.
const FileName = "toolgate.yaml"

// SearchPaths returns the candidate locations in lookup order:
// $XDG_CONFIG_HOME/toolgate (or ~/.config/toolgate), then the working
// directory.
func SearchPaths() []string {
	var paths []string
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		}
	}
	if dir != "" {
		paths = append(paths, filepath.Join(dir, "toolgate", FileName))
	}
	return append(paths, FileName)
}

// ResolvePath picks the configuration file. An explicit path must exist.
// Otherwise the first existing entry of SearchPaths wins, and "" means none
// was found.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}
	for _, p := range SearchPaths() {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("config: %w", err)
		}
	}
	return "", nil
}
