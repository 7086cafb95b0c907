// Package dotdir resolves the .imprint/ directory where the config file and
// local staging data live.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const dirName = ".imprint"

// Resolve returns the absolute path of the .imprint/ directory, creating it
// if needed. An explicit override wins; otherwise a ./.imprint/ in the
// working directory is preferred over ~/.imprint/.
func Resolve(override string) (string, error) {
	dir, err := pick(override)
	if err != nil {
		return "", err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", abs, err)
	}
	return abs, nil
}

func pick(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, dirName)
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			return local, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}
