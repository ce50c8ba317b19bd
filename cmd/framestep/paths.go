package main

import (
	"os"
	"path/filepath"
	"strings"
)

const envFramestepConfig = "FRAMESTEP_CONFIG"

// stderrIsTTY is a small seam for tests.
var stderrIsTTY = func() bool { return isTerminal(os.Stderr) }

// resolveConfigPath picks the config file: the --config flag, then
// $FRAMESTEP_CONFIG, then framestep/config.yaml under the user config dir.
// explicit reports whether the user named the file, in which case it must
// exist.
func resolveConfigPath(flag string) (path string, explicit bool) {
	if p := strings.TrimSpace(flag); p != "" {
		return filepath.Clean(p), true
	}
	if p := strings.TrimSpace(os.Getenv(envFramestepConfig)); p != "" {
		return filepath.Clean(p), true
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(dir, "framestep", "config.yaml"), false
}
