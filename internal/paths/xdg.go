package paths

import (
	"os"
	"path/filepath"
)

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, "tfgate")
	}
	return filepath.Join(homeDir(), fallbackSuffix, "tfgate")
}

// ConfigDir returns the tfgate config directory ($XDG_CONFIG_HOME/tfgate).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the tfgate state directory ($XDG_STATE_HOME/tfgate).
// Workspaces default to a subdirectory of this.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// RuntimeDir returns the tfgate runtime directory for short-lived files
// such as credential artifacts. Falls back to $XDG_STATE_HOME/tfgate if
// XDG_RUNTIME_DIR is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, "tfgate")
	}
	return StateDir()
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// WorkspaceBaseDir returns the default root for per-user workspaces.
func WorkspaceBaseDir() string {
	return filepath.Join(StateDir(), "workspaces")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
