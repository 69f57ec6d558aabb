// Package workspace allocates and tears down isolated per-(user,
// environment) directories under a single base directory. Every resolved
// path is verified to stay inside the base directory before use.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tfgate/tfgate/internal/toolerr"
)

// Manager resolves, creates, and destroys workspaces.
type Manager struct {
	baseDir string // canonicalized at construction
	envs    map[string]struct{}
	log     zerolog.Logger
}

// NewManager creates the base directory if needed and canonicalizes it.
func NewManager(baseDir string, environments []string, logger zerolog.Logger) (*Manager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("workspace base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("creating workspace base %s: %w", baseDir, err)
	}
	canonical, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing workspace base %s: %w", baseDir, err)
	}

	envs := make(map[string]struct{}, len(environments))
	for _, e := range environments {
		envs[e] = struct{}{}
	}

	return &Manager{baseDir: canonical, envs: envs, log: logger}, nil
}

// BaseDir returns the canonical base directory.
func (m *Manager) BaseDir() string { return m.baseDir }

// Resolve validates the identifiers and returns the workspace path without
// creating anything.
func (m *Manager) Resolve(userID, environment string) (string, error) {
	if err := m.validate(userID, environment); err != nil {
		return "", err
	}

	resolved := filepath.Join(m.baseDir, "user-"+strings.ToLower(userID), environment)
	if err := m.contain(resolved, userID, environment); err != nil {
		return "", err
	}
	return resolved, nil
}

// Ensure resolves the workspace path and creates the directory with
// owner-only permissions if it does not exist. Idempotent.
func (m *Manager) Ensure(userID, environment string) (string, error) {
	path, err := m.Resolve(userID, environment)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return "", fmt.Errorf("creating workspace %s: %w", path, err)
	}
	return path, nil
}

// Destroy removes the workspace tree. The path is re-canonicalized and
// re-checked against the base directory before removal so a symlink
// planted inside a workspace cannot redirect the delete.
func (m *Manager) Destroy(userID, environment string) error {
	path, err := m.Resolve(userID, environment)
	if err != nil {
		return err
	}

	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // already gone
		}
		return fmt.Errorf("canonicalizing workspace %s: %w", path, err)
	}
	if err := m.contain(canonical, userID, environment); err != nil {
		return err
	}

	if err := os.RemoveAll(canonical); err != nil {
		return fmt.Errorf("removing workspace %s: %w", canonical, err)
	}
	m.log.Info().Str("user_id", userID).Str("environment", environment).Msg("workspace destroyed")
	return nil
}

func (m *Manager) validate(userID, environment string) error {
	for _, segment := range []string{userID, environment} {
		if strings.ContainsAny(segment, `/\`) || strings.Contains(segment, "..") {
			m.log.Error().
				Str("user_id", userID).
				Str("environment", environment).
				Msg("path traversal rejected")
			return toolerr.New(toolerr.KindPathTraversal, "identifier contains path segments")
		}
	}

	u, err := uuid.Parse(userID)
	if err != nil || u.String() != strings.ToLower(userID) {
		return toolerr.New(toolerr.KindInvalidIdentifier, "user id must be a canonical UUID")
	}
	if _, ok := m.envs[environment]; !ok {
		return toolerr.New(toolerr.KindInvalidEnvironment, "environment %q is not in the allowed set", environment)
	}
	return nil
}

// contain verifies path is a strict descendant of the base directory.
func (m *Manager) contain(path, userID, environment string) error {
	rel, err := filepath.Rel(m.baseDir, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		m.log.Error().
			Str("user_id", userID).
			Str("environment", environment).
			Str("resolved", path).
			Msg("path traversal rejected")
		return toolerr.New(toolerr.KindPathTraversal, "resolved path escapes the workspace base")
	}
	return nil
}
