// Package credentials materializes short-lived provider credential
// artifacts for a single execution and guarantees their destruction.
package credentials

import (
	"context"

	"github.com/tfgate/tfgate/internal/toolerr"
)

// Providers accepted by the broker.
const (
	ProviderAWS   = "aws"
	ProviderAzure = "azure"
	ProviderGCP   = "gcp"
)

// Material is one user's decrypted credential set for a provider.
// Values never leave this package except through the scoped artifact.
type Material struct {
	Provider string            `json:"provider"`
	Region   string            `json:"region,omitempty"`
	Keys     map[string]string `json:"keys"`
}

// Source fetches and decrypts stored credential material.
// Implementations return a CredentialUnavailable kind when no usable
// material exists for the (user, provider) pair.
type Source interface {
	Fetch(ctx context.Context, userID, provider string) (*Material, error)
}

// ValidProvider reports whether name is a known provider.
func ValidProvider(name string) bool {
	switch name {
	case ProviderAWS, ProviderAzure, ProviderGCP:
		return true
	}
	return false
}

// StaticSource serves inline material, keyed by provider. Used for
// development configs and tests.
type StaticSource struct {
	ByProvider map[string]*Material
}

func (s *StaticSource) Fetch(_ context.Context, _ string, provider string) (*Material, error) {
	m, ok := s.ByProvider[provider]
	if !ok || m == nil {
		return nil, toolerr.New(toolerr.KindCredentialUnavailable, "no static credentials for provider %q", provider)
	}
	return m, nil
}
