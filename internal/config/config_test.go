package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFromMissingFileReturnsEmptyConfig(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if got := cfg.ExecutionTimeout(); got != DefaultTimeout {
		t.Fatalf("ExecutionTimeout() = %v, want default %v", got, DefaultTimeout)
	}
	if got := cfg.Environments(); len(got) != 3 || got[0] != "dev" {
		t.Fatalf("Environments() = %v, want default set", got)
	}
}

func TestLoadFromParsesAndExpandsEnvVars(t *testing.T) {
	t.Setenv("TFGATE_TEST_DSN", "postgres://gate:pw@db/creds")

	path := writeConfig(t, `
[workspaces]
base_dir = "/srv/tfgate/workspaces"
environments = ["dev", "prod"]
busy_grace_period = "10m"

[terraform]
binary = "tofu"
timeout = "2m"

[credentials]
postgres_dsn = "${TFGATE_TEST_DSN}"

[client]
endpoint = "http://localhost:8700/mcp"
pool_size = 4
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Workspaces.BaseDir != "/srv/tfgate/workspaces" {
		t.Fatalf("BaseDir = %q", cfg.Workspaces.BaseDir)
	}
	if cfg.Credentials.PostgresDSN != "postgres://gate:pw@db/creds" {
		t.Fatalf("PostgresDSN = %q, want expanded env value", cfg.Credentials.PostgresDSN)
	}
	if got := cfg.ExecutionTimeout(); got != 2*time.Minute {
		t.Fatalf("ExecutionTimeout() = %v, want 2m", got)
	}
	if got := cfg.BusyGracePeriod(); got != 10*time.Minute {
		t.Fatalf("BusyGracePeriod() = %v, want 10m", got)
	}
	if cfg.TerraformBinary() != "tofu" {
		t.Fatalf("TerraformBinary() = %q, want tofu", cfg.TerraformBinary())
	}
	if cfg.PoolSize() != 4 {
		t.Fatalf("PoolSize() = %d, want 4", cfg.PoolSize())
	}
}

func TestLoadFromLeavesUnresolvedPlaceholders(t *testing.T) {
	path := writeConfig(t, `
[credentials]
postgres_dsn = "${TFGATE_DEFINITELY_UNSET_VAR}"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Credentials.PostgresDSN != "${TFGATE_DEFINITELY_UNSET_VAR}" {
		t.Fatalf("PostgresDSN = %q, want placeholder preserved", cfg.Credentials.PostgresDSN)
	}
}

func TestLoadFromRejectsMalformedTOML(t *testing.T) {
	path := writeConfig(t, "[workspaces\nbase_dir=")
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("LoadFrom() error = nil, want parse error")
	}
}
