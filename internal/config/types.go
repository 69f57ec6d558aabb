package config

import "time"

// Config is the top-level tfgate configuration.
type Config struct {
	Workspaces  WorkspacesConfig  `toml:"workspaces"`
	Terraform   TerraformConfig   `toml:"terraform"`
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Client      ClientConfig      `toml:"client"`
}

// WorkspacesConfig controls per-user workspace isolation.
type WorkspacesConfig struct {
	BaseDir         string   `toml:"base_dir"`
	Environments    []string `toml:"environments"`
	BusyGracePeriod string   `toml:"busy_grace_period"`
}

// TerraformConfig controls the external provisioning tool invocation.
type TerraformConfig struct {
	Binary           string `toml:"binary"`
	Timeout          string `toml:"timeout"`
	OutputLimitBytes int64  `toml:"output_limit_bytes"`
}

// CredentialsConfig selects and parameterizes the credential source.
type CredentialsConfig struct {
	MasterKeyEnv string                 `toml:"master_key_env"`
	PostgresDSN  string                 `toml:"postgres_dsn"`
	ScratchDir   string                 `toml:"scratch_dir"`
	Static       map[string]StaticCreds `toml:"static"`
}

// StaticCreds holds inline provider credentials, keyed by provider name.
// Intended for development and tests only.
type StaticCreds struct {
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Region          string `toml:"region"`
}

// ServerConfig configures the protocol server transport.
type ServerConfig struct {
	Transport string `toml:"transport"` // "stdio" or "http"
	Listen    string `toml:"listen"`    // http only
}

// ClientConfig configures the pooled protocol client.
type ClientConfig struct {
	Endpoint    string `toml:"endpoint"`
	PoolSize    int    `toml:"pool_size"`
	CallTimeout string `toml:"call_timeout"`
	MaxAttempts int    `toml:"max_attempts"`
}

// Defaults applied by accessors when fields are unset.
const (
	DefaultTimeout         = 5 * time.Minute
	DefaultBusyGracePeriod = 15 * time.Minute
	DefaultCallTimeout     = 60 * time.Second
	DefaultOutputLimit     = 1 << 20
	DefaultPoolSize        = 2
	DefaultMaxAttempts     = 4
	DefaultMasterKeyEnv    = "TFGATE_MASTER_KEY"
	DefaultBinary          = "terraform"
)

// DefaultEnvironments is the environment set used when none is configured.
var DefaultEnvironments = []string{"dev", "staging", "prod"}

// ExecutionTimeout returns the parsed terraform timeout or the default.
func (c *Config) ExecutionTimeout() time.Duration {
	return parseDurationOr(c.Terraform.Timeout, DefaultTimeout)
}

// BusyGracePeriod returns the parsed stale busy-marker grace period.
func (c *Config) BusyGracePeriod() time.Duration {
	return parseDurationOr(c.Workspaces.BusyGracePeriod, DefaultBusyGracePeriod)
}

// CallTimeout returns the parsed per-call client timeout.
func (c *Config) CallTimeout() time.Duration {
	return parseDurationOr(c.Client.CallTimeout, DefaultCallTimeout)
}

// Environments returns the configured environment set or the default.
func (c *Config) Environments() []string {
	if len(c.Workspaces.Environments) > 0 {
		return c.Workspaces.Environments
	}
	return DefaultEnvironments
}

// TerraformBinary returns the configured binary name or the default.
func (c *Config) TerraformBinary() string {
	if c.Terraform.Binary != "" {
		return c.Terraform.Binary
	}
	return DefaultBinary
}

// OutputLimit returns the capture cap for subprocess output.
func (c *Config) OutputLimit() int64 {
	if c.Terraform.OutputLimitBytes > 0 {
		return c.Terraform.OutputLimitBytes
	}
	return DefaultOutputLimit
}

// PoolSize returns the client connection pool size.
func (c *Config) PoolSize() int {
	if c.Client.PoolSize > 0 {
		return c.Client.PoolSize
	}
	return DefaultPoolSize
}

// MaxAttempts returns the client retry attempt cap.
func (c *Config) MaxAttempts() int {
	if c.Client.MaxAttempts > 0 {
		return c.Client.MaxAttempts
	}
	return DefaultMaxAttempts
}

// MasterKeyEnv returns the env var name holding the store master key.
func (c *Config) MasterKeyEnv() string {
	if c.Credentials.MasterKeyEnv != "" {
		return c.Credentials.MasterKeyEnv
	}
	return DefaultMasterKeyEnv
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
