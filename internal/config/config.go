package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/tfgate/tfgate/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config file and returns the parsed Config.
// If the config file does not exist, it returns an empty Config (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path, expanding
// ${ENV_VAR} placeholders from the current process environment.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	expandConfigEnvVars(&cfg)
	return &cfg, nil
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Workspaces.BaseDir = expandEnvVars(cfg.Workspaces.BaseDir)
	cfg.Terraform.Binary = expandEnvVars(cfg.Terraform.Binary)
	cfg.Credentials.PostgresDSN = expandEnvVars(cfg.Credentials.PostgresDSN)
	cfg.Credentials.ScratchDir = expandEnvVars(cfg.Credentials.ScratchDir)
	cfg.Server.Listen = expandEnvVars(cfg.Server.Listen)
	cfg.Client.Endpoint = expandEnvVars(cfg.Client.Endpoint)

	for name, sc := range cfg.Credentials.Static {
		sc.AccessKeyID = expandEnvVars(sc.AccessKeyID)
		sc.SecretAccessKey = expandEnvVars(sc.SecretAccessKey)
		sc.Region = expandEnvVars(sc.Region)
		cfg.Credentials.Static[name] = sc
	}
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
