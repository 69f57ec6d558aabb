package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

var envNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]{0,31}$`)

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error

	for _, env := range cfg.Workspaces.Environments {
		if !envNameRe.MatchString(env) {
			errs = append(errs, fmt.Errorf("workspaces: environment %q must match %s", env, envNameRe))
		}
	}

	errs = append(errs, validateDuration("workspaces.busy_grace_period", cfg.Workspaces.BusyGracePeriod)...)
	errs = append(errs, validateDuration("terraform.timeout", cfg.Terraform.Timeout)...)
	errs = append(errs, validateDuration("client.call_timeout", cfg.Client.CallTimeout)...)

	if cfg.Terraform.OutputLimitBytes < 0 {
		errs = append(errs, fmt.Errorf("terraform.output_limit_bytes must not be negative"))
	}

	switch cfg.Server.Transport {
	case "", "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("server.transport %q: must be \"stdio\" or \"http\"", cfg.Server.Transport))
	}
	if cfg.Server.Transport == "http" && cfg.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("server.listen is required for http transport"))
	}

	if cfg.Client.Endpoint != "" {
		if u, err := url.Parse(cfg.Client.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("client.endpoint %q: must be an http(s) URL", cfg.Client.Endpoint))
		}
	}
	if cfg.Client.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("client.pool_size must not be negative"))
	}
	if cfg.Client.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("client.max_attempts must not be negative"))
	}

	return errors.Join(errs...)
}

func validateDuration(field, value string) []error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s %q: %w", field, value, err)}
	}
	if d <= 0 {
		return []error{fmt.Errorf("%s %q: must be positive", field, value)}
	}
	return nil
}
