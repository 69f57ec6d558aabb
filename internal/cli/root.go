// Package cli is the tfgate command-line entry point: serve runs the
// protocol server, call and tools drive a remote server as a client.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/tfgate/tfgate/internal/config"
)

// Exit codes returned by Run.
const (
	ExitOK       = 0
	ExitInternal = 1
	ExitUsageErr = 2
	ExitToolErr  = 3
)

const usage = `usage: tfgate <command> [arguments]

Commands:
  serve             run the protocol server (transport from config)
  tools             list the tools published by the configured server
  call <tool> [json]  invoke a tool with JSON arguments ("-" reads stdin)

Environment:
  TFGATE_CONFIG     config file path (default: $XDG_CONFIG_HOME/tfgate/config.toml)
  TFGATE_LOG_LEVEL  zerolog level (default: info)
`

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		if len(args) == 0 {
			return ExitUsageErr
		}
		return ExitOK
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tfgate: %v\n", err)
		return ExitInternal
	}
	if verr := config.Validate(cfg); verr != nil {
		fmt.Fprintf(os.Stderr, "tfgate: invalid config: %v\n", verr)
		return ExitUsageErr
	}

	log := newLogger()

	switch args[0] {
	case "serve":
		return runServe(cfg, log)
	case "tools":
		return runTools(cfg, log)
	case "call":
		return runCall(cfg, log, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "tfgate: unknown command: %s\n", args[0])
		fmt.Fprint(os.Stderr, usage)
		return ExitUsageErr
	}
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("TFGATE_CONFIG"); path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// newLogger builds the process logger on stderr, leaving stdout free for
// the stdio transport and command output.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("TFGATE_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
