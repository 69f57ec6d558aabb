package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/tfgate/tfgate/internal/client"
	"github.com/tfgate/tfgate/internal/config"
	"github.com/tfgate/tfgate/internal/toolerr"
)

func newPool(cfg *config.Config, log zerolog.Logger) (*client.Pool, error) {
	if cfg.Client.Endpoint == "" {
		return nil, fmt.Errorf("client.endpoint is not configured")
	}
	pool := client.NewPool(client.Options{
		Endpoint:    cfg.Client.Endpoint,
		PoolSize:    cfg.PoolSize(),
		CallTimeout: cfg.CallTimeout(),
		MaxAttempts: cfg.MaxAttempts(),
		Log:         log,
	})
	if err := pool.Connect(context.Background()); err != nil {
		return nil, err
	}
	return pool, nil
}

func runTools(cfg *config.Config, log zerolog.Logger) int {
	pool, err := newPool(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tfgate: %v\n", err)
		return ExitInternal
	}
	defer pool.Close()

	tools, err := pool.DiscoverTools(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "tfgate: %v\n", err)
		return ExitInternal
	}
	for _, t := range tools {
		fmt.Printf("%-24s %s\n", t.Name, t.Description)
	}
	return ExitOK
}

func runCall(cfg *config.Config, log zerolog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "tfgate: call requires a tool name")
		return ExitUsageErr
	}
	tool := args[0]

	toolArgs, err := readCallArgs(args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tfgate: %v\n", err)
		return ExitUsageErr
	}

	pool, err := newPool(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tfgate: %v\n", err)
		return ExitInternal
	}
	defer pool.Close()

	payload, err := pool.Invoke(context.Background(), tool, toolArgs)
	if err != nil {
		kind, _ := toolerr.KindOf(err)
		fmt.Fprintf(os.Stderr, "tfgate: %s: %v\n", tool, err)
		if kind == toolerr.KindInvalidParameters || kind == toolerr.KindToolNotFound {
			return ExitUsageErr
		}
		return ExitToolErr
	}

	out := json.RawMessage(payload)
	if len(out) == 0 {
		out = json.RawMessage("null")
	}
	pretty, perr := json.MarshalIndent(out, "", "  ")
	if perr != nil {
		fmt.Println(string(out))
		return ExitOK
	}
	fmt.Println(string(pretty))
	return ExitOK
}

// readCallArgs parses the optional JSON argument document. "-" reads it
// from stdin.
func readCallArgs(rest []string) (map[string]any, error) {
	if len(rest) == 0 {
		return map[string]any{}, nil
	}
	if len(rest) > 1 {
		return nil, fmt.Errorf("call takes at most one JSON argument document")
	}

	raw := rest[0]
	if raw == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading arguments from stdin: %w", err)
		}
		raw = string(data)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return args, nil
}
