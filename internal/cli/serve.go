package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/tfgate/tfgate/internal/config"
	"github.com/tfgate/tfgate/internal/costs"
	"github.com/tfgate/tfgate/internal/credentials"
	"github.com/tfgate/tfgate/internal/engine"
	"github.com/tfgate/tfgate/internal/paths"
	"github.com/tfgate/tfgate/internal/registry"
	"github.com/tfgate/tfgate/internal/render"
	"github.com/tfgate/tfgate/internal/server"
	"github.com/tfgate/tfgate/internal/workspace"
)

func runServe(cfg *config.Config, log zerolog.Logger) int {
	srv, cleanup, err := buildServer(context.Background(), cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tfgate: %v\n", err)
		return ExitInternal
	}
	defer cleanup()

	if cfg.Server.Transport == "http" {
		err = srv.ServeHTTP(cfg.Server.Listen)
	} else {
		err = srv.ServeStdio()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tfgate: serving: %v\n", err)
		return ExitInternal
	}
	return ExitOK
}

// buildServer assembles the full server stack from config. The returned
// cleanup closes any credential store connection.
func buildServer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*server.Server, func(), error) {
	baseDir := cfg.Workspaces.BaseDir
	if baseDir == "" {
		baseDir = paths.WorkspaceBaseDir()
	}
	ws, err := workspace.NewManager(baseDir, cfg.Environments(), log)
	if err != nil {
		return nil, nil, err
	}

	source, cleanup, err := buildCredentialSource(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	scratch := cfg.Credentials.ScratchDir
	if scratch == "" {
		scratch = paths.RuntimeDir()
	}
	broker, err := credentials.NewBroker(source, scratch, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	eng := engine.New(
		cfg.TerraformBinary(),
		ws.BaseDir(),
		cfg.ExecutionTimeout(),
		cfg.BusyGracePeriod(),
		engine.NewProcessRunner(cfg.OutputLimit()),
		log,
	)

	renderer, err := render.NewHCLRenderer()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	reg, err := registry.New(registry.Deps{
		Workspaces:  ws,
		Credentials: broker,
		Executor:    eng,
		Renderer:    renderer,
		Estimator:   costs.NewStaticEstimator(),
		Log:         log,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return server.New(reg, log), cleanup, nil
}

// buildCredentialSource prefers the encrypted Postgres store; without a
// DSN it falls back to static credentials from the config file.
func buildCredentialSource(ctx context.Context, cfg *config.Config, log zerolog.Logger) (credentials.Source, func(), error) {
	if dsn := cfg.Credentials.PostgresDSN; dsn != "" {
		encoded := os.Getenv(cfg.MasterKeyEnv())
		if encoded == "" {
			return nil, nil, fmt.Errorf("credential store configured but %s is not set", cfg.MasterKeyEnv())
		}
		key, err := credentials.ParseMasterKey(encoded)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing master key: %w", err)
		}
		src, err := credentials.NewPostgresSource(ctx, dsn, key)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("using postgres credential store")
		return src, src.Close, nil
	}

	byProvider := make(map[string]*credentials.Material, len(cfg.Credentials.Static))
	for provider, sc := range cfg.Credentials.Static {
		byProvider[provider] = &credentials.Material{
			Provider: provider,
			Region:   sc.Region,
			Keys: map[string]string{
				"aws_access_key_id":     sc.AccessKeyID,
				"aws_secret_access_key": sc.SecretAccessKey,
			},
		}
	}
	if len(byProvider) > 0 {
		log.Warn().Msg("using static credentials from config; not for production")
	}
	return &credentials.StaticSource{ByProvider: byProvider}, func() {}, nil
}
