package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/tfgate/tfgate/internal/client"
	"github.com/tfgate/tfgate/internal/costs"
	"github.com/tfgate/tfgate/internal/engine"
	"github.com/tfgate/tfgate/internal/registry"
	"github.com/tfgate/tfgate/internal/render"
	"github.com/tfgate/tfgate/internal/toolerr"
	"github.com/tfgate/tfgate/internal/workspace"
)

const testUser = "6b1f5386-9e0a-4f25-8cbe-2f5f2b6de401"

type stubExecutor struct{}

func (stubExecutor) Run(_ context.Context, req engine.Request) (*engine.Result, error) {
	if req.Op == engine.OpDestroy && !req.Confirm {
		return nil, toolerr.New(toolerr.KindConfirmationRequired, "destroy requires confirm=true")
	}
	return &engine.Result{Operation: req.Op.String()}, nil
}

type stubCreds struct{}

func (stubCreds) WithCredentials(_ context.Context, _, _ string, fn func(string) error) error {
	return fn("/run/tfgate/creds-stub.ini")
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir(), []string{"dev", "prod"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	renderer, err := render.NewHCLRenderer()
	if err != nil {
		t.Fatalf("NewHCLRenderer() error = %v", err)
	}
	reg, err := registry.New(registry.Deps{
		Workspaces:  ws,
		Credentials: stubCreds{},
		Executor:    stubExecutor{},
		Renderer:    renderer,
		Estimator:   costs.NewStaticEstimator(),
		Log:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	return New(reg, zerolog.Nop())
}

// Full round trip through the HTTP transport: handshake, catalog, call,
// and error envelope decoding on the client side.
func TestServeHTTPRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := newTestServer(t)
	ts := mcpserver.NewTestStreamableHTTPServer(srv.MCP())
	defer ts.Close()

	pool := client.NewPool(client.Options{
		Endpoint:    ts.URL,
		PoolSize:    1,
		CallTimeout: 5 * time.Second,
		MaxAttempts: 1,
		Log:         zerolog.Nop(),
	})
	if err := pool.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pool.Close()

	tools, err := pool.DiscoverTools(ctx)
	if err != nil {
		t.Fatalf("DiscoverTools() error = %v", err)
	}
	if len(tools) != 8 {
		t.Fatalf("catalog size = %d, want 8", len(tools))
	}
	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
		if len(tool.InputSchema) == 0 {
			t.Errorf("tool %s published without a schema", tool.Name)
		}
	}
	for _, want := range []string{"plan_infrastructure", "estimate_cost", "destroy_workspace"} {
		if !names[want] {
			t.Fatalf("catalog missing %s", want)
		}
	}

	payload, err := pool.Invoke(ctx, "estimate_cost", map[string]any{
		"region": "us-east-1",
		"resources": []any{
			map[string]any{"type": "aws_instance", "config": map[string]any{"instance_type": "t3.medium"}},
		},
	})
	if err != nil {
		t.Fatalf("Invoke(estimate_cost) error = %v", err)
	}
	var estimate struct {
		MonthlyTotal float64 `json:"monthly_total"`
	}
	if err := json.Unmarshal(payload, &estimate); err != nil {
		t.Fatalf("decoding estimate: %v", err)
	}
	if estimate.MonthlyTotal <= 0 {
		t.Fatalf("monthly total = %v, want > 0", estimate.MonthlyTotal)
	}
}

func TestServeHTTPErrorKindsSurviveTransport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := newTestServer(t)
	ts := mcpserver.NewTestStreamableHTTPServer(srv.MCP())
	defer ts.Close()

	pool := client.NewPool(client.Options{
		Endpoint:    ts.URL,
		PoolSize:    1,
		CallTimeout: 5 * time.Second,
		MaxAttempts: 1,
		Log:         zerolog.Nop(),
	})
	if err := pool.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pool.Close()

	tests := []struct {
		name string
		tool string
		args map[string]any
		want toolerr.Kind
	}{
		{
			name: "unknown environment",
			tool: "show_state",
			args: map[string]any{"user_id": testUser, "environment": "qa"},
			want: toolerr.KindInvalidEnvironment,
		},
		{
			name: "bad uuid",
			tool: "show_state",
			args: map[string]any{"user_id": "root", "environment": "dev"},
			want: toolerr.KindInvalidIdentifier,
		},
		{
			name: "missing confirmation",
			tool: "destroy_workspace",
			args: map[string]any{"user_id": testUser, "environment": "dev"},
			want: toolerr.KindConfirmationRequired,
		},
		{
			name: "schema violation",
			tool: "estimate_cost",
			args: map[string]any{"region": "us-east-1"},
			want: toolerr.KindInvalidParameters,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pool.Invoke(ctx, tt.tool, tt.args)
			if !toolerr.Is(err, tt.want) {
				t.Fatalf("Invoke(%s) error = %v, want %s", tt.tool, err, tt.want)
			}
		})
	}
}
