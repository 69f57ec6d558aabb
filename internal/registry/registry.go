// Package registry holds the closed tool catalog and dispatches validated
// calls to the execution layers. Every tool is declared here at
// construction; there is no dynamic registration path.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tfgate/tfgate/internal/costs"
	"github.com/tfgate/tfgate/internal/credentials"
	"github.com/tfgate/tfgate/internal/engine"
	"github.com/tfgate/tfgate/internal/render"
	"github.com/tfgate/tfgate/internal/toolerr"
	"github.com/tfgate/tfgate/internal/workspace"
)

// Executor runs one provisioning operation. Satisfied by *engine.Engine.
type Executor interface {
	Run(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// CredentialScope lends a credential artifact to fn for the duration of
// one call. Satisfied by *credentials.Broker.
type CredentialScope interface {
	WithCredentials(ctx context.Context, userID, provider string, fn func(artifactPath string) error) error
}

// ToolDefinition is the catalog entry published to clients.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any
}

type handlerFunc func(ctx context.Context, args []byte) (any, error)

type tool struct {
	def     ToolDefinition
	schema  *jsonschema.Schema
	handler handlerFunc
}

// Deps are the collaborators a Registry dispatches into.
type Deps struct {
	Workspaces  *workspace.Manager
	Credentials CredentialScope
	Executor    Executor
	Renderer    render.Renderer
	Estimator   costs.Estimator
	Log         zerolog.Logger
}

// Registry is the tool catalog plus dispatch.
type Registry struct {
	deps  Deps
	tools map[string]*tool
	order []string
	plans *planTable
}

// New compiles every tool schema and wires the handlers. A schema that
// fails to compile is a programming error and fails construction.
func New(deps Deps) (*Registry, error) {
	if deps.Workspaces == nil || deps.Credentials == nil || deps.Executor == nil ||
		deps.Renderer == nil || deps.Estimator == nil {
		return nil, fmt.Errorf("registry requires all collaborators")
	}

	r := &Registry{deps: deps, tools: make(map[string]*tool), plans: newPlanTable()}

	catalog := []struct {
		def     ToolDefinition
		handler handlerFunc
	}{
		{
			def: ToolDefinition{
				Name:        "plan_infrastructure",
				Description: "Render configuration for the requested resources and produce an execution plan with a cost estimate.",
				Schema:      provisionSchema(true),
			},
			handler: r.planInfrastructure,
		},
		{
			def: ToolDefinition{
				Name:        "apply_infrastructure",
				Description: "Apply a saved plan by plan_id, or render the given resources and apply them directly.",
				Schema:      applySchema(),
			},
			handler: r.applyInfrastructure,
		},
		{
			def: ToolDefinition{
				Name:        "destroy_infrastructure",
				Description: "Destroy all resources in a workspace. Requires confirm=true.",
				Schema:      confirmSchema(),
			},
			handler: r.destroyInfrastructure,
		},
		{
			def: ToolDefinition{
				Name:        "validate_configuration",
				Description: "Render configuration for the requested resources and validate it without touching any provider.",
				Schema:      provisionSchema(false),
			},
			handler: r.validateConfiguration,
		},
		{
			def: ToolDefinition{
				Name:        "show_state",
				Description: "Return the full recorded state of a workspace.",
				Schema:      workspaceSchema(),
			},
			handler: r.showState,
		},
		{
			def: ToolDefinition{
				Name:        "list_infrastructure",
				Description: "List the resources currently recorded in a workspace.",
				Schema:      workspaceSchema(),
			},
			handler: r.listInfrastructure,
		},
		{
			def: ToolDefinition{
				Name:        "estimate_cost",
				Description: "Estimate the monthly cost of the requested resources without provisioning anything.",
				Schema:      estimateSchema(),
			},
			handler: r.estimateCost,
		},
		{
			def: ToolDefinition{
				Name:        "destroy_workspace",
				Description: "Remove a workspace directory and everything in it. Requires confirm=true.",
				Schema:      confirmSchema(),
			},
			handler: r.destroyWorkspace,
		},
	}

	for _, entry := range catalog {
		compiled, err := compileSchema(entry.def.Schema)
		if err != nil {
			return nil, fmt.Errorf("compiling schema for %s: %w", entry.def.Name, err)
		}
		r.tools[entry.def.Name] = &tool{def: entry.def, schema: compiled, handler: entry.handler}
		r.order = append(r.order, entry.def.Name)
	}
	return r, nil
}

// Tools returns the catalog in declaration order.
func (r *Registry) Tools() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Dispatch validates the arguments and runs the named tool. The return
// value is always a result envelope; failures are carried inside it, not
// as transport errors.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) []byte {
	log := r.deps.Log.With().Str("tool", name).Str("call_id", uuid.NewString()).Logger()

	t, ok := r.tools[name]
	if !ok {
		return r.envelopeErr(log, toolerr.New(toolerr.KindToolNotFound, "unknown tool %q", name))
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return r.envelopeErr(log, toolerr.New(toolerr.KindInvalidParameters, "arguments are not serializable: %v", err))
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return r.envelopeErr(log, toolerr.New(toolerr.KindInvalidParameters, "arguments are not valid JSON: %v", err))
	}
	if err := t.schema.Validate(decoded); err != nil {
		return r.envelopeErr(log, toolerr.New(toolerr.KindInvalidParameters, "invalid parameters: %v", err))
	}

	payload, err := t.handler(ctx, raw)
	if err != nil {
		return r.envelopeErr(log, err)
	}

	data, err := toolerr.EncodeSuccess(payload)
	if err != nil {
		log.Error().Err(err).Msg("encoding tool result")
		return r.envelopeErr(log, toolerr.New(toolerr.KindUnknownExecution, "encoding result"))
	}
	return data
}

func (r *Registry) envelopeErr(log zerolog.Logger, err error) []byte {
	kind, _ := toolerr.KindOf(err)
	log.Warn().Str("kind", string(kind)).Err(err).Msg("tool call failed")

	data, encErr := toolerr.EncodeError(err)
	if encErr != nil {
		// EncodeError only fails if json.Marshal of a flat struct fails.
		return []byte(`{"success":false,"error":{"kind":"UnknownExecutionError","message":"internal encoding failure"}}`)
	}
	return data
}

type provisionArgs struct {
	UserID      string            `json:"user_id"`
	Environment string            `json:"environment"`
	Region      string            `json:"region"`
	Provider    string            `json:"provider"`
	Resources   []render.Resource `json:"resources"`
	PlanID      string            `json:"plan_id"` // apply only
}

type confirmArgs struct {
	UserID      string `json:"user_id"`
	Environment string `json:"environment"`
	Provider    string `json:"provider"`
	Confirm     bool   `json:"confirm"`
}

type workspaceArgs struct {
	UserID      string `json:"user_id"`
	Environment string `json:"environment"`
}

type estimateArgs struct {
	Region    string            `json:"region"`
	Resources []render.Resource `json:"resources"`
}

func (a *provisionArgs) providerOrDefault() string {
	if a.Provider == "" {
		return credentials.ProviderAWS
	}
	return a.Provider
}

func (a *confirmArgs) providerOrDefault() string {
	if a.Provider == "" {
		return credentials.ProviderAWS
	}
	return a.Provider
}

type planResult struct {
	*engine.Result
	PlanID        string          `json:"plan_id"`
	EstimatedCost *costs.Estimate `json:"estimated_cost,omitempty"`
}

func (r *Registry) planInfrastructure(ctx context.Context, raw []byte) (any, error) {
	var args provisionArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, toolerr.New(toolerr.KindInvalidParameters, "decoding arguments: %v", err)
	}

	path, err := r.deps.Workspaces.Ensure(args.UserID, args.Environment)
	if err != nil {
		return nil, err
	}
	if err := r.deps.Renderer.WriteConfig(path, args.Region, args.Environment, args.Resources); err != nil {
		return nil, err
	}

	planFile := newPlanFile()
	var res *engine.Result
	err = r.deps.Credentials.WithCredentials(ctx, args.UserID, args.providerOrDefault(), func(artifact string) error {
		var runErr error
		res, runErr = r.deps.Executor.Run(ctx, engine.Request{
			Op:              engine.OpPlan,
			WorkspacePath:   path,
			CredentialsFile: artifact,
			PlanFile:        planFile,
		})
		return runErr
	})
	if err != nil {
		return nil, err
	}

	planID := r.plans.put(planRecord{
		UserID:      args.UserID,
		Environment: args.Environment,
		Workspace:   path,
		File:        planFile,
		Created:     time.Now(),
	})
	return planResult{
		Result:        res,
		PlanID:        planID,
		EstimatedCost: r.deps.Estimator.Estimate(args.Region, args.Resources),
	}, nil
}

func (r *Registry) applyInfrastructure(ctx context.Context, raw []byte) (any, error) {
	var args provisionArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, toolerr.New(toolerr.KindInvalidParameters, "decoding arguments: %v", err)
	}

	path, err := r.deps.Workspaces.Ensure(args.UserID, args.Environment)
	if err != nil {
		return nil, err
	}

	// Either apply the exact plan produced earlier, or render the given
	// resources and apply them directly.
	var planFile string
	switch {
	case args.PlanID != "":
		rec, err := r.plans.get(args.PlanID, args.UserID)
		if err != nil {
			return nil, err
		}
		if rec.Workspace != path {
			return nil, toolerr.New(toolerr.KindInvalidParameters, "plan %q was made for a different workspace", args.PlanID)
		}
		planFile = rec.File
	case len(args.Resources) > 0:
		if args.Region == "" {
			return nil, toolerr.New(toolerr.KindInvalidParameters, "region is required when resources are given")
		}
		if err := r.deps.Renderer.WriteConfig(path, args.Region, args.Environment, args.Resources); err != nil {
			return nil, err
		}
	default:
		return nil, toolerr.New(toolerr.KindInvalidParameters, "either plan_id or resources is required")
	}

	var res *engine.Result
	err = r.deps.Credentials.WithCredentials(ctx, args.UserID, args.providerOrDefault(), func(artifact string) error {
		var runErr error
		res, runErr = r.deps.Executor.Run(ctx, engine.Request{
			Op:              engine.OpApply,
			WorkspacePath:   path,
			CredentialsFile: artifact,
			PlanFile:        planFile,
		})
		return runErr
	})
	if err != nil {
		// A failed apply leaves the plan in place so the call can be
		// retried with the same plan_id.
		return nil, err
	}
	if args.PlanID != "" {
		r.plans.remove(args.PlanID)
	}
	return res, nil
}

func (r *Registry) destroyInfrastructure(ctx context.Context, raw []byte) (any, error) {
	var args confirmArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, toolerr.New(toolerr.KindInvalidParameters, "decoding arguments: %v", err)
	}

	path, err := r.deps.Workspaces.Resolve(args.UserID, args.Environment)
	if err != nil {
		return nil, err
	}

	var res *engine.Result
	err = r.deps.Credentials.WithCredentials(ctx, args.UserID, args.providerOrDefault(), func(artifact string) error {
		var runErr error
		res, runErr = r.deps.Executor.Run(ctx, engine.Request{
			Op:              engine.OpDestroy,
			WorkspacePath:   path,
			CredentialsFile: artifact,
			Confirm:         args.Confirm,
		})
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Registry) validateConfiguration(ctx context.Context, raw []byte) (any, error) {
	var args provisionArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, toolerr.New(toolerr.KindInvalidParameters, "decoding arguments: %v", err)
	}

	path, err := r.deps.Workspaces.Ensure(args.UserID, args.Environment)
	if err != nil {
		return nil, err
	}
	if len(args.Resources) > 0 {
		if err := r.deps.Renderer.WriteConfig(path, args.Region, args.Environment, args.Resources); err != nil {
			return nil, err
		}
	}

	// Validation never contacts a provider, so no credentials are lent.
	return r.deps.Executor.Run(ctx, engine.Request{Op: engine.OpValidate, WorkspacePath: path})
}

func (r *Registry) showState(ctx context.Context, raw []byte) (any, error) {
	var args workspaceArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, toolerr.New(toolerr.KindInvalidParameters, "decoding arguments: %v", err)
	}

	path, err := r.deps.Workspaces.Resolve(args.UserID, args.Environment)
	if err != nil {
		return nil, err
	}
	return r.deps.Executor.Run(ctx, engine.Request{Op: engine.OpShowState, WorkspacePath: path})
}

// stateResource is one entry in a list_infrastructure result.
type stateResource struct {
	Address string `json:"address"`
	Type    string `json:"type"`
	Name    string `json:"name"`
}

type listResult struct {
	Resources []stateResource `json:"resources"`
}

func (r *Registry) listInfrastructure(ctx context.Context, raw []byte) (any, error) {
	var args workspaceArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, toolerr.New(toolerr.KindInvalidParameters, "decoding arguments: %v", err)
	}

	path, err := r.deps.Workspaces.Resolve(args.UserID, args.Environment)
	if err != nil {
		return nil, err
	}
	// A workspace that was never provisioned has nothing to list.
	if _, err := os.Stat(path); err != nil {
		return listResult{Resources: []stateResource{}}, nil
	}

	engineRes, err := r.deps.Executor.Run(ctx, engine.Request{Op: engine.OpShowState, WorkspacePath: path})
	if err != nil {
		return nil, err
	}
	if len(engineRes.State) == 0 {
		return listResult{Resources: []stateResource{}}, nil
	}

	var doc struct {
		Values struct {
			RootModule struct {
				Resources []stateResource `json:"resources"`
			} `json:"root_module"`
		} `json:"values"`
	}
	if err := json.Unmarshal(engineRes.State, &doc); err != nil {
		return nil, toolerr.New(toolerr.KindUnknownExecution, "parsing recorded state: %v", err)
	}

	resources := doc.Values.RootModule.Resources
	if resources == nil {
		resources = []stateResource{}
	}
	return listResult{Resources: resources}, nil
}

func (r *Registry) estimateCost(_ context.Context, raw []byte) (any, error) {
	var args estimateArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, toolerr.New(toolerr.KindInvalidParameters, "decoding arguments: %v", err)
	}
	return r.deps.Estimator.Estimate(args.Region, args.Resources), nil
}

type destroyWorkspaceResult struct {
	Destroyed   bool   `json:"destroyed"`
	UserID      string `json:"user_id"`
	Environment string `json:"environment"`
}

func (r *Registry) destroyWorkspace(_ context.Context, raw []byte) (any, error) {
	var args confirmArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, toolerr.New(toolerr.KindInvalidParameters, "decoding arguments: %v", err)
	}
	if !args.Confirm {
		return nil, toolerr.New(toolerr.KindConfirmationRequired, "destroy_workspace requires confirm=true")
	}

	if err := r.deps.Workspaces.Destroy(args.UserID, args.Environment); err != nil {
		return nil, err
	}
	return destroyWorkspaceResult{Destroyed: true, UserID: args.UserID, Environment: args.Environment}, nil
}

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", obj); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
