// Package engine runs the external provisioning tool against a workspace
// with a command allow-list, per-workspace exclusion, a hard timeout, and
// structured result capture.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tfgate/tfgate/internal/toolerr"
)

// Operation is the closed set of allow-listed invocations. Adding one is
// a compile-time change, not a registry entry.
type Operation int

const (
	OpPlan Operation = iota
	OpApply
	OpDestroy
	OpValidate
	OpShowState
)

func (op Operation) String() string {
	switch op {
	case OpPlan:
		return "plan"
	case OpApply:
		return "apply"
	case OpDestroy:
		return "destroy"
	case OpValidate:
		return "validate"
	case OpShowState:
		return "show"
	default:
		return "unknown"
	}
}

// Mutating reports whether the operation changes provisioned
// infrastructure.
func (op Operation) Mutating() bool {
	return op == OpApply || op == OpDestroy
}

// Request describes one engine invocation.
type Request struct {
	Op              Operation
	WorkspacePath   string
	CredentialsFile string // artifact path from the broker; never raw secrets
	PlanFile        string // plan saves to it, apply consumes it; basename inside the workspace
	Confirm         bool   // required true for destroy
}

// Saved plan files are always named by the registry; anything else is
// rejected before a subprocess starts.
var planFileRe = regexp.MustCompile(`^plan-[0-9a-f]{32}\.tfplan$`)

// PlanSummary is parsed from the tool's plan output.
type PlanSummary struct {
	Add     int `json:"add"`
	Change  int `json:"change"`
	Destroy int `json:"destroy"`
}

// Result is the structured outcome of a successful invocation.
type Result struct {
	Operation  string          `json:"operation"`
	ExitCode   int             `json:"exit_code"`
	HasChanges bool            `json:"has_changes,omitempty"`
	Summary    *PlanSummary    `json:"summary,omitempty"`
	Outputs    map[string]any  `json:"outputs,omitempty"`
	State      json.RawMessage `json:"state,omitempty"`
	Stdout     string          `json:"stdout,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// Engine owns terraform execution for all workspaces of one server.
type Engine struct {
	binary  string
	baseDir string
	timeout time.Duration
	locks   *lockTable
	runner  Runner
	log     zerolog.Logger
}

// New builds an engine. baseDir must be the workspace manager's canonical
// base; paths are re-checked against it on every run.
func New(binary, baseDir string, timeout, busyGrace time.Duration, runner Runner, logger zerolog.Logger) *Engine {
	return &Engine{
		binary:  binary,
		baseDir: baseDir,
		timeout: timeout,
		locks:   newLockTable(busyGrace),
		runner:  runner,
		log:     logger,
	}
}

// Run executes one allow-listed operation against a workspace. All
// validation happens before any subprocess starts.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := e.checkWorkspace(req.WorkspacePath); err != nil {
		return nil, err
	}
	if req.Op == OpDestroy && !req.Confirm {
		return nil, toolerr.New(toolerr.KindConfirmationRequired, "destroy requires confirm=true")
	}
	if req.PlanFile != "" {
		if !planFileRe.MatchString(req.PlanFile) {
			return nil, toolerr.New(toolerr.KindInvalidParameters, "malformed plan file name %q", req.PlanFile)
		}
		if req.Op == OpApply {
			if _, err := os.Stat(filepath.Join(req.WorkspacePath, req.PlanFile)); err != nil {
				return nil, toolerr.New(toolerr.KindInvalidParameters, "saved plan %q no longer exists", req.PlanFile)
			}
		}
	}

	release, err := e.locks.acquire(req.WorkspacePath, req.Op)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.ensureInit(ctx, req); err != nil {
		return nil, err
	}

	argv, ok := e.argvFor(req)
	if !ok {
		return nil, toolerr.New(toolerr.KindInvalidParameters, "operation %q is not allow-listed", req.Op)
	}

	e.log.Info().
		Str("operation", req.Op.String()).
		Str("workspace", req.WorkspacePath).
		Msg("running provisioning tool")

	run, err := e.exec(ctx, req, argv)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Operation:  req.Op.String(),
		ExitCode:   run.ExitCode,
		Stdout:     Redact(excerpt(run.Stdout)),
		DurationMS: run.Duration.Milliseconds(),
	}

	switch req.Op {
	case OpPlan:
		// -detailed-exitcode: 0 = clean, 2 = changes pending.
		if run.ExitCode != 0 && run.ExitCode != 2 {
			return nil, e.failure(req.Op, run)
		}
		result.HasChanges = run.ExitCode == 2
		result.Summary = parsePlanSummary(run.Stdout)
	case OpApply:
		if run.ExitCode != 0 {
			return nil, e.failure(req.Op, run)
		}
		if req.PlanFile != "" {
			// A saved plan is single-use.
			if err := os.Remove(filepath.Join(req.WorkspacePath, req.PlanFile)); err != nil {
				e.log.Warn().Err(err).Msg("removing consumed plan file")
			}
		}
		result.Summary = parseApplySummary(run.Stdout)
		outputs, err := e.collectOutputs(ctx, req)
		if err != nil {
			e.log.Warn().Err(err).Msg("collecting outputs after apply")
		} else {
			result.Outputs = outputs
		}
	case OpDestroy:
		if run.ExitCode != 0 {
			return nil, e.failure(req.Op, run)
		}
	case OpValidate, OpShowState:
		if run.ExitCode != 0 {
			return nil, e.failure(req.Op, run)
		}
		if json.Valid([]byte(run.Stdout)) {
			result.State = json.RawMessage(run.Stdout)
			result.Stdout = ""
		}
	}

	return result, nil
}

// checkWorkspace re-validates the path against the base directory.
// Defense in depth with the workspace manager's own containment check.
func (e *Engine) checkWorkspace(path string) error {
	rel, err := filepath.Rel(e.baseDir, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return toolerr.New(toolerr.KindPathTraversal, "workspace path escapes the base directory")
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return toolerr.New(toolerr.KindPathTraversal, "workspace path is not a directory")
	}
	return nil
}

// ensureInit initializes the working directory once per workspace.
func (e *Engine) ensureInit(ctx context.Context, req Request) error {
	switch req.Op {
	case OpPlan, OpApply, OpDestroy, OpValidate:
	default:
		return nil
	}
	if _, err := os.Stat(filepath.Join(req.WorkspacePath, ".terraform")); err == nil {
		return nil
	}

	run, err := e.exec(ctx, req, []string{"init", "-input=false", "-no-color"})
	if err != nil {
		return err
	}
	if run.ExitCode != 0 {
		return e.failure(req.Op, run)
	}
	return nil
}

func (e *Engine) argvFor(req Request) ([]string, bool) {
	switch req.Op {
	case OpPlan:
		argv := []string{"plan", "-input=false", "-no-color", "-detailed-exitcode"}
		if req.PlanFile != "" {
			argv = append(argv, "-out="+req.PlanFile)
		}
		return argv, true
	case OpApply:
		if req.PlanFile != "" {
			// Applying a saved plan needs no approval flag; the plan is the
			// approved set of changes.
			return []string{"apply", "-input=false", "-no-color", req.PlanFile}, true
		}
		return []string{"apply", "-input=false", "-no-color", "-auto-approve"}, true
	case OpDestroy:
		return []string{"destroy", "-input=false", "-no-color", "-auto-approve"}, true
	case OpValidate:
		return []string{"validate", "-no-color", "-json"}, true
	case OpShowState:
		return []string{"show", "-no-color", "-json"}, true
	default:
		return nil, false
	}
}

func (e *Engine) exec(ctx context.Context, req Request, args []string) (*RunResult, error) {
	spec := RunSpec{
		Argv:    append([]string{e.binary}, args...),
		Dir:     req.WorkspacePath,
		Env:     e.childEnv(req),
		Timeout: e.timeout,
	}

	run, err := e.runner.Run(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("invoking %s: %w", e.binary, err)
	}
	if run.TimedOut {
		return nil, toolerr.New(toolerr.KindExecutionTimeout, "%s %s exceeded %s", e.binary, args[0], e.timeout)
	}
	return run, nil
}

// childEnv builds a curated environment. The credential artifact is
// referenced by path only; no secret value ever enters the environment.
func (e *Engine) childEnv(req Request) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"TF_IN_AUTOMATION=1",
		"TF_INPUT=0",
	}
	if req.CredentialsFile != "" {
		env = append(env, "AWS_SHARED_CREDENTIALS_FILE="+req.CredentialsFile)
	}
	return env
}

func (e *Engine) failure(op Operation, run *RunResult) error {
	kind := classifyFailure(run.ExitCode, run.Stderr)
	diag := Redact(excerpt(run.Stderr))
	e.log.Error().
		Str("operation", op.String()).
		Int("exit_code", run.ExitCode).
		Str("kind", string(kind)).
		Msg("provisioning tool failed")
	return toolerr.New(kind, "%s failed (exit %d): %s", op, run.ExitCode, diag)
}

// collectOutputs reads the tool's structured outputs after a successful
// apply.
func (e *Engine) collectOutputs(ctx context.Context, req Request) (map[string]any, error) {
	run, err := e.exec(ctx, req, []string{"output", "-no-color", "-json"})
	if err != nil {
		return nil, err
	}
	if run.ExitCode != 0 {
		return nil, fmt.Errorf("output failed (exit %d)", run.ExitCode)
	}

	var raw map[string]struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal([]byte(run.Stdout), &raw); err != nil {
		return nil, fmt.Errorf("parsing outputs: %w", err)
	}

	outputs := make(map[string]any, len(raw))
	for name, o := range raw {
		outputs[name] = o.Value
	}
	return outputs, nil
}

var planSummaryRe = regexp.MustCompile(`Plan: (\d+) to add, (\d+) to change, (\d+) to destroy`)
var applySummaryRe = regexp.MustCompile(`Apply complete! Resources: (\d+) added, (\d+) changed, (\d+) destroyed`)

func parsePlanSummary(stdout string) *PlanSummary {
	m := planSummaryRe.FindStringSubmatch(stdout)
	if m == nil {
		if strings.Contains(stdout, "No changes.") {
			return &PlanSummary{}
		}
		return nil
	}
	return &PlanSummary{Add: atoi(m[1]), Change: atoi(m[2]), Destroy: atoi(m[3])}
}

func parseApplySummary(stdout string) *PlanSummary {
	m := applySummaryRe.FindStringSubmatch(stdout)
	if m == nil {
		return nil
	}
	return &PlanSummary{Add: atoi(m[1]), Change: atoi(m[2]), Destroy: atoi(m[3])}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

const excerptLimit = 2000

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= excerptLimit {
		return s
	}
	return s[:excerptLimit] + "\n[truncated]"
}
