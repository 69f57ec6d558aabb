package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// RunSpec describes one external command invocation. Argv is always a
// fixed vector assembled by the engine; no element is synthesized from
// user input.
type RunSpec struct {
	Argv    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// RunResult holds the captured output of an invocation.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Runner executes external commands. Abstracting this lets tests inject a
// fake without spawning real terraform processes.
type Runner interface {
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
}

// procRunner runs commands as child processes in their own process group
// so a timeout can terminate the whole group.
type procRunner struct {
	outputLimit int64
}

// NewProcessRunner returns the production Runner. outputLimit caps the
// bytes captured per stream.
func NewProcessRunner(outputLimit int64) Runner {
	return &procRunner{outputLimit: outputLimit}
}

func (r *procRunner) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("empty argument vector")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = nil // stdin closed
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &boundedWriter{w: &stdout, remaining: r.outputLimit}
	cmd.Stderr = &boundedWriter{w: &stderr, remaining: r.outputLimit}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.Argv[0], err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timedOut := false
	select {
	case <-runCtx.Done():
		timedOut = true
		killProcessGroup(cmd.Process.Pid)
		<-waitCh
	case err := <-waitCh:
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("waiting for %s: %w", spec.Argv[0], err)
		}
	}

	res := &RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		TimedOut: timedOut,
		Duration: time.Since(start),
	}
	return res, nil
}

// killProcessGroup terminates the whole group rooted at pid.
func killProcessGroup(pid int) {
	if pgid, err := unix.Getpgid(pid); err == nil {
		_ = unix.Kill(-pgid, unix.SIGKILL)
		return
	}
	_ = unix.Kill(pid, unix.SIGKILL)
}

// pidAlive reports whether a process with the given pid still exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// boundedWriter discards bytes past the limit but never errors, so the
// child is not killed by a full pipe.
type boundedWriter struct {
	w         io.Writer
	remaining int64
}

func (b *boundedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if b.remaining <= 0 {
		return n, nil
	}
	if int64(n) > b.remaining {
		if _, err := b.w.Write(p[:b.remaining]); err != nil {
			return n, nil
		}
		b.remaining = 0
		return n, nil
	}
	if _, err := b.w.Write(p); err != nil {
		return n, nil
	}
	b.remaining -= int64(n)
	return n, nil
}
