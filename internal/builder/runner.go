package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Process is one child process to spawn and wait for.
type Process struct {
	Name string
	Args []string
	Dir  string
	// Env nil inherits the current environment.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

func (p Process) String() string {
	return strings.Join(append([]string{p.Name}, p.Args...), " ")
}

// Runner spawns processes. It returns an *ExitError when the process ran
// and failed, the context's error when it was cancelled, and any other
// error when it could not be started.
type Runner interface {
	Run(ctx context.Context, p Process) error
}

// ExitError reports a non-zero exit status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExecRunner runs processes with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, p Process) error {
	cmd := exec.CommandContext(ctx, p.Name, p.Args...)
	cmd.Dir = p.Dir
	cmd.Env = p.Env
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}
	err := cmd.Wait()
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}
