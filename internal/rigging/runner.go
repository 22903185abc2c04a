package rigging

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Command is one subprocess invocation
type Command struct {
	Path string
	Args []string
	Dir  string
}

// Output is what a finished subprocess left behind
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes subprocesses. A nonzero exit is reported through
// Output.ExitCode, not as an error; errors mean the process could not run
// or the context ended.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}
