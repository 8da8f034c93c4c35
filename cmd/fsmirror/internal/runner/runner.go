// Package runner executes the unit of work whose outputs are observed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

var (
	// ErrNoCommand is returned when no command was given.
	ErrNoCommand = errors.New("no command given")

	// ErrCommandNotFound is returned when the command cannot be located.
	ErrCommandNotFound = errors.New("command not found")
)

// Runner resolves and runs commands.
type Runner struct {
	dir    string
	env    []string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithDir sets the working directory of the command.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithOutput redirects the command's standard output and error.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithStdin sets the command's standard input.
func WithStdin(stdin io.Reader) Option {
	return func(r *Runner) {
		r.stdin = stdin
	}
}

// New creates a new Runner with the given options. By default commands
// inherit the process's standard streams.
func New(opts ...Option) *Runner {
	r := &Runner{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Find resolves name to an executable path. Names containing a separator are
// taken relative to the runner's directory; others are looked up in PATH.
func (r *Runner) Find(name string) (string, error) {
	if name == "" {
		return "", ErrNoCommand
	}
	if filepath.Base(name) != name {
		path := name
		if !filepath.IsAbs(path) && r.dir != "" {
			path = filepath.Join(r.dir, path)
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
		}
		return path, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	return path, nil
}

// Run executes args[0] with the remaining arguments and waits for it.
// A non-zero exit is returned as an *exec.ExitError.
func (r *Runner) Run(ctx context.Context, args []string) error {
	cmd, err := r.command(ctx, args)
	if err != nil {
		return err
	}
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	return cmd.Run()
}

// RunWithOutput executes the command and captures its combined output.
func (r *Runner) RunWithOutput(ctx context.Context, args []string) ([]byte, error) {
	cmd, err := r.command(ctx, args)
	if err != nil {
		return nil, err
	}
	return cmd.CombinedOutput()
}

func (r *Runner) command(ctx context.Context, args []string) (*exec.Cmd, error) {
	if len(args) == 0 {
		return nil, ErrNoCommand
	}
	path, err := r.Find(args[0])
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, args[1:]...)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	return cmd, nil
}

// ExitCode extracts the exit status from an error returned by Run.
// It returns 0 for nil and -1 when err carries no exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
