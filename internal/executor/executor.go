// Package executor runs external commands with output capture, environment
// control and context cancellation. The git porcelain and the test-runner
// boundary both execute through it.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Result holds the captured output of one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Options configures a single execution.
type Options struct {
	WorkingDir string
	Env        map[string]string // appended to the process environment
	Stdin      string
	Retries    int           // re-executions after a failure
	RetryDelay time.Duration // wait between attempts
}

// Option mutates Options.
type Option func(*Options)

// WithWorkingDir sets the command working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) { o.WorkingDir = dir }
}

// WithEnv appends environment variables to the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(o *Options) { o.Env = env }
}

// WithStdin feeds the command the given input.
func WithStdin(input string) Option {
	return func(o *Options) { o.Stdin = input }
}

// WithRetries re-runs the command up to n extra times on failure.
func WithRetries(n int, delay time.Duration) Option {
	return func(o *Options) { o.Retries = n; o.RetryDelay = delay }
}

// Command is a runnable external command.
type Command struct {
	program string
	args    []string
}

// New builds a Command. Nothing runs until Execute.
func New(program string, args ...string) *Command {
	return &Command{program: program, args: args}
}

// Execute runs the command once (plus configured retries) and captures
// stdout/stderr. A non-zero exit returns both a populated Result and an
// error; callers that treat non-zero exits as data inspect Result.ExitCode.
func (c *Command) Execute(ctx context.Context, opts ...Option) (*Result, error) {
	options := &Options{RetryDelay: time.Second}
	for _, opt := range opts {
		opt(options)
	}

	var (
		res *Result
		err error
	)
	for attempt := 0; ; attempt++ {
		res, err = c.executeOnce(ctx, options)
		if err == nil || attempt >= options.Retries {
			return res, err
		}
		select {
		case <-ctx.Done():
			return res, fmt.Errorf("cancelled during retry: %w", ctx.Err())
		case <-time.After(options.RetryDelay):
		}
	}
}

func (c *Command) executeOnce(ctx context.Context, options *Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.program, c.args...)
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}
	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range options.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if options.Stdin != "" {
		cmd.Stdin = bytes.NewBufferString(options.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, fmt.Errorf("%s exited %d: %s", c.program, res.ExitCode, firstLine(stderr.String()))
	}
	res.ExitCode = -1
	return res, fmt.Errorf("run %s: %w", c.program, runErr)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
