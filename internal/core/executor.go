package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"syscall"
)

// Command is an external tool invocation (linter, icon font generator).
type Command struct {
	// Run is interpreted by "sh -c".
	Run string

	// Env is the complete environment of the command. Nothing is inherited
	// from the host unless listed here.
	Env map[string]string

	// Dir is the working directory; relative paths resolve against the
	// executor's WorkingDir. Empty means WorkingDir.
	Dir string
}

// ExecutionResult contains the captured output of a command.
type ExecutionResult struct {
	Stdout []byte
	Stderr []byte

	// ExitCode is the process exit code. A non-zero exit is reported here,
	// not as an error: tools like linters exit non-zero to report findings.
	ExitCode int
}

// Executor runs external tools with an allowlisted environment.
type Executor struct {
	// WorkingDir is the directory where commands are executed.
	WorkingDir string
}

// NewExecutor creates a new Executor with the given working directory.
func NewExecutor(workingDir string) *Executor {
	return &Executor{WorkingDir: workingDir}
}

// Execute runs the command and waits for it.
//
// The environment starts EMPTY and only Command.Env is added. On context
// cancellation the whole process group is killed.
func (e *Executor) Execute(ctx context.Context, c Command) (*ExecutionResult, error) {
	if c.Run == "" {
		return nil, fmt.Errorf("command is empty")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", c.Run)
	cmd.Dir = e.WorkingDir
	if c.Dir != "" {
		cmd.Dir = c.Dir
		if !filepath.IsAbs(c.Dir) {
			cmd.Dir = filepath.Join(e.WorkingDir, c.Dir)
		}
	}
	cmd.Env = buildIsolatedEnv(c.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &ExecutionResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// PassthroughEnv copies the named host variables that are set.
func PassthroughEnv(names []string) map[string]string {
	env := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}
	return env
}

// buildIsolatedEnv turns the allowlist into "KEY=value" pairs, sorted so the
// environment is the same on every run.
func buildIsolatedEnv(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for key, value := range env {
		result = append(result, key+"="+value)
	}
	sort.Strings(result)
	return result
}
