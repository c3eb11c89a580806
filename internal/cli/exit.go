package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"assetweaver/internal/state"
)

const (
	ExitSuccess           = 0
	ExitGraphFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// ErrChainsFailed is returned when a task finished with failed chains.
var ErrChainsFailed = errors.New("chains failed")

// InvocationError is a command-line mistake: an unknown flag, a bad flag
// value or an unexpected argument.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if errors.Is(err, ErrChainsFailed) {
		return ExitGraphFailure
	}

	f, ferr := state.FailureFromError(err)
	if ferr != nil {
		return ExitInternalError
	}
	switch f.Class {
	case state.FailureClassConfig, state.FailureClassGraph:
		return ExitConfigError
	case state.FailureClassChain:
		return ExitGraphFailure
	default:
		return ExitInternalError
	}
}

// resolveUnderWorkDir resolves a relative path against the absolute work
// directory. Absolute paths are kept.
func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Join(workDir, clean), nil
}
