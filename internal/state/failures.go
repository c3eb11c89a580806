package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assetweaver/internal/core"
	"assetweaver/internal/dag"
)

// FailureClass groups run failures by who has to act on them.
type FailureClass string

const (
	// FailureClassGraph is an invalid task composition (cycle, unknown chain).
	FailureClassGraph FailureClass = "graph"
	// FailureClassConfig is an invalid configuration or invocation.
	FailureClassConfig FailureClass = "config"
	// FailureClassChain is a chain that failed to transform its assets.
	FailureClassChain FailureClass = "chain"
	// FailureClassSystem covers everything else: I/O, cancellation, crashes.
	FailureClassSystem FailureClass = "system"
)

// Failure is the recorded termination reason of a run.
type Failure struct {
	Class   FailureClass
	Chain   string
	Code    string
	Message string
}

func (f Failure) Validate() error {
	var errs []error
	switch f.Class {
	case FailureClassGraph, FailureClassConfig, FailureClassChain, FailureClassSystem:
	default:
		errs = append(errs, fmt.Errorf("invalid failure class %q", f.Class))
	}
	if strings.TrimSpace(f.Code) == "" {
		errs = append(errs, errors.New("code is required"))
	}
	if strings.TrimSpace(f.Message) == "" {
		errs = append(errs, errors.New("message is required"))
	}
	return errors.Join(errs...)
}

// ConfigError marks an error caused by invalid configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	if e == nil || e.Err == nil {
		return "configuration error"
	}
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FailureFromError classifies err into a Failure record.
func FailureFromError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	var ce *core.ChainError
	if errors.As(err, &ce) && ce != nil {
		code := "ChainFailed"
		if errors.Is(err, core.ErrMissingInput) {
			code = "MissingInput"
		}
		return Failure{Class: FailureClassChain, Chain: ce.Chain, Code: code, Message: err.Error()}, nil
	}

	var ge *dag.GraphError
	if errors.As(err, &ge) && ge != nil {
		code := "InvalidGraph"
		if errors.Is(err, dag.ErrCycleFound) {
			code = "CycleFound"
		}
		return Failure{Class: FailureClassGraph, Code: code, Message: err.Error()}, nil
	}

	var cfg *ConfigError
	if errors.As(err, &cfg) && cfg != nil {
		return Failure{Class: FailureClassConfig, Code: "InvalidConfig", Message: err.Error()}, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Failure{Class: FailureClassSystem, Code: "Cancelled", Message: err.Error()}, nil
	}

	return Failure{Class: FailureClassSystem, Code: "UnknownError", Message: err.Error()}, nil
}
