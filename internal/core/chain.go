package core

import (
	"context"
	"errors"
	"fmt"
)

// Unit is one transform step of a chain.
//
// Apply receives the whole asset set so units can merge (concat), split or
// drop files. Units must not mutate the input set; they return a new one.
type Unit interface {
	// Name identifies the unit in errors and logs.
	Name() string

	// Fingerprint captures the unit options that affect its output. It is
	// part of the ChainHash, so changing an option invalidates cached output.
	Fingerprint() string

	Apply(ctx context.Context, in *AssetSet) (*AssetSet, error)
}

// Chain is a declarative asset pipeline.
type Chain struct {
	// Name is the chain identifier used by tasks, watch bindings and logs.
	Name string

	// Sources are glob patterns relative to the project root. Patterns support
	// "**" and brace alternatives ("*.{scss,sass}").
	Sources []string

	// Dest is the output directory relative to the project root.
	Dest string

	// Required fails the chain when the sources match no file. Otherwise an
	// empty match produces empty output.
	Required bool

	// Remove lists paths deleted before the chain writes. Chains with Remove
	// are never cached.
	Remove []string

	// NoCache runs the chain on every build. Set it for chains whose result
	// depends on state the inputs do not capture.
	NoCache bool

	// Units are applied in order. A chain without units copies its sources.
	Units []Unit
}

// Cacheable reports whether a successful run may be replayed from cache.
func (c *Chain) Cacheable() bool {
	return len(c.Remove) == 0 && !c.NoCache
}

func (c *Chain) validate() error {
	if c == nil {
		return fmt.Errorf("chain is nil")
	}
	if c.Name == "" {
		return fmt.Errorf("chain name is required")
	}
	if len(c.Sources) > 0 && c.Dest == "" {
		return fmt.Errorf("chain %q: dest is required when sources are declared", c.Name)
	}
	if len(c.Sources) == 0 && len(c.Remove) == 0 {
		return fmt.Errorf("chain %q: nothing to do (no sources and no remove paths)", c.Name)
	}
	for i, u := range c.Units {
		if u == nil {
			return fmt.Errorf("chain %q: unit %d is nil", c.Name, i)
		}
	}
	return nil
}

// ErrMissingInput is returned when a required chain matches no source file.
var ErrMissingInput = errors.New("required input not found")

// ChainError reports a chain that failed while transforming its assets.
//
// It is a build failure, not an infrastructure error: the chain is marked
// failed and its siblings keep running.
type ChainError struct {
	Chain string
	// Unit is empty when the failure happened outside a unit (input
	// resolution, writing outputs).
	Unit string
	Err  error
}

func (e *ChainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Unit != "" {
		return fmt.Sprintf("chain %s: %s: %v", e.Chain, e.Unit, e.Err)
	}
	return fmt.Sprintf("chain %s: %v", e.Chain, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }
