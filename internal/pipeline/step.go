// Package pipeline assembles chains from configuration and composes them
// into named tasks.
//
// A task is a tree of Series and Parallel steps over chain names. It is
// compiled into a dag.TaskGraph: Parallel adds no edges, Series adds an edge
// from every chain that finishes one step to every chain that starts the
// next.
package pipeline

import (
	"fmt"
	"strings"

	"assetweaver/internal/dag"
)

// Step is a node of a task composition.
type Step struct {
	chain    string
	series   bool
	children []Step
}

// Run is a step that runs one chain.
func Run(chain string) Step { return Step{chain: chain} }

// Series runs steps one after another. A step starts only after every chain
// of the previous step has written its outputs.
func Series(steps ...Step) Step { return Step{series: true, children: steps} }

// Parallel runs steps without ordering between them.
func Parallel(steps ...Step) Step { return Step{children: steps} }

func (s Step) String() string {
	if s.chain != "" {
		return s.chain
	}
	parts := make([]string, len(s.children))
	for i, c := range s.children {
		parts[i] = c.String()
	}
	kind := "parallel"
	if s.series {
		kind = "series"
	}
	return kind + "(" + strings.Join(parts, ", ") + ")"
}

// Chains returns the chain names of the step in first-appearance order.
func (s Step) Chains() []string {
	if s.chain != "" {
		return []string{s.chain}
	}
	var out []string
	for _, c := range s.children {
		out = append(out, c.Chains()...)
	}
	return out
}

// Compile returns the chain names and series edges of the step. A chain may
// appear only once.
func (s Step) Compile() ([]string, []dag.Edge, error) {
	c := &compiler{seen: make(map[string]bool)}
	if _, _, err := c.compile(s); err != nil {
		return nil, nil, err
	}
	return c.names, c.edges, nil
}

type compiler struct {
	seen  map[string]bool
	names []string
	edges []dag.Edge
}

// compile returns the chains a step starts with and the chains it ends with.
func (c *compiler) compile(s Step) (first, last []string, err error) {
	if s.chain != "" {
		if c.seen[s.chain] {
			return nil, nil, fmt.Errorf("chain %q appears more than once", s.chain)
		}
		c.seen[s.chain] = true
		c.names = append(c.names, s.chain)
		return []string{s.chain}, []string{s.chain}, nil
	}
	if len(s.children) == 0 {
		return nil, nil, fmt.Errorf("empty %s step", s.String())
	}

	if !s.series {
		for _, child := range s.children {
			f, l, err := c.compile(child)
			if err != nil {
				return nil, nil, err
			}
			first = append(first, f...)
			last = append(last, l...)
		}
		return first, last, nil
	}

	for i, child := range s.children {
		f, l, err := c.compile(child)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			first = f
		}
		for _, from := range last {
			for _, to := range f {
				c.edges = append(c.edges, dag.Edge{From: from, To: to})
			}
		}
		last = l
	}
	return first, last, nil
}
