package state

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetweaver/internal/core"
	"assetweaver/internal/dag"
)

func TestFailureFromError_Classification(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		class FailureClass
		code  string
		chain string
	}{
		{
			name:  "chain failure",
			err:   &core.ChainError{Chain: "styles", Unit: "sass", Err: errors.New("boom")},
			class: FailureClassChain, code: "ChainFailed", chain: "styles",
		},
		{
			name:  "missing input",
			err:   fmt.Errorf("run: %w", &core.ChainError{Chain: "scripts", Err: core.ErrMissingInput}),
			class: FailureClassChain, code: "MissingInput", chain: "scripts",
		},
		{
			name:  "cycle",
			err:   &dag.GraphError{Kind: dag.ErrCycleFound, Msg: "a -> b -> a"},
			class: FailureClassGraph, code: "CycleFound",
		},
		{
			name:  "invalid graph",
			err:   &dag.GraphError{Kind: dag.ErrInvalidGraph},
			class: FailureClassGraph, code: "InvalidGraph",
		},
		{
			name:  "config",
			err:   &ConfigError{Err: errors.New("server.port out of range")},
			class: FailureClassConfig, code: "InvalidConfig",
		},
		{
			name:  "cancelled",
			err:   fmt.Errorf("build: %w", context.Canceled),
			class: FailureClassSystem, code: "Cancelled",
		},
		{
			name:  "unknown",
			err:   errors.New("disk on fire"),
			class: FailureClassSystem, code: "UnknownError",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := FailureFromError(tc.err)
			require.NoError(t, err)
			assert.Equal(t, tc.class, f.Class)
			assert.Equal(t, tc.code, f.Code)
			assert.Equal(t, tc.chain, f.Chain)
			assert.Equal(t, tc.err.Error(), f.Message)
			assert.NoError(t, f.Validate())
		})
	}
}

func TestFailureFromError_Nil(t *testing.T) {
	_, err := FailureFromError(nil)
	assert.Error(t, err)
}

func TestRunValidate_JoinsErrors(t *testing.T) {
	err := Run{Mode: "weird", Status: "odd"}.Validate()
	require.Error(t, err)
	for _, want := range []string{"id is required", "task is required", "invalid mode", "started_at is required", "invalid status"} {
		assert.Contains(t, err.Error(), want)
	}
}
