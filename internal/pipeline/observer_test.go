package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"assetweaver/internal/dag"
)

func TestLogObserver_TagsEveryLineWithTheChain(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	o := &logObserver{logger: zap.New(obs)}

	o.OnChainTerminal(ChainStyles, dag.ChainFailed, &dag.NodeResult{Err: errors.New("boom")})
	o.OnChainTerminal(ChainScripts, dag.ChainCompleted, &dag.NodeResult{Outputs: []string{"assets/js/bundle.min.js"}})
	o.OnChainTerminal(ChainIcons, dag.ChainSkipped, nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	want := []struct {
		chain string
		level zapcore.Level
	}{
		{ChainStyles, zapcore.ErrorLevel},
		{ChainScripts, zapcore.InfoLevel},
		{ChainIcons, zapcore.WarnLevel},
	}
	for i, w := range want {
		assert.Equal(t, w.level, entries[i].Level)
		assert.Equal(t, w.chain, entries[i].ContextMap()["chain"])
	}
}
