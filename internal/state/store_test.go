package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetweaver/internal/core"
	"assetweaver/internal/dag"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), ".assetweaver", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpen_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	run, err := s.StartRun(ctx, "default", ExecutionModeIncremental, "gh")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, run.ID, RunSucceeded, nil))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, RunSucceeded, latest.Status)
}

func TestLatestRun_EmptyStore(t *testing.T) {
	s := openTestStore(t)
	latest, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestStartRun_ThenFinishWithFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx, "styles", ExecutionModeClean, "gh-1")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunRunning, run.Status)

	loaded, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.FinishedAt)
	assert.Zero(t, loaded.Duration())

	f := &Failure{Class: FailureClassChain, Chain: "styles", Code: "ChainFailed", Message: "sass: undefined variable"}
	require.NoError(t, s.FinishRun(ctx, run.ID, RunFailed, f))

	loaded, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, loaded.Status)
	assert.Equal(t, ExecutionModeClean, loaded.Mode)
	assert.Equal(t, "gh-1", loaded.GraphHash)
	require.NotNil(t, loaded.FinishedAt)
	assert.False(t, loaded.FinishedAt.Before(loaded.StartedAt))
	require.NotNil(t, loaded.Failure)
	assert.Equal(t, *f, *loaded.Failure)
}

func TestFinishRun_Rejects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run, err := s.StartRun(ctx, "default", ExecutionModeIncremental, "gh")
	require.NoError(t, err)

	assert.Error(t, s.FinishRun(ctx, run.ID, RunRunning, nil), "running is not terminal")
	assert.Error(t, s.FinishRun(ctx, run.ID, RunFailed, nil), "failed needs a failure")
	assert.Error(t, s.FinishRun(ctx, run.ID, RunFailed, &Failure{Class: "bogus", Code: "X", Message: "m"}))
	assert.Error(t, s.FinishRun(ctx, "no-such-run", RunSucceeded, nil))

	require.NoError(t, s.FinishRun(ctx, run.ID, RunSucceeded, nil))
	assert.Error(t, s.FinishRun(ctx, run.ID, RunSucceeded, nil), "already finished")
}

func TestRecentRuns_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := s.StartRun(ctx, fmt.Sprintf("task-%d", i), ExecutionModeIncremental, "gh")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	none, err := s.RecentRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChainRecords_SortedAndReplaced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run, err := s.StartRun(ctx, "default", ExecutionModeIncremental, "gh")
	require.NoError(t, err)

	require.NoError(t, s.RecordChain(ctx, ChainRecord{RunID: run.ID, Chain: "styles", State: "RUNNING"}))
	require.NoError(t, s.RecordChain(ctx, ChainRecord{RunID: run.ID, Chain: "styles", State: "COMPLETED", Hash: "h1", Changed: 2}))
	require.NoError(t, s.RecordChain(ctx, ChainRecord{RunID: run.ID, Chain: "icons", State: "CACHED", Hash: "h0", FromCache: true}))

	recs, err := s.ChainRecords(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []ChainRecord{
		{RunID: run.ID, Chain: "icons", State: "CACHED", Hash: "h0", FromCache: true},
		{RunID: run.ID, Chain: "styles", State: "COMPLETED", Hash: "h1", Changed: 2},
	}, recs)

	assert.Error(t, s.RecordChain(ctx, ChainRecord{RunID: run.ID, State: "COMPLETED"}))
}

func TestRunRecorder_RecordsChainsAndFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := BeginRun(ctx, s, "default", ExecutionModeIncremental, "gh")
	require.NoError(t, err)

	chainErr := &core.ChainError{Chain: "styles", Unit: "sass", Err: errors.New("undefined variable")}
	okResult := &dag.NodeResult{Hash: "h-scripts", Changed: []string{"assets/js/scripts.min.js"}}
	failResult := &dag.NodeResult{Hash: "h-styles", Err: chainErr}

	rec.OnChainTerminal("scripts", dag.ChainCompleted, okResult)
	rec.OnChainTerminal("styles", dag.ChainFailed, failResult)
	rec.OnChainTerminal("markup", dag.ChainSkipped, nil)

	result := &dag.GraphResult{
		FinalState: dag.ExecutionState{"scripts": dag.ChainCompleted, "styles": dag.ChainFailed, "markup": dag.ChainSkipped},
		Results:    map[string]*dag.NodeResult{"scripts": okResult, "styles": failResult},
	}
	require.NoError(t, rec.Finish(result, nil))

	run, err := s.GetRun(ctx, rec.Run().ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, run.Status)
	require.NotNil(t, run.Failure)
	assert.Equal(t, FailureClassChain, run.Failure.Class)
	assert.Equal(t, "styles", run.Failure.Chain)

	recs, err := s.ChainRecords(ctx, rec.Run().ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "markup", recs[0].Chain)
	assert.Equal(t, "SKIPPED", recs[0].State)
	assert.Equal(t, 1, recs[1].Changed)
	assert.Equal(t, chainErr.Error(), recs[2].Error)
}

func TestRunRecorder_AbortedRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := BeginRun(ctx, s, "watch", ExecutionModeIncremental, "gh")
	require.NoError(t, err)
	require.NoError(t, rec.Finish(nil, context.Canceled))

	run, err := s.GetRun(ctx, rec.Run().ID)
	require.NoError(t, err)
	assert.Equal(t, RunAborted, run.Status)
	require.NotNil(t, run.Failure)
	assert.Equal(t, "Cancelled", run.Failure.Code)
}
