package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusbridge-mcp-server/internal/cache"
	"focusbridge-mcp-server/internal/config"
	"focusbridge-mcp-server/internal/osa"
	"focusbridge-mcp-server/internal/recorder"
	"focusbridge-mcp-server/internal/result"
	"focusbridge-mcp-server/internal/script"
)

func TestRunDiagnosticsHealthy(t *testing.T) {
	svc, runner := newTestService(t, nil)
	runner.pending = 2
	runner.setResponder(func(string) (osa.RawResult, error) {
		return hostOK(t, map[string]interface{}{
			"app":      map[string]string{"name": "OmniFocus", "version": "4.5"},
			"document": "Main",
			"counts":   map[string]int{"tasks": 42, "projects": 7, "tags": 5, "folders": 2},
		}), nil
	})

	diag, err := svc.RunDiagnostics(context.Background())
	require.NoError(t, err)
	require.NotNil(t, diag.App)
	assert.Equal(t, "OmniFocus", diag.App.Name)
	assert.Equal(t, "4.5", diag.App.Version)
	assert.Equal(t, "Main", diag.Document)
	assert.Equal(t, 42, diag.Counts["tasks"])
	assert.Nil(t, diag.HostError)
	assert.True(t, diag.BridgeEnabled)
	assert.True(t, diag.CacheEnabled)
	assert.Equal(t, 2, diag.PendingInvocations)
	require.NotNil(t, diag.Cache)
}

func TestRunDiagnosticsDegradesWhenHostUnreachable(t *testing.T) {
	svc, runner := newTestService(t, nil)
	runner.setResponder(func(string) (osa.RawResult, error) {
		return osa.RawResult{}, errors.New(`spawning osascript: exec: "osascript": executable file not found in $PATH`)
	})

	diag, err := svc.RunDiagnostics(context.Background())
	require.NoError(t, err, "an unreachable host degrades the report, it does not fail it")
	require.NotNil(t, diag.HostError)
	assert.Equal(t, result.CodeNotRunning, diag.HostError.Code)
	assert.Nil(t, diag.App)
	assert.True(t, diag.CacheEnabled)
	assert.Equal(t, "system.diagnostics", diag.Meta.Operation)
}

func TestPing(t *testing.T) {
	svc, runner := newTestService(t, nil)
	runner.setResponder(func(string) (osa.RawResult, error) {
		return hostOK(t, map[string]interface{}{
			"pong": true,
			"app":  "OmniFocus",
			"at":   testNow.Format("2006-01-02T15:04:05Z07:00"),
		}), nil
	})

	pong, err := svc.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, pong.Pong)
	assert.Equal(t, "OmniFocus", pong.App)
	assert.True(t, testNow.Equal(pong.At))
}

func TestOperationsListing(t *testing.T) {
	svc, _ := newTestService(t, nil)

	ops := svc.Operations()
	require.Len(t, ops, len(script.Operations()))

	byName := make(map[string]string, len(ops))
	for i, op := range ops {
		byName[op.Name] = op.Tier
		if i > 0 {
			assert.Less(t, ops[i-1].Name, op.Name, "operations must list sorted")
		}
	}
	assert.Equal(t, "minimal", byName["system.ping"])
	assert.Equal(t, "standard", byName["task.snapshot"])
	assert.Equal(t, "full", byName["task.move"])
}

func TestCacheStatsAndClear(t *testing.T) {
	svc, runner := newTestService(t, nil)
	respondSnapshots(t, runner)
	ctx := context.Background()

	_, err := svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)

	stats := svc.CacheStats()
	assert.Greater(t, stats.Entries, 0)

	dropped := svc.ClearCache()
	assert.Greater(t, dropped, 0)
	assert.Equal(t, 0, svc.CacheStats().Entries)
}

func TestServiceWithoutCacheOrRecorder(t *testing.T) {
	svc := New(Options{Config: config.DefaultConfig(), Runner: &stubRunner{}})

	assert.Equal(t, cache.Stats{}, svc.CacheStats())
	assert.Equal(t, 0, svc.ClearCache())
	assert.Nil(t, svc.RecentTraces(5))
}

func TestRecentTracesRecordInvocations(t *testing.T) {
	rec, err := recorder.NewRecorder(t.TempDir(), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	runner := &stubRunner{}
	store := cache.New(cache.Options{CleanupEvery: -1, Clock: func() time.Time { return testNow }})
	t.Cleanup(store.Close)
	svc := New(Options{
		Config:   config.DefaultConfig(),
		Runner:   runner,
		Cache:    store,
		Recorder: rec,
		Clock:    func() time.Time { return testNow },
	})
	respondSnapshots(t, runner)
	ctx := context.Background()

	_, err = svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)
	_, err = svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)

	traces := svc.RecentTraces(10)
	require.Len(t, traces, 2)
	assert.Equal(t, "task.snapshot", traces[0].Operation)
	assert.Equal(t, CacheMiss, traces[0].Cache)
	assert.Equal(t, "inv-stub", traces[0].Invocation)
	assert.Equal(t, "ok", traces[0].Outcome)
	assert.Greater(t, traces[0].ScriptBytes, 0)
	assert.Equal(t, "task.query", traces[1].Operation)
	assert.Equal(t, CacheHit, traces[1].Cache)
}
