package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"focusbridge-mcp-server/internal/cache"
	"focusbridge-mcp-server/internal/config"
	"focusbridge-mcp-server/internal/filter"
	"focusbridge-mcp-server/internal/model"
	"focusbridge-mcp-server/internal/osa"
	"focusbridge-mcp-server/internal/result"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

// stubRunner answers invocations with canned host output. The responder
// sees the generated source, so it can key on the bound arguments.
type stubRunner struct {
	mu      sync.Mutex
	respond func(source string) (osa.RawResult, error)
	calls   []string
	pending int
}

func (r *stubRunner) Run(_ context.Context, source string, _ time.Duration) (osa.RawResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, source)
	if r.respond == nil {
		return osa.RawResult{}, errors.New("stub has no responder")
	}
	return r.respond(source)
}

func (r *stubRunner) Pending() int { return r.pending }

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *stubRunner) lastCall() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}

func (r *stubRunner) setResponder(f func(source string) (osa.RawResult, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.respond = f
}

// hostOK frames data the way a generated script does on success.
func hostOK(t *testing.T, data interface{}) osa.RawResult {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"ok": true, "data": data})
	require.NoError(t, err)
	return osa.RawResult{
		InvocationID: "inv-stub",
		Stdout:       result.BeginSentinel + "\n" + string(payload) + "\n" + result.EndSentinel + "\n",
		Duration:     3 * time.Millisecond,
	}
}

// hostErr frames a script-emitted error envelope. The host still exits
// zero for these; the frame is the completion value.
func hostErr(t *testing.T, name, message string) osa.RawResult {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"ok":    false,
		"error": map[string]string{"name": name, "message": message, "context": "primary"},
	})
	require.NoError(t, err)
	return osa.RawResult{
		InvocationID: "inv-stub",
		Stdout:       result.BeginSentinel + "\n" + string(payload) + "\n" + result.EndSentinel + "\n",
	}
}

func newTestService(t *testing.T, mutate func(*config.Config)) (*Service, *stubRunner) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	runner := &stubRunner{}
	store := cache.New(cache.Options{CleanupEvery: -1, Clock: func() time.Time { return testNow }})
	t.Cleanup(store.Close)
	svc := New(Options{
		Config: cfg,
		Runner: runner,
		Cache:  store,
		Clock:  func() time.Time { return testNow },
	})
	return svc, runner
}

// fixtureDump is a small database: an active project holding an overdue
// flagged task with one child, an inbox task, and one finished task that
// only the full variant carries.
func fixtureDump() model.Dump {
	yesterday := testNow.Add(-24 * time.Hour)
	lastWeek := testNow.Add(-6 * 24 * time.Hour)
	return model.Dump{
		GeneratedAt: testNow,
		Tasks: []*model.Task{
			{ID: "t1", Name: "Write report", ProjectID: "p1", Flagged: true, DueDate: tp(yesterday), Order: 0},
			{ID: "t2", Name: "Review draft", ProjectID: "p1", ParentID: "t1", Order: 1},
			{ID: "t3", Name: "Inbox idea", InInbox: true, Order: 2},
			{ID: "t4", Name: "Shipped", ProjectID: "p1", Completed: true, CompletionDate: tp(lastWeek), Order: 3},
		},
		Projects: []*model.Project{
			{ID: "p1", Name: "Quarterly report", Status: model.ProjectActive, RootTaskID: "root-p1"},
		},
	}
}

func openDump() model.Dump {
	d := fixtureDump()
	open := d.Tasks[:0]
	for _, task := range d.Tasks {
		if !task.Completed && !task.Dropped {
			open = append(open, task)
		}
	}
	d.Tasks = open
	return d
}

// respondSnapshots serves the open or full fixture depending on the
// bound skip flags.
func respondSnapshots(t *testing.T, runner *stubRunner) {
	t.Helper()
	runner.setResponder(func(source string) (osa.RawResult, error) {
		if strings.Contains(source, `"skipCompleted":true`) {
			return hostOK(t, openDump()), nil
		}
		return hostOK(t, fixtureDump()), nil
	})
}

func TestQueryTasksSharesSnapshotAcrossQueries(t *testing.T) {
	svc, runner := newTestService(t, nil)
	respondSnapshots(t, runner)
	ctx := context.Background()

	all, err := svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)
	assert.Len(t, all.Rows, 4)
	assert.Equal(t, CacheMiss, all.Meta.Cache)
	assert.Equal(t, "inv-stub", all.Meta.Invocation)
	assert.Equal(t, 1, runner.callCount())

	again, err := svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)
	assert.Equal(t, CacheHit, again.Meta.Cache)
	assert.Equal(t, 1, runner.callCount(), "repeat of the same query must not reach the host")

	// A different predicate misses its own key but reuses the snapshot.
	search, err := svc.QueryTasks(ctx, TaskQuery{Predicate: filter.Predicate{Search: "report"}})
	require.NoError(t, err)
	assert.Equal(t, CacheHit, search.Meta.Cache)
	require.Len(t, search.Rows, 1)
	assert.Equal(t, "t1", search.Rows[0]["id"])
	assert.Equal(t, 1, runner.callCount(), "a new predicate over a cached snapshot must not reach the host")

	// Available needs the open variant, which is a second host dump.
	avail, err := svc.QueryTasks(ctx, TaskQuery{Predicate: filter.Predicate{Status: filter.StatusAvailable}})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, avail.Meta.Cache)
	assert.Equal(t, 2, runner.callCount())
}

func TestQueryTasksValidatesPredicate(t *testing.T) {
	svc, runner := newTestService(t, nil)

	_, err := svc.QueryTasks(context.Background(), TaskQuery{Predicate: filter.Predicate{Status: "someday"}})
	var f *result.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, result.CodeValidation, f.Code)
	assert.Equal(t, 0, runner.callCount(), "validation failures must not reach the host")
}

func TestTimedOutInvocationIsNotCached(t *testing.T) {
	svc, runner := newTestService(t, nil)
	runner.setResponder(func(string) (osa.RawResult, error) {
		return osa.RawResult{InvocationID: "inv-stub", TimedOut: true, ExitCode: -1}, nil
	})
	ctx := context.Background()

	_, err := svc.QueryTasks(ctx, TaskQuery{})
	var f *result.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, result.CodeTimeout, f.Code)
	assert.True(t, f.Recoverable)

	respondSnapshots(t, runner)
	rows, err := svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)
	assert.Len(t, rows.Rows, 4)
	assert.Equal(t, 2, runner.callCount(), "the timed out dump must not have been cached")
}

func TestTaskWriteInvalidatesBeforeReturn(t *testing.T) {
	svc, runner := newTestService(t, nil)
	completed := false
	runner.setResponder(func(source string) (osa.RawResult, error) {
		if strings.Contains(source, `"undo":false`) {
			completed = true
			done := *fixtureDump().Tasks[0]
			done.Completed = true
			return hostOK(t, map[string]interface{}{"task": &done}), nil
		}
		d := fixtureDump()
		if completed {
			d.Tasks[0].Completed = true
		}
		return hostOK(t, d), nil
	})
	ctx := context.Background()

	before, err := svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)
	assert.Equal(t, false, before.Rows[0]["completed"])

	res, err := svc.CompleteTask(ctx, "t1", false)
	require.NoError(t, err)
	assert.True(t, res.Task.Completed)

	// The write already invalidated; the next read must re-dump and see
	// the new state.
	after, err := svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, runner.callCount())
	assert.Equal(t, true, after.Rows[0]["completed"])
}

func TestTaskWriteClearsAnalytics(t *testing.T) {
	svc, runner := newTestService(t, nil)
	runner.setResponder(func(source string) (osa.RawResult, error) {
		if strings.Contains(source, `"undo":false`) {
			return hostOK(t, map[string]interface{}{"task": fixtureDump().Tasks[0]}), nil
		}
		return hostOK(t, openDump()), nil
	})
	ctx := context.Background()

	_, err := svc.Overdue(ctx)
	require.NoError(t, err)
	cached, err := svc.Overdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, cached.Meta.Cache)
	assert.Equal(t, 1, runner.callCount())

	_, err = svc.CompleteTask(ctx, "t1", false)
	require.NoError(t, err)

	fresh, err := svc.Overdue(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, CacheHit, fresh.Meta.Cache)
	assert.Equal(t, 3, runner.callCount())
}

func TestCacheDisabledBypasses(t *testing.T) {
	off := false
	svc, runner := newTestService(t, func(c *config.Config) {
		c.Cache.Enabled = &off
	})
	respondSnapshots(t, runner)
	ctx := context.Background()

	first, err := svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)
	assert.Equal(t, CacheBypass, first.Meta.Cache)

	second, err := svc.QueryTasks(ctx, TaskQuery{})
	require.NoError(t, err)
	assert.Equal(t, CacheBypass, second.Meta.Cache)
	assert.Equal(t, 2, runner.callCount())
}

func TestScriptTooLargeClassification(t *testing.T) {
	svc, runner := newTestService(t, func(c *config.Config) {
		c.Host.MaxScriptKB = 1
	})

	_, err := svc.CreateTask(context.Background(), TaskSpec{Name: "anything"})
	var f *result.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, result.CodeScriptTooLarge, f.Code)
	assert.Contains(t, f.Message, "byte ceiling")
	assert.Equal(t, 0, runner.callCount())
}

func TestUnknownOperationClassification(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, _, err := svc.invoke(context.Background(), "task.levitate", nil, "")
	var f *result.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, result.CodeValidation, f.Code)
	assert.Contains(t, f.Message, "task.levitate")
}

func TestRunnerErrorClassification(t *testing.T) {
	svc, runner := newTestService(t, nil)
	ctx := context.Background()

	runner.setResponder(func(string) (osa.RawResult, error) {
		return osa.RawResult{}, fmt.Errorf("spawning osascript: exec: %q: executable file not found", "osascript")
	})
	_, err := svc.Ping(ctx)
	var f *result.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, result.CodeNotRunning, f.Code)
	assert.Contains(t, f.Suggestion, "osascript")

	runner.setResponder(func(string) (osa.RawResult, error) {
		return osa.RawResult{}, osa.ErrShuttingDown
	})
	_, err = svc.Ping(ctx)
	require.ErrorAs(t, err, &f)
	assert.Equal(t, result.CodeApplication, f.Code)
	assert.Contains(t, f.Message, "shutting down")
}

func TestScriptErrorEnvelopeClassified(t *testing.T) {
	svc, runner := newTestService(t, nil)
	runner.setResponder(func(string) (osa.RawResult, error) {
		return hostErr(t, "NotFoundError", "no task with id t9"), nil
	})

	_, err := svc.GetTask(context.Background(), "t9")
	var f *result.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, result.CodeApplication, f.Code)
	assert.Equal(t, "primary", f.Context)
	assert.Contains(t, f.Message, "t9")
}

func TestCallerCancellationStaysPlainError(t *testing.T) {
	svc, runner := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	runner.setResponder(func(string) (osa.RawResult, error) {
		cancel()
		return osa.RawResult{}, ctx.Err()
	})

	_, err := svc.Ping(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	var f *result.Failure
	assert.False(t, errors.As(err, &f), "caller cancellation is not a host failure")
}
