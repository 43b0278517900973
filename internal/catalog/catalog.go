// Package catalog is the domain layer: one method per operation the MCP
// tools expose. A Service owns the script builder, the host runner, and
// the read-side cache. Read paths consult the cache under predicate-hashed
// keys; write paths invalidate their blast radius before the result leaves
// this package, so a read issued after a write acknowledgment never sees
// pre-write state.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"focusbridge-mcp-server/internal/cache"
	"focusbridge-mcp-server/internal/config"
	"focusbridge-mcp-server/internal/correlation"
	"focusbridge-mcp-server/internal/model"
	"focusbridge-mcp-server/internal/osa"
	"focusbridge-mcp-server/internal/recorder"
	"focusbridge-mcp-server/internal/result"
	"focusbridge-mcp-server/internal/script"
)

// Runner is the executor surface the catalog needs. Tests swap in stubs
// that answer with canned host output.
type Runner interface {
	Run(ctx context.Context, source string, timeout time.Duration) (osa.RawResult, error)
	Pending() int
}

// Options wire a Service together.
type Options struct {
	Config   config.Config
	Runner   Runner
	Cache    *cache.Store
	Recorder *recorder.Recorder
	Logger   *zap.Logger
	// Clock is the time source for availability checks and analytics
	// windows, replaceable in tests.
	Clock func() time.Time
}

// Service executes catalog operations against the scripting host.
type Service struct {
	cfg      config.Config
	builder  *script.Builder
	runner   Runner
	cache    *cache.Store
	recorder *recorder.Recorder
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

// New returns a ready Service. Runner is required; everything else has a
// usable zero form.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	host := opts.Config.Host
	return &Service{
		cfg:      opts.Config,
		builder:  script.NewBuilder(host.AppName, host.MaxScriptBytes()),
		runner:   opts.Runner,
		cache:    opts.Cache,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		timeout:  host.Timeout(),
		now:      opts.Clock,
	}
}

// Meta rides along with every response: which operation ran, the
// invocation it spawned (empty for cache hits), and how the cache treated
// the read.
type Meta struct {
	Operation  string `json:"operation"`
	Invocation string `json:"invocation,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Cache      string `json:"cache,omitempty"`
}

// Cache states reported in Meta.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// invoke builds one script, runs it, parses the output, and records the
// trace. Failures leave as classified *result.Failure values; caller
// cancellation stays an ordinary wrapped error.
func (s *Service) invoke(ctx context.Context, op string, params map[string]interface{}, cacheState string) (result.Result, Meta, error) {
	meta := Meta{Operation: op, Cache: cacheState}

	sc, err := s.builder.Build(op, params)
	if err != nil {
		f := buildFailure(op, err)
		s.record(recorder.Trace{Operation: op, Cache: cacheState, Outcome: "error", ErrorCode: string(f.Code)})
		return result.Result{}, meta, f
	}

	raw, err := s.runner.Run(ctx, sc.Source, s.timeout)
	meta.Invocation = raw.InvocationID
	meta.DurationMS = raw.Duration.Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			return result.Result{}, meta, fmt.Errorf("%s interrupted: %w", op, ctx.Err())
		}
		f := runFailure(err)
		s.record(recorder.Trace{
			Invocation: raw.InvocationID,
			Operation:  op,
			Tier:       sc.Tier.String(),
			Cache:      cacheState,
			Outcome:    "error",
			ErrorCode:  string(f.Code),
		})
		return result.Result{}, meta, f
	}

	res := result.Parse(result.Raw{
		Stdout:    raw.Stdout,
		Stderr:    raw.Stderr,
		ExitCode:  raw.ExitCode,
		TimedOut:  raw.TimedOut,
		Truncated: raw.TruncatedOut || raw.TruncatedErr,
	}, sc.Schema)

	trace := recorder.Trace{
		Invocation:  raw.InvocationID,
		Operation:   op,
		Tier:        sc.Tier.String(),
		ScriptBytes: sc.Size,
		DurationMS:  raw.Duration.Milliseconds(),
		Cache:       cacheState,
		Outcome:     "ok",
	}
	if !res.OK() {
		trace.Outcome = "error"
		trace.ErrorCode = string(res.Fail.Code)
	}
	s.record(trace)

	if !res.OK() {
		s.logger.Warn("operation failed",
			zap.String("operation", op),
			zap.String("invocation", raw.InvocationID),
			zap.String("code", string(res.Fail.Code)),
			zap.String("detail", res.Fail.Message))
		return res, meta, res.Fail
	}

	s.logger.Debug("operation completed",
		zap.String("operation", op),
		zap.String("invocation", raw.InvocationID),
		zap.Duration("duration", raw.Duration))
	return res, meta, nil
}

func (s *Service) record(t recorder.Trace) {
	if s.recorder != nil {
		s.recorder.Record(t)
	}
}

func (s *Service) bridgeOn() bool {
	return s.cfg.Host.IsBridgeEnabled()
}

func (s *Service) cacheOn() bool {
	return s.cache != nil && s.cfg.Cache.IsEnabled()
}

// missState is the Meta.Cache value for a read that had to reach the host.
func (s *Service) missState() string {
	if s.cacheOn() {
		return CacheMiss
	}
	return CacheBypass
}

func (s *Service) cacheGet(key string) (interface{}, bool) {
	if !s.cacheOn() {
		return nil, false
	}
	v, state := s.cache.Get(key)
	return v, state == cache.StateValid
}

func (s *Service) cacheSet(cat cache.Category, key string, v interface{}) {
	if s.cacheOn() {
		s.cache.Set(cat, key, v)
	}
}

func (s *Service) invalidate(cats ...cache.Category) {
	if s.cache != nil {
		s.cache.InvalidateCategory(cats...)
	}
}

// invalidateTaskWrite clears what a task write may have changed. Tag
// assignment can mint missing tags, so those writes clear the tag
// category too.
func (s *Service) invalidateTaskWrite(touchesTags bool) {
	if touchesTags {
		s.invalidate(cache.CategoryTasks, cache.CategoryAnalytics, cache.CategoryTags)
		return
	}
	s.invalidate(cache.CategoryTasks, cache.CategoryAnalytics)
}

// invalidateStructural clears a structural write's own category plus
// everything derived from task state, since task rows embed structural
// names and ids.
func (s *Service) invalidateStructural(cat cache.Category) {
	s.invalidate(cat, cache.CategoryTasks, cache.CategoryAnalytics)
}

// snapshot returns an indexed dump, reusing a cached one when fresh. The
// open variant skips completed and dropped rows, which keeps large
// databases cheap to dump without changing blocking results: finished
// siblings never block.
func (s *Service) snapshot(ctx context.Context, openOnly bool) (*model.Snapshot, Meta, error) {
	variant := "all"
	params := map[string]interface{}{}
	if openOnly {
		variant = "open"
		params["skipCompleted"] = true
		params["skipDropped"] = true
	}

	key := correlation.QueryKey("snapshot", variant)
	if v, ok := s.cacheGet(key); ok {
		if snap, good := v.(*model.Snapshot); good {
			s.record(recorder.Trace{Operation: "task.snapshot", Cache: CacheHit, Outcome: "ok"})
			return snap, Meta{Operation: "task.snapshot", Cache: CacheHit}, nil
		}
	}

	res, meta, err := s.invoke(ctx, "task.snapshot", params, s.missState())
	if err != nil {
		return nil, meta, err
	}
	var dump model.Dump
	if err := res.DecodeInto(&dump); err != nil {
		return nil, meta, err
	}
	snap := model.NewSnapshot(dump)
	s.cacheSet(cache.CategoryTasks, key, snap)
	return snap, meta, nil
}

// buildFailure classifies a builder error. Oversized scripts keep their
// own category so callers can shrink the request instead of retrying.
func buildFailure(op string, err error) *result.Failure {
	var tooLarge *script.TooLargeError
	if errors.As(err, &tooLarge) {
		return result.Failuref(result.CodeScriptTooLarge, "%s assembles to %d bytes, over the %d byte ceiling", op, tooLarge.Size, tooLarge.Max)
	}
	var unknown *script.UnknownOperationError
	if errors.As(err, &unknown) {
		return result.Failuref(result.CodeValidation, "unknown operation %q", unknown.Op)
	}
	return result.Failuref(result.CodeValidation, "cannot build %s: %v", op, err)
}

// runFailure classifies an executor error. A spawn failure means the host
// binary itself is unavailable, which reads the same as the application
// being unreachable.
func runFailure(err error) *result.Failure {
	if errors.Is(err, osa.ErrShuttingDown) {
		f := result.Failuref(result.CodeApplication, "server is shutting down")
		f.Suggestion = "Retry once the server is back."
		return f
	}
	f := result.Failuref(result.CodeNotRunning, "cannot start the script host: %v", err)
	f.Suggestion = "Check the configured osascript path; the scripting host only exists on macOS."
	return f
}

func validationf(format string, args ...interface{}) *result.Failure {
	return result.Failuref(result.CodeValidation, format, args...)
}
