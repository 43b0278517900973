// Package osa spawns the system scripting host and captures what it
// prints. One invocation is one short-lived process: the script goes in on
// stdin, the framed payload comes back on stdout, and diagnostics land on
// stderr. The executor never serializes invocations; overlapping calls are
// separate processes and the host arbitrates access to the application.
package osa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"focusbridge-mcp-server/internal/correlation"
)

const (
	// DefaultBin is the scripting host binary.
	DefaultBin = "osascript"
	// DefaultTimeout bounds one invocation. A host call that is still
	// silent after this long is presumed hung, not slow.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxOutputBytes caps each captured stream. Snapshot dumps of
	// large databases run to a few megabytes; anything past the cap is
	// counted and dropped.
	DefaultMaxOutputBytes = 4 << 20
)

// ErrShuttingDown is returned by Run once Close has been called.
var ErrShuttingDown = errors.New("executor is shutting down")

// Options configure an Executor. Zero values use the defaults above.
type Options struct {
	Bin            string
	DefaultTimeout time.Duration
	MaxOutputBytes int
	Logger         *zap.Logger
}

// RawResult is everything one invocation produced. It carries no
// interpretation; classification of the streams happens downstream.
type RawResult struct {
	InvocationID string
	Stdout       string
	Stderr       string
	ExitCode     int
	Duration     time.Duration
	TimedOut     bool
	TruncatedOut bool
	TruncatedErr bool
	Discarded    int
}

// Executor runs scripts through the host binary.
type Executor struct {
	bin        string
	timeout    time.Duration
	maxOutput  int
	logger     *zap.Logger
	pending    atomic.Int64
	accepting  atomic.Bool
}

// New returns a ready Executor.
func New(opts Options) *Executor {
	if opts.Bin == "" {
		opts.Bin = DefaultBin
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	e := &Executor{
		bin:       opts.Bin,
		timeout:   opts.DefaultTimeout,
		maxOutput: opts.MaxOutputBytes,
		logger:    opts.Logger,
	}
	e.accepting.Store(true)
	return e
}

// Run executes one script and returns whatever the host produced. A hit of
// the per-invocation timeout is a result, not an error: the caller gets
// RawResult with TimedOut set so partial streams stay inspectable.
// Cancellation of the parent context and spawn failures are errors.
func (e *Executor) Run(ctx context.Context, source string, timeout time.Duration) (RawResult, error) {
	if !e.accepting.Load() {
		return RawResult{}, ErrShuttingDown
	}
	if timeout <= 0 {
		timeout = e.timeout
	}

	inv := correlation.NewInvocationKey()
	e.pending.Add(1)
	defer e.pending.Add(-1)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.bin, "-l", "JavaScript", "-")
	cmd.Stdin = strings.NewReader(source)
	stdout := &limitedWriter{max: e.maxOutput}
	stderr := &limitedWriter{max: e.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	e.logger.Debug("spawning script host",
		zap.String("invocation", inv),
		zap.String("bin", e.bin),
		zap.Int("script_bytes", len(source)),
		zap.Duration("timeout", timeout))

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	res := RawResult{
		InvocationID: inv,
		Stdout:       stdout.String(),
		Stderr:       stderr.String(),
		Duration:     duration,
		TruncatedOut: stdout.truncated,
		TruncatedErr: stderr.truncated,
		Discarded:    stdout.discarded + stderr.discarded,
	}

	if execCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		e.logger.Warn("script host timed out",
			zap.String("invocation", inv),
			zap.Duration("after", duration))
		return res, nil
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("invocation %s interrupted: %w", inv, ctx.Err())
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return res, fmt.Errorf("spawning %s: %w", e.bin, runErr)
		}
	}

	e.logger.Debug("script host finished",
		zap.String("invocation", inv),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", duration),
		zap.Int("stdout_bytes", len(res.Stdout)),
		zap.Int("stderr_bytes", len(res.Stderr)),
		zap.Bool("truncated", res.TruncatedOut || res.TruncatedErr))
	return res, nil
}

// Pending reports how many invocations are currently in flight.
func (e *Executor) Pending() int {
	return int(e.pending.Load())
}

// Drain blocks until every in-flight invocation finishes or ctx expires.
// New invocations may still start while draining; use Close to stop
// intake first.
func (e *Executor) Drain(ctx context.Context) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if e.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain interrupted with %d invocations pending: %w", e.Pending(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops accepting new invocations and drains the in-flight ones.
func (e *Executor) Close(ctx context.Context) error {
	e.accepting.Store(false)
	return e.Drain(ctx)
}

// limitedWriter keeps the first max bytes and counts the rest. It always
// reports the full length written so the host never sees a pipe error.
type limitedWriter struct {
	buf       bytes.Buffer
	max       int
	truncated bool
	discarded int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	room := w.max - w.buf.Len()
	if room <= 0 {
		w.truncated = true
		w.discarded += len(p)
		return len(p), nil
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		w.truncated = true
		w.discarded += len(p) - room
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitedWriter) String() string {
	return w.buf.String()
}
