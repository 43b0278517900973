package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// MaxRotatedFiles is how many trace files we keep on disk.
	MaxRotatedFiles = 3
)

// Trace is a single recorded host invocation, written as one JSONL line.
type Trace struct {
	Timestamp   time.Time `json:"ts"`
	Invocation  string    `json:"invocation"`
	Operation   string    `json:"operation"`
	Tier        string    `json:"tier,omitempty"`
	ScriptBytes int       `json:"script_bytes,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	Cache       string    `json:"cache,omitempty"`
	Outcome     string    `json:"outcome"`
	ErrorCode   string    `json:"error_code,omitempty"`
}

// Recorder captures invocation traces to rotating JSONL files and keeps a
// small in-memory window of the most recent traces for diagnostics.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
	recent   []Trace
	keep     int
}

// NewRecorder creates a recorder that writes traces under basePath. keep
// bounds the in-memory window of recent traces.
func NewRecorder(basePath string, keep int) (*Recorder, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	if keep <= 0 {
		keep = 100
	}
	return &Recorder{
		basePath: basePath,
		keep:     keep,
	}, nil
}

// Start begins a new trace file for the given label, rotating out old files.
func (r *Recorder) Start(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		r.file.Close()
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("failed to rotate traces: %w", err)
	}

	filename := fmt.Sprintf("trace_%s_%d.jsonl", label, time.Now().UnixMilli())
	path := filepath.Join(r.basePath, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Record appends a trace. Traces are kept in memory even when no file is
// open, so diagnostics work with file tracing disabled.
func (r *Recorder) Record(t Trace) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	r.recent = append(r.recent, t)
	if len(r.recent) > r.keep {
		r.recent = r.recent[len(r.recent)-r.keep:]
	}

	if r.encoder == nil {
		return
	}
	// Best effort. A failed write must never break the invocation itself.
	_ = r.encoder.Encode(t)
}

// Recent returns up to n of the most recent traces, oldest first.
func (r *Recorder) Recent(n int) []Trace {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.recent) {
		n = len(r.recent)
	}
	out := make([]Trace, n)
	copy(out, r.recent[len(r.recent)-n:])
	return out
}

// rotate removes the oldest trace files, keeping the newest MaxRotatedFiles-1
// so the file Start is about to create stays within the limit.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	type fileInfo struct {
		name    string
		modTime time.Time
	}

	var files []fileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: entry.Name(), modTime: info.ModTime()})
	}

	if len(files) < MaxRotatedFiles {
		return nil
	}

	// Newest first.
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	for _, f := range files[MaxRotatedFiles-1:] {
		os.Remove(filepath.Join(r.basePath, f.name))
	}

	return nil
}

// Close flushes and closes the current trace file, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}
