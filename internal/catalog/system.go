package catalog

import (
	"context"
	"errors"
	"time"

	"focusbridge-mcp-server/internal/cache"
	"focusbridge-mcp-server/internal/recorder"
	"focusbridge-mcp-server/internal/result"
	"focusbridge-mcp-server/internal/script"
)

// AppInfo identifies the scripted application.
type AppInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Diagnostics is a health snapshot. HostError is set instead of the
// app/document/counts fields when the scripting host cannot answer, so
// the server side of the report survives a dead host.
type Diagnostics struct {
	App                *AppInfo        `json:"app,omitempty"`
	Document           string          `json:"document,omitempty"`
	Counts             map[string]int  `json:"counts,omitempty"`
	HostError          *result.Failure `json:"host_error,omitempty"`
	BridgeEnabled      bool            `json:"bridge_enabled"`
	CacheEnabled       bool            `json:"cache_enabled"`
	Cache              *cache.Stats    `json:"cache,omitempty"`
	PendingInvocations int             `json:"pending_invocations"`
	Meta               Meta            `json:"meta"`
}

// RunDiagnostics reports host reachability, entity counts, and server
// state. A host failure degrades the report rather than failing it.
func (s *Service) RunDiagnostics(ctx context.Context) (*Diagnostics, error) {
	diag := &Diagnostics{
		BridgeEnabled:      s.bridgeOn(),
		CacheEnabled:       s.cacheOn(),
		PendingInvocations: s.runner.Pending(),
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		diag.Cache = &stats
	}

	res, meta, err := s.invoke(ctx, "system.diagnostics", nil, "")
	if err != nil {
		var f *result.Failure
		if errors.As(err, &f) {
			diag.HostError = f
			diag.Meta = meta
			diag.Meta.Operation = "system.diagnostics"
			return diag, nil
		}
		return nil, err
	}

	var payload struct {
		App      AppInfo        `json:"app"`
		Document string         `json:"document"`
		Counts   map[string]int `json:"counts"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}

	diag.App = &payload.App
	diag.Document = payload.Document
	diag.Counts = payload.Counts
	diag.Meta = meta
	return diag, nil
}

// PingResult is the round trip acknowledgment from the host.
type PingResult struct {
	Pong bool      `json:"pong"`
	App  string    `json:"app"`
	At   time.Time `json:"at"`
	Meta Meta      `json:"meta"`
}

// Ping runs the smallest possible script through the host.
func (s *Service) Ping(ctx context.Context) (*PingResult, error) {
	res, meta, err := s.invoke(ctx, "system.ping", nil, "")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Pong bool      `json:"pong"`
		App  string    `json:"app"`
		At   time.Time `json:"at"`
	}
	if err := res.DecodeInto(&payload); err != nil {
		return nil, err
	}
	return &PingResult{Pong: payload.Pong, App: payload.App, At: payload.At, Meta: meta}, nil
}

// CacheStats reports cache counters, zero when caching is off.
func (s *Service) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.Stats()
}

// ClearCache drops every cached entry and reports how many went.
func (s *Service) ClearCache() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.InvalidateAll()
}

// RecentTraces returns the newest n invocation traces, oldest first.
func (s *Service) RecentTraces(n int) []recorder.Trace {
	if s.recorder == nil {
		return nil
	}
	return s.recorder.Recent(n)
}

// OperationInfo describes one scriptable operation.
type OperationInfo struct {
	Name string `json:"name"`
	Tier string `json:"tier"`
}

// Operations lists every operation the script builder can assemble,
// sorted by name.
func (s *Service) Operations() []OperationInfo {
	names := script.Operations()
	out := make([]OperationInfo, 0, len(names))
	for _, name := range names {
		tier, _ := script.TierOf(name)
		out = append(out, OperationInfo{Name: name, Tier: tier.String()})
	}
	return out
}
