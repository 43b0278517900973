package mcp

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"focusbridge-mcp-server/internal/cache"
	"focusbridge-mcp-server/internal/catalog"
	"focusbridge-mcp-server/internal/config"
	"focusbridge-mcp-server/internal/osa"
	"focusbridge-mcp-server/internal/recorder"
	"focusbridge-mcp-server/internal/result"
)

func TestSystemDiagnosticsHealthyHost(t *testing.T) {
	svc, runner := newToolService(t, nil)
	runner.setResponder(func(source string) (osa.RawResult, error) {
		return frameOK(t, map[string]interface{}{
			"app":      map[string]interface{}{"name": "OmniFocus", "version": "4.5"},
			"document": "FocusBridge.ofocus",
			"counts":   map[string]interface{}{"tasks": 3, "projects": 1},
		}), nil
	})
	tool := &FocusSystemTool{svc: svc, cfg: config.DefaultConfig()}

	res, err := tool.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	resMap := asMap(res)
	if resMap["action"] != "diagnostics" {
		t.Fatalf("expected diagnostics default, got %v", resMap["action"])
	}
	if summary, _ := resMap["summary"].(string); !strings.Contains(summary, "OmniFocus 4.5 reachable") {
		t.Fatalf("unexpected summary: %v", resMap["summary"])
	}
	diag, ok := resMap["data"].(*catalog.Diagnostics)
	if !ok {
		t.Fatalf("expected diagnostics payload, got %T", resMap["data"])
	}
	if diag.App == nil || diag.App.Name != "OmniFocus" {
		t.Fatalf("unexpected app info: %+v", diag.App)
	}
	if diag.Counts["tasks"] != 3 {
		t.Fatalf("unexpected counts: %v", diag.Counts)
	}
	if !diag.BridgeEnabled {
		t.Fatal("default config keeps the bridge on")
	}
	if diag.HostError != nil {
		t.Fatalf("healthy host must not report an error: %v", diag.HostError)
	}
}

func TestSystemDiagnosticsSurviveDeadHost(t *testing.T) {
	svc, runner := newToolService(t, nil)
	runner.setResponder(func(source string) (osa.RawResult, error) {
		return osa.RawResult{}, fmt.Errorf("fork/exec /usr/bin/osascript: no such file or directory")
	})
	tool := &FocusSystemTool{svc: svc, cfg: config.DefaultConfig()}

	res, err := tool.Execute(context.Background(), map[string]interface{}{"action": "diagnostics"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	resMap := asMap(res)
	if success, _ := resMap["success"].(bool); !success {
		t.Fatal("a dead host degrades the report, it does not fail it")
	}
	if summary, _ := resMap["summary"].(string); !strings.Contains(summary, "host unreachable") {
		t.Fatalf("unexpected summary: %v", resMap["summary"])
	}
	diag, ok := resMap["data"].(*catalog.Diagnostics)
	if !ok {
		t.Fatalf("expected diagnostics payload, got %T", resMap["data"])
	}
	if diag.HostError == nil || diag.HostError.Code != result.CodeNotRunning {
		t.Fatalf("expected not_running host error, got %+v", diag.HostError)
	}
	if diag.App != nil {
		t.Fatal("app info should be absent when the host is down")
	}
}

func TestSystemPing(t *testing.T) {
	svc, runner := newToolService(t, nil)
	runner.setResponder(func(source string) (osa.RawResult, error) {
		return frameOK(t, map[string]interface{}{"pong": true, "app": "OmniFocus"}), nil
	})
	tool := &FocusSystemTool{svc: svc, cfg: config.DefaultConfig()}

	res, err := tool.Execute(context.Background(), map[string]interface{}{"action": "ping"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	resMap := asMap(res)
	if summary, _ := resMap["summary"].(string); summary != "pong from OmniFocus" {
		t.Fatalf("unexpected summary: %v", resMap["summary"])
	}
	ping, ok := resMap["data"].(*catalog.PingResult)
	if !ok || !ping.Pong {
		t.Fatalf("unexpected ping payload: %v", resMap["data"])
	}
}

func TestSystemCacheLifecycle(t *testing.T) {
	svc, runner := newToolService(t, nil)
	runner.setResponder(func(source string) (osa.RawResult, error) {
		return frameOK(t, map[string]interface{}{
			"task": map[string]interface{}{"id": "t1", "name": "File expenses"},
		}), nil
	})
	tool := &FocusSystemTool{svc: svc, cfg: config.DefaultConfig()}
	ctx := context.Background()

	// Prime one cached entity.
	if _, err := svc.GetTask(ctx, "t1"); err != nil {
		t.Fatalf("prime failed: %v", err)
	}

	res, err := tool.Execute(ctx, map[string]interface{}{"action": "cache_stats"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	stats, ok := asMap(res)["data"].(cache.Stats)
	if !ok || stats.Entries != 1 {
		t.Fatalf("expected one cached entry, got %v", asMap(res)["data"])
	}

	res, err = tool.Execute(ctx, map[string]interface{}{"action": "cache_clear"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	resMap := asMap(res)
	if asMap(resMap["data"])["dropped"] != 1 {
		t.Fatalf("expected one dropped entry, got %v", resMap["data"])
	}
	if summary, _ := resMap["summary"].(string); !strings.Contains(summary, "dropped 1") {
		t.Fatalf("unexpected summary: %v", resMap["summary"])
	}

	res, err = tool.Execute(ctx, map[string]interface{}{"action": "cache_stats"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	stats, ok = asMap(res)["data"].(cache.Stats)
	if !ok || stats.Entries != 0 {
		t.Fatalf("expected empty cache after clear, got %v", asMap(res)["data"])
	}
}

func TestSystemTraces(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &scriptedRunner{}
	runner.setResponder(func(source string) (osa.RawResult, error) {
		return frameOK(t, map[string]interface{}{
			"task": map[string]interface{}{"id": "t1", "name": "File expenses"},
		}), nil
	})
	rec, err := recorder.NewRecorder(t.TempDir(), 50)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	svc := catalog.New(catalog.Options{
		Config:   cfg,
		Runner:   runner,
		Recorder: rec,
		Clock:    func() time.Time { return toolTestNow },
	})
	tool := &FocusSystemTool{svc: svc, cfg: cfg}
	ctx := context.Background()

	if _, err := svc.GetTask(ctx, "t1"); err != nil {
		t.Fatalf("prime failed: %v", err)
	}

	res, err := tool.Execute(ctx, map[string]interface{}{"action": "traces"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	data := asMap(asMap(res)["data"])
	if data["count"] != 1 {
		t.Fatalf("expected one trace, got %v", data)
	}
	traces, ok := data["traces"].([]recorder.Trace)
	if !ok || len(traces) != 1 {
		t.Fatalf("expected trace tail, got %v", data["traces"])
	}
	if traces[0].Operation != "task.get" {
		t.Fatalf("unexpected traced operation: %q", traces[0].Operation)
	}
}

func TestSystemOperationsCatalog(t *testing.T) {
	svc, _ := newToolService(t, nil)
	tool := &FocusSystemTool{svc: svc, cfg: config.DefaultConfig()}

	res, err := tool.Execute(context.Background(), map[string]interface{}{"action": "operations"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	ops, ok := asMap(asMap(res)["data"])["operations"].([]catalog.OperationInfo)
	if !ok || len(ops) == 0 {
		t.Fatalf("expected operation list, got %v", res)
	}
	tiers := map[string]string{}
	for _, op := range ops {
		tiers[op.Name] = op.Tier
	}
	if tiers["task.create"] != "full" {
		t.Fatalf("task.create should be full tier, got %q", tiers["task.create"])
	}
	if tiers["system.ping"] != "minimal" {
		t.Fatalf("system.ping should be minimal tier, got %q", tiers["system.ping"])
	}
	if tiers["task.snapshot"] != "standard" {
		t.Fatalf("task.snapshot should be standard tier, got %q", tiers["task.snapshot"])
	}
}

func TestSystemUnknownAction(t *testing.T) {
	svc, _ := newToolService(t, nil)
	tool := &FocusSystemTool{svc: svc, cfg: config.DefaultConfig()}

	res, err := tool.Execute(context.Background(), map[string]interface{}{"action": "reboot"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	resMap := asMap(res)
	if success, _ := resMap["success"].(bool); success {
		t.Fatal("expected success=false")
	}
	if msg, _ := resMap["error"].(string); !strings.Contains(msg, "unknown action") {
		t.Fatalf("unexpected error: %v", resMap["error"])
	}
}
