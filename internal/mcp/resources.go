package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const resourceMIMEJSON = "application/json"

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"focusbridge://about",
			"FocusBridge About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("High-level server info and usage notes."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"focusbridge://cache/stats",
			"Cache Statistics",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Hit/miss counters and entry counts per category."),
		),
		s.handleCacheStatsResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"focusbridge://operations/{name}",
			"Operation Info",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Script tier for one catalog operation."),
		),
		s.handleOperationResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":    s.cfg.Server.Name,
		"version": s.cfg.Server.Version,
		"app":     s.cfg.Host.AppName,
		"notes": []string{
			"Resources are read-only context endpoints; use tools for actions/mutations.",
			"focus-observe reads, focus-act writes, focus-analyze reports, focus-system maintains.",
			"Every tool response carries a meta block saying whether the cache answered.",
		},
		"bridge_enabled": s.cfg.Host.IsBridgeEnabled(),
		"cache_enabled":  s.cfg.Cache.IsEnabled(),
		"timestamp_ms":   time.Now().UnixMilli(),
	}
	return jsonResourceContents(request.Params.URI, payload)
}

func (s *Server) handleCacheStatsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResourceContents(request.Params.URI, s.svc.CacheStats())
}

func (s *Server) handleOperationResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	name := argString(request.Params.Arguments["name"])
	if name == "" {
		return nil, fmt.Errorf("missing operation name")
	}

	for _, op := range s.svc.Operations() {
		if op.Name == name {
			payload := map[string]interface{}{
				"name": op.Name,
				"tier": op.Tier,
				// Full-tier operations splice secondary-context fragments
				// and go dark when host.enable_bridge is off.
				"needs_bridge": op.Tier == "full",
			}
			return jsonResourceContents(request.Params.URI, payload)
		}
	}
	return nil, fmt.Errorf("unknown operation: %s", name)
}

func jsonResourceContents(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}
