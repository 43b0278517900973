package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"focusbridge-mcp-server/internal/cache"
	"focusbridge-mcp-server/internal/catalog"
	"focusbridge-mcp-server/internal/config"
	"focusbridge-mcp-server/internal/logging"
	mcpserver "focusbridge-mcp-server/internal/mcp"
	"focusbridge-mcp-server/internal/osa"
	"focusbridge-mcp-server/internal/recorder"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// drainGrace bounds how long shutdown waits for in-flight host calls.
const drainGrace = 5 * time.Second

var (
	// Global flags
	configPath   string
	workspaceDir string
	noWorkspace  bool
	verbose      bool
	ssePort      int

	// Resolved in PersistentPreRunE for commands that talk to the host.
	cfg    config.Config
	wsDir  string
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "focusbridge-mcp",
	Short: "FocusBridge - MCP server for OmniFocus",
	Long: `FocusBridge exposes OmniFocus to MCP clients through four consolidated
tools: focus-observe (read), focus-act (write), focus-analyze (reports),
and focus-system (health and maintenance).

Run without arguments to serve over stdio, the transport MCP clients
spawn by default. Pass --sse-port (or set mcp.sse_port) to serve over
HTTP/SSE instead.

Configuration merges in layers: built-in defaults, then the nearest
.focusbridge/config.yaml walking up from the working directory, then an
explicit --config file. "focusbridge-mcp init" scaffolds a workspace.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version and init need no config and must not fail without one.
		if name := cmd.Name(); name != "serve" && name != "check" && cmd != cmd.Root() {
			return nil
		}

		var err error
		cfg, wsDir, err = config.LoadWithWorkspace(configPath, config.WorkspaceOptions{
			Disable:     noWorkspace,
			ExplicitDir: workspaceDir,
		})
		if err != nil {
			return err
		}
		if ssePort > 0 {
			cfg.MCP.SSEPort = ssePort
		}

		// Serving stdio means stdout and stderr belong to the protocol;
		// logs go to the configured file or nowhere.
		stdio := cmd.Name() != "check" && cfg.MCP.SSEPort == 0
		logger, err = logging.New(logging.Options{
			Level:     cfg.Server.LogLevel,
			File:      cfg.Server.LogFile,
			StdioSafe: stdio,
			Verbose:   verbose,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio (default) or SSE",
	RunE:  runServe,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the scripting host and print a reachability report",
	RunE:  runCheck,
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a .focusbridge workspace with a config template",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, args []string) {
		defaults := config.DefaultConfig()
		fmt.Printf("%s %s\n", defaults.Server.Name, defaults.Server.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Explicit config file (overrides workspace config)")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace-dir", "", "Workspace root (skips upward discovery)")
	rootCmd.PersistentFlags().BoolVar(&noWorkspace, "no-workspace", false, "Ignore workspace config entirely")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Force debug logging")
	rootCmd.PersistentFlags().IntVar(&ssePort, "sse-port", 0, "Serve over SSE on this port instead of stdio")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	executor := osa.New(osa.Options{
		Bin:            cfg.Host.Bin,
		DefaultTimeout: cfg.Host.Timeout(),
		MaxOutputBytes: cfg.Host.MaxOutputBytes(),
		Logger:         logger,
	})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainGrace)
		defer cancel()
		if err := executor.Close(drainCtx); err != nil {
			logger.Warn("shutdown left invocations in flight", zap.Error(err))
		}
	}()

	var store *cache.Store
	if cfg.Cache.IsEnabled() {
		store = cache.New(cache.Options{
			TaskTTL:       cfg.Cache.GetTaskTTL(),
			StructuralTTL: cfg.Cache.GetStructuralTTL(),
			AnalyticsTTL:  cfg.Cache.GetAnalyticsTTL(),
			CleanupEvery:  cfg.Cache.GetCleanupEvery(),
			Logger:        logger,
		})
		defer store.Close()
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		var err error
		rec, err = recorder.NewRecorder(cfg.Recorder.Dir, cfg.Recorder.GetMaxTraces())
		if err != nil {
			return fmt.Errorf("failed to initialize recorder: %w", err)
		}
		if err := rec.Start(cfg.Server.Name); err != nil {
			// Traces degrade to the in-memory ring; serving continues.
			logger.Warn("trace file unavailable", zap.Error(err))
		}
		defer rec.Close()
	}

	svc := catalog.New(catalog.Options{
		Config:   cfg,
		Runner:   executor,
		Cache:    store,
		Recorder: rec,
		Logger:   logger,
	})

	server, err := mcpserver.NewServer(cfg, svc, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	var startErr error
	if port := cfg.MCP.SSEPort; port > 0 {
		logger.Info("starting FocusBridge MCP SSE server",
			zap.Int("port", port),
			zap.String("workspace", wsDir))
		startErr = server.StartSSE(ctx, port)
	} else {
		logger.Info("starting FocusBridge MCP stdio server",
			zap.String("workspace", wsDir))
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		return startErr
	}
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Host.Timeout())
	defer cancel()

	executor := osa.New(osa.Options{
		Bin:            cfg.Host.Bin,
		DefaultTimeout: cfg.Host.Timeout(),
		MaxOutputBytes: cfg.Host.MaxOutputBytes(),
		Logger:         logger,
	})
	defer executor.Close(context.Background())

	svc := catalog.New(catalog.Options{
		Config: cfg,
		Runner: executor,
		Logger: logger,
	})

	diag, err := svc.RunDiagnostics(ctx)
	if err != nil {
		return err
	}

	if diag.HostError != nil {
		fmt.Printf("host unreachable: %s\n", diag.HostError.Message)
		if diag.HostError.Suggestion != "" {
			fmt.Printf("hint: %s\n", diag.HostError.Suggestion)
		}
		return fmt.Errorf("%s is not reachable", cfg.Host.AppName)
	}

	fmt.Printf("%s %s reachable\n", diag.App.Name, diag.App.Version)
	if diag.Document != "" {
		fmt.Printf("document: %s\n", diag.Document)
	}
	names := make([]string, 0, len(diag.Counts))
	for name := range diag.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %d\n", name, diag.Counts[name])
	}
	fmt.Printf("bridge enabled: %v\n", diag.BridgeEnabled)
	fmt.Printf("cache enabled: %v\n", diag.CacheEnabled)
	if wsDir != "" {
		fmt.Printf("workspace: %s\n", wsDir)
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	if err := config.InitWorkspace(root); err != nil {
		return err
	}
	fmt.Printf("initialized %s/ in %s\n", config.WorkspaceDirName, root)
	return nil
}
