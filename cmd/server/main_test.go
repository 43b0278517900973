package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"focusbridge-mcp-server/internal/config"

	"github.com/spf13/cobra"
)

func TestCommandWiring(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "check", "init", "version"} {
		if !names[want] {
			t.Errorf("expected subcommand %q to be registered", want)
		}
	}
}

func TestPersistentFlagsRegistered(t *testing.T) {
	for _, want := range []string{"config", "workspace-dir", "no-workspace", "verbose", "sse-port"} {
		if rootCmd.PersistentFlags().Lookup(want) == nil {
			t.Errorf("expected persistent flag --%s", want)
		}
	}
}

func TestRunInitScaffoldsWorkspace(t *testing.T) {
	root := t.TempDir()

	output := captureStdout(t, func() {
		if err := runInit(&cobra.Command{}, []string{root}); err != nil {
			t.Fatalf("runInit returned error: %v", err)
		}
	})
	if !strings.Contains(output, "initialized") {
		t.Errorf("expected confirmation message, got: %s", output)
	}

	for _, rel := range []string{
		filepath.Join(config.WorkspaceDirName, config.WorkspaceConfigFile),
		filepath.Join(config.WorkspaceDirName, ".gitignore"),
	} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Errorf("expected %s to exist: %v", rel, err)
		}
	}

	if err := runInit(&cobra.Command{}, []string{root}); err == nil {
		t.Error("expected error re-initializing an existing workspace")
	}
}

func TestVersionOutput(t *testing.T) {
	output := captureStdout(t, func() {
		versionCmd.Run(versionCmd, nil)
	})
	if !strings.Contains(output, "focusbridge-mcp") {
		t.Errorf("expected server name in version output, got: %s", output)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stdout = orig
	return <-done
}
