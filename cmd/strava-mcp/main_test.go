package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/sameehj/strava-mcp/pkg/config"
)

func TestToolsCommandListsCatalogue(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"tools"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 19 {
		t.Fatalf("expected 19 tools, got %d:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "get-athlete-profile") || !strings.HasPrefix(lines[18], "get-all-activities") {
		t.Fatalf("unexpected order:\n%s", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "Strava MCP Server 1.0.0") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	t.Setenv("USE_HTTP", "false")
	t.Setenv("PORT", "4000")
	t.Setenv("STRAVA_MCP_CONFIG", "")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	var overrides config.Overrides
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	overrides.BindFlags(fs)
	if err := fs.Parse([]string{"--http", "--log-format", "text"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := loadConfig("", &overrides)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.Transport.HTTP || cfg.Log.Format != "text" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Transport.Port != 4000 {
		t.Fatalf("expected env port kept, got %d", cfg.Transport.Port)
	}
}
