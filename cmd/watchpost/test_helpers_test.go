package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"watchpost/internal/capture"
	"watchpost/internal/config"
	"watchpost/internal/daemon"
	"watchpost/internal/delivery"
	"watchpost/internal/logging"
	"watchpost/internal/testsupport"
	"watchpost/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

// setupCLITestEnv writes a config for a fresh temp tree with the local API
// on a free loopback port. No daemon is started.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("WATCHPOST_API_KEY", "")
	t.Setenv("WATCHPOST_API_TOKEN", "")
	t.Setenv("WATCHPOST_BASE_URL", "")

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = freeLoopbackAddr(t)
	cfg.Paths.APIToken = "cli-token"

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

// startDaemon runs an in-process daemon against env's config.
func (env *cliTestEnv) startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()

	logger := logging.NewNop()
	store := testsupport.MustOpenStore(t, env.cfg)
	mgr := workflow.NewManager(env.cfg, workflow.Dependencies{
		Source: capture.FileSource{Path: filepath.Join(testsupport.BaseDir(env.cfg), "missing.jpg")},
		Client: delivery.NewHTTPClient(env.cfg, nil, delivery.WithLogger(logger)),
		Spool:  store,
		Logger: logger,
	})
	d, err := daemon.New(env.cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})
	return d
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nspool_dir = %q\nstate_dir = %q\nlog_dir = %q\napi_bind = %q\napi_token = %q\n\n[backend]\nbase_url = %q\napi_key = %q\n",
		cfg.Paths.SpoolDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Paths.APIToken,
		cfg.Backend.BaseURL,
		cfg.Backend.APIKey,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return addr
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
