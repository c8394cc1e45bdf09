package deps

import (
	"os"
	"path/filepath"
	"testing"

	"watchpost/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present || results[0].Detail != "" {
		t.Fatalf("expected first requirement available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("expected blank command to be unconfigured, got %#v", results[2])
	}
	if missing := Missing(results); len(missing) != 2 {
		t.Fatalf("expected two missing requirements, got %#v", missing)
	}
}

func TestRequirementsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.Command = []string{"rpicam-still", "-o", "-"}
	cfg.Network.ReconnectCommand = nil

	reqs := Requirements(cfg, false)
	if len(reqs) != 1 || reqs[0].Command != "rpicam-still" || reqs[0].Optional {
		t.Fatalf("unexpected requirements %#v", reqs)
	}

	cfg.Network.ReconnectCommand = []string{"nmcli", "radio", "wifi", "on"}
	reqs = Requirements(cfg, true)
	if len(reqs) != 1 || reqs[0].Command != "nmcli" || !reqs[0].Optional {
		t.Fatalf("expected only optional reconnect requirement, got %#v", reqs)
	}
}

func TestMissingIgnoresOptional(t *testing.T) {
	statuses := CheckBinaries([]Requirement{
		{Name: "Reconnect", Command: "clearly-not-present-binary", Optional: true},
	})
	if len(Missing(statuses)) != 0 {
		t.Fatalf("optional requirement reported missing: %#v", statuses)
	}
}

func TestConfiguredCaptureProgramResolves(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("exit 0", "rpicam-still"))
	cfg.Capture.Command = []string{"rpicam-still", "-o", "-"}

	statuses := CheckBinaries(Requirements(cfg, false))
	if len(statuses) == 0 || !statuses[0].Available {
		t.Fatalf("expected stubbed capture program to resolve, got %#v", statuses)
	}
	if filepath.Base(statuses[0].Path) != "rpicam-still" {
		t.Fatalf("unexpected resolved path %q", statuses[0].Path)
	}
}
