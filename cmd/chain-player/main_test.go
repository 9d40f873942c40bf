package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeClip(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.h264")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	if code != exitOK {
		t.Fatalf("exit = %d, want %d", code, exitOK)
	}
	if !strings.Contains(stdout, version) {
		t.Errorf("stdout = %q, want version %q", stdout, version)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no_sources", nil},
		{"unknown_flag", []string{"--bogus", "a.h264"}},
		{"bad_strategy", []string{"--strategy", "teleport", "a.h264"}},
		{"bad_loop", []string{"--loop=-5", "a.h264"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != exitUsage {
				t.Errorf("exit = %d, want %d", code, exitUsage)
			}
			if !strings.Contains(stderr, "--help") {
				t.Errorf("stderr should point at --help: %q", stderr)
			}
		})
	}
}

func TestRun_PreflightFailureIsRuntimeError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.h264")
	code, stdout, stderr := runCLI(t, "--log-level", "error", missing)
	if code != exitFailure {
		t.Fatalf("exit = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stdout, "Preflight checks:") {
		t.Errorf("stdout missing preflight results: %q", stdout)
	}
	if !strings.Contains(stderr, "preflight") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_PlaysToEnd(t *testing.T) {
	clip := writeClip(t, 40_000)
	code, stdout, stderr := runCLI(t, "--frame-interval", "0", "--log-level", "error", "--loop=2", clip)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, stderr)
	}
	for _, want := range []string{"chain-player", "Loop:        2 plays per item", "Items Played:           2", "Exit Reason:            eos"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRun_TextLogsGoToStderr(t *testing.T) {
	clip := writeClip(t, 1_000)
	code, _, stderr := runCLI(t, "--frame-interval", "0", "--log-format", "text", clip)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stderr, "msg=starting") {
		t.Errorf("stderr should carry text logs: %q", stderr)
	}
}
