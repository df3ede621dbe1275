package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"callpipe/internal/state"
)

func writeTestConfig(t *testing.T, base string) string {
	t.Helper()

	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\noutput_dir = %q\nlog_dir = %q\n\n[source]\napi_base_url = %q\ntoken = %q\n",
		filepath.Join(base, "state"),
		filepath.Join(base, "output"),
		filepath.Join(base, "logs"),
		"http://127.0.0.1:1/call/v1",
		"test-token",
	)
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCLIConfigInit(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "config.toml")

	out, _, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("second init did not refuse to overwrite")
	}
}

func TestCLIConfigValidateAndShow(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	out, _, err := runCLI(t, configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output: %q", out)
	}

	out, _, err = runCLI(t, configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "test-token") {
		t.Fatalf("config show leaked the token: %q", out)
	}
	if !strings.Contains(out, "***") {
		t.Fatalf("config show missing redaction: %q", out)
	}
}

func TestCLIStatusAndQuarantine(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	// Seed a store the status command can report on.
	ctx := newCommandContext(&configPath)
	cfg, err := ctx.ensureConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	now := time.Now().UTC()
	if _, err := store.UpsertCall(context.Background(), "call-1", "20240822_054336_71da9579", 1724305416000, now); err != nil {
		t.Fatalf("UpsertCall: %v", err)
	}
	if _, err := store.UpsertRecording(context.Background(), "rec-1", "call-1", "20240822_054336_71da9579_p01", 1724305416000, nil, ""); err != nil {
		t.Fatalf("UpsertRecording: %v", err)
	}
	if _, err := store.MarkFailedTransient(context.Background(), "rec-1", "timeout", now); err != nil {
		t.Fatalf("MarkFailedTransient: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, _, err := runCLI(t, configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Calls: 1") || !strings.Contains(out, "Recordings: 1") {
		t.Fatalf("unexpected status output: %q", out)
	}
	if !strings.Contains(out, "failed-transient") {
		t.Fatalf("status missing failure row: %q", out)
	}

	out, _, err = runCLI(t, configPath, "quarantine", "rec-1", "--reason", "bad_audio")
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	if !strings.Contains(out, "Quarantined rec-1") {
		t.Fatalf("unexpected quarantine output: %q", out)
	}

	out, _, err = runCLI(t, configPath, "status", "--failures", "5")
	if err != nil {
		t.Fatalf("status after quarantine: %v", err)
	}
	if !strings.Contains(out, "quarantined") {
		t.Fatalf("status missing quarantine row: %q", out)
	}
}

func TestCLIStageCommandsRequireInputRun(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	for _, stage := range []string{"transcribe", "anonymize", "format"} {
		if _, _, err := runCLI(t, configPath, stage); err == nil {
			t.Fatalf("%s without --input-run did not fail", stage)
		}
	}
}
