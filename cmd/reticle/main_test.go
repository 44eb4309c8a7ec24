package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reticle/internal/config"
	"reticle/internal/daemon"
	"reticle/internal/logging"
	"reticle/internal/testsupport"
	"reticle/internal/workflow"
)

func runCLI(t *testing.T, args []string, apiURL, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiURL != "" {
		flags = append(flags, "--api", apiURL)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	testsupport.WriteText(t, path, string(data))
	return path
}

type cliDaemonEnv struct {
	daemon     *daemon.Daemon
	server     *httptest.Server
	configPath string
}

func setupCLIDaemon(t *testing.T, cfg *config.Config) *cliDaemonEnv {
	t.Helper()
	configPath := writeTestConfig(t, cfg)
	cfg.Paths.APIBind = ""

	d, err := daemon.New(cfg, logging.NewNop(), logging.NewStreamHub(64))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(func() {
		srv.Close()
		d.Stop()
		cancel()
		d.Close()
	})
	return &cliDaemonEnv{daemon: d, server: srv, configPath: configPath}
}

func waitForCLIState(t *testing.T, machine *workflow.StateMachine, want workflow.State) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap := machine.Snapshot()
	for snap.State != want {
		next, err := machine.Wait(ctx, snap.Version)
		if err != nil {
			t.Fatalf("timed out waiting for %s, state is %s", want, snap.State)
		}
		snap = next
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	target := filepath.Join(base, "reticle", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected target path in output, got %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, "", target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output %q", out)
	}
}

func TestConfigValidateRejectsBadMode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	testsupport.WriteText(t, path, "[detection]\nmode = \"telepathy\"\n")

	if _, _, err := runCLI(t, []string{"config", "validate"}, "", path); err == nil {
		t.Fatal("expected invalid detection mode to fail validation")
	}
}

func TestReplayTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Search.PlaceholderResults = 2
	configPath := writeTestConfig(t, cfg)
	scriptPath := filepath.Join(testsupport.BaseDir(cfg), "mug.toml")
	testsupport.WriteText(t, scriptPath, testsupport.SteadyObjectScript)

	out, _, err := runCLI(t, []string{"replay", scriptPath, "--duration", "800ms"}, "", configPath)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for _, want := range []string{"DETECTING", "CONFIRMED", "SEARCHED", "Coffee mug"} {
		if !strings.Contains(out, want) {
			t.Fatalf("replay transcript missing %q:\n%s", want, out)
		}
	}
}

func TestReplayJSONReport(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithManualSearch())
	configPath := writeTestConfig(t, cfg)
	scriptPath := filepath.Join(testsupport.BaseDir(cfg), "mug.toml")
	testsupport.WriteText(t, scriptPath, testsupport.SteadyObjectScript)

	out, _, err := runCLI(t, []string{"replay", scriptPath, "--duration", "600ms", "--json"}, "", configPath)
	if err != nil {
		t.Fatalf("replay --json: %v", err)
	}
	var report replayReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Session.State != workflow.Confirmed {
		t.Fatalf("manual search should stop at CONFIRMED, got %s", report.Session.State)
	}
	if report.Frames.Emitted == 0 {
		t.Fatal("expected frames to be emitted")
	}
	if report.Result == nil || report.Result.Kind != workflow.EntityConfirmed {
		t.Fatalf("expected confirmed result, got %+v", report.Result)
	}
}

func TestReplayLoopingScriptNeedsDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)
	scriptPath := filepath.Join(testsupport.BaseDir(cfg), "mug.toml")
	testsupport.WriteText(t, scriptPath, testsupport.SteadyObjectScript)

	_, _, err := runCLI(t, []string{"replay", scriptPath}, "", configPath)
	if err == nil || !strings.Contains(err.Error(), "--duration") {
		t.Fatalf("expected --duration error, got %v", err)
	}
}

func TestStatusAndResultAgainstDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithReplayScript(testsupport.SteadyObjectScript), testsupport.WithManualSearch())
	env := setupCLIDaemon(t, cfg)
	waitForCLIState(t, env.daemon.Machine(), workflow.Confirmed)

	out, _, err := runCLI(t, []string{"status"}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"== Daemon ==", "CONFIRMED", "replay"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, []string{"status", "--json"}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status daemon.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Session == nil {
		t.Fatalf("expected running daemon with a session, got %+v", status)
	}

	out, _, err = runCLI(t, []string{"result"}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if !strings.Contains(out, "Coffee mug") {
		t.Fatalf("result output missing entity:\n%s", out)
	}
}

func TestControlCommandsAgainstDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithReplayScript(testsupport.SteadyObjectScript), testsupport.WithManualSearch())
	cfg.Search.PlaceholderResults = 1
	env := setupCLIDaemon(t, cfg)

	if _, _, err := runCLI(t, []string{"dismiss"}, env.server.URL, env.configPath); err == nil {
		t.Fatal("expected dismiss without a result to fail")
	}

	waitForCLIState(t, env.daemon.Machine(), workflow.Confirmed)
	out, _, err := runCLI(t, []string{"search"}, env.server.URL, env.configPath)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "State:") {
		t.Fatalf("unexpected search output %q", out)
	}
	waitForCLIState(t, env.daemon.Machine(), workflow.Searched)

	if _, _, err := runCLI(t, []string{"dismiss"}, env.server.URL, env.configPath); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	_, _, err := runCLI(t, []string{"status"}, "http://127.0.0.1:1", configPath)
	if err == nil {
		t.Fatal("expected status to fail without a daemon")
	}
	if !strings.Contains(err.Error(), "connect to daemon") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPreflightReportsMissingCamera(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Detection.Backend = config.BackendCloudVision
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"preflight"}, "", configPath)
	if err == nil {
		t.Fatal("expected preflight to fail without a camera device")
	}
	if !strings.Contains(out, "Camera device") || !strings.Contains(out, "FAIL") {
		t.Fatalf("unexpected preflight output:\n%s", out)
	}
}

func TestTestNotifyRequiresTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	_, _, err := runCLI(t, []string{"test-notify"}, "", configPath)
	if err == nil || !strings.Contains(err.Error(), "ntfy_topic") {
		t.Fatalf("expected missing topic error, got %v", err)
	}
}

func TestCachePurgeRequiresCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	_, _, err := runCLI(t, []string{"cache", "purge"}, "", configPath)
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected disabled cache error, got %v", err)
	}
}
