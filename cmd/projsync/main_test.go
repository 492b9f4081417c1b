package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"projsync/internal/logging"
)

const appDescriptor = `<Project>
  <ItemGroup>
    <TypeScriptCompile Include="a.ts" />
  </ItemGroup>
</Project>
`

// syncBuffer is a bytes.Buffer safe for the watcher goroutines.
type syncBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

func newWorkspace(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	descriptorPath := filepath.Join(root, "App.proj")
	if err := os.WriteFile(descriptorPath, []byte(appDescriptor), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return root, descriptorPath
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func runArgs(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := runArgs(t, "version")
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d", code)
	}
	if !strings.HasPrefix(stdout, "projsync ") {
		t.Fatalf("expected version line, got %q", stdout)
	}
}

func TestRunUsageError(t *testing.T) {
	code, _, stderr := runArgs(t, "frobnicate")
	if code != exitCodeUsage {
		t.Fatalf("expected code %d, got %d", exitCodeUsage, code)
	}
	if !strings.Contains(stderr, `unknown command "frobnicate"`) {
		t.Fatalf("expected unknown command message, got %q", stderr)
	}
}

func TestRunAddAndRemove(t *testing.T) {
	root, descriptorPath := newWorkspace(t)
	foo := filepath.Join(root, "src", "foo.ts")

	code, stdout, stderr := runArgs(t, "--workspace", root, "add", foo)
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Added src/foo.ts to App") {
		t.Fatalf("expected add message, got %q", stdout)
	}
	if content := readString(t, descriptorPath); !strings.Contains(content, `<TypeScriptCompile Include="src\foo.ts" />`) {
		t.Fatalf("expected foo.ts entry, got:\n%s", content)
	}

	code, stdout, stderr = runArgs(t, "--workspace", root, "remove", foo)
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Removed src/foo.ts from App") {
		t.Fatalf("expected remove message, got %q", stdout)
	}
	content := readString(t, descriptorPath)
	if strings.Contains(content, "foo.ts") || !strings.Contains(content, `Include="a.ts"`) {
		t.Fatalf("expected only a.ts to remain, got:\n%s", content)
	}
}

func TestRunRemoveWithoutDescriptorFails(t *testing.T) {
	root := t.TempDir()
	code, _, stderr := runArgs(t, "--workspace", root, "remove", filepath.Join(root, "x.ts"))
	if code != exitCodeFailed {
		t.Fatalf("expected code %d, got %d", exitCodeFailed, code)
	}
	if !strings.Contains(stderr, "no project descriptor found") {
		t.Fatalf("expected descriptor error, got %q", stderr)
	}
}

func TestRunInvalidSettings(t *testing.T) {
	root, _ := newWorkspace(t)
	settingsPath := filepath.Join(root, ".projsync.toml")
	if err := os.WriteFile(settingsPath, []byte("[sync]\ninclude-regex = \"(\"\n"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	code, _, stderr := runArgs(t, "--workspace", root, "ignore", "list")
	if code != exitCodeConfig {
		t.Fatalf("expected code %d, got %d", exitCodeConfig, code)
	}
	if !strings.Contains(stderr, "sync.include-regex") {
		t.Fatalf("expected setting key in error, got %q", stderr)
	}

	code, _, _ = runArgs(t, "--workspace", root, "--config", filepath.Join(root, "missing.toml"), "ignore", "list")
	if code != exitCodeConfig {
		t.Fatalf("expected missing --config to fail with %d, got %d", exitCodeConfig, code)
	}
}

func TestRunInitResetsBrokenSettings(t *testing.T) {
	root, _ := newWorkspace(t)
	settingsPath := filepath.Join(root, ".projsync.toml")
	broken := "[sync]\ninclude-regex = \"(\"\n"
	if err := os.WriteFile(settingsPath, []byte(broken), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	code, stdout, stderr := runArgs(t, "--workspace", root, "init")
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "previous file saved as") {
		t.Fatalf("expected backup notice, got %q", stdout)
	}
	if got := readString(t, settingsPath+".bck"); got != broken {
		t.Fatalf("expected broken settings in backup, got %q", got)
	}

	code, _, stderr = runArgs(t, "--workspace", root, "ignore", "list")
	if code != exitCodeSuccess {
		t.Fatalf("expected defaults to load, got %d: %s", code, stderr)
	}

	code, stdout, _ = runArgs(t, "--workspace", root, "init")
	if code != exitCodeSuccess || !strings.Contains(stdout, "already holds the default settings") {
		t.Fatalf("expected second init to be a no-op, got %d %q", code, stdout)
	}
}

func TestRunIgnoreListAndClear(t *testing.T) {
	root, _ := newWorkspace(t)
	ignoreDir := filepath.Join(root, ".projsync")
	if err := os.MkdirAll(ignoreDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ignored := filepath.Join(root, "scratch.ts")
	payload := "version: 1\nignored:\n  - " + ignored + "\n"
	if err := os.WriteFile(filepath.Join(ignoreDir, "ignored.yaml"), []byte(payload), 0o644); err != nil {
		t.Fatalf("write ignore file: %v", err)
	}

	code, stdout, stderr := runArgs(t, "--workspace", root, "ignore", "list")
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if strings.TrimSpace(stdout) != ignored {
		t.Fatalf("expected %s, got %q", ignored, stdout)
	}

	code, stdout, _ = runArgs(t, "--workspace", root, "ignore", "clear")
	if code != exitCodeSuccess || !strings.Contains(stdout, "Ignore list cleared") {
		t.Fatalf("expected clear to succeed, got %d %q", code, stdout)
	}

	_, stdout, _ = runArgs(t, "--workspace", root, "ignore", "list")
	if strings.TrimSpace(stdout) != "No ignored files" {
		t.Fatalf("expected empty list, got %q", stdout)
	}
}

func TestRunWritesMetricsFile(t *testing.T) {
	root, _ := newWorkspace(t)
	metricsPath := filepath.Join(t.TempDir(), "metrics.prom")

	code, _, stderr := runArgs(t, "--workspace", root, "--metrics-file", metricsPath, "add", filepath.Join(root, "b.ts"))
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	content := readString(t, metricsPath)
	if !strings.Contains(content, "projsync_entries_added_total") {
		t.Fatalf("expected prometheus counters, got:\n%s", content)
	}
}

func TestSkipWatchPath(t *testing.T) {
	cases := map[string]bool{
		"/ws/.git":              true,
		"/ws/web/node_modules":  true,
		"/ws/.projsync":         true,
		"/ws/.projsync-1234":    true,
		"/ws/src/app.ts":        false,
		"/ws/src/gitignore.txt": false,
	}
	for path, expected := range cases {
		if got := skipWatchPath(path); got != expected {
			t.Fatalf("%s: expected %v, got %v", path, expected, got)
		}
	}
}

func TestSessionSummary(t *testing.T) {
	recent := []logging.Entry{
		{Level: logging.LevelWarning, Message: "add entry failed", Fields: map[string]string{"path": "/ws/a.ts"}},
		{Level: logging.LevelError, Message: "watcher failed"},
	}
	if got := sessionSummary(2, recent); got != "2 problems during this session; last: watcher failed" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := sessionSummary(1, recent[:1]); got != "1 problem during this session; last: add entry failed (/ws/a.ts)" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunWatchAddsAndRemovesFiles(t *testing.T) {
	root, descriptorPath := newWorkspace(t)
	settings := "[sync]\ndeletion-debounce-ms = 50\n"
	if err := os.WriteFile(filepath.Join(root, ".projsync.toml"), []byte(settings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	listed := filepath.Join(root, "a.ts")
	if err := os.WriteFile(listed, []byte("export {}"), 0o644); err != nil {
		t.Fatalf("write listed file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stdout := &syncBuffer{}
	stderr := &syncBuffer{}
	done := make(chan int, 1)
	go func() {
		done <- runContext(ctx, []string{"--workspace", root, "--yes", "watch"}, strings.NewReader(""), stdout, stderr)
	}()
	waitFor(t, "watch to start", func() bool {
		return strings.Contains(stdout.String(), "Watching "+root)
	})

	created := filepath.Join(root, "b.ts")
	if err := os.WriteFile(created, []byte("export {}"), 0o644); err != nil {
		t.Fatalf("write new file: %v", err)
	}
	waitFor(t, "b.ts to be added", func() bool {
		return strings.Contains(readString(t, descriptorPath), `Include="b.ts"`)
	})

	if err := os.Remove(listed); err != nil {
		t.Fatalf("remove listed file: %v", err)
	}
	waitFor(t, "a.ts to be removed", func() bool {
		return !strings.Contains(readString(t, descriptorPath), `Include="a.ts"`)
	})

	cancel()
	select {
	case code := <-done:
		if code != exitCodeSuccess {
			t.Fatalf("expected watch to exit cleanly, got %d: %s", code, stderr.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not stop after cancel")
	}
}
