// ABOUTME: Tests for the railcar CLI: verb dispatch, flag parsing, exit codes, and wiring helpers.
// ABOUTME: Runs real workflows against temp manifests and checks history, registry, and server setup.
package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/2389-research/railcar/history"
	"github.com/2389-research/railcar/railway"
)

const validManifest = `workflows:
  - name: greet
    description: Prints a greeting.
    dispatchable: true
    steps:
      - name: hello
        shell: true
        command: echo hello
        output: greeting
  - name: note
    dispatchable: true
    steps:
      - name: save
        function: write_file
  - name: internal
    steps:
      - name: quiet
        shell: true
        command: "true"
  - name: doomed
    dispatchable: true
    steps:
      - name: explode
        shell: true
        command: "false"
`

const invalidManifest = `workflows:
  - name: greet
    dispatchable: true
    steps:
      - name: hello
        shell: true
        command: echo hello
  - name: broken
    steps:
      - name: mystery
        function: no_such_function
`

func writeTempManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "railcar.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunNoArgsShowsHelp(t *testing.T) {
	if code := run(nil); code != 2 {
		t.Errorf("expected exit code 2 for no args, got %d", code)
	}
}

func TestRunHelpVerb(t *testing.T) {
	for _, verb := range []string{"help", "-h", "-help", "--help"} {
		if code := run([]string{verb}); code != 0 {
			t.Errorf("expected exit code 0 for %q, got %d", verb, code)
		}
	}
}

func TestRunVersionVerb(t *testing.T) {
	for _, verb := range []string{"version", "-version", "--version"} {
		if code := run([]string{verb}); code != 0 {
			t.Errorf("expected exit code 0 for %q, got %d", verb, code)
		}
	}
}

func TestRunUnknownVerb(t *testing.T) {
	if code := run([]string{"frobnicate"}); code != 2 {
		t.Errorf("expected exit code 2 for unknown verb, got %d", code)
	}
}

func TestCmdRunRequiresWorkflowName(t *testing.T) {
	path := writeTempManifest(t, validManifest)

	if code := run([]string{"run", "-manifest", path}); code != 2 {
		t.Errorf("expected exit code 2 without a workflow name, got %d", code)
	}
	if code := run([]string{"run", "-manifest", path, "greet", "extra"}); code != 2 {
		t.Errorf("expected exit code 2 for extra positionals, got %d", code)
	}
}

func TestCmdRunUnknownFlag(t *testing.T) {
	if code := run([]string{"run", "-definitely-not-a-flag", "greet"}); code != 2 {
		t.Errorf("expected exit code 2 for unknown flag, got %d", code)
	}
}

func TestCmdRunMissingManifest(t *testing.T) {
	code := run([]string{"run", "-manifest", "/tmp/no-such-railcar-manifest.yaml", "-no-history", "greet"})
	if code != 1 {
		t.Errorf("expected exit code 1 for missing manifest, got %d", code)
	}
}

func TestCmdRunExecutesShellWorkflow(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := writeTempManifest(t, validManifest)

	if code := run([]string{"run", "-manifest", path, "greet"}); code != 0 {
		t.Errorf("expected exit code 0 for greet, got %d", code)
	}
}

func TestCmdRunRecordsHistoryByDefault(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	path := writeTempManifest(t, validManifest)

	if code := run([]string{"run", "-manifest", path, "greet"}); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	dbPath := filepath.Join(dataHome, "railcar", "history.db")
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected history database at %s: %v", dbPath, err)
	}
}

func TestCmdRunNoHistorySkipsRecording(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	path := writeTempManifest(t, validManifest)

	if code := run([]string{"run", "-manifest", path, "-no-history", "greet"}); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	dbPath := filepath.Join(dataHome, "railcar", "history.db")
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("expected no history database at %s, stat err = %v", dbPath, err)
	}
}

func TestCmdRunRejectsNonDispatchable(t *testing.T) {
	path := writeTempManifest(t, validManifest)

	code := run([]string{"run", "-manifest", path, "-no-history", "internal"})
	if code != 1 {
		t.Errorf("expected exit code 1 for non-dispatchable workflow, got %d", code)
	}
}

func TestCmdRunUnknownWorkflow(t *testing.T) {
	path := writeTempManifest(t, validManifest)

	code := run([]string{"run", "-manifest", path, "-no-history", "nope"})
	if code != 1 {
		t.Errorf("expected exit code 1 for unknown workflow, got %d", code)
	}
}

func TestCmdRunFailingStepExitsOne(t *testing.T) {
	path := writeTempManifest(t, validManifest)

	code := run([]string{"run", "-manifest", path, "-no-history", "doomed"})
	if code != 1 {
		t.Errorf("expected exit code 1 for failing workflow, got %d", code)
	}
}

func TestCmdRunSetSeedsInputs(t *testing.T) {
	manifestPath := writeTempManifest(t, validManifest)
	notePath := filepath.Join(t.TempDir(), "note.txt")

	code := run([]string{
		"run", "-manifest", manifestPath, "-no-history",
		"-set", "path=" + notePath,
		"-set", "content=hello from railcar",
		"note",
	})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	data, err := os.ReadFile(notePath)
	if err != nil {
		t.Fatalf("expected note file: %v", err)
	}
	if string(data) != "hello from railcar" {
		t.Errorf("note content = %q", string(data))
	}
}

func TestCmdRunFailsWhenManifestInvalid(t *testing.T) {
	// Validation covers the whole manifest, so a broken sibling workflow
	// blocks even a runnable one.
	path := writeTempManifest(t, invalidManifest)

	code := run([]string{"run", "-manifest", path, "-no-history", "greet"})
	if code != 1 {
		t.Errorf("expected exit code 1 for invalid manifest, got %d", code)
	}
}

func TestCmdListShowsWorkflows(t *testing.T) {
	path := writeTempManifest(t, validManifest)

	if code := run([]string{"list", "-manifest", path}); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestCmdListMissingManifest(t *testing.T) {
	code := run([]string{"list", "-manifest", "/tmp/no-such-railcar-manifest.yaml"})
	if code != 1 {
		t.Errorf("expected exit code 1 for missing manifest, got %d", code)
	}
}

func TestCmdValidateValidManifest(t *testing.T) {
	path := writeTempManifest(t, validManifest)

	if code := run([]string{"validate", "-manifest", path}); code != 0 {
		t.Errorf("expected exit code 0 for valid manifest, got %d", code)
	}
}

func TestCmdValidateUnknownFunction(t *testing.T) {
	path := writeTempManifest(t, invalidManifest)

	if code := run([]string{"validate", "-manifest", path}); code != 1 {
		t.Errorf("expected exit code 1 for unknown function, got %d", code)
	}
}

func TestCmdValidateMissingManifest(t *testing.T) {
	code := run([]string{"validate", "-manifest", "/tmp/no-such-railcar-manifest.yaml"})
	if code != 1 {
		t.Errorf("expected exit code 1 for missing manifest, got %d", code)
	}
}

func TestCmdRunsNoDatabaseFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing.db")

	if code := run([]string{"runs", "-history", dbPath}); code != 1 {
		t.Errorf("expected exit code 1 when no history exists, got %d", code)
	}
}

func TestCmdRunsListsAfterRun(t *testing.T) {
	manifestPath := writeTempManifest(t, validManifest)
	dbPath := filepath.Join(t.TempDir(), "history.db")

	if code := run([]string{"run", "-manifest", manifestPath, "-history", dbPath, "greet"}); code != 0 {
		t.Fatalf("expected exit code 0 for run, got %d", code)
	}
	if code := run([]string{"runs", "-history", dbPath, "-limit", "5"}); code != 0 {
		t.Errorf("expected exit code 0 for runs, got %d", code)
	}
}

func TestCmdRunsShowsRunDetail(t *testing.T) {
	manifestPath := writeTempManifest(t, validManifest)
	dbPath := filepath.Join(t.TempDir(), "history.db")

	if code := run([]string{"run", "-manifest", manifestPath, "-history", dbPath, "greet"}); code != 0 {
		t.Fatalf("expected exit code 0 for run, got %d", code)
	}

	store, err := history.Open(dbPath)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	runs, err := store.ListRuns(1)
	_ = store.Close()
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns = %v, %v", runs, err)
	}

	if code := run([]string{"runs", "-history", dbPath, runs[0].RunID}); code != 0 {
		t.Errorf("expected exit code 0 for run detail, got %d", code)
	}
}

func TestCmdRunsUnknownRunID(t *testing.T) {
	manifestPath := writeTempManifest(t, validManifest)
	dbPath := filepath.Join(t.TempDir(), "history.db")

	if code := run([]string{"run", "-manifest", manifestPath, "-history", dbPath, "greet"}); code != 0 {
		t.Fatalf("expected exit code 0 for run, got %d", code)
	}
	if code := run([]string{"runs", "-history", dbPath, "no-such-run"}); code != 1 {
		t.Errorf("expected exit code 1 for unknown run id, got %d", code)
	}
}

func TestCmdRunsTooManyArgs(t *testing.T) {
	if code := run([]string{"runs", "one", "two"}); code != 2 {
		t.Errorf("expected exit code 2 for extra positionals, got %d", code)
	}
}

func TestCmdServeRejectsPositionals(t *testing.T) {
	if code := run([]string{"serve", "extra"}); code != 2 {
		t.Errorf("expected exit code 2 for positional args, got %d", code)
	}
}

func TestCmdServeMissingManifest(t *testing.T) {
	code := run([]string{"serve", "-manifest", "/tmp/no-such-railcar-manifest.yaml"})
	if code != 1 {
		t.Errorf("expected exit code 1 for missing manifest, got %d", code)
	}
}

func TestBuildServerHealthEndpoint(t *testing.T) {
	cfg := serveConfig{
		manifestPath: writeTempManifest(t, validManifest),
		historyPath:  filepath.Join(t.TempDir(), "history.db"),
	}

	srv, store, err := buildServer(cfg)
	if err != nil {
		t.Fatalf("buildServer failed: %v", err)
	}
	if store == nil {
		t.Fatal("expected a history store")
	}
	defer func() { _ = store.Close() }()

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for /healthz, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %q", body["status"])
	}
}

func TestBuildServerDispatchesWorkflow(t *testing.T) {
	cfg := serveConfig{
		manifestPath: writeTempManifest(t, validManifest),
		historyPath:  filepath.Join(t.TempDir(), "history.db"),
	}

	srv, store, err := buildServer(cfg)
	if err != nil {
		t.Fatalf("buildServer failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/workflows/greet/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST dispatch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for dispatch, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode dispatch response: %v", err)
	}
	if body["status"] != "completed" {
		t.Errorf("dispatch status = %v", body["status"])
	}
}

func TestBuildServerRejectsInvalidManifest(t *testing.T) {
	cfg := serveConfig{
		manifestPath: writeTempManifest(t, invalidManifest),
		historyPath:  filepath.Join(t.TempDir(), "history.db"),
	}

	if _, _, err := buildServer(cfg); err == nil {
		t.Error("expected buildServer to fail for invalid manifest")
	}
}

func TestCmdBridgeRequiresStoriesDir(t *testing.T) {
	if code := run([]string{"bridge"}); code != 2 {
		t.Errorf("expected exit code 2 without a stories dir, got %d", code)
	}
}

func TestCmdBridgeMissingDir(t *testing.T) {
	code := run([]string{"bridge", "/tmp/no-such-stories-dir"})
	if code != 1 {
		t.Errorf("expected exit code 1 for missing dir, got %d", code)
	}
}

func TestCmdBridgeEmptyDir(t *testing.T) {
	if code := run([]string{"bridge", t.TempDir()}); code != 0 {
		t.Errorf("expected exit code 0 for empty dir, got %d", code)
	}
}

func TestCmdBridgeDryRun(t *testing.T) {
	dir := t.TempDir()
	draft := "# Ship the loading dock\n\n## Status\n\nDraft\n\n## Acceptance Criteria\n\n- Dock opens\n- Dock closes\n\n## Tasks\n\n- [ ] Build the dock\n"
	done := "# Paint the caboose\n\n## Status\n\nDone\n"
	if err := os.WriteFile(filepath.Join(dir, "001-dock.md"), []byte(draft), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "002-caboose.md"), []byte(done), 0644); err != nil {
		t.Fatal(err)
	}

	if code := run([]string{"bridge", "-dry-run", dir}); code != 0 {
		t.Errorf("expected exit code 0 for dry run, got %d", code)
	}
}

func TestKVFlagsSet(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		key   string
		value string
	}{
		{"simple pair", "version=1.4.2", "version", "1.4.2"},
		{"value with equals", "query=a=b=c", "query", "a=b=c"},
		{"key whitespace trimmed", "  branch =main", "branch", "main"},
		{"empty value", "flag=", "flag", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := kvFlags{}
			if err := f.Set(tc.raw); err != nil {
				t.Fatalf("Set(%q) failed: %v", tc.raw, err)
			}
			if got := f[tc.key]; got != tc.value {
				t.Errorf("f[%q] = %q, want %q", tc.key, got, tc.value)
			}
		})
	}
}

func TestKVFlagsRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"noequals", "=value", "   =x"} {
		f := kvFlags{}
		if err := f.Set(raw); err == nil {
			t.Errorf("expected Set(%q) to fail", raw)
		}
	}
}

func TestKVFlagsString(t *testing.T) {
	f := kvFlags{"b": "2", "a": "1"}
	if got := f.String(); got != "a=1,b=2" {
		t.Errorf("String() = %q, want %q", got, "a=1,b=2")
	}
	if got := (kvFlags{}).String(); got != "" {
		t.Errorf("empty String() = %q", got)
	}
}

func TestKVFlagsMap(t *testing.T) {
	f := kvFlags{"version": "1.4.2"}
	m := f.Map()
	if len(m) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m))
	}
	if m["version"] != "1.4.2" {
		t.Errorf("m[version] = %v", m["version"])
	}
}

func TestFanOutEventsEmpty(t *testing.T) {
	if fanOutEvents(nil) != nil {
		t.Error("expected nil handler for no handlers")
	}
}

func TestFanOutEventsOrder(t *testing.T) {
	var got []string
	first := func(railway.EngineEvent) { got = append(got, "first") }
	second := func(railway.EngineEvent) { got = append(got, "second") }

	handler := fanOutEvents([]railway.EventHandler{first, second})
	handler(railway.EngineEvent{Type: railway.EventWorkflowStarted})

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("handler order = %v", got)
	}
}

func TestFanOutEventsSingle(t *testing.T) {
	calls := 0
	handler := fanOutEvents([]railway.EventHandler{func(railway.EngineEvent) { calls++ }})
	handler(railway.EngineEvent{Type: railway.EventStepStarted})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestVerboseEventHandlerDoesNotPanic(t *testing.T) {
	events := []railway.EngineEvent{
		{Type: railway.EventWorkflowStarted, Workflow: "release"},
		{Type: railway.EventStepStarted, Workflow: "release", Step: "build", Data: map[string]any{"index": 0, "always_run": false}},
		{Type: railway.EventStepRetrying, Workflow: "release", Step: "build", Data: map[string]any{"attempt": 1, "max_attempts": 3}},
		{Type: railway.EventStepCompleted, Workflow: "release", Step: "build", Data: map[string]any{"outputs": 2}},
		{Type: railway.EventStepFailed, Workflow: "release", Step: "test", Data: map[string]any{"error_type": "ShellCommandFailed", "message": "exit 1"}},
		{Type: railway.EventStepSkipped, Workflow: "release", Step: "deploy", Data: map[string]any{"reason": "pipeline_failed"}},
		{Type: railway.EventWorkflowFailed, Workflow: "release", Data: map[string]any{"step": "test"}},
		{Type: railway.EventWorkflowCompleted, Workflow: "release"},
	}

	for _, evt := range events {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("verboseEventHandler panicked on %s: %v", evt.Type, r)
				}
			}()
			verboseEventHandler(evt)
		}()
	}
}

func TestDetectCompleterNoKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	if c := detectCompleter(false); c != nil {
		t.Errorf("expected nil completer without keys, got %T", c)
	}
}

func TestDetectCompleterWithOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	if c := detectCompleter(false); c == nil {
		t.Error("expected a completer with OPENAI_API_KEY set")
	}
}

func TestBuildRegistryCoreSteps(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	reg := buildRegistry(false)
	for _, name := range []string{"write_file", "read_file", "remove_file", "bmad_sync"} {
		if !reg.Has(name) {
			t.Errorf("expected %s to be registered", name)
		}
	}
	if reg.Has("llm_complete") {
		t.Error("llm_complete must stay unregistered without an API key")
	}
}

func TestBuildRegistryLLMWithKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", "")

	reg := buildRegistry(false)
	if !reg.Has("llm_complete") {
		t.Error("expected llm_complete to be registered with an API key")
	}
}

func TestOpenHistoryCreatesParentDirs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "deep", "history.db")

	store := openHistory(dbPath)
	if store == nil {
		t.Fatal("expected a history store")
	}
	_ = store.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected database file at %s: %v", dbPath, err)
	}
}

func TestOpenHistoryDefaultsToDataDir(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	store := openHistory("")
	if store == nil {
		t.Fatal("expected a history store")
	}
	_ = store.Close()

	dbPath := filepath.Join(dataHome, "railcar", "history.db")
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected database file at %s: %v", dbPath, err)
	}
}
