// ABOUTME: CLI entrypoint for railcar with run, list, validate, runs, serve, and bridge verbs.
// ABOUTME: Wires the workflow engine to built-in steps, run history, the web server, and the TUI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/railcar/bridge"
	"github.com/2389-research/railcar/history"
	"github.com/2389-research/railcar/llm"
	"github.com/2389-research/railcar/manifest"
	"github.com/2389-research/railcar/railway"
	"github.com/2389-research/railcar/steps"
	"github.com/2389-research/railcar/tui"
	"github.com/2389-research/railcar/web"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	loadDotEnv(".env")
	os.Exit(run(os.Args[1:]))
}

// run dispatches to a verb and returns the process exit code: 0 on success,
// 1 on runtime failure, 2 on usage errors.
func run(args []string) int {
	if len(args) == 0 {
		printHelp(os.Stderr, version)
		return 2
	}

	switch args[0] {
	case "help", "-h", "-help", "--help":
		printHelp(os.Stdout, version)
		return 0
	case "version", "-version", "--version":
		fmt.Printf("railcar %s\n", version)
		return 0
	case "run":
		return cmdRun(args[1:])
	case "list":
		return cmdList(args[1:])
	case "validate":
		return cmdValidate(args[1:])
	case "runs":
		return cmdRuns(args[1:])
	case "serve":
		return cmdServe(args[1:])
	case "bridge":
		return cmdBridge(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", args[0])
		fmt.Fprintln(os.Stderr, "Run 'railcar help' for usage.")
		return 2
	}
}

// kvFlags collects repeated -set key=value flags. The map is the flag value,
// so a zero-initialized kvFlags must be made before flag registration.
type kvFlags map[string]string

func (f kvFlags) String() string {
	if len(f) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(f))
	for k, v := range f {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (f kvFlags) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	f[key] = value
	return nil
}

// Map widens the collected pairs for seeding a workflow context.
func (f kvFlags) Map() map[string]any {
	m := make(map[string]any, len(f))
	for k, v := range f {
		m[k] = v
	}
	return m
}

type runConfig struct {
	manifestPath string
	workflow     string
	sets         kvFlags
	tuiMode      bool
	verbose      bool
	historyPath  string
	noHistory    bool
}

func cmdRun(args []string) int {
	cfg := runConfig{sets: kvFlags{}}

	fs := flag.NewFlagSet("railcar run", flag.ContinueOnError)
	fs.StringVar(&cfg.manifestPath, "manifest", "railcar.yaml", "Path to the workflow manifest")
	fs.Var(&cfg.sets, "set", "Seed an initial input as key=value (repeatable)")
	fs.BoolVar(&cfg.tuiMode, "tui", false, "Watch the run in a full-screen terminal UI")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Print engine events to stderr")
	fs.StringVar(&cfg.historyPath, "history", "", "Run history database path (default: data dir)")
	fs.BoolVar(&cfg.noHistory, "no-history", false, "Skip recording this run")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: railcar run [flags] <workflow>")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: run takes exactly one workflow name")
		fs.Usage()
		return 2
	}
	cfg.workflow = fs.Arg(0)

	return runWorkflow(cfg)
}

func runWorkflow(cfg runConfig) int {
	workflows, err := manifest.Load(cfg.manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	reg := buildRegistry(cfg.verbose)
	if err := manifest.Validate(workflows, reg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	wf := manifest.Find(workflows, cfg.workflow)
	if wf == nil {
		fmt.Fprintf(os.Stderr, "error: workflow %q not found in %s\n", cfg.workflow, cfg.manifestPath)
		return 1
	}
	if !wf.Dispatchable {
		fmt.Fprintf(os.Stderr, "error: workflow %q is not dispatchable\n", cfg.workflow)
		return 1
	}

	var handlers []railway.EventHandler
	if !cfg.noHistory {
		if store := openHistory(cfg.historyPath); store != nil {
			defer func() { _ = store.Close() }()
			handlers = append(handlers, history.NewRecorder(store).Handle)
		}
	}
	if cfg.verbose {
		handlers = append(handlers, verboseEventHandler)
	}

	runID := railway.NewRunID()
	initial := railway.NewContextWithInputs(cfg.sets.Map())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.tuiMode {
		return runWorkflowTUI(ctx, reg, *wf, initial, runID, handlers)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	engine := railway.NewEngine(railway.EngineConfig{
		Registry:     reg,
		EventHandler: fanOutEvents(handlers),
		RunID:        runID,
	})

	final, runErr := engine.RunWorkflow(ctx, *wf, initial)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		return 1
	}

	fmt.Printf("Workflow %q completed (run %s).\n", wf.Name, runID)
	printFinalContext(final)
	return 0
}

// runWorkflowTUI hands the run to the full-screen watcher. Engine events
// reach the program through the bridge; history and verbose handlers keep
// working alongside it.
func runWorkflowTUI(ctx context.Context, reg *railway.Registry, wf railway.WorkflowDescriptor, initial railway.Context, runID string, handlers []railway.EventHandler) int {
	engine := railway.NewEngine(railway.EngineConfig{Registry: reg, RunID: runID})

	model := tui.NewAppModel(ctx, engine, wf, initial)
	p := tea.NewProgram(model, tea.WithAltScreen())

	eventBridge := tui.NewEventBridge(p.Send)
	engine.SetEventHandler(fanOutEvents(append(handlers, eventBridge.Handle)))

	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: tui: %v\n", err)
		return 1
	}
	if m, ok := finalModel.(tui.AppModel); ok && m.Err() != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", m.Err())
		return 1
	}
	return 0
}

func cmdList(args []string) int {
	var manifestPath string

	fs := flag.NewFlagSet("railcar list", flag.ContinueOnError)
	fs.StringVar(&manifestPath, "manifest", "railcar.yaml", "Path to the workflow manifest")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: railcar list [flags]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	workflows, err := manifest.Load(manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if len(workflows) == 0 {
		fmt.Println("No workflows defined.")
		return 0
	}

	for _, wf := range workflows {
		marker := " "
		if wf.Dispatchable {
			marker = "*"
		}
		line := fmt.Sprintf("%s %-24s %2d step(s)", marker, wf.Name, len(wf.Steps))
		if wf.Description != "" {
			line += "  " + wf.Description
		}
		fmt.Println(line)
	}
	fmt.Println("\n* dispatchable")
	return 0
}

func cmdValidate(args []string) int {
	var manifestPath string
	var verbose bool

	fs := flag.NewFlagSet("railcar validate", flag.ContinueOnError)
	fs.StringVar(&manifestPath, "manifest", "railcar.yaml", "Path to the workflow manifest")
	fs.BoolVar(&verbose, "verbose", false, "Report provider detection while building the registry")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: railcar validate [flags]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	workflows, err := manifest.Load(manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// Validation resolves functions against the same registry run would use,
	// so a manifest that needs llm_complete fails here when no key is set.
	reg := buildRegistry(verbose)
	if err := manifest.Validate(workflows, reg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Printf("Manifest %s is valid: %d workflow(s).\n", manifestPath, len(workflows))
	return 0
}

func cmdRuns(args []string) int {
	var historyPath string
	var limit int

	fs := flag.NewFlagSet("railcar runs", flag.ContinueOnError)
	fs.StringVar(&historyPath, "history", "", "Run history database path (default: data dir)")
	fs.IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: railcar runs [flags] [run-id]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "error: runs takes at most one run-id")
		fs.Usage()
		return 2
	}

	if historyPath == "" {
		p, err := defaultHistoryPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		historyPath = p
	}
	if _, err := os.Stat(historyPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: no run history at %s\n", historyPath)
		return 1
	}

	store, err := history.Open(historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	if fs.NArg() == 1 {
		return showRun(store, fs.Arg(0))
	}
	return listRuns(store, limit)
}

func listRuns(store *history.Store, limit int) int {
	runs, err := store.ListRuns(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return 0
	}

	fmt.Printf("%-26s  %-20s  %-9s  %s\n", "RUN", "WORKFLOW", "STATUS", "STARTED")
	for _, r := range runs {
		fmt.Printf("%-26s  %-20s  %-9s  %s\n", r.RunID, r.Workflow, r.Status, r.StartedAt)
	}
	return 0
}

func showRun(store *history.Store, runID string) int {
	run, stepRecords, err := store.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if run == nil {
		fmt.Fprintf(os.Stderr, "error: run %q not found\n", runID)
		return 1
	}

	fmt.Printf("Run:      %s\n", run.RunID)
	fmt.Printf("Workflow: %s\n", run.Workflow)
	fmt.Printf("Status:   %s\n", run.Status)
	fmt.Printf("Started:  %s\n", run.StartedAt)
	if run.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", *run.FinishedAt)
	}
	if run.Error != nil {
		fmt.Printf("Error:    %s\n", *run.Error)
	}

	if len(stepRecords) == 0 {
		return 0
	}
	fmt.Println("\nSteps:")
	for _, rec := range stepRecords {
		line := fmt.Sprintf("  %-24s %-9s", rec.Step, rec.Status)
		if rec.Retries > 0 {
			line += fmt.Sprintf(" retries=%d", rec.Retries)
		}
		if rec.Detail != nil {
			line += " " + *rec.Detail
		}
		fmt.Println(strings.TrimRight(line, " "))
	}
	return 0
}

type serveConfig struct {
	addr         string
	manifestPath string
	historyPath  string
	verbose      bool
}

func cmdServe(args []string) int {
	var cfg serveConfig

	fs := flag.NewFlagSet("railcar serve", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", "127.0.0.1:2389", "HTTP listen address")
	fs.StringVar(&cfg.manifestPath, "manifest", "railcar.yaml", "Path to the workflow manifest")
	fs.StringVar(&cfg.historyPath, "history", "", "Run history database path (default: data dir)")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Print engine events for dispatched runs to stderr")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: railcar serve [flags]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "error: serve takes no positional arguments")
		fs.Usage()
		return 2
	}

	srv, store, err := buildServer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	httpServer := &http.Server{
		Addr:              cfg.addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	fmt.Fprintf(os.Stderr, "railcar serving on http://%s\n", cfg.addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// buildServer assembles the dispatch server for serve: manifest, registry,
// run history, and the optional verbose event stream.
func buildServer(cfg serveConfig) (*web.Server, *history.Store, error) {
	workflows, err := manifest.Load(cfg.manifestPath)
	if err != nil {
		return nil, nil, err
	}

	reg := buildRegistry(cfg.verbose)
	store := openHistory(cfg.historyPath)

	srv, err := web.NewServer(web.ServerConfig{
		Addr:      cfg.addr,
		Workflows: workflows,
		Registry:  reg,
		History:   store,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, err
	}
	if cfg.verbose {
		srv.SetEventHandler(verboseEventHandler)
	}
	return srv, store, nil
}

func cmdBridge(args []string) int {
	var trackerBin, trackerDir string
	var dryRun bool

	fs := flag.NewFlagSet("railcar bridge", flag.ContinueOnError)
	fs.StringVar(&trackerBin, "tracker", "tracker", "Tracker CLI binary")
	fs.StringVar(&trackerDir, "dir", "", "Working directory for tracker calls")
	fs.BoolVar(&dryRun, "dry-run", false, "Parse and report stories without filing issues")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: railcar bridge [flags] <stories-dir>")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: bridge takes exactly one stories directory")
		fs.Usage()
		return 2
	}

	stories, err := bridge.LoadStories(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if len(stories) == 0 {
		fmt.Println("No stories found.")
		return 0
	}

	if dryRun {
		for _, story := range stories {
			status := story.Status
			if status == "" {
				status = "unknown"
			}
			fmt.Printf("%-40s %-12s criteria=%d tasks=%d\n",
				story.Title, status, len(story.Criteria), len(story.Tasks))
		}
		fmt.Printf("%d story(s); rerun without -dry-run to file issues\n", len(stories))
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	filer := &bridge.TrackerClient{Bin: trackerBin, Dir: trackerDir}
	results, syncErr := bridge.Sync(ctx, stories, filer)

	filed, skipped := 0, 0
	for _, res := range results {
		if res.Skipped {
			skipped++
			continue
		}
		filed++
		fmt.Printf("filed %s: %s\n", res.IssueID, res.Story)
	}
	fmt.Printf("%d filed, %d skipped\n", filed, skipped)

	if syncErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", syncErr)
		return 1
	}
	return 0
}

// buildRegistry assembles the built-in step registry. Collaborators that
// depend on the environment stay nil when unavailable, leaving their steps
// unregistered so validation reports them by name.
func buildRegistry(verbose bool) *railway.Registry {
	reg := railway.NewRegistry()
	steps.RegisterBuiltins(reg, steps.Options{
		Completer: detectCompleter(verbose),
		Filer:     &bridge.TrackerClient{},
	})
	return reg
}

// detectCompleter probes the environment for a provider API key. The nil
// return must stay untyped so the registry's interface check sees nil.
func detectCompleter(verbose bool) llm.Completer {
	cfg, ok := llm.DetectConfig()
	if !ok {
		if verbose {
			fmt.Fprintln(os.Stderr, "[llm] no provider API key set; llm_complete unavailable")
		}
		return nil
	}
	client, err := llm.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: llm client unavailable: %v\n", err)
		return nil
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "[llm] provider: %s\n", cfg.Provider)
	}
	return client
}

// openHistory opens the run history store, warning instead of failing: a
// broken history database must not block workflow execution.
func openHistory(path string) *history.Store {
	if path == "" {
		p, err := defaultHistoryPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not resolve history path: %v\n", err)
			return nil
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not create history directory: %v\n", err)
		return nil
	}
	store, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open run history: %v\n", err)
		return nil
	}
	return store
}

// fanOutEvents composes handlers into one. Engine events are synchronous, so
// composed handlers run in registration order.
func fanOutEvents(handlers []railway.EventHandler) railway.EventHandler {
	switch len(handlers) {
	case 0:
		return nil
	case 1:
		return handlers[0]
	}
	return func(evt railway.EngineEvent) {
		for _, h := range handlers {
			h(evt)
		}
	}
}

// verboseEventHandler prints engine events to stderr in a compact one-line
// form for -verbose runs.
func verboseEventHandler(evt railway.EngineEvent) {
	subject := evt.Workflow
	if evt.Step != "" {
		subject = evt.Workflow + "/" + evt.Step
	}
	line := fmt.Sprintf("[%s] %s", subject, evt.Type)
	if len(evt.Data) > 0 {
		keys := make([]string, 0, len(evt.Data))
		for k := range evt.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += fmt.Sprintf(" %s=%v", k, evt.Data[k])
		}
	}
	fmt.Fprintln(os.Stderr, line)
}

// printFinalContext shows the run's outputs and accumulated feedback.
func printFinalContext(final railway.Context) {
	outputs := final.Outputs()
	if outputs.Len() > 0 {
		fmt.Println("\nOutputs:")
		for _, key := range outputs.Keys() {
			val, _ := outputs.Get(key)
			fmt.Printf("  %s: %v\n", key, val)
		}
	}
	if feedback := final.Feedback(); len(feedback) > 0 {
		fmt.Println("\nFeedback:")
		for _, msg := range feedback {
			fmt.Printf("  - %s\n", msg)
		}
	}
}
