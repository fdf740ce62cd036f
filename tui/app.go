// ABOUTME: Top-level Bubble Tea AppModel that orchestrates all TUI sub-panels into a unified layout.
// ABOUTME: Implements tea.Model (Init, Update, View) and routes messages to the steps panel, log, and status bar.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/railcar/railway"
)

// FocusTarget indicates which panel currently has keyboard focus.
type FocusTarget int

const (
	FocusSteps FocusTarget = iota
	FocusLog
)

// AppModel is the top-level Bubble Tea model that composes all TUI sub-panels
// and routes messages between them.
type AppModel struct {
	steps     StepsPanelModel
	log       LogPanelModel
	statusBar StatusBarModel

	engine   *railway.Engine
	workflow railway.WorkflowDescriptor
	initial  railway.Context
	ctx      context.Context // cancellation context for engine execution

	focus     FocusTarget
	done      bool            // run finished
	err       error           // run error (if any)
	final     railway.Context // final run context once done
	completed int             // count of completed steps
	width     int
	height    int
}

// NewAppModel creates an AppModel with all sub-models initialized from the given workflow.
func NewAppModel(ctx context.Context, engine *railway.Engine, wf railway.WorkflowDescriptor, initial railway.Context) AppModel {
	return AppModel{
		steps:     NewStepsPanelModel(wf),
		log:       NewLogPanelModel(200),
		statusBar: NewStatusBarModel(wf.Name, len(wf.Steps)),
		engine:    engine,
		workflow:  wf,
		initial:   initial,
		ctx:       ctx,
		focus:     FocusSteps,
	}
}

// Err returns the run error once the workflow has finished, nil otherwise.
// Read it from the final model after tea.Program.Run() returns.
func (m AppModel) Err() error {
	return m.err
}

// Final returns the run's final context. Meaningful only once Done is true.
func (m AppModel) Final() railway.Context {
	return m.final
}

// Done reports whether the workflow has finished executing.
func (m AppModel) Done() bool {
	return m.done
}

// Init implements tea.Model. Returns a batch of initial commands to start the
// workflow and begin the tick loop.
func (m AppModel) Init() tea.Cmd {
	// statusBar.Start happens on EventWorkflowStarted; calling it here on the
	// value receiver would discard the mutation.
	return tea.Batch(
		RunWorkflowCmd(m.ctx, m.engine, m.workflow, m.initial),
		TickCmd(100*time.Millisecond),
	)
}

// Update implements tea.Model. Routes incoming messages to the appropriate
// sub-panel and returns the updated model with any follow-up commands.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)

	case EngineEventMsg:
		return m.handleEngineEvent(msg)

	case WorkflowResultMsg:
		return m.handleWorkflowResult(msg)

	case TickMsg:
		return m.handleTick(msg)

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

// View implements tea.Model. Renders the full TUI layout with all panels.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// Minimum terminal size guard to prevent layout overflow
	if m.width < 40 || m.height < 10 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x10.", m.width, m.height)
	}

	// Layout calculations
	statusBarHeight := 1
	stepsHeight := (m.height - statusBarHeight) * 40 / 100
	if stepsHeight < 3 {
		stepsHeight = 3
	}
	logHeight := m.height - statusBarHeight - stepsHeight
	if logHeight < 3 {
		logHeight = 3
	}

	// Update panel sizes
	m.steps.SetWidth(m.width)
	m.log.SetSize(m.width, logHeight)
	m.statusBar.SetWidth(m.width)

	stepsView := m.steps.View()
	logView := m.log.View()

	// Render status bar with done info
	var statusView string
	if m.done {
		if m.err != nil {
			statusView = m.statusBar.View() + " " + FailedStyle.Render(fmt.Sprintf("FAILED: %v", m.err))
		} else {
			statusView = m.statusBar.View() + " " + CompletedStyle.Render("DONE")
		}
	} else {
		statusView = m.statusBar.View()
	}

	// Assemble full view
	var b strings.Builder
	b.WriteString(stepsView)
	b.WriteString("\n")
	b.WriteString(logView)
	b.WriteString("\n")
	b.WriteString(statusView)

	return b.String()
}

// handleWindowSize updates dimensions on all panels.
func (m AppModel) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	return m, nil
}

// handleEngineEvent routes engine lifecycle events to the appropriate sub-panels.
func (m AppModel) handleEngineEvent(msg EngineEventMsg) (tea.Model, tea.Cmd) {
	evt := msg.Event

	// Always append to log panel
	m.log.Append(evt)

	switch evt.Type {
	case railway.EventWorkflowStarted:
		m.statusBar.Start()

	case railway.EventStepStarted:
		m.steps.SetStepStatus(evt.Step, StepRunning)
		m.statusBar.SetActiveStep(evt.Step)

	case railway.EventStepCompleted:
		m.steps.SetStepStatus(evt.Step, StepCompleted)
		m.completed++
		m.statusBar.SetCompleted(m.completed)

	case railway.EventStepFailed:
		m.steps.SetStepStatus(evt.Step, StepFailed)

	case railway.EventStepSkipped:
		m.steps.SetStepStatus(evt.Step, StepSkipped)

	case railway.EventStepRetrying:
		m.steps.SetRetry(evt.Step, evt.Data["attempt"], evt.Data["max_attempts"])
	}

	return m, nil
}

// handleWorkflowResult marks the run as done and stores the outcome.
func (m AppModel) handleWorkflowResult(msg WorkflowResultMsg) (tea.Model, tea.Cmd) {
	m.done = true
	m.err = msg.Err
	m.final = msg.Final
	m.statusBar.SetActiveStep("")
	return m, nil
}

// handleTick advances the spinner and returns a new tick if the run is still going.
func (m AppModel) handleTick(_ TickMsg) (tea.Model, tea.Cmd) {
	m.steps.AdvanceSpinner()
	if m.done {
		return m, nil
	}
	return m, TickCmd(100 * time.Millisecond)
}

// handleKeyMsg processes keyboard input for app-level shortcuts.
func (m AppModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.focus = m.nextFocus()
		m.log.SetFocused(m.focus == FocusLog)
		return m, nil
	}

	return m, nil
}

// nextFocus cycles the focus target between the steps panel and the log.
func (m AppModel) nextFocus() FocusTarget {
	switch m.focus {
	case FocusSteps:
		return FocusLog
	case FocusLog:
		return FocusSteps
	default:
		return FocusSteps
	}
}
