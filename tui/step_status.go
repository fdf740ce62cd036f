// ABOUTME: Defines the StepStatus enum representing workflow step execution states.
// ABOUTME: Provides String/Icon methods and spinner animation frames for TUI rendering.
package tui

// StepStatus represents the execution state of a workflow step.
type StepStatus int

const (
	StepPending   StepStatus = iota // Step has not started
	StepRunning                     // Step is currently executing
	StepCompleted                   // Step finished successfully
	StepFailed                      // Step finished with an error
	StepSkipped                     // Step was skipped
)

// String returns the lowercase name of the status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepCompleted:
		return "completed"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Icon returns a bracket-style status marker for TUI display.
func (s StepStatus) Icon() string {
	switch s {
	case StepPending:
		return "[ ]"
	case StepRunning:
		return "[~]"
	case StepCompleted:
		return "[*]"
	case StepFailed:
		return "[!]"
	case StepSkipped:
		return "[-]"
	default:
		return "[?]"
	}
}

// SpinnerFrames contains the Braille-dot animation frames for indicating
// actively running steps in the TUI.
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
