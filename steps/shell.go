// ABOUTME: The reserved shell-dispatch step: runs inputs["shell_command"] via sh -c in its own process group.
// ABOUTME: Captures exit code, stdout, and stderr into outputs; non-zero exit is a ShellCommandFailed error.
package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/2389-research/railcar/railway"
)

// maxCaptureBytes is the maximum size of stdout/stderr carried in outputs or
// error context. Output beyond this is truncated with a marker.
const maxCaptureBytes = 10 * 1024 // 10KB

// defaultShellTimeout bounds a shell step that specifies no
// shell_timeout_seconds input.
const defaultShellTimeout = 10 * time.Minute

// shellResultKeys are the output keys this step produces. The step removes
// them from its inputs before returning: a previous shell step's promoted
// results would otherwise collide at promotion time.
var shellResultKeys = []string{"exit_code", "stdout", "stderr"}

// Shell is the reserved shell-dispatch implementation. It reads the command
// from inputs["shell_command"], runs it through sh -c with its own process
// group, and reports results in the exit_code, stdout, and stderr outputs.
// Optional inputs: shell_timeout_seconds (number), shell_dir (string).
func Shell(ctx context.Context, pctx railway.Context) (railway.Context, error) {
	command, ok := stringInput(pctx, railway.ShellCommandKey)
	if !ok || command == "" {
		return pctx, railway.NewStepError("", railway.ErrorTypeShellCommandFailed,
			fmt.Sprintf("no %s input present for shell dispatch", railway.ShellCommandKey))
	}

	timeout := defaultShellTimeout
	if seconds, present, err := floatInput(pctx, "shell_timeout_seconds"); err != nil {
		return pctx, railway.NewStepError("", railway.ErrorTypeShellCommandFailed, err.Error())
	} else if present && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)

	// Set process group so the entire tree dies on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if dir, ok := stringInput(pctx, "shell_dir"); ok && dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return pctx, railway.NewStepError("", railway.ErrorTypeShellCommandFailed,
				fmt.Sprintf("invalid shell_dir %q: %v", dir, err))
		}
		cmd.Dir = dir
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	stdout := truncateOutput(stdoutBuf.String())
	stderr := truncateOutput(stderrBuf.String())

	if runErr != nil {
		exitCode := extractExitCode(runErr)

		if cmdCtx.Err() == context.DeadlineExceeded {
			killProcessGroup(cmd)
			return pctx, railway.NewStepError("", railway.ErrorTypeShellCommandFailed,
				fmt.Sprintf("command timed out after %s", timeout)).
				WithContext("timeout_seconds", timeout.Seconds()).
				WithContext("command", command).
				WithContext("stdout", stdout).
				WithContext("stderr", stderr).
				WithCause(runErr)
		}

		return pctx, railway.NewStepError("", railway.ErrorTypeShellCommandFailed,
			fmt.Sprintf("command exited with status %d", exitCode)).
			WithContext("exit_code", exitCode).
			WithContext("command", command).
			WithContext("stdout", stdout).
			WithContext("stderr", stderr).
			WithCause(runErr)
	}

	next := claimOutputs(pctx, append([]string{railway.ShellCommandKey}, shellResultKeys...)...)
	return next.
		WithOutput("exit_code", 0).
		WithOutput("stdout", stdout).
		WithOutput("stderr", stderr), nil
}

// truncateOutput caps captured output at maxCaptureBytes.
func truncateOutput(s string) string {
	if len(s) <= maxCaptureBytes {
		return s
	}
	return s[:maxCaptureBytes] + "\n[output truncated at 10KB]"
}

// extractExitCode pulls the integer exit code from an *exec.ExitError,
// defaulting to 1 if the type doesn't match.
func extractExitCode(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

// killProcessGroup sends SIGKILL to the command's entire process group so
// children spawned by the shell are terminated too.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
}
