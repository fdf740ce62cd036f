// ABOUTME: Issue filing against the tracker CLI: one `tracker create --json` call per story.
// ABOUTME: Builds the argument list, runs the binary, and extracts the issue ID from JSON output.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultTrackerTimeout = 30 * time.Second

// Issue is the tracker CLI's JSON response to a create call.
type Issue struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// IssueFiler files one issue. Implemented by TrackerClient; tests substitute
// a fake.
type IssueFiler interface {
	CreateIssue(ctx context.Context, title, body, idempotencyKey string) (*Issue, error)
}

// TrackerClient shells out to the tracker CLI.
type TrackerClient struct {
	Bin     string        // tracker binary (default "tracker")
	Dir     string        // working directory for CLI calls
	Timeout time.Duration // per-call timeout (default 30s)
}

// CreateIssue runs `tracker create` and decodes the created issue from its
// JSON output. The idempotency key lets the tracker de-duplicate retried
// filings.
func (c *TrackerClient) CreateIssue(ctx context.Context, title, body, idempotencyKey string) (*Issue, error) {
	bin := c.Bin
	if bin == "" {
		bin = "tracker"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTrackerTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, bin, "create",
		"--title", title,
		"--body", body,
		"--idempotency-key", idempotencyKey,
		"--json")
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("tracker create %q: %w: %s", title, err, detail)
	}

	var issue Issue
	if err := json.Unmarshal(stdout.Bytes(), &issue); err != nil {
		return nil, fmt.Errorf("tracker create %q: decode output: %w", title, err)
	}
	if issue.ID == "" {
		return nil, fmt.Errorf("tracker create %q: response has no issue id", title)
	}
	return &issue, nil
}
