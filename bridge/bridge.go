// ABOUTME: Syncs parsed BMAD stories to the issue tracker, one issue per unfinished story.
// ABOUTME: Derives a deterministic idempotency key per story so reruns never file duplicates.
package bridge

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

// SyncResult records what happened to one story during a sync.
type SyncResult struct {
	Story   string // story title
	IssueID string // created issue, empty when skipped
	Skipped bool   // story already done
}

// IdempotencyKey derives a stable UUID for a story so re-running the bridge
// cannot double-file it. Keyed on the title: the story's identity survives
// the file moving.
func IdempotencyKey(story Story) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("railcar:bmad:"+story.Title)).String()
}

// Sync files one issue per story that is not already done. Filing stops at
// the first tracker error; the returned results cover the stories processed
// before it.
func Sync(ctx context.Context, stories []Story, filer IssueFiler) ([]SyncResult, error) {
	var results []SyncResult
	for _, story := range stories {
		if story.DoneStatus() {
			log.Printf("component=bridge action=skip_story title=%q status=%s", story.Title, story.Status)
			results = append(results, SyncResult{Story: story.Title, Skipped: true})
			continue
		}

		issue, err := filer.CreateIssue(ctx, story.Title, issueBody(story), IdempotencyKey(story))
		if err != nil {
			return results, fmt.Errorf("sync story %q: %w", story.Title, err)
		}
		log.Printf("component=bridge action=filed_issue title=%q issue_id=%s", story.Title, issue.ID)
		results = append(results, SyncResult{Story: story.Title, IssueID: issue.ID})
	}
	return results, nil
}

// issueBody renders a story as issue markdown.
func issueBody(story Story) string {
	var b strings.Builder
	if story.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n\n", story.Status)
	}
	if story.Story != "" {
		b.WriteString(story.Story)
		b.WriteString("\n")
	}
	if len(story.Criteria) > 0 {
		b.WriteString("\nAcceptance Criteria:\n")
		for i, c := range story.Criteria {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c)
		}
	}
	if len(story.Tasks) > 0 {
		b.WriteString("\nTasks:\n")
		for _, task := range story.Tasks {
			box := " "
			if task.Done {
				box = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", box, task.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
