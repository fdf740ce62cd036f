// ABOUTME: The bmad_sync step: loads BMAD stories from a directory and files tracker issues.
// ABOUTME: Exposes story counts and filed issue IDs as step outputs for downstream steps.
package steps

import (
	"context"
	"fmt"

	"github.com/2389-research/railcar/bridge"
	"github.com/2389-research/railcar/railway"
)

// BMADSync builds the bmad_sync step function over an issue filer.
// Input: stories_dir (required).
// Outputs: issues_created, issue_ids, stories_skipped.
func BMADSync(filer bridge.IssueFiler) railway.StepFunc {
	return func(ctx context.Context, pctx railway.Context) (railway.Context, error) {
		dir, err := requireString(pctx, "stories_dir", "bmad_sync")
		if err != nil {
			return pctx, err
		}

		stories, err := bridge.LoadStories(dir)
		if err != nil {
			return pctx, fmt.Errorf("bmad_sync: %w", err)
		}
		results, err := bridge.Sync(ctx, stories, filer)
		if err != nil {
			return pctx, fmt.Errorf("bmad_sync: %w", err)
		}

		issueIDs := make([]string, 0, len(results))
		skipped := 0
		for _, res := range results {
			if res.Skipped {
				skipped++
				continue
			}
			issueIDs = append(issueIDs, res.IssueID)
		}

		return claimOutputs(pctx, "issues_created", "issue_ids", "stories_skipped").
			WithOutput("issues_created", len(issueIDs)).
			WithOutput("issue_ids", issueIDs).
			WithOutput("stories_skipped", skipped), nil
	}
}
