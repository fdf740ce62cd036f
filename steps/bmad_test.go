// ABOUTME: Tests for the bmad_sync step: directory loading, output counts, and error paths.
// ABOUTME: Uses a fake filer so no tracker binary is involved.
package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/2389-research/railcar/bridge"
	"github.com/2389-research/railcar/railway"
)

type fakeFiler struct {
	calls int
	err   error
}

func (f *fakeFiler) CreateIssue(ctx context.Context, title, body, key string) (*bridge.Issue, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &bridge.Issue{ID: fmt.Sprintf("ISS-%d", f.calls)}, nil
}

func writeStory(t *testing.T, dir, name, title, status string) {
	t.Helper()
	content := "# " + title + "\n\n## Status\n\n" + status + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBMADSyncFilesStories(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "1.md", "First story", "Draft")
	writeStory(t, dir, "2.md", "Finished story", "Done")
	writeStory(t, dir, "3.md", "Third story", "InProgress")

	filer := &fakeFiler{}
	step := BMADSync(filer)

	pctx := railway.NewContextWithInputs(map[string]any{"stories_dir": dir})
	out, err := step(context.Background(), pctx)
	if err != nil {
		t.Fatalf("BMADSync: %v", err)
	}

	if got, _ := out.Output("issues_created"); got != 2 {
		t.Errorf("issues_created = %v", got)
	}
	if got, _ := out.Output("stories_skipped"); got != 1 {
		t.Errorf("stories_skipped = %v", got)
	}
	ids, _ := out.Output("issue_ids")
	if !reflect.DeepEqual(ids, []string{"ISS-1", "ISS-2"}) {
		t.Errorf("issue_ids = %v", ids)
	}
}

func TestBMADSyncRequiresStoriesDir(t *testing.T) {
	step := BMADSync(&fakeFiler{})

	_, err := step(context.Background(), railway.NewContext())
	if err == nil {
		t.Fatal("expected error for missing stories_dir")
	}
	if !strings.Contains(err.Error(), "stories_dir") {
		t.Errorf("error = %v", err)
	}
}

func TestBMADSyncMissingDirectory(t *testing.T) {
	step := BMADSync(&fakeFiler{})

	pctx := railway.NewContextWithInputs(map[string]any{
		"stories_dir": filepath.Join(t.TempDir(), "absent"),
	})
	_, err := step(context.Background(), pctx)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if !strings.Contains(err.Error(), "bmad_sync") {
		t.Errorf("error = %v", err)
	}
}

func TestBMADSyncPropagatesTrackerError(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "1.md", "Story", "Draft")

	step := BMADSync(&fakeFiler{err: errors.New("tracker down")})

	pctx := railway.NewContextWithInputs(map[string]any{"stories_dir": dir})
	_, err := step(context.Background(), pctx)
	if err == nil {
		t.Fatal("expected tracker error")
	}
	if !strings.Contains(err.Error(), "tracker down") {
		t.Errorf("error = %v", err)
	}
}
