// ABOUTME: File I/O step implementations: write_file, read_file, remove_file.
// ABOUTME: Each reads a path input and produces only the keys it adds, so write-read-remove chains promote cleanly.
package steps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/2389-research/railcar/railway"
)

// WriteFile writes the content input to the path input, creating parent
// directories as needed. Outputs: written_path, bytes_written.
func WriteFile(ctx context.Context, pctx railway.Context) (railway.Context, error) {
	path, err := requireString(pctx, "path", "write_file")
	if err != nil {
		return pctx, err
	}
	content, _ := stringInput(pctx, "content")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return pctx, fmt.Errorf("write_file: creating parent directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return pctx, fmt.Errorf("write_file: %w", err)
	}

	return claimOutputs(pctx, "written_path", "bytes_written").
		WithOutput("written_path", path).
		WithOutput("bytes_written", len(content)), nil
}

// ReadFile reads the file at the path input. Outputs: content.
func ReadFile(ctx context.Context, pctx railway.Context) (railway.Context, error) {
	path, err := requireString(pctx, "path", "read_file")
	if err != nil {
		return pctx, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pctx, fmt.Errorf("read_file: %w", err)
	}

	return claimOutputs(pctx, "content").WithOutput("content", string(data)), nil
}

// RemoveFile removes the file at the path input. A file that is already
// absent is not an error. Outputs: removed (false when the file was absent).
func RemoveFile(ctx context.Context, pctx railway.Context) (railway.Context, error) {
	path, err := requireString(pctx, "path", "remove_file")
	if err != nil {
		return pctx, err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return claimOutputs(pctx, "removed").WithOutput("removed", false), nil
		}
		return pctx, fmt.Errorf("remove_file: %w", err)
	}

	return claimOutputs(pctx, "removed").WithOutput("removed", true), nil
}
