// ABOUTME: Parses BMAD-format markdown story files into Story records via the goldmark AST.
// ABOUTME: A story is a title heading plus Status, Story, Acceptance Criteria, and Tasks sections.
package bridge

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Story is one parsed BMAD story document.
type Story struct {
	Path     string   // source file, empty when parsed from memory
	Title    string   // first level-1 heading
	Status   string   // first paragraph under "## Status"
	Story    string   // paragraphs under "## Story"
	Criteria []string // list items under "## Acceptance Criteria"
	Tasks    []Task   // top-level checklist items under "## Tasks"
}

// Task is one checklist entry from a story's Tasks section.
type Task struct {
	Text string
	Done bool
}

// DoneStatus reports whether the story's status marks it finished.
func (s Story) DoneStatus() bool {
	return strings.EqualFold(strings.TrimSpace(s.Status), "done")
}

// ParseStory parses BMAD story markdown. The document must open with a
// level-1 title heading; every section is optional.
func ParseStory(source []byte) (*Story, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var story Story
	section := ""
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(textOf(node, source))
			if node.Level == 1 && story.Title == "" {
				story.Title = title
				section = ""
				continue
			}
			section = sectionName(title)

		case *ast.Paragraph:
			body := strings.TrimSpace(textOf(node, source))
			switch section {
			case "status":
				if story.Status == "" {
					story.Status = body
				}
			case "story":
				if story.Story != "" {
					story.Story += "\n"
				}
				story.Story += body
			}

		case *ast.List:
			switch section {
			case "acceptance criteria":
				for li := node.FirstChild(); li != nil; li = li.NextSibling() {
					story.Criteria = append(story.Criteria, itemText(li, source))
				}
			case "tasks":
				for li := node.FirstChild(); li != nil; li = li.NextSibling() {
					story.Tasks = append(story.Tasks, parseTask(itemText(li, source)))
				}
			}
		}
	}

	if story.Title == "" {
		return nil, fmt.Errorf("story has no title heading")
	}
	return &story, nil
}

// LoadStory reads and parses one story file.
func LoadStory(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story %s: %w", path, err)
	}
	story, err := ParseStory(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	story.Path = path
	return story, nil
}

// LoadStories parses every .md file in dir, sorted by filename. Any parse
// failure aborts the load so callers never file a half-read directory.
func LoadStories(dir string) ([]Story, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read stories dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var stories []Story
	for _, name := range names {
		story, err := LoadStory(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		stories = append(stories, *story)
	}
	return stories, nil
}

// sectionName normalizes a level-2 heading to a section key. "Tasks /
// Subtasks" and plain "Tasks" are the same section.
func sectionName(title string) string {
	name := strings.ToLower(title)
	if idx := strings.Index(name, "/"); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}

// itemText returns the text of a list item's own first block, excluding any
// nested sublist.
func itemText(li ast.Node, source []byte) string {
	if first := li.FirstChild(); first != nil {
		return strings.TrimSpace(textOf(first, source))
	}
	return strings.TrimSpace(textOf(li, source))
}

// parseTask reads the "[ ]"/"[x]" checkbox convention off a list item.
func parseTask(raw string) Task {
	switch {
	case strings.HasPrefix(raw, "[x] "), strings.HasPrefix(raw, "[X] "):
		return Task{Text: strings.TrimSpace(raw[4:]), Done: true}
	case strings.HasPrefix(raw, "[ ] "):
		return Task{Text: strings.TrimSpace(raw[4:])}
	default:
		return Task{Text: raw}
	}
}

// textOf collects the plain text under a node, preserving line breaks.
func textOf(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
