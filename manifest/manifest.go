// ABOUTME: Loads and saves workflow manifests: YAML documents holding a list of workflow descriptors.
// ABOUTME: Uses gopkg.in/yaml.v3 against the descriptor structs' yaml tags.
package manifest

import (
	"fmt"
	"os"

	"github.com/2389-research/railcar/railway"
	"gopkg.in/yaml.v3"
)

// Document is the top-level manifest shape.
type Document struct {
	Workflows []railway.WorkflowDescriptor `yaml:"workflows"`
}

// Parse decodes manifest YAML into workflow descriptors. Structural only:
// call Validate to catch semantic problems before running anything.
func Parse(data []byte) ([]railway.WorkflowDescriptor, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return doc.Workflows, nil
}

// Load reads and parses a manifest file.
func Load(path string) ([]railway.WorkflowDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	workflows, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return workflows, nil
}

// Marshal renders workflow descriptors back to manifest YAML.
func Marshal(workflows []railway.WorkflowDescriptor) ([]byte, error) {
	data, err := yaml.Marshal(&Document{Workflows: workflows})
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return data, nil
}

// Save writes workflow descriptors to a manifest file.
func Save(path string, workflows []railway.WorkflowDescriptor) error {
	data, err := Marshal(workflows)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// Find returns the workflow with the given name, or nil if absent.
func Find(workflows []railway.WorkflowDescriptor, name string) *railway.WorkflowDescriptor {
	for i := range workflows {
		if workflows[i].Name == name {
			return &workflows[i]
		}
	}
	return nil
}
