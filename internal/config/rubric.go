package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultRubricPath is where the judge rubric override is looked up.
const DefaultRubricPath = "configs/prompts/judge_rubric.yaml"

// rubricYAML represents the structure of prompt YAML files.
type rubricYAML struct {
	Texts []string `yaml:"texts"`
}

// LoadRubric reads a prompt YAML file and joins its texts. A missing file
// yields an empty string and no error so callers fall back to the built-in rubric.
func LoadRubric(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("op=config.LoadRubric: %w", err)
	}
	// #nosec G304 -- prompt files are operator supplied
	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("op=config.LoadRubric: %w", err)
	}
	var doc rubricYAML
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("op=config.LoadRubric: parse %s: %w", path, err)
	}
	if len(doc.Texts) == 0 {
		return "", fmt.Errorf("op=config.LoadRubric: no texts found in %s", path)
	}
	return strings.TrimSpace(strings.Join(doc.Texts, "\n")), nil
}
