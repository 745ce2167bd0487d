package ragseed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-mock-interviewer/pkg/textx"
)

type bankYAML struct {
	Source string         `yaml:"source"`
	Items  []string       `yaml:"items"`
	Texts  []string       `yaml:"texts"`
	Data   []bankYAMLItem `yaml:"data"`
}

type bankYAMLItem struct {
	Text     string `yaml:"text"`
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
	Source   string `yaml:"source"`
}

// YAMLLoader reads a local question-bank file. Paths outside Roots (the
// working directory by default) are refused.
type YAMLLoader struct {
	Path  string
	Roots []string
}

// Name implements Loader.
func (l YAMLLoader) Name() string { return "yaml:" + filepath.Base(l.Path) }

// Load implements Loader.
func (l YAMLLoader) Load(_ context.Context) ([]Item, error) {
	roots := l.Roots
	if len(roots) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("op=ragseed.yaml: %w", err)
		}
		roots = []string{wd}
	}
	abs, err := textx.ConfinePath(l.Path, roots...)
	if err != nil {
		return nil, fmt.Errorf("op=ragseed.yaml: %w", err)
	}
	b, err := os.ReadFile(abs) //nolint:gosec // confined above
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("op=ragseed.yaml: seed file not found: %s", l.Path)
		}
		return nil, fmt.Errorf("op=ragseed.yaml: %w", err)
	}
	return parseBankYAML(b, strings.TrimSuffix(filepath.Base(l.Path), filepath.Ext(l.Path)))
}

func parseBankYAML(b []byte, defaultSource string) ([]Item, error) {
	var doc bankYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		var ls []string
		if err2 := yaml.Unmarshal(b, &ls); err2 != nil {
			return nil, fmt.Errorf("op=ragseed.yaml: parse: %w", err)
		}
		doc = bankYAML{Items: ls}
	}
	source := doc.Source
	if source == "" {
		source = defaultSource
	}
	out := make([]Item, 0, len(doc.Data)+len(doc.Items)+len(doc.Texts))
	for _, d := range doc.Data {
		q := strings.TrimSpace(d.Question)
		text := strings.TrimSpace(d.Text)
		if text == "" {
			text = q
		}
		if text == "" {
			continue
		}
		if q == "" {
			q = text
		}
		src := d.Source
		if src == "" {
			src = source
		}
		out = append(out, Item{Text: text, Question: q, Answer: strings.TrimSpace(d.Answer), Source: src})
	}
	for _, list := range [][]string{doc.Items, doc.Texts} {
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, Item{Text: s, Question: s, Source: source})
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("op=ragseed.yaml: no items")
	}
	return out, nil
}
