package ragseed

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// GitHubMarkdownLoader pulls Q/A pairs out of markdown files hosted on GitHub.
// Files are written as "Q1. question", a line starting "Answer:" or "Ans:",
// then the answer up to the next "Q<n>." line.
type GitHubMarkdownLoader struct {
	URLs    []string
	Fetcher *Fetcher
}

// Name implements Loader.
func (l GitHubMarkdownLoader) Name() string { return "github" }

// Load implements Loader. Any failed URL fails the loader.
func (l GitHubMarkdownLoader) Load(ctx context.Context) ([]Item, error) {
	f := l.Fetcher
	if f == nil {
		f = DefaultFetcher()
	}
	var out []Item
	for _, u := range l.URLs {
		body, err := f.Get(ctx, RawGitHubURL(u))
		if err != nil {
			return nil, fmt.Errorf("op=ragseed.github: %w", err)
		}
		for _, p := range ParseMarkdownQA(string(body)) {
			out = append(out, Item{Text: p.Question, Question: p.Question, Answer: p.Answer, Source: "Github"})
		}
	}
	return out, nil
}

// RawGitHubURL rewrites a github.com blob URL to its raw content URL.
func RawGitHubURL(u string) string {
	u = strings.Replace(u, "github.com", "raw.githubusercontent.com", 1)
	return strings.Replace(u, "/blob/", "/", 1)
}

// QA is one extracted question/answer pair.
type QA struct {
	Question string
	Answer   string
}

var (
	mdQuestion = regexp.MustCompile(`Q\d+[:.]\s*`)
	mdAnswer   = regexp.MustCompile(`\n+(?:Answer:|Ans:)`)
	mdNextQ    = regexp.MustCompile(`\nQ\d+[:.]`)
)

// ParseMarkdownQA extracts pairs in document order. A question runs up to
// the first answer marker after it; the answer runs up to the next question
// line or the end of the text.
func ParseMarkdownQA(text string) []QA {
	var out []QA
	pos := 0
	for pos < len(text) {
		loc := mdQuestion.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		qStart := pos + loc[1]
		am := mdAnswer.FindStringIndex(text[qStart:])
		if am == nil {
			break
		}
		question := text[qStart : qStart+am[0]]
		aStart := qStart + am[1]
		end := len(text)
		if nq := mdNextQ.FindStringIndex(text[aStart:]); nq != nil {
			end = aStart + nq[0]
		}
		out = append(out, QA{Question: strings.TrimSpace(question), Answer: strings.TrimSpace(text[aStart:end])})
		pos = end
	}
	return out
}
