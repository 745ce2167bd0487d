package ragseed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minAnswerLen drops answers that are too short to be useful.
const minAnswerLen = 10

// HTMLArticleLoader scrapes numbered Q/A articles. Elements starting with
// "Q<n>." or "Q<n>:" open a question; following paragraphs form its answer.
type HTMLArticleLoader struct {
	URLs    []string
	Source  string
	Fetcher *Fetcher
}

// Name implements Loader.
func (l HTMLArticleLoader) Name() string { return "html" }

// Load implements Loader. A page that cannot be fetched is skipped.
func (l HTMLArticleLoader) Load(ctx context.Context) ([]Item, error) {
	f := l.Fetcher
	if f == nil {
		f = DefaultFetcher()
	}
	var out []Item
	for _, u := range l.URLs {
		body, err := f.Get(ctx, u)
		if err != nil {
			slog.Warn("skipping article", slog.String("url", u), slog.Any("error", err))
			continue
		}
		src := l.Source
		if src == "" {
			src = hostOf(u)
		}
		items, err := ParseArticleQA(body, src)
		if err != nil {
			return nil, fmt.Errorf("op=ragseed.html: %s: %w", u, err)
		}
		out = append(out, items...)
	}
	return out, nil
}

var (
	htmlQuestion  = regexp.MustCompile(`^Q\d+[.:]`)
	htmlAnsPrefix = regexp.MustCompile(`(?i)^(Ans\.|Answer:|Ans)\s*`)
)

// ParseArticleQA walks p, h3 and h4 elements inside div.article-content, or
// the whole document when that container is missing.
func ParseArticleQA(page []byte, source string) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	root := doc.Find("div.article-content").First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	var (
		out      []Item
		question string
		answer   []string
	)
	emit := func() {
		if question == "" || len(answer) == 0 {
			return
		}
		full := strings.TrimSpace(strings.Join(answer, "\n"))
		if len(full) <= minAnswerLen {
			return
		}
		out = append(out, Item{Text: "Question: " + question, Question: question, Answer: full, Source: source})
	}
	root.Find("p, h3, h4").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		switch {
		case htmlQuestion.MatchString(text):
			emit()
			question, answer = text, nil
		case question != "":
			if clean := htmlAnsPrefix.ReplaceAllString(text, ""); clean != "" {
				answer = append(answer, clean)
			}
		}
	})
	emit()
	return out, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Host, "www.")
}
