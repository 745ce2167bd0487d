package ragseed

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultDatasetsServer is the public Hugging Face datasets-server.
const DefaultDatasetsServer = "https://datasets-server.huggingface.co"

const hfPageSize = 100

// HuggingFaceLoader pages dataset rows through the datasets-server API and
// keeps rows with both a question and an answer column.
type HuggingFaceLoader struct {
	Datasets []string
	BaseURL  string
	Config   string
	Split    string
	MaxRows  int
	Fetcher  *Fetcher
}

// Name implements Loader.
func (l HuggingFaceLoader) Name() string { return "huggingface" }

// Load implements Loader.
func (l HuggingFaceLoader) Load(ctx context.Context) ([]Item, error) {
	var out []Item
	for _, ds := range l.Datasets {
		items, err := l.loadDataset(ctx, ds)
		if err != nil {
			return nil, fmt.Errorf("op=ragseed.huggingface: %s: %w", ds, err)
		}
		out = append(out, items...)
	}
	return out, nil
}

func (l HuggingFaceLoader) loadDataset(ctx context.Context, dataset string) ([]Item, error) {
	f := l.Fetcher
	if f == nil {
		f = DefaultFetcher()
	}
	base := strings.TrimRight(l.BaseURL, "/")
	if base == "" {
		base = DefaultDatasetsServer
	}
	cfgName, split := l.Config, l.Split
	if cfgName == "" {
		cfgName = "default"
	}
	if split == "" {
		split = "train"
	}

	var out []Item
	for offset := 0; ; offset += hfPageSize {
		q := url.Values{}
		q.Set("dataset", dataset)
		q.Set("config", cfgName)
		q.Set("split", split)
		q.Set("offset", fmt.Sprint(offset))
		q.Set("length", fmt.Sprint(hfPageSize))
		body, err := f.Get(ctx, base+"/rows?"+q.Encode())
		if err != nil {
			return nil, err
		}
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("invalid json page at offset %d", offset)
		}
		rows := gjson.GetBytes(body, "rows").Array()
		for _, r := range rows {
			row := r.Get("row")
			question := firstString(row, "Question", "question", "QUESTION")
			answer := firstString(row, "Answer", "answer", "ANSWER")
			if question == "" || answer == "" {
				continue
			}
			out = append(out, Item{Text: question, Question: question, Answer: answer, Source: dataset})
		}
		total := int(gjson.GetBytes(body, "num_rows_total").Int())
		next := offset + hfPageSize
		if len(rows) == 0 || next >= total || (l.MaxRows > 0 && next >= l.MaxRows) {
			break
		}
	}
	return out, nil
}

func firstString(row gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(row.Get(k).String()); v != "" {
			return v
		}
	}
	return ""
}
