// Package textextractor turns uploaded resumes into plain text. PDFs are
// parsed in-process; other office formats go through Apache Tika.
package textextractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/pkg/textx"
)

// AllowedExtensions are the resume formats accepted for upload.
var AllowedExtensions = map[string]bool{".pdf": true, ".txt": true, ".docx": true}

// Extractor implements domain.TextExtractor by routing on the file extension.
type Extractor struct {
	tika  domain.TextExtractor
	roots []string
}

// New builds an Extractor. tika may be nil, in which case .docx is rejected
// and PDFs have no fallback.
func New(tika domain.TextExtractor, roots ...string) *Extractor {
	return &Extractor{tika: tika, roots: roots}
}

// ExtractPath implements domain.TextExtractor.
func (e *Extractor) ExtractPath(ctx context.Context, fileName, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !AllowedExtensions[ext] {
		return "", fmt.Errorf("op=textextractor.extract: %w: unsupported file type %q", domain.ErrInvalidArgument, ext)
	}
	openPath, err := textx.ConfinePath(path, e.roots...)
	if err != nil {
		return "", fmt.Errorf("op=textextractor.extract: %w", err)
	}
	switch ext {
	case ".txt":
		b, err := os.ReadFile(openPath)
		if err != nil {
			return "", fmt.Errorf("op=textextractor.extract: %w", err)
		}
		return textx.SanitizeText(string(b)), nil
	case ".pdf":
		text, err := extractPDF(openPath)
		if err == nil && text != "" {
			return text, nil
		}
		if e.tika == nil {
			if err == nil {
				err = fmt.Errorf("no text layer")
			}
			return "", fmt.Errorf("op=textextractor.extract: %w: pdf: %v", domain.ErrInvalidArgument, err)
		}
		slog.Debug("local pdf extraction failed, falling back to tika", slog.Any("error", err))
		return e.tika.ExtractPath(ctx, fileName, openPath)
	default:
		if e.tika == nil {
			return "", fmt.Errorf("op=textextractor.extract: %w: %s needs a Tika server", domain.ErrInvalidArgument, ext)
		}
		return e.tika.ExtractPath(ctx, fileName, openPath)
	}
}

func extractPDF(path string) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()
	f, err := os.Open(path) //nolint:gosec // path is confined by ConfinePath
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	r, err := pdf.NewReader(f, st.Size())
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return textx.CollapseSpace(buf.String()), nil
}
