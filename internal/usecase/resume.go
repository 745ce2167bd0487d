package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/pkg/textx"
)

// MaxResumeChars bounds the resume text kept for prompts.
const MaxResumeChars = 20000

// ResumeService extracts resume text and stores it on the user.
type ResumeService struct {
	Extractor domain.TextExtractor
	Users     domain.UserRepository
}

// NewResumeService constructs a ResumeService. users may be nil.
func NewResumeService(ex domain.TextExtractor, users domain.UserRepository) ResumeService {
	return ResumeService{Extractor: ex, Users: users}
}

// Ingest extracts text from the uploaded file at path. When username is set
// the text is stored on that user; a storage failure is logged only.
func (s ResumeService) Ingest(ctx context.Context, username, fileName, path string) (string, error) {
	raw, err := s.Extractor.ExtractPath(ctx, fileName, path)
	if err != nil {
		return "", fmt.Errorf("op=resume.ingest: %w", err)
	}
	text := textx.Truncate(textx.SanitizeText(raw), MaxResumeChars)
	if text == "" {
		return "", fmt.Errorf("%w: no text could be extracted", domain.ErrInvalidArgument)
	}
	if username != "" && s.Users != nil {
		if err := s.Users.UpdateResume(ctx, username, text); err != nil {
			obsctx.LoggerFromContext(ctx).Warn("failed to store resume", slog.String("username", username), slog.Any("error", err))
		}
	}
	return text, nil
}
