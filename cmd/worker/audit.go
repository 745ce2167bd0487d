package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
)

// auditor checks each published report against the stored interview row.
type auditor struct {
	interviews domain.InterviewRepository
}

func (a auditor) handle(ctx context.Context, ev domain.ReportEvent) error {
	lg := obsctx.LoggerFromContext(ctx).With(
		slog.String("interview_id", ev.InterviewID),
		slog.String("user_id", ev.UserID),
	)
	observability.ObserveReport(string(ev.Report.Verdict), ev.Report.Score)
	if ev.InterviewID == "" {
		return fmt.Errorf("op=worker.audit: %w: empty interview id", domain.ErrInvalidArgument)
	}
	if a.interviews == nil {
		lg.Info("report received", slog.String("verdict", string(ev.Report.Verdict)), slog.Int("score", ev.Report.Score))
		return nil
	}
	iv, err := a.interviews.Get(ctx, ev.InterviewID)
	if errors.Is(err, domain.ErrNotFound) {
		lg.Warn("report for unknown interview")
		return nil
	}
	if err != nil {
		return fmt.Errorf("op=worker.audit: %w", err)
	}
	switch {
	case iv.Score == nil:
		lg.Warn("report published but interview not completed")
	case *iv.Score != ev.Report.Score:
		lg.Warn("stored score differs from published report",
			slog.Int("stored", *iv.Score), slog.Int("published", ev.Report.Score))
	default:
		lg.Info("report audited", slog.String("verdict", string(ev.Report.Verdict)), slog.Int("score", ev.Report.Score))
	}
	return nil
}
