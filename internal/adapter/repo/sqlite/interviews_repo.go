package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

const defaultHistoryLimit = 20

// InterviewRepo persists interview records in SQLite.
type InterviewRepo struct{ DB *sql.DB }

// NewInterviewRepo constructs an InterviewRepo.
func NewInterviewRepo(db *sql.DB) *InterviewRepo { return &InterviewRepo{DB: db} }

// Create stores a started interview and returns its id.
func (r *InterviewRepo) Create(ctx domain.Context, iv domain.Interview) (string, error) {
	id := iv.ID
	if id == "" {
		id = ulid.Make().String()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO interviews (id, user_id, job_role, resume_text, created_at) VALUES (?,?,?,?,?)`,
		id, iv.UserID, iv.JobRole, iv.ResumeText, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=interview.create: %w", mapErr(err))
	}
	return id, nil
}

// Complete stores the evaluation of an interview.
func (r *InterviewRepo) Complete(ctx domain.Context, id string, rep domain.Report) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE interviews SET feedback_summary = ?, score = ?, verdict = ?, completed_at = ? WHERE id = ?`,
		rep.Summary, rep.Score, string(rep.Verdict), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("op=interview.complete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("op=interview.complete: %w", domain.ErrNotFound)
	}
	return nil
}

const interviewColumns = `id, user_id, job_role, resume_text, feedback_summary, score, verdict, created_at, completed_at`

type scanner interface{ Scan(dest ...any) error }

func scanInterview(s scanner) (domain.Interview, error) {
	var (
		iv        domain.Interview
		score     sql.NullInt64
		completed sql.NullTime
	)
	if err := s.Scan(&iv.ID, &iv.UserID, &iv.JobRole, &iv.ResumeText, &iv.FeedbackSummary, &score, &iv.Verdict, &iv.CreatedAt, &completed); err != nil {
		return domain.Interview{}, err
	}
	if score.Valid {
		v := int(score.Int64)
		iv.Score = &v
	}
	if completed.Valid {
		t := completed.Time
		iv.CompletedAt = &t
	}
	return iv, nil
}

// Get loads an interview by id.
func (r *InterviewRepo) Get(ctx domain.Context, id string) (domain.Interview, error) {
	iv, err := scanInterview(r.DB.QueryRowContext(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = ?`, id))
	if err != nil {
		return domain.Interview{}, fmt.Errorf("op=interview.get: %w", mapErr(err))
	}
	return iv, nil
}

// ListByUser returns the user's interviews, newest first.
func (r *InterviewRepo) ListByUser(ctx domain.Context, userID string, limit int) ([]domain.Interview, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=interview.list_by_user: %w", err)
	}
	defer rows.Close()
	var out []domain.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("op=interview.list_by_user: scan: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=interview.list_by_user: %w", err)
	}
	return out, nil
}

// CleanupService deletes interviews older than the retention period.
type CleanupService struct {
	DB            *sql.DB
	RetentionDays int
}

// NewCleanupService creates a cleanup service; non-positive retention means 90 days.
func NewCleanupService(db *sql.DB, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{DB: db, RetentionDays: retentionDays}
}

// CleanupOldData deletes expired interviews and returns the count.
func (s *CleanupService) CleanupOldData(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)
	res, err := s.DB.ExecContext(ctx, `DELETE FROM interviews WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=cleanup.old_data: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Info("data cleanup completed", slog.Int64("deleted_interviews", n), slog.Time("cutoff", cutoff))
	return n, nil
}

// RunPeriodic runs the cleanup immediately and then on every interval until ctx ends.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	if _, err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
