package postgres

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// DefaultHistoryLimit bounds ListByUser when the caller passes no limit.
const DefaultHistoryLimit = 20

// InterviewRepo persists interview records.
type InterviewRepo struct{ Pool PgxPool }

// NewInterviewRepo constructs an InterviewRepo with the given pool.
func NewInterviewRepo(p PgxPool) *InterviewRepo { return &InterviewRepo{Pool: p} }

// Create stores a started interview and returns its id (a ULID when empty).
func (r *InterviewRepo) Create(ctx domain.Context, iv domain.Interview) (string, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "interviews"),
	)
	id := iv.ID
	if id == "" {
		id = ulid.Make().String()
	}
	q := `INSERT INTO interviews (id, user_id, job_role, resume_text, created_at) VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.Pool.Exec(ctx, q, id, iv.UserID, iv.JobRole, iv.ResumeText, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=interview.create: %w", mapErr(err))
	}
	return id, nil
}

// Complete stores the evaluation of an interview.
func (r *InterviewRepo) Complete(ctx domain.Context, id string, rep domain.Report) error {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "interviews"),
		attribute.String("interview.verdict", string(rep.Verdict)),
	)
	q := `UPDATE interviews SET feedback_summary=$2, score=$3, verdict=$4, completed_at=$5 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, rep.Summary, rep.Score, string(rep.Verdict), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=interview.complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=interview.complete: %w", domain.ErrNotFound)
	}
	return nil
}

// Get loads an interview by id.
func (r *InterviewRepo) Get(ctx domain.Context, id string) (domain.Interview, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "interviews"),
	)
	q := `SELECT id, user_id, job_role, resume_text, feedback_summary, score, verdict, created_at, completed_at FROM interviews WHERE id=$1`
	var iv domain.Interview
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&iv.ID, &iv.UserID, &iv.JobRole, &iv.ResumeText, &iv.FeedbackSummary, &iv.Score, &iv.Verdict, &iv.CreatedAt, &iv.CompletedAt); err != nil {
		return domain.Interview{}, fmt.Errorf("op=interview.get: %w", mapErr(err))
	}
	return iv, nil
}

// ListByUser returns the user's interviews, newest first.
func (r *InterviewRepo) ListByUser(ctx domain.Context, userID string, limit int) ([]domain.Interview, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.ListByUser")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "interviews"),
	)
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	q := `SELECT id, user_id, job_role, resume_text, feedback_summary, score, verdict, created_at, completed_at
	      FROM interviews WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=interview.list_by_user: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Interview, 0, limit)
	for rows.Next() {
		var iv domain.Interview
		if err := rows.Scan(&iv.ID, &iv.UserID, &iv.JobRole, &iv.ResumeText, &iv.FeedbackSummary, &iv.Score, &iv.Verdict, &iv.CreatedAt, &iv.CompletedAt); err != nil {
			return nil, fmt.Errorf("op=interview.list_by_user: scan: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=interview.list_by_user: %w", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}
