package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// UserRepo persists users.
type UserRepo struct{ Pool PgxPool }

// NewUserRepo constructs a UserRepo with the given pool.
func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

// Create stores a new user and returns its id. Duplicate usernames map to domain.ErrConflict.
func (r *UserRepo) Create(ctx domain.Context, u domain.User) (string, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	)
	if strings.TrimSpace(u.Username) == "" || u.PasswordHash == "" {
		return "", fmt.Errorf("op=user.create: %w", domain.ErrInvalidArgument)
	}
	id := u.ID
	if id == "" {
		id = uuid.New().String()
	}
	role := u.CurrentRole
	if role == "" {
		role = domain.DefaultRole
	}
	q := `INSERT INTO users (id, username, password_hash, current_role, resume_text, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.Pool.Exec(ctx, q, id, u.Username, u.PasswordHash, role, u.ResumeText, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=user.create: %w", mapErr(err))
	}
	return id, nil
}

// GetByUsername loads a user or returns domain.ErrNotFound.
func (r *UserRepo) GetByUsername(ctx domain.Context, username string) (domain.User, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.GetByUsername")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
	)
	q := `SELECT id, username, password_hash, current_role, resume_text, created_at FROM users WHERE username=$1`
	var u domain.User
	if err := r.Pool.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CurrentRole, &u.ResumeText, &u.CreatedAt); err != nil {
		return domain.User{}, fmt.Errorf("op=user.get_by_username: %w", mapErr(err))
	}
	return u, nil
}

// UpdateResume replaces the stored resume text of a user.
func (r *UserRepo) UpdateResume(ctx domain.Context, username, resumeText string) error {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.UpdateResume")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
	)
	tag, err := r.Pool.Exec(ctx, `UPDATE users SET resume_text=$2 WHERE username=$1`, username, resumeText)
	if err != nil {
		return fmt.Errorf("op=user.update_resume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=user.update_resume: %w", domain.ErrNotFound)
	}
	return nil
}
