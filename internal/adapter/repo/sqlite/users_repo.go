package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// UserRepo persists users in SQLite.
type UserRepo struct{ DB *sql.DB }

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create stores a new user and returns its id.
func (r *UserRepo) Create(ctx domain.Context, u domain.User) (string, error) {
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
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, current_role, resume_text, created_at) VALUES (?,?,?,?,?,?)`,
		id, u.Username, u.PasswordHash, role, u.ResumeText, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=user.create: %w", mapErr(err))
	}
	return id, nil
}

// GetByUsername loads a user or returns domain.ErrNotFound.
func (r *UserRepo) GetByUsername(ctx domain.Context, username string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, username, password_hash, current_role, resume_text, created_at FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CurrentRole, &u.ResumeText, &u.CreatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=user.get_by_username: %w", mapErr(err))
	}
	return u, nil
}

// UpdateResume replaces the stored resume text of a user.
func (r *UserRepo) UpdateResume(ctx domain.Context, username, resumeText string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET resume_text = ? WHERE username = ?`, resumeText, username)
	if err != nil {
		return fmt.Errorf("op=user.update_resume: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("op=user.update_resume: %w", domain.ErrNotFound)
	}
	return nil
}
