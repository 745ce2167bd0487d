package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

func TestEnsureSchema(t *testing.T) {
	pool := &poolStub{}
	require.NoError(t, postgres.EnsureSchema(context.Background(), pool))
	assert.Contains(t, pool.lastSQL, "CREATE TABLE IF NOT EXISTS users")
	assert.Contains(t, pool.lastSQL, "CREATE TABLE IF NOT EXISTS interviews")

	require.Error(t, postgres.EnsureSchema(context.Background(), &poolStub{execErr: errors.New("x")}))
}

func TestUserRepo_Create(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewUserRepo(pool)

	id, err := repo.Create(context.Background(), domain.User{Username: "ada", PasswordHash: "h"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, domain.DefaultRole, pool.lastArgs[3])

	_, err = repo.Create(context.Background(), domain.User{Username: " ", PasswordHash: "h"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	dup := postgres.NewUserRepo(&poolStub{execErr: &pgconn.PgError{Code: "23505"}})
	_, err = dup.Create(context.Background(), domain.User{Username: "ada", PasswordHash: "h"})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserRepo_GetByUsername(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "u1"
		*(dest[1].(*string)) = "ada"
		*(dest[2].(*string)) = "hash"
		*(dest[3].(*string)) = domain.RoleMLEngineer
		*(dest[4].(*string)) = "resume"
		*(dest[5].(*time.Time)) = created
		return nil
	}}}
	u, err := postgres.NewUserRepo(pool).GetByUsername(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, domain.User{ID: "u1", Username: "ada", PasswordHash: "hash", CurrentRole: domain.RoleMLEngineer, ResumeText: "resume", CreatedAt: created}, u)

	missing := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	_, err = postgres.NewUserRepo(missing).GetByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepo_UpdateResume(t *testing.T) {
	ok := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	require.NoError(t, postgres.NewUserRepo(ok).UpdateResume(context.Background(), "ada", "text"))
	assert.Equal(t, []any{"ada", "text"}, ok.lastArgs)

	none := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 0")}
	require.ErrorIs(t, postgres.NewUserRepo(none).UpdateResume(context.Background(), "ghost", "text"), domain.ErrNotFound)
}

func TestInterviewRepo_CreateAndComplete(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewInterviewRepo(pool)

	id, err := repo.Create(context.Background(), domain.Interview{UserID: "u1", JobRole: domain.RoleDataAnalyst})
	require.NoError(t, err)
	assert.Len(t, id, 26)

	rep := domain.Report{Verdict: domain.VerdictPass, Score: 82, Summary: "solid"}
	require.NoError(t, repo.Complete(context.Background(), id, rep))
	assert.Equal(t, id, pool.lastArgs[0])
	assert.Equal(t, "solid", pool.lastArgs[1])
	assert.Equal(t, 82, pool.lastArgs[2])
	assert.Equal(t, "Pass", pool.lastArgs[3])

	none := postgres.NewInterviewRepo(&poolStub{execTag: pgconn.NewCommandTag("UPDATE 0")})
	require.ErrorIs(t, none.Complete(context.Background(), "missing", rep), domain.ErrNotFound)
}

func TestInterviewRepo_Get(t *testing.T) {
	score := 55
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "iv1"
		*(dest[1].(*string)) = "u1"
		*(dest[6].(*string)) = "Fail"
		*(dest[5].(**int)) = &score
		return nil
	}}}
	iv, err := postgres.NewInterviewRepo(pool).Get(context.Background(), "iv1")
	require.NoError(t, err)
	assert.Equal(t, "iv1", iv.ID)
	require.NotNil(t, iv.Score)
	assert.Equal(t, 55, *iv.Score)
	assert.Nil(t, iv.CompletedAt)

	missing := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	_, err = postgres.NewInterviewRepo(missing).Get(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInterviewRepo_ListByUser(t *testing.T) {
	row := func(id string) func(dest ...any) error {
		return func(dest ...any) error {
			*(dest[0].(*string)) = id
			*(dest[1].(*string)) = "u1"
			return nil
		}
	}
	pool := &poolStub{rows: &rowsStub{rows: []func(dest ...any) error{row("b"), row("a")}}}
	out, err := postgres.NewInterviewRepo(pool).ListByUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Contains(t, pool.lastSQL, "ORDER BY created_at DESC")
	assert.Equal(t, []any{"u1", postgres.DefaultHistoryLimit}, pool.lastArgs)

	_, err = postgres.NewInterviewRepo(&poolStub{queryErr: errors.New("down")}).ListByUser(context.Background(), "u1", 5)
	require.Error(t, err)

	broken := &poolStub{rows: &rowsStub{err: errors.New("conn reset")}}
	_, err = postgres.NewInterviewRepo(broken).ListByUser(context.Background(), "u1", 5)
	require.Error(t, err)
}
