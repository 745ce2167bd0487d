package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/repo/sqlite"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

func TestRepos_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserRepo(db)
	uid, err := users.Create(ctx, domain.User{Username: "grace", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = users.Create(ctx, domain.User{Username: "grace", PasswordHash: "h2"})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = users.Create(ctx, domain.User{Username: "", PasswordHash: "h"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	require.NoError(t, users.UpdateResume(ctx, "grace", "COBOL veteran"))
	require.ErrorIs(t, users.UpdateResume(ctx, "nobody", "x"), domain.ErrNotFound)

	u, err := users.GetByUsername(ctx, "grace")
	require.NoError(t, err)
	assert.Equal(t, uid, u.ID)
	assert.Equal(t, domain.DefaultRole, u.CurrentRole)
	assert.Equal(t, "COBOL veteran", u.ResumeText)
	assert.False(t, u.CreatedAt.IsZero())

	_, err = users.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)

	ivs := sqlite.NewInterviewRepo(db)
	first, err := ivs.Create(ctx, domain.Interview{UserID: uid, JobRole: domain.RoleDataScientist, ResumeText: "COBOL veteran"})
	require.NoError(t, err)
	second, err := ivs.Create(ctx, domain.Interview{UserID: uid, JobRole: domain.RoleDataAnalyst})
	require.NoError(t, err)

	pending, err := ivs.Get(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, pending.Score)
	assert.Nil(t, pending.CompletedAt)

	require.NoError(t, ivs.Complete(ctx, first, domain.Report{Verdict: domain.VerdictPass, Score: 77, Summary: "clear answers"}))
	require.ErrorIs(t, ivs.Complete(ctx, "missing", domain.Report{}), domain.ErrNotFound)

	done, err := ivs.Get(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, done.Score)
	assert.Equal(t, 77, *done.Score)
	assert.Equal(t, "Pass", done.Verdict)
	assert.Equal(t, "clear answers", done.FeedbackSummary)
	assert.NotNil(t, done.CompletedAt)

	_, err = ivs.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	list, err := ivs.ListByUser(ctx, uid, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)

	limited, err := ivs.ListByUser(ctx, uid, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := sqlite.NewCleanupService(db, 30).CleanupOldData(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), " ")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
