package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "://bad")
	require.Error(t, err)
}

func TestMapErr(t *testing.T) {
	assert.ErrorIs(t, mapErr(pgx.ErrNoRows), domain.ErrNotFound)
	assert.ErrorIs(t, mapErr(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})), domain.ErrConflict)

	other := errors.New("boom")
	assert.Equal(t, other, mapErr(other))
	assert.NotErrorIs(t, mapErr(&pgconn.PgError{Code: "23503"}), domain.ErrConflict)
}
