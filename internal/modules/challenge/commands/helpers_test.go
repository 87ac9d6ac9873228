package commands

import (
	"context"
	"testing"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func uniqueName() string {
	return "user-" + uuid.NewString()[:8]
}

func createUser(t *testing.T, name string) int64 {
	t.Helper()

	id, err := tql.QueryFirst[int64](
		context.Background(),
		fixture.Require(t),
		"INSERT INTO users (name, password_hash) VALUES ($1, 'hash') RETURNING id;",
		name,
	)
	require.NoError(t, err)

	return id
}

func createChallenge(t *testing.T, poster, opponent, title string) int64 {
	t.Helper()

	handler := NewCreateChallengeCommandHandler(fixture.Require(t))
	response, err := handler.Handle(context.Background(), CreateChallengeCommand{
		PosterName:   poster,
		OpponentName: opponent,
		Title:        title,
		Activity:     "running",
	})
	require.NoError(t, err)

	return response.ChallengeID
}

func countRows(t *testing.T, query string, params ...any) int {
	t.Helper()

	count, err := tql.QueryFirst[int](context.Background(), fixture.Require(t), query, params...)
	require.NoError(t, err)

	return count
}
