package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	authdomain "github.com/eskrenkovic/challenge-board/internal/modules/auth/domain"
	"github.com/eskrenkovic/challenge-board/internal/modules/challenge/domain"
	"github.com/eskrenkovic/challenge-board/internal/modules/core"

	"github.com/eskrenkovic/tql"
	"go.uber.org/zap"
)

var ErrAccountCleanupIncomplete = errors.New("some challenges could not be removed")

// AccountCleanupError reports a partial account deletion: the removed
// challenges are gone, the user and the failed challenges remain.
type AccountCleanupError struct {
	RemovedChallenges int
	FailedChallenges  int
}

func (e AccountCleanupError) Error() string {
	return fmt.Sprintf(
		"%s: %d of %d failed",
		ErrAccountCleanupIncomplete,
		e.FailedChallenges,
		e.RemovedChallenges+e.FailedChallenges,
	)
}

func (e AccountCleanupError) Unwrap() error {
	return ErrAccountCleanupIncomplete
}

type DeleteAccountCommand struct {
	DisplayName string `json:"displayName"`
}

func (c DeleteAccountCommand) Validate() error {
	if err := authdomain.ValidateDisplayName(c.DisplayName); err != nil {
		return fmt.Errorf("invalid DisplayName - '%s': %w", c.DisplayName, err)
	}

	return nil
}

type DeleteAccountResponse struct {
	RemovedChallenges int
	FailedChallenges  int
}

type DeleteAccountCommandHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewDeleteAccountCommandHandler(db *sql.DB, logger *zap.Logger) *DeleteAccountCommandHandler {
	return &DeleteAccountCommandHandler{db: db, logger: logger}
}

// Handle removes every challenge the user takes part in and then the user.
// Listed challenges are deleted one by one outside a transaction; a failed
// delete is logged and counted, and the user row is kept so the request can
// be repeated.
func (h *DeleteAccountCommandHandler) Handle(
	ctx context.Context,
	request DeleteAccountCommand,
) (DeleteAccountResponse, error) {
	const userQuery = `
		SELECT
			id
		FROM
			users
		WHERE
			name = $1;`

	userID, err := tql.QueryFirst[int64](ctx, h.db, userQuery, request.DisplayName)
	switch {
	case err != nil && errors.Is(err, sql.ErrNoRows):
		return DeleteAccountResponse{}, core.NewCommandError(http.StatusNotFound, domain.ErrUnknownUser)
	case err != nil:
		return DeleteAccountResponse{}, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to reach database"))
	}

	const challengesQuery = `
		SELECT
			challenge_id
		FROM
			challenge_participants
		WHERE
			user_id = $1
		ORDER BY
			challenge_id;`

	challengeIDs, err := tql.Query[int64](ctx, h.db, challengesQuery, userID)
	if err != nil {
		return DeleteAccountResponse{}, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to load challenges"))
	}

	var response DeleteAccountResponse

	const deleteChallengeStmt = `
		DELETE FROM
			challenges
		WHERE
			id = $1;`

	for _, challengeID := range challengeIDs {
		if _, err := tql.Exec(ctx, h.db, deleteChallengeStmt, challengeID); err != nil {
			h.logger.Warn(
				"failed to delete challenge of deleted account",
				zap.Int64("challenge_id", challengeID),
				zap.String("display_name", request.DisplayName),
				zap.Error(err),
			)
			response.FailedChallenges++
			continue
		}
		response.RemovedChallenges++
	}

	if response.FailedChallenges > 0 {
		return response, core.NewCommandError(http.StatusInternalServerError, AccountCleanupError{
			RemovedChallenges: response.RemovedChallenges,
			FailedChallenges:  response.FailedChallenges,
		})
	}

	removed, err := h.removeUser(ctx, userID)
	if err != nil {
		return response, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to delete user"))
	}
	response.RemovedChallenges += removed

	return response, nil
}

// removeUser deletes the user with every challenge they still take part in.
// The row lock orders it against CreateChallenge: a challenge committed
// since the listing is deleted here, a later one finds the user gone.
func (h *DeleteAccountCommandHandler) removeUser(ctx context.Context, userID int64) (int, error) {
	var removed int

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		const lockStmt = `
			SELECT
				id
			FROM
				users
			WHERE
				id = $1
			FOR UPDATE;`

		_, err := tql.QueryFirst[int64](ctx, tx, lockStmt, userID)
		switch {
		case err != nil && errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return err
		}

		const challengesStmt = `
			DELETE FROM
				challenges
			WHERE
				id IN (
					SELECT
						challenge_id
					FROM
						challenge_participants
					WHERE
						user_id = $1
				);`

		result, err := tql.Exec(ctx, tx, challengesStmt, userID)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(affected)

		const userStmt = `
			DELETE FROM
				users
			WHERE
				id = $1;`

		_, err = tql.Exec(ctx, tx, userStmt, userID)
		return err
	}

	if err := core.Tx(ctx, h.db, txFn, core.WithIsolationLevel(sql.LevelReadCommitted)); err != nil {
		return 0, err
	}

	return removed, nil
}
