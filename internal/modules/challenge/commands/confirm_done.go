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
)

// ConfirmDoneCommand records that ConfirmerName finished a challenge. The
// challenge is addressed by ChallengeID when set, otherwise by title.
type ConfirmDoneCommand struct {
	ConfirmerName  string `json:"confirmerName"`
	ChallengeTitle string `json:"challengeTitle"`
	ChallengeID    int64  `json:"challengeId"`
}

func (c ConfirmDoneCommand) Validate() error {
	var errs []error

	if err := authdomain.ValidateDisplayName(c.ConfirmerName); err != nil {
		errs = append(errs, fmt.Errorf("invalid ConfirmerName - '%s': %w", c.ConfirmerName, err))
	}

	if c.ChallengeID < 0 {
		errs = append(errs, fmt.Errorf("invalid ChallengeID - '%d'", c.ChallengeID))
	}

	if c.ChallengeID == 0 && c.ChallengeTitle == "" {
		errs = append(errs, fmt.Errorf("invalid ChallengeTitle - '%s'", c.ChallengeTitle))
	}

	if len(errs) > 0 {
		return core.ValidationError{ValidationErrors: errs}
	}

	return nil
}

type ConfirmDoneResponse struct {
	Outcome     domain.Outcome
	ChallengeID int64
	Title       string
	Confirmers  int
}

type ConfirmDoneCommandHandler struct {
	db *sql.DB
}

func NewConfirmDoneCommandHandler(db *sql.DB) *ConfirmDoneCommandHandler {
	return &ConfirmDoneCommandHandler{db}
}

// Handle inserts the completion record, counts distinct confirmers and
// archives the challenge once both participants confirmed. Concurrent
// confirmations of one challenge serialize on its row lock; the one that
// finds the row gone reports AlreadyArchived.
func (h *ConfirmDoneCommandHandler) Handle(
	ctx context.Context,
	request ConfirmDoneCommand,
) (ConfirmDoneResponse, error) {
	challengeID := request.ChallengeID
	if challengeID == 0 {
		id, err := h.resolveByTitle(ctx, request.ConfirmerName, request.ChallengeTitle)
		switch {
		case err != nil && errors.Is(err, sql.ErrNoRows):
			return ConfirmDoneResponse{}, core.NewCommandError(http.StatusNotFound, domain.ErrUnknownChallenge)
		case err != nil:
			return ConfirmDoneResponse{}, asCommandError(err, "failed to resolve challenge")
		}
		challengeID = id
	}

	response := ConfirmDoneResponse{ChallengeID: challengeID, Title: request.ChallengeTitle}

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		const lockStmt = `
			SELECT
				id, title, activity, created_at
			FROM
				challenges
			WHERE
				id = $1
			FOR UPDATE;`

		challenge, err := tql.QueryFirst[domain.Challenge](ctx, tx, lockStmt, challengeID)
		switch {
		case err != nil && errors.Is(err, sql.ErrNoRows):
			response.Outcome = domain.AlreadyArchived
			return nil
		case err != nil:
			return err
		}
		response.Title = challenge.Title

		const participantQuery = `
			SELECT
				cp.user_id
			FROM
				challenge_participants cp
			INNER JOIN users u ON u.id = cp.user_id
			WHERE
				cp.challenge_id = $1 AND u.name = $2;`

		userID, err := tql.QueryFirst[int64](ctx, tx, participantQuery, challengeID, request.ConfirmerName)
		switch {
		case err != nil && errors.Is(err, sql.ErrNoRows):
			return core.NewCommandError(http.StatusForbidden, domain.ErrNotParticipant)
		case err != nil:
			return err
		}

		const recordStmt = `
			INSERT INTO
				completion_records (user_id, challenge_id)
			VALUES
				($1, $2)
			ON CONFLICT (user_id, challenge_id) DO NOTHING;`

		if _, err := tql.Exec(ctx, tx, recordStmt, userID, challengeID); err != nil {
			return err
		}

		const countQuery = `
			SELECT
				count(DISTINCT cr.user_id)
			FROM
				completion_records cr
			INNER JOIN challenge_participants cp
				ON cp.challenge_id = cr.challenge_id AND cp.user_id = cr.user_id
			WHERE
				cr.challenge_id = $1;`

		confirmers, err := tql.QueryFirst[int](ctx, tx, countQuery, challengeID)
		if err != nil {
			return err
		}
		response.Confirmers = confirmers

		response.Outcome = domain.OutcomeFor(confirmers)
		if response.Outcome != domain.Archived {
			return nil
		}

		// Participants and completion records go with the row.
		const archiveStmt = `
			DELETE FROM
				challenges
			WHERE
				id = $1;`

		result, err := tql.Exec(ctx, tx, archiveStmt, challengeID)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if affected == 0 {
			response.Outcome = domain.AlreadyArchived
		}

		return nil
	}

	// Under read committed a waiter on the row lock sees the archiving
	// delete as a missing row instead of a serialization failure.
	if err := core.Tx(ctx, h.db, txFn, core.WithIsolationLevel(sql.LevelReadCommitted)); err != nil {
		return ConfirmDoneResponse{}, asCommandError(err, "failed to confirm challenge")
	}

	return response, nil
}

// resolveByTitle picks the oldest challenge with the given title among the
// confirmer's own challenges. Titles are not unique.
func (h *ConfirmDoneCommandHandler) resolveByTitle(ctx context.Context, confirmerName, title string) (int64, error) {
	const query = `
		SELECT
			c.id
		FROM
			challenges c
		INNER JOIN challenge_participants cp ON cp.challenge_id = c.id
		INNER JOIN users u ON u.id = cp.user_id
		WHERE
			c.title = $1 AND u.name = $2
		ORDER BY
			c.id ASC
		LIMIT 1;`

	return tql.QueryFirst[int64](ctx, h.db, query, title, confirmerName)
}
