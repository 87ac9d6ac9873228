package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	authdomain "github.com/eskrenkovic/challenge-board/internal/modules/auth/domain"
	"github.com/eskrenkovic/challenge-board/internal/modules/challenge/domain"
	"github.com/eskrenkovic/challenge-board/internal/modules/core"

	"github.com/eskrenkovic/tql"
)

type CreateChallengeCommand struct {
	PosterName   string `json:"posterName"`
	OpponentName string `json:"opponentName"`
	Title        string `json:"title"`
	Activity     string `json:"activity"`
}

func (c CreateChallengeCommand) Validate() error {
	var errs []error

	if err := authdomain.ValidateDisplayName(c.PosterName); err != nil {
		errs = append(errs, fmt.Errorf("invalid PosterName - '%s': %w", c.PosterName, err))
	}

	if err := authdomain.ValidateDisplayName(c.OpponentName); err != nil {
		errs = append(errs, fmt.Errorf("invalid OpponentName - '%s': %w", c.OpponentName, err))
	}

	if err := validateText(c.Title, domain.MaxTitleRunes); err != nil {
		errs = append(errs, fmt.Errorf("invalid Title - '%s': %w", c.Title, err))
	}

	if err := validateText(c.Activity, domain.MaxActivityRunes); err != nil {
		errs = append(errs, fmt.Errorf("invalid Activity - '%s': %w", c.Activity, err))
	}

	if len(errs) > 0 {
		return core.ValidationError{ValidationErrors: errs}
	}

	return nil
}

func validateText(value string, maxRunes int) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("must not be empty")
	}

	if utf8.RuneCountInString(value) > maxRunes {
		return fmt.Errorf("must be at most %d characters", maxRunes)
	}

	return nil
}

type CreateChallengeResponse struct {
	ChallengeID int64
	Title       string
	CreatedAt   time.Time
}

type CreateChallengeCommandHandler struct {
	db *sql.DB
}

func NewCreateChallengeCommandHandler(db *sql.DB) *CreateChallengeCommandHandler {
	return &CreateChallengeCommandHandler{db}
}

// Handle inserts the challenge and both participant rows in one
// transaction, so a failed opponent lookup leaves nothing behind.
func (h *CreateChallengeCommandHandler) Handle(
	ctx context.Context,
	request CreateChallengeCommand,
) (CreateChallengeResponse, error) {
	// Exact comparison on the raw names: "Bob" may challenge "bob".
	if request.PosterName == request.OpponentName {
		return CreateChallengeResponse{}, core.NewCommandError(http.StatusBadRequest, domain.ErrSelfChallenge)
	}

	var challenge domain.Challenge

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		posterID, err := lockUser(ctx, tx, request.PosterName)
		switch {
		case err != nil && errors.Is(err, sql.ErrNoRows):
			return core.NewCommandError(http.StatusNotFound, domain.ErrUnknownUser)
		case err != nil:
			return err
		}

		opponentID, err := lockUser(ctx, tx, request.OpponentName)
		switch {
		case err != nil && errors.Is(err, sql.ErrNoRows):
			return core.NewCommandError(http.StatusNotFound, domain.ErrUnknownOpponent)
		case err != nil:
			return err
		}

		const challengeStmt = `
			INSERT INTO
				challenges (title, activity)
			VALUES
				($1, $2)
			RETURNING
				id, title, activity, created_at;`

		challenge, err = tql.QueryFirst[domain.Challenge](ctx, tx, challengeStmt, request.Title, request.Activity)
		if err != nil {
			return err
		}

		const participantsStmt = `
			INSERT INTO
				challenge_participants (user_id, challenge_id, role)
			VALUES
				($1, $3, $4),
				($2, $3, $5);`

		_, err = tql.Exec(
			ctx,
			tx,
			participantsStmt,
			posterID,
			opponentID,
			challenge.ID,
			string(domain.RolePoster),
			string(domain.RoleOpponent),
		)
		return err
	}

	if err := core.Tx(ctx, h.db, txFn); err != nil {
		return CreateChallengeResponse{}, asCommandError(err, "failed to create challenge")
	}

	return CreateChallengeResponse{
		ChallengeID: challenge.ID,
		Title:       challenge.Title,
		CreatedAt:   challenge.CreatedAt,
	}, nil
}

func lockUser(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	const query = `
		SELECT
			id
		FROM
			users
		WHERE
			name = $1
		FOR SHARE;`

	return tql.QueryFirst[int64](ctx, tx, query, name)
}

// asCommandError keeps domain rejections as they are and turns anything
// else into a store failure.
func asCommandError(err error, reason string) error {
	var commandErr core.CommandError
	if errors.As(err, &commandErr) {
		return commandErr
	}

	return core.NewCommandError(http.StatusInternalServerError, err, core.WithReason(reason))
}
