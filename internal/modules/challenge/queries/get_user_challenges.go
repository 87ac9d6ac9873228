package queries

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/eskrenkovic/challenge-board/internal/modules/challenge/domain"
	"github.com/eskrenkovic/challenge-board/internal/modules/core"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
)

type GetUserChallengesQuery struct {
	DisplayName string
}

type ParticipantView struct {
	DisplayName string      `json:"displayName"`
	Role        domain.Role `json:"role"`
}

type ConfirmationView struct {
	DisplayName string    `json:"displayName"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

type ChallengeView struct {
	ID            int64              `json:"id"`
	Title         string             `json:"title"`
	Activity      string             `json:"activity"`
	CreatedAt     time.Time          `json:"createdAt"`
	Participants  []ParticipantView  `json:"participants"`
	Confirmations []ConfirmationView `json:"confirmations"`
}

func HandleGetUserChallenges(w http.ResponseWriter, r *http.Request) {
	query := GetUserChallengesQuery{DisplayName: chi.URLParam(r, "name")}

	response, err := mediator.Send[GetUserChallengesQuery, []ChallengeView](r.Context(), query)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type GetUserChallengesQueryHandler struct {
	db *sqlx.DB
}

func NewGetUserChallengesQueryHandler(db *sqlx.DB) *GetUserChallengesQueryHandler {
	return &GetUserChallengesQueryHandler{db}
}

type participantRow struct {
	ChallengeID int64       `db:"challenge_id"`
	Name        string      `db:"name"`
	Role        domain.Role `db:"role"`
}

type confirmationRow struct {
	ChallengeID int64     `db:"challenge_id"`
	Name        string    `db:"name"`
	ConfirmedAt time.Time `db:"confirmed_at"`
}

// Handle lists the active challenges of a user, oldest first, with their
// participants and the confirmations collected so far.
func (h *GetUserChallengesQueryHandler) Handle(
	ctx context.Context,
	request GetUserChallengesQuery,
) ([]ChallengeView, error) {
	const userQuery = `
		SELECT
			id
		FROM
			users
		WHERE
			name = $1;`

	var userID int64
	err := h.db.GetContext(ctx, &userID, userQuery, request.DisplayName)
	switch {
	case err != nil && errors.Is(err, sql.ErrNoRows):
		return nil, core.NewCommandError(http.StatusNotFound, domain.ErrUnknownUser)
	case err != nil:
		return nil, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to load user"))
	}

	const challengesQuery = `
		SELECT
			c.id, c.title, c.activity, c.created_at
		FROM
			challenges c
		INNER JOIN challenge_participants cp ON cp.challenge_id = c.id
		WHERE
			cp.user_id = $1
		ORDER BY
			c.id ASC;`

	var challenges []domain.Challenge
	if err := h.db.SelectContext(ctx, &challenges, challengesQuery, userID); err != nil {
		return nil, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to load challenges"))
	}

	if len(challenges) == 0 {
		return []ChallengeView{}, nil
	}

	ids := core.Map(challenges, func(c domain.Challenge) int64 { return c.ID })

	participants, err := h.loadParticipants(ctx, ids)
	if err != nil {
		return nil, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to load participants"))
	}

	confirmations, err := h.loadConfirmations(ctx, ids)
	if err != nil {
		return nil, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to load confirmations"))
	}

	participantsByChallenge := core.GroupBy(participants, func(p participantRow) int64 { return p.ChallengeID })
	confirmationsByChallenge := core.GroupBy(confirmations, func(c confirmationRow) int64 { return c.ChallengeID })

	return core.Map(challenges, func(c domain.Challenge) ChallengeView {
		return ChallengeView{
			ID:        c.ID,
			Title:     c.Title,
			Activity:  c.Activity,
			CreatedAt: c.CreatedAt,
			Participants: core.Map(participantsByChallenge[c.ID], func(p participantRow) ParticipantView {
				return ParticipantView{DisplayName: p.Name, Role: p.Role}
			}),
			Confirmations: core.Map(confirmationsByChallenge[c.ID], func(r confirmationRow) ConfirmationView {
				return ConfirmationView{DisplayName: r.Name, ConfirmedAt: r.ConfirmedAt}
			}),
		}
	}), nil
}

func (h *GetUserChallengesQueryHandler) loadParticipants(ctx context.Context, ids []int64) ([]participantRow, error) {
	query, args, err := sqlx.In(`
		SELECT
			cp.challenge_id, u.name, cp.role
		FROM
			challenge_participants cp
		INNER JOIN users u ON u.id = cp.user_id
		WHERE
			cp.challenge_id IN (?)
		ORDER BY
			cp.challenge_id ASC, cp.role DESC;`, ids)
	if err != nil {
		return nil, err
	}

	var rows []participantRow
	if err := h.db.SelectContext(ctx, &rows, h.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	return rows, nil
}

func (h *GetUserChallengesQueryHandler) loadConfirmations(ctx context.Context, ids []int64) ([]confirmationRow, error) {
	query, args, err := sqlx.In(`
		SELECT
			cr.challenge_id, u.name, cr.confirmed_at
		FROM
			completion_records cr
		INNER JOIN users u ON u.id = cr.user_id
		WHERE
			cr.challenge_id IN (?)
		ORDER BY
			cr.challenge_id ASC, cr.confirmed_at ASC;`, ids)
	if err != nil {
		return nil, err
	}

	var rows []confirmationRow
	if err := h.db.SelectContext(ctx, &rows, h.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	return rows, nil
}
