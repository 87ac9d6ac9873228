package queries

import (
	"context"
	"net/http"

	"github.com/eskrenkovic/challenge-board/internal/modules/core"

	"github.com/eskrenkovic/mediator-go"
	"github.com/jmoiron/sqlx"
)

type GetRosterQuery struct{}

type RosterEntry struct {
	DisplayName string `db:"name" json:"displayName"`
	IsOnline    bool   `db:"is_online" json:"isOnline"`
}

func HandleGetRoster(w http.ResponseWriter, r *http.Request) {
	response, err := mediator.Send[GetRosterQuery, []RosterEntry](r.Context(), GetRosterQuery{})
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type GetRosterQueryHandler struct {
	db *sqlx.DB
}

func NewGetRosterQueryHandler(db *sqlx.DB) *GetRosterQueryHandler {
	return &GetRosterQueryHandler{db}
}

// Handle lists every user, online users first, then in registration order.
func (h *GetRosterQueryHandler) Handle(ctx context.Context, _ GetRosterQuery) ([]RosterEntry, error) {
	const query = `
		SELECT
			name, is_online
		FROM
			users
		ORDER BY
			is_online DESC, id ASC;`

	roster := make([]RosterEntry, 0)
	if err := h.db.SelectContext(ctx, &roster, query); err != nil {
		return nil, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to load roster"))
	}

	return roster, nil
}
