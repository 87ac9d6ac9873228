package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/eskrenkovic/challenge-board/internal/modules/auth/domain"
	"github.com/eskrenkovic/challenge-board/internal/modules/core"

	"github.com/eskrenkovic/tql"
)

type IdentifyOutcome string

const (
	LoggedIn       IdentifyOutcome = "logged-in"
	IncorrectLogin IdentifyOutcome = "incorrect-login"
)

type IdentifyCommand struct {
	DisplayName string `json:"displayName"`
	Credential  string `json:"credential"`
}

// Validate checks only the claimed name. The credential is judged by Handle:
// any mismatch on an existing user is an incorrect login.
func (c IdentifyCommand) Validate() error {
	var errs []error

	if err := domain.ValidateDisplayName(c.DisplayName); err != nil {
		errs = append(errs, fmt.Errorf("invalid DisplayName - '%s': %w", c.DisplayName, err))
	}

	if len(errs) > 0 {
		return core.ValidationError{ValidationErrors: errs}
	}

	return nil
}

func (c IdentifyCommand) Redact() interface{} {
	return IdentifyCommand{DisplayName: c.DisplayName, Credential: "***"}
}

type IdentifyResponse struct {
	DisplayName string
	Outcome     IdentifyOutcome
	// Created is set when this call registered the user.
	Created bool
}

type IdentifyCommandHandler struct {
	db             *sql.DB
	passwordHasher *domain.PasswordHasher
}

func NewIdentifyCommandHandler(db *sql.DB, passwordHasher *domain.PasswordHasher) *IdentifyCommandHandler {
	return &IdentifyCommandHandler{db: db, passwordHasher: passwordHasher}
}

func (h *IdentifyCommandHandler) Handle(ctx context.Context, request IdentifyCommand) (IdentifyResponse, error) {
	user, err := h.loadUser(ctx, request.DisplayName)
	switch {
	case err != nil && errors.Is(err, sql.ErrNoRows):
		return h.register(ctx, request)
	case err != nil:
		return IdentifyResponse{}, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to reach database"))
	}

	return h.authenticate(user, request), nil
}

func (h *IdentifyCommandHandler) register(ctx context.Context, request IdentifyCommand) (IdentifyResponse, error) {
	passwordHash, err := h.passwordHasher.HashPassword(request.Credential)
	if err != nil {
		return IdentifyResponse{}, core.NewCommandError(http.StatusBadRequest, err, core.WithReason("user registration failed"))
	}

	const stmt = `
		INSERT INTO
			users (name, password_hash)
		VALUES
			($1, $2)
		ON CONFLICT (name) DO NOTHING
		RETURNING id;`

	_, err = tql.QueryFirst[int64](ctx, h.db, stmt, request.DisplayName, passwordHash)
	switch {
	case err != nil && errors.Is(err, sql.ErrNoRows):
		// Someone registered the same name concurrently; treat this
		// claim as a login against their credential.
		user, err := h.loadUser(ctx, request.DisplayName)
		if err != nil {
			return IdentifyResponse{}, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to reach database"))
		}
		return h.authenticate(user, request), nil
	case err != nil:
		return IdentifyResponse{}, core.NewCommandError(http.StatusInternalServerError, err, core.WithReason("failed to create new user entry"))
	}

	return IdentifyResponse{DisplayName: request.DisplayName, Outcome: LoggedIn, Created: true}, nil
}

func (h *IdentifyCommandHandler) authenticate(user domain.User, request IdentifyCommand) IdentifyResponse {
	if err := user.Authenticate(request.Credential, h.passwordHasher); err != nil {
		return IdentifyResponse{DisplayName: request.DisplayName, Outcome: IncorrectLogin}
	}

	return IdentifyResponse{DisplayName: user.Name, Outcome: LoggedIn}
}

func (h *IdentifyCommandHandler) loadUser(ctx context.Context, name string) (domain.User, error) {
	const query = `
		SELECT
			id, name, password_hash, is_online, created_at
		FROM
			users
		WHERE
			name = $1;`

	return tql.QueryFirst[domain.User](ctx, h.db, query, name)
}
