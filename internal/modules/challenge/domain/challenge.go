package domain

import (
	"errors"
	"time"
)

type Role string

const (
	RolePoster   Role = "poster"
	RoleOpponent Role = "opponent"
)

// RequiredConfirmations is the number of distinct participants that must
// confirm before a challenge is archived.
const RequiredConfirmations = 2

const (
	MaxTitleRunes    = 100
	MaxActivityRunes = 100
)

var (
	ErrSelfChallenge    = errors.New("self-challenge")
	ErrUnknownOpponent  = errors.New("unknown-opponent")
	ErrUnknownUser      = errors.New("unknown-user")
	ErrUnknownChallenge = errors.New("unknown-challenge")
	ErrNotParticipant   = errors.New("not-participant")
)

type Challenge struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Activity  string    `db:"activity"`
	CreatedAt time.Time `db:"created_at"`
}

type Participant struct {
	UserID      int64 `db:"user_id"`
	ChallengeID int64 `db:"challenge_id"`
	Role        Role  `db:"role"`
}

type CompletionRecord struct {
	UserID      int64     `db:"user_id"`
	ChallengeID int64     `db:"challenge_id"`
	ConfirmedAt time.Time `db:"confirmed_at"`
}

// Outcome is the result of a completion confirmation.
type Outcome string

const (
	StillActive Outcome = "still-active"
	Archived    Outcome = "archived"
	// AlreadyArchived means another confirmation archived the challenge first.
	AlreadyArchived Outcome = "already-archived"
)

// OutcomeFor maps the distinct confirmer count to the lifecycle outcome.
func OutcomeFor(confirmers int) Outcome {
	if confirmers >= RequiredConfirmations {
		return Archived
	}

	return StillActive
}
