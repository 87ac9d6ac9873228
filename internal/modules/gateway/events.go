package gateway

import "encoding/json"

// Inbound events.
const (
	EventIdentify         = "identify"
	EventChallengePropose = "challenge-propose"
	EventChallengeDone    = "challenge-done"
	EventDeleteAccount    = "delete-account"
)

// Outbound events.
const (
	EventPresenceChanged        = "presence-changed"
	EventChallengeListChanged   = "challenge-list-changed"
	EventLoggedIn               = "logged-in"
	EventIncorrectLogin         = "incorrect-login"
	EventIdentityRejected       = "identity-rejected"
	EventChallengeCreateSuccess = "challenge-create-success"
	EventChallengeCreateError   = "challenge-create-error"
	EventChallengeDoneError     = "challenge-done-error"
	EventReload                 = "reload"
	EventServerAnnouncement     = "server-announcement"
	EventError                  = "error"
)

// Rejection reasons carried by identity-rejected.
const (
	ReasonInvalidDisplayName = "invalid-display-name"
	ReasonAlreadyBound       = "already-bound"
	ReasonNotIdentified      = "not-identified"
	ReasonIdentityMismatch   = "identity-mismatch"
	ReasonInvalidCredential  = "invalid-credential"
)

const (
	MessageSelfChallenge    = "self-challenge"
	MessageUnknownOpponent  = "unknown-opponent"
	MessageInvalidChallenge = "invalid-challenge"
	MessageNotParticipant   = "not-participant"
	MessageInvalidRequest   = "invalid-request"
	MessageStoreUnavailable = "store-unavailable"
	MessageInvalidEvent     = "invalid-event"
	MessageUnknownEvent     = "unknown-event"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type DisplayNamePayload struct {
	DisplayName string `json:"displayName"`
}

type IdentityRejectedPayload struct {
	Reason string `json:"reason"`
}

type ChallengeCreatedPayload struct {
	ChallengeID int64  `json:"challengeId"`
	Title       string `json:"title"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

type AnnouncementPayload struct {
	Text string `json:"text"`
}
