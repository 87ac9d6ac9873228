package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	authcommands "github.com/eskrenkovic/challenge-board/internal/modules/auth/commands"
	authdomain "github.com/eskrenkovic/challenge-board/internal/modules/auth/domain"
	"github.com/eskrenkovic/challenge-board/internal/modules/broadcast"
	challengecommands "github.com/eskrenkovic/challenge-board/internal/modules/challenge/commands"
	challengedomain "github.com/eskrenkovic/challenge-board/internal/modules/challenge/domain"
	"github.com/eskrenkovic/challenge-board/internal/modules/core"
	"github.com/eskrenkovic/challenge-board/internal/modules/presence"

	"github.com/eskrenkovic/mediator-go"
	"go.uber.org/zap"
)

// Gateway turns inbound client events into commands and the outcomes into
// targeted acknowledgements and broadcasts. Events of one session must be
// passed to Handle one at a time.
type Gateway struct {
	registry     *presence.Registry
	hub          *broadcast.Hub
	logger       *zap.Logger
	storeTimeout time.Duration
}

func NewGateway(
	registry *presence.Registry,
	hub *broadcast.Hub,
	logger *zap.Logger,
	storeTimeout time.Duration,
) *Gateway {
	return &Gateway{
		registry:     registry,
		hub:          hub,
		logger:       logger,
		storeTimeout: storeTimeout,
	}
}

// Connect registers a new session. The client is told to fetch the roster
// straight away.
func (g *Gateway) Connect() *Session {
	conn := presence.NewConnection()

	s := &Session{
		conn:   conn,
		client: broadcast.NewClient(conn.ID, broadcast.DefaultSendBuffer),
		logger: g.logger.With(zap.Stringer("connection_id", conn.ID)),
	}

	g.hub.Register(s.client)
	g.hub.NotifyOne(s.client, EventPresenceChanged, nil)

	s.logger.Debug("session connected")

	return s
}

// Disconnect releases the session's binding and mailbox. Other clients are
// told to refresh the roster when the user went offline.
func (g *Gateway) Disconnect(ctx context.Context, s *Session) {
	g.hub.Unregister(s.client)

	ctx, cancel := g.commandContext(ctx, s)
	defer cancel()

	displayName, changed, err := g.registry.Unbind(ctx, s.conn)
	if err != nil {
		s.logger.Error("failed to mark user offline", zap.String("display_name", displayName), zap.Error(err))
		return
	}

	if changed {
		g.hub.NotifyAll(EventPresenceChanged, nil)
	}

	s.logger.Debug("session disconnected", zap.String("display_name", displayName))
}

// Handle processes one inbound frame.
func (g *Gateway) Handle(ctx context.Context, s *Session, frame []byte) {
	var inbound inboundFrame
	if err := json.Unmarshal(frame, &inbound); err != nil {
		s.logger.Info("received malformed frame", zap.Error(err))
		g.hub.NotifyOne(s.client, EventError, MessagePayload{Message: MessageInvalidEvent})
		return
	}

	ctx, cancel := g.commandContext(ctx, s)
	defer cancel()

	switch inbound.Event {
	case EventIdentify:
		var command authcommands.IdentifyCommand
		if g.decode(s, inbound, &command) {
			g.identify(ctx, s, command)
		}

	case EventChallengePropose:
		var command challengecommands.CreateChallengeCommand
		if g.decode(s, inbound, &command) {
			g.proposeChallenge(ctx, s, command)
		}

	case EventChallengeDone:
		var command challengecommands.ConfirmDoneCommand
		if g.decode(s, inbound, &command) {
			g.confirmDone(ctx, s, command)
		}

	case EventDeleteAccount:
		var command challengecommands.DeleteAccountCommand
		if g.decode(s, inbound, &command) {
			g.deleteAccount(ctx, s, command)
		}

	default:
		s.logger.Info("received unknown event", zap.String("event", inbound.Event))
		g.hub.NotifyOne(s.client, EventError, MessagePayload{Message: MessageUnknownEvent})
	}
}

func (g *Gateway) identify(ctx context.Context, s *Session, command authcommands.IdentifyCommand) {
	if err := authdomain.ValidateDisplayName(command.DisplayName); err != nil {
		g.rejectIdentity(s, ReasonInvalidDisplayName, err)
		return
	}

	if bound, ok := s.DisplayName(); ok && bound != command.DisplayName {
		g.rejectIdentity(s, ReasonAlreadyBound, presence.ErrAlreadyBound)
		return
	}

	response, err := mediator.Send[authcommands.IdentifyCommand, authcommands.IdentifyResponse](ctx, command)
	if err != nil {
		if core.StatusCode(err) == http.StatusBadRequest {
			g.rejectIdentity(s, ReasonInvalidCredential, err)
			return
		}
		g.storeUnavailable(s, err)
		return
	}

	if response.Outcome == authcommands.IncorrectLogin {
		g.hub.NotifyOne(s.client, EventIncorrectLogin, DisplayNamePayload{DisplayName: command.DisplayName})
		return
	}

	// A session is only bound once the user is recorded as online.
	changed, err := g.registry.MarkOnline(ctx, response.DisplayName)
	if err != nil {
		g.storeUnavailable(s, err)
		return
	}

	if err := g.registry.Bind(s.conn, response.DisplayName); err != nil {
		g.rejectIdentity(s, ReasonAlreadyBound, err)
		return
	}

	g.hub.NotifyOne(s.client, EventLoggedIn, DisplayNamePayload{DisplayName: response.DisplayName})

	if response.Created || changed {
		g.hub.NotifyOthers(s.client, EventPresenceChanged, nil)
	}
}

func (g *Gateway) proposeChallenge(ctx context.Context, s *Session, command challengecommands.CreateChallengeCommand) {
	if !g.requireIdentity(s, command.PosterName) {
		return
	}

	response, err := mediator.Send[challengecommands.CreateChallengeCommand, challengecommands.CreateChallengeResponse](ctx, command)
	switch {
	case err != nil && errors.Is(err, challengedomain.ErrSelfChallenge):
		g.hub.NotifyOne(s.client, EventChallengeCreateError, MessagePayload{Message: MessageSelfChallenge})
		return
	case err != nil && errors.Is(err, challengedomain.ErrUnknownOpponent):
		g.hub.NotifyOne(s.client, EventChallengeCreateError, MessagePayload{Message: MessageUnknownOpponent})
		return
	case err != nil && core.StatusCode(err) < http.StatusInternalServerError:
		g.hub.NotifyOne(s.client, EventChallengeCreateError, MessagePayload{Message: MessageInvalidChallenge})
		return
	case err != nil:
		g.storeUnavailable(s, err)
		return
	}

	g.hub.NotifyOne(s.client, EventChallengeCreateSuccess, ChallengeCreatedPayload{
		ChallengeID: response.ChallengeID,
		Title:       response.Title,
	})
	g.hub.NotifyAll(EventChallengeListChanged, nil)
}

func (g *Gateway) confirmDone(ctx context.Context, s *Session, command challengecommands.ConfirmDoneCommand) {
	if !g.requireIdentity(s, command.ConfirmerName) {
		return
	}

	response, err := mediator.Send[challengecommands.ConfirmDoneCommand, challengecommands.ConfirmDoneResponse](ctx, command)
	switch {
	case err != nil && errors.Is(err, challengedomain.ErrUnknownChallenge):
		// The client is looking at a stale list.
		g.hub.NotifyOne(s.client, EventChallengeListChanged, nil)
		return
	case err != nil && errors.Is(err, challengedomain.ErrNotParticipant):
		g.hub.NotifyOne(s.client, EventChallengeDoneError, MessagePayload{Message: MessageNotParticipant})
		return
	case err != nil && core.StatusCode(err) < http.StatusInternalServerError:
		g.hub.NotifyOne(s.client, EventChallengeDoneError, MessagePayload{Message: MessageInvalidRequest})
		return
	case err != nil:
		g.storeUnavailable(s, err)
		return
	}

	switch response.Outcome {
	case challengedomain.AlreadyArchived:
		g.hub.NotifyOne(s.client, EventChallengeListChanged, nil)

	case challengedomain.Archived:
		g.hub.NotifyAll(EventChallengeListChanged, nil)
		g.hub.NotifyAll(EventServerAnnouncement, AnnouncementPayload{
			Text: fmt.Sprintf("%s completed %s! Challenge complete.", command.ConfirmerName, response.Title),
		})

	default:
		g.hub.NotifyAll(EventChallengeListChanged, nil)
	}
}

func (g *Gateway) deleteAccount(ctx context.Context, s *Session, command challengecommands.DeleteAccountCommand) {
	if !g.requireIdentity(s, command.DisplayName) {
		return
	}

	_, err := mediator.Send[challengecommands.DeleteAccountCommand, challengecommands.DeleteAccountResponse](ctx, command)
	if err != nil && core.StatusCode(err) < http.StatusInternalServerError {
		s.logger.Info("account deletion rejected", zap.Error(err))
		g.hub.NotifyOne(s.client, EventError, MessagePayload{Message: MessageInvalidRequest})
		return
	}

	if err != nil {
		g.storeUnavailable(s, err)

		var cleanupErr challengecommands.AccountCleanupError
		if errors.As(err, &cleanupErr) && cleanupErr.RemovedChallenges > 0 {
			g.hub.NotifyAll(EventChallengeListChanged, nil)
		}
		return
	}

	if _, _, err := g.registry.Unbind(ctx, s.conn); err != nil {
		s.logger.Warn("failed to clear presence of deleted user", zap.String("display_name", command.DisplayName), zap.Error(err))
	}

	g.hub.NotifyOne(s.client, EventReload, nil)
	g.hub.NotifyOthers(s.client, EventChallengeListChanged, nil)
	g.hub.NotifyOthers(s.client, EventPresenceChanged, nil)
	g.hub.NotifyAll(EventServerAnnouncement, AnnouncementPayload{
		Text: fmt.Sprintf("%s deleted their account.", command.DisplayName),
	})
}

// requireIdentity checks that the claimed name is well formed and is the
// name this session identified as.
func (g *Gateway) requireIdentity(s *Session, claimed string) bool {
	if err := authdomain.ValidateDisplayName(claimed); err != nil {
		g.rejectIdentity(s, ReasonInvalidDisplayName, err)
		return false
	}

	bound, ok := s.DisplayName()
	if !ok {
		g.rejectIdentity(s, ReasonNotIdentified, nil)
		return false
	}

	if bound != claimed {
		g.rejectIdentity(s, ReasonIdentityMismatch, nil)
		return false
	}

	return true
}

func (g *Gateway) rejectIdentity(s *Session, reason string, err error) {
	s.logger.Info("rejected identity claim", zap.String("reason", reason), zap.Error(err))
	g.hub.NotifyOne(s.client, EventIdentityRejected, IdentityRejectedPayload{Reason: reason})
}

func (g *Gateway) storeUnavailable(s *Session, err error) {
	s.logger.Error("command failed", zap.Error(err))
	g.hub.NotifyOne(s.client, EventError, MessagePayload{Message: MessageStoreUnavailable})
}

func (g *Gateway) decode(s *Session, inbound inboundFrame, v any) bool {
	if err := json.Unmarshal(inbound.Data, v); err != nil {
		s.logger.Info("received malformed payload", zap.String("event", inbound.Event), zap.Error(err))
		g.hub.NotifyOne(s.client, EventError, MessagePayload{Message: MessageInvalidEvent})
		return false
	}

	return true
}

func (g *Gateway) commandContext(ctx context.Context, s *Session) (context.Context, context.CancelFunc) {
	ctx = core.WithConnectionID(ctx, s.ID())
	ctx = core.WithLogger(ctx, s.logger)

	return context.WithTimeout(ctx, g.storeTimeout)
}
