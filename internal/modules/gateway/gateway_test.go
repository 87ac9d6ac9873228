package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eskrenkovic/challenge-board/internal/modules/broadcast"
	"github.com/eskrenkovic/challenge-board/internal/modules/presence"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errStoreDown = errors.New("store down")

type fakeStore struct {
	mu     sync.Mutex
	online map[string]bool
	failed bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{online: make(map[string]bool)}
}

func (s *fakeStore) SetOnline(_ context.Context, displayName string, online bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return false, errStoreDown
	}

	if s.online[displayName] == online {
		return false, nil
	}

	s.online[displayName] = online
	return true, nil
}

func (s *fakeStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.online = make(map[string]bool)
	return nil
}

func (s *fakeStore) isOnline(displayName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.online[displayName]
}

type harness struct {
	gateway *Gateway
	store   *fakeStore
	hub     *broadcast.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	board = newFakeBoard()

	// Socket pumps may still log after the test returns.
	logger := zap.NewNop()
	store := newFakeStore()
	hub := broadcast.NewHub(logger)
	t.Cleanup(hub.Close)

	return &harness{
		gateway: NewGateway(presence.NewRegistry(store, logger), hub, logger, time.Second),
		store:   store,
		hub:     hub,
	}
}

// connect returns a session with the connect-time frame already consumed.
func (h *harness) connect(t *testing.T) *Session {
	t.Helper()

	s := h.gateway.Connect()
	require.Equal(t, []string{EventPresenceChanged}, events(drain(t, s)))

	return s
}

func (h *harness) send(t *testing.T, s *Session, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)

	frame, err := json.Marshal(inboundFrame{Event: event, Data: payload})
	require.NoError(t, err)

	h.gateway.Handle(context.Background(), s, frame)
}

func (h *harness) login(t *testing.T, s *Session, name string) {
	t.Helper()

	h.send(t, s, EventIdentify, map[string]string{"displayName": name, "credential": "secret"})
	require.Contains(t, events(drain(t, s)), EventLoggedIn)
}

func drain(t *testing.T, s *Session) []broadcast.Envelope {
	t.Helper()

	var envelopes []broadcast.Envelope
	for {
		select {
		case frame, ok := <-s.Outbound():
			if !ok {
				return envelopes
			}
			var envelope broadcast.Envelope
			require.NoError(t, json.Unmarshal(frame, &envelope))
			envelopes = append(envelopes, envelope)
		default:
			return envelopes
		}
	}
}

func events(envelopes []broadcast.Envelope) []string {
	names := make([]string, 0, len(envelopes))
	for _, e := range envelopes {
		names = append(names, e.Event)
	}
	return names
}

func Test_Gateway_Connect_Sends_Presence_Changed_To_New_Session(t *testing.T) {
	// Arrange
	h := newHarness(t)

	// Act
	s := h.gateway.Connect()

	// Assert
	require.Equal(t, []string{EventPresenceChanged}, events(drain(t, s)))
	require.Equal(t, 1, h.hub.Count())
}

func Test_Gateway_Identify_Registers_And_Notifies_Others(t *testing.T) {
	// Arrange
	h := newHarness(t)
	alice, observer := h.connect(t), h.connect(t)

	// Act
	h.send(t, alice, EventIdentify, map[string]string{"displayName": "alice", "credential": "secret"})

	// Assert
	own := drain(t, alice)
	require.Equal(t, []string{EventLoggedIn}, events(own))
	require.Equal(t, map[string]any{"displayName": "alice"}, own[0].Data)
	require.Equal(t, []string{EventPresenceChanged}, events(drain(t, observer)))

	name, ok := alice.DisplayName()
	require.True(t, ok)
	require.Equal(t, "alice", name)
	require.True(t, h.store.isOnline("alice"))
}

func Test_Gateway_Identify_Twice_Logs_In_Both_Times(t *testing.T) {
	// Arrange
	h := newHarness(t)
	s := h.connect(t)
	h.login(t, s, "alice")

	// Act
	h.send(t, s, EventIdentify, map[string]string{"displayName": "alice", "credential": "secret"})

	// Assert
	require.Equal(t, []string{EventLoggedIn}, events(drain(t, s)))
}

func Test_Gateway_Identify_Emits_Incorrect_Login_When_Credential_Differs(t *testing.T) {
	// Arrange
	h := newHarness(t)
	first := h.connect(t)
	h.login(t, first, "alice")

	second := h.connect(t)

	// Act
	h.send(t, second, EventIdentify, map[string]string{"displayName": "alice", "credential": "wrong"})

	// Assert
	require.Equal(t, []string{EventIncorrectLogin}, events(drain(t, second)))
	_, bound := second.DisplayName()
	require.False(t, bound)
}

func Test_Gateway_Identify_Emits_Incorrect_Login_When_Credential_Empty(t *testing.T) {
	// Arrange
	h := newHarness(t)
	first := h.connect(t)
	h.login(t, first, "alice")

	second := h.connect(t)

	// Act
	h.send(t, second, EventIdentify, map[string]string{"displayName": "alice", "credential": ""})

	// Assert
	own := drain(t, second)
	require.Equal(t, []string{EventIncorrectLogin}, events(own))
	require.Equal(t, map[string]any{"displayName": "alice"}, own[0].Data)
	_, bound := second.DisplayName()
	require.False(t, bound)
}

func Test_Gateway_Identify_Leaves_Session_Unbound_When_Presence_Store_Fails(t *testing.T) {
	// Arrange
	h := newHarness(t)
	s, observer := h.connect(t), h.connect(t)

	h.store.mu.Lock()
	h.store.failed = true
	h.store.mu.Unlock()

	// Act
	h.send(t, s, EventIdentify, map[string]string{"displayName": "alice", "credential": "secret"})

	// Assert
	own := drain(t, s)
	require.Equal(t, []string{EventError}, events(own))
	require.Equal(t, map[string]any{"message": MessageStoreUnavailable}, own[0].Data)
	require.Empty(t, drain(t, observer))

	_, bound := s.DisplayName()
	require.False(t, bound)
}

func Test_Gateway_Identify_Rejects_Invalid_Display_Name(t *testing.T) {
	// Arrange
	h := newHarness(t)
	s, observer := h.connect(t), h.connect(t)

	// Act
	h.send(t, s, EventIdentify, map[string]string{"displayName": " alice", "credential": "secret"})

	// Assert
	own := drain(t, s)
	require.Equal(t, []string{EventIdentityRejected}, events(own))
	require.Equal(t, map[string]any{"reason": ReasonInvalidDisplayName}, own[0].Data)
	require.Empty(t, drain(t, observer))
}

func Test_Gateway_Identify_Rejects_Second_Name_On_Bound_Session(t *testing.T) {
	// Arrange
	h := newHarness(t)
	s := h.connect(t)
	h.login(t, s, "alice")

	// Act
	h.send(t, s, EventIdentify, map[string]string{"displayName": "bob", "credential": "secret"})

	// Assert
	own := drain(t, s)
	require.Equal(t, []string{EventIdentityRejected}, events(own))
	require.Equal(t, map[string]any{"reason": ReasonAlreadyBound}, own[0].Data)
}

func Test_Gateway_Propose_Rejects_Unidentified_Session(t *testing.T) {
	// Arrange
	h := newHarness(t)
	s := h.connect(t)

	// Act
	h.send(t, s, EventChallengePropose, map[string]string{
		"posterName": "alice", "opponentName": "bob", "title": "5k", "activity": "running",
	})

	// Assert
	own := drain(t, s)
	require.Equal(t, []string{EventIdentityRejected}, events(own))
	require.Equal(t, map[string]any{"reason": ReasonNotIdentified}, own[0].Data)
	require.Zero(t, board.activeChallenges())
}

func Test_Gateway_Propose_Rejects_Poster_Other_Than_Bound_Name(t *testing.T) {
	// Arrange
	h := newHarness(t)
	s := h.connect(t)
	h.login(t, s, "mallory")

	// Act
	h.send(t, s, EventChallengePropose, map[string]string{
		"posterName": "alice", "opponentName": "bob", "title": "5k", "activity": "running",
	})

	// Assert
	own := drain(t, s)
	require.Equal(t, []string{EventIdentityRejected}, events(own))
	require.Equal(t, map[string]any{"reason": ReasonIdentityMismatch}, own[0].Data)
}

func Test_Gateway_Propose_Emits_Create_Error_To_Origin_Only(t *testing.T) {
	tt := []struct {
		name     string
		opponent string
		title    string
		message  string
	}{
		{name: "self challenge", opponent: "alice", title: "5k", message: MessageSelfChallenge},
		{name: "unknown opponent", opponent: "ghost", title: "5k", message: MessageUnknownOpponent},
		{name: "invalid challenge", opponent: "bob", title: "", message: MessageInvalidChallenge},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t)
			alice, bob := h.connect(t), h.connect(t)
			h.login(t, alice, "alice")
			h.login(t, bob, "bob")
			drain(t, alice)

			// Act
			h.send(t, alice, EventChallengePropose, map[string]string{
				"posterName": "alice", "opponentName": tc.opponent, "title": tc.title, "activity": "running",
			})

			// Assert
			own := drain(t, alice)
			require.Equal(t, []string{EventChallengeCreateError}, events(own))
			require.Equal(t, map[string]any{"message": tc.message}, own[0].Data)
			require.Empty(t, drain(t, bob))
		})
	}
}

func Test_Gateway_Emits_Store_Unavailable_When_Store_Fails(t *testing.T) {
	// Arrange
	h := newHarness(t)
	s := h.connect(t)
	h.login(t, s, "alice")

	board.unavailable = true

	// Act
	h.send(t, s, EventChallengeDone, map[string]any{"confirmerName": "alice", "challengeTitle": "5k"})

	// Assert
	own := drain(t, s)
	require.Equal(t, []string{EventError}, events(own))
	require.Equal(t, map[string]any{"message": MessageStoreUnavailable}, own[0].Data)
}

func Test_Gateway_Emits_Error_On_Malformed_And_Unknown_Events(t *testing.T) {
	// Arrange
	h := newHarness(t)
	s := h.connect(t)

	// Act
	h.gateway.Handle(context.Background(), s, []byte("{not json"))
	h.send(t, s, "dance", map[string]string{})

	// Assert
	own := drain(t, s)
	require.Equal(t, []string{EventError, EventError}, events(own))
	require.Equal(t, map[string]any{"message": MessageInvalidEvent}, own[0].Data)
	require.Equal(t, map[string]any{"message": MessageUnknownEvent}, own[1].Data)
}

func Test_Gateway_Runs_Five_K_Scenario_End_To_End(t *testing.T) {
	// Arrange
	h := newHarness(t)
	alice, bob := h.connect(t), h.connect(t)
	h.login(t, alice, "alice")
	h.login(t, bob, "bob")
	drain(t, alice)

	// Act & Assert: propose.
	h.send(t, alice, EventChallengePropose, map[string]string{
		"posterName": "alice", "opponentName": "bob", "title": "5k", "activity": "running",
	})

	own := drain(t, alice)
	require.Equal(t, []string{EventChallengeCreateSuccess, EventChallengeListChanged}, events(own))
	require.Equal(t, map[string]any{"challengeId": float64(1), "title": "5k"}, own[0].Data)
	require.Equal(t, []string{EventChallengeListChanged}, events(drain(t, bob)))

	// Act & Assert: first confirmation keeps the challenge.
	h.send(t, alice, EventChallengeDone, map[string]any{"confirmerName": "alice", "challengeTitle": "5k"})

	require.Equal(t, []string{EventChallengeListChanged}, events(drain(t, alice)))
	require.Equal(t, []string{EventChallengeListChanged}, events(drain(t, bob)))
	require.Equal(t, 1, board.activeChallenges())

	// Act & Assert: second confirmation archives and announces.
	h.send(t, bob, EventChallengeDone, map[string]any{"confirmerName": "bob", "challengeTitle": "5k"})

	for _, s := range []*Session{alice, bob} {
		envelopes := drain(t, s)
		require.Equal(t, []string{EventChallengeListChanged, EventServerAnnouncement}, events(envelopes))
		require.Equal(t, map[string]any{"text": "bob completed 5k! Challenge complete."}, envelopes[1].Data)
	}
	require.Zero(t, board.activeChallenges())

	// Act & Assert: a late confirmation only refreshes the origin.
	h.send(t, alice, EventChallengeDone, map[string]any{"confirmerName": "alice", "challengeId": 1})

	require.Equal(t, []string{EventChallengeListChanged}, events(drain(t, alice)))
	require.Empty(t, drain(t, bob))
}

func Test_Gateway_Challenge_Done_Emits_Error_When_Not_Participant(t *testing.T) {
	// Arrange
	h := newHarness(t)
	alice, bob, carol := h.connect(t), h.connect(t), h.connect(t)
	h.login(t, alice, "alice")
	h.login(t, bob, "bob")
	h.login(t, carol, "carol")

	h.send(t, alice, EventChallengePropose, map[string]string{
		"posterName": "alice", "opponentName": "bob", "title": "5k", "activity": "running",
	})
	for _, s := range []*Session{alice, bob, carol} {
		drain(t, s)
	}

	// Act
	h.send(t, carol, EventChallengeDone, map[string]any{"confirmerName": "carol", "challengeId": 1})

	// Assert
	own := drain(t, carol)
	require.Equal(t, []string{EventChallengeDoneError}, events(own))
	require.Equal(t, map[string]any{"message": MessageNotParticipant}, own[0].Data)
	require.Empty(t, drain(t, alice))
}

func Test_Gateway_Delete_Account_Reloads_Self_And_Notifies_Others(t *testing.T) {
	// Arrange
	h := newHarness(t)
	alice, bob := h.connect(t), h.connect(t)
	h.login(t, alice, "alice")
	h.login(t, bob, "bob")

	h.send(t, alice, EventChallengePropose, map[string]string{
		"posterName": "alice", "opponentName": "bob", "title": "5k", "activity": "running",
	})
	drain(t, alice)
	drain(t, bob)

	// Act
	h.send(t, alice, EventDeleteAccount, map[string]string{"displayName": "alice"})

	// Assert
	require.Equal(t, []string{EventReload, EventServerAnnouncement}, events(drain(t, alice)))
	require.Equal(
		t,
		[]string{EventChallengeListChanged, EventPresenceChanged, EventServerAnnouncement},
		events(drain(t, bob)),
	)

	_, bound := alice.DisplayName()
	require.False(t, bound)
	require.False(t, h.store.isOnline("alice"))
	require.Zero(t, board.activeChallenges())
}

func Test_Gateway_Delete_Account_Emits_Store_Unavailable_And_List_Changed_When_Partially_Failed(t *testing.T) {
	// Arrange
	h := newHarness(t)
	alice, bob := h.connect(t), h.connect(t)
	h.login(t, alice, "alice")
	h.login(t, bob, "bob")

	for _, title := range []string{"5k", "10k"} {
		h.send(t, alice, EventChallengePropose, map[string]string{
			"posterName": "alice", "opponentName": "bob", "title": title, "activity": "running",
		})
	}
	drain(t, alice)
	drain(t, bob)

	board.partialDelete = true

	// Act
	h.send(t, alice, EventDeleteAccount, map[string]string{"displayName": "alice"})

	// Assert
	own := drain(t, alice)
	require.Equal(t, []string{EventError, EventChallengeListChanged}, events(own))
	require.Equal(t, map[string]any{"message": MessageStoreUnavailable}, own[0].Data)
	require.Equal(t, []string{EventChallengeListChanged}, events(drain(t, bob)))

	name, bound := alice.DisplayName()
	require.True(t, bound)
	require.Equal(t, "alice", name)
	require.True(t, h.store.isOnline("alice"))
	require.Equal(t, 1, board.activeChallenges())
}

func Test_Gateway_Disconnect_Marks_Offline_And_Notifies_Remaining(t *testing.T) {
	// Arrange
	h := newHarness(t)
	alice, bob := h.connect(t), h.connect(t)
	h.login(t, alice, "alice")
	h.login(t, bob, "bob")
	drain(t, alice)

	// Act
	h.gateway.Disconnect(context.Background(), bob)

	// Assert
	require.False(t, h.store.isOnline("bob"))
	require.Equal(t, []string{EventPresenceChanged}, events(drain(t, alice)))
	require.Equal(t, 1, h.hub.Count())

	_, open := <-bob.Outbound()
	require.False(t, open)
}

func Test_Gateway_Disconnect_Of_Unidentified_Session_Notifies_Nobody(t *testing.T) {
	// Arrange
	h := newHarness(t)
	anonymous, observer := h.connect(t), h.connect(t)

	// Act
	h.gateway.Disconnect(context.Background(), anonymous)

	// Assert
	require.Empty(t, drain(t, observer))
}
