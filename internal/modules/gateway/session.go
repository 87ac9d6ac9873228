package gateway

import (
	"github.com/eskrenkovic/challenge-board/internal/modules/broadcast"
	"github.com/eskrenkovic/challenge-board/internal/modules/presence"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is the server side of one client connection: its presence
// binding and its broadcast mailbox share the same id.
type Session struct {
	conn   *presence.Connection
	client *broadcast.Client
	logger *zap.Logger
}

func (s *Session) ID() uuid.UUID {
	return s.conn.ID
}

func (s *Session) DisplayName() (string, bool) {
	return s.conn.DisplayName()
}

// Outbound yields the encoded frames to write to the socket. It is closed
// when the session is disconnected.
func (s *Session) Outbound() <-chan []byte {
	return s.client.Send()
}
