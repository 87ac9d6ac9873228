package core

import (
	"context"

	"github.com/google/uuid"
)

type ContextKey string

const ConnectionContextKey ContextKey = "connection_id"

// WithConnectionID tags a context with the websocket connection it serves.
func WithConnectionID(ctx context.Context, connectionID uuid.UUID) context.Context {
	return context.WithValue(ctx, ConnectionContextKey, connectionID)
}

func ConnectionID(ctx context.Context) (uuid.UUID, bool) {
	connectionID, ok := ctx.Value(ConnectionContextKey).(uuid.UUID)
	return connectionID, ok
}
