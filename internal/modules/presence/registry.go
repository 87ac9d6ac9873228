package presence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrAlreadyBound = errors.New("connection is already bound to another display name")

// Registry maintains connection bindings and the users' online flags. It
// reports transitions to the caller and never broadcasts itself.
type Registry struct {
	store  Store
	logger *zap.Logger
}

func NewRegistry(store Store, logger *zap.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// Bind associates conn with displayName. Binding the name a connection
// already carries is a no-op; rebinding to a different name is refused.
func (r *Registry) Bind(conn *Connection, displayName string) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.displayName != "" && conn.displayName != displayName {
		return fmt.Errorf("%w: bound to '%s'", ErrAlreadyBound, conn.displayName)
	}

	conn.displayName = displayName
	return nil
}

func (r *Registry) MarkOnline(ctx context.Context, displayName string) (bool, error) {
	return r.setOnline(ctx, displayName, true)
}

func (r *Registry) MarkOffline(ctx context.Context, displayName string) (bool, error) {
	return r.setOnline(ctx, displayName, false)
}

// Unbind clears the binding and marks the bound name offline. It returns
// the name that was bound and whether the user's flag flipped.
func (r *Registry) Unbind(ctx context.Context, conn *Connection) (string, bool, error) {
	conn.mu.Lock()
	displayName := conn.displayName
	conn.displayName = ""
	conn.mu.Unlock()

	if displayName == "" {
		return "", false, nil
	}

	changed, err := r.MarkOffline(ctx, displayName)
	return displayName, changed, err
}

// ResetAll marks every user offline; used at startup when no connection
// can be live yet.
func (r *Registry) ResetAll(ctx context.Context) error {
	return r.store.ResetAll(ctx)
}

func (r *Registry) setOnline(ctx context.Context, displayName string, online bool) (bool, error) {
	changed, err := r.store.SetOnline(ctx, displayName, online)
	if err != nil {
		return false, fmt.Errorf("failed to set presence for '%s': %w", displayName, err)
	}

	if changed {
		r.logger.Debug("presence changed", zap.String("display_name", displayName), zap.Bool("online", online))
	}

	return changed, nil
}
