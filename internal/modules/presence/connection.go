package presence

import (
	"sync"

	"github.com/google/uuid"
)

// Connection is the runtime identity of one live socket. It is bound to at
// most one display name.
type Connection struct {
	ID uuid.UUID

	mu          sync.Mutex
	displayName string
}

func NewConnection() *Connection {
	return &Connection{ID: uuid.New()}
}

// DisplayName returns the bound name, if any.
func (c *Connection) DisplayName() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.displayName, c.displayName != ""
}
