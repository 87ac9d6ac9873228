package domain

import "time"

type User struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	IsOnline     bool      `db:"is_online"`
	CreatedAt    time.Time `db:"created_at"`
}

// Authenticate checks the given password against the stored credential.
func (u User) Authenticate(password string, passwordHasher *PasswordHasher) error {
	return passwordHasher.Verify(u.PasswordHash, password)
}
