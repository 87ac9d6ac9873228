package domain

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the bcrypt input limit.
const MaxPasswordBytes = 72

var (
	ErrInvalidPassword  = errors.New("given password does not match")
	ErrPasswordTooLong  = fmt.Errorf("password exceeds %d bytes", MaxPasswordBytes)
	ErrPasswordRequired = errors.New("password is required")
)

type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}

	return string(hashed), nil
}

func (h *PasswordHasher) Verify(passwordHash, givenPassword string) error {
	err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(givenPassword))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidPassword
	case err != nil:
		return err
	}

	return nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}

	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}

	return nil
}
