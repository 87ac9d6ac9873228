package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func Test_Password_Matches_Hash(t *testing.T) {
	// Arrange
	password := uuid.NewString()

	hasher := NewPasswordHasher(bcrypt.MinCost)

	passwordHash, err := hasher.HashPassword(password)

	require.NoError(t, err)
	require.NotEmpty(t, passwordHash)

	// Act
	err = hasher.Verify(passwordHash, password)

	// Assert
	require.NoError(t, err)
}

func Test_Password_Does_Not_Match_When_Different(t *testing.T) {
	// Arrange
	hasher := NewPasswordHasher(bcrypt.MinCost)

	passwordHash, err := hasher.HashPassword(uuid.NewString())
	require.NoError(t, err)

	// Act
	err = hasher.Verify(passwordHash, uuid.NewString())

	// Assert
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func Test_HashPassword_Returns_Error_When_Password_Too_Long(t *testing.T) {
	// Arrange
	hasher := NewPasswordHasher(bcrypt.MinCost)

	// Act
	_, err := hasher.HashPassword(strings.Repeat("x", MaxPasswordBytes+1))

	// Assert
	require.ErrorIs(t, err, ErrPasswordTooLong)
}

func Test_HashPassword_Returns_Error_When_Password_Empty(t *testing.T) {
	// Arrange
	hasher := NewPasswordHasher(bcrypt.MinCost)

	// Act
	_, err := hasher.HashPassword("")

	// Assert
	require.ErrorIs(t, err, ErrPasswordRequired)
}
