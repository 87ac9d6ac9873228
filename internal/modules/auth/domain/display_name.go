package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	MaxDisplayNameRunes = 20
	MaxDisplayNameBytes = 80
)

var (
	ErrDisplayNameEmpty       = errors.New("display name is empty")
	ErrDisplayNameUntrimmed   = errors.New("display name has leading or trailing whitespace")
	ErrDisplayNameCharacters  = errors.New("display name contains unsupported characters")
	ErrDisplayNameTooLong     = errors.New("display name is too long")
	ErrDisplayNameTooManyByte = errors.New("display name exceeds the byte limit")
)

var displayNamePattern = regexp.MustCompile(`^[A-Za-z0-9\s\-]+$`)

// NormalizeDisplayName applies compatibility decomposition and strips
// combining marks, so "Zoë" becomes "Zoe".
func NormalizeDisplayName(name string) (string, error) {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	normalized, _, err := transform.String(t, name)
	return normalized, err
}

// ValidateDisplayName checks a raw identity claim. The raw string is what
// gets stored; normalization only decides whether it is acceptable.
func ValidateDisplayName(name string) error {
	if name == "" {
		return ErrDisplayNameEmpty
	}

	if name != strings.TrimSpace(name) {
		return ErrDisplayNameUntrimmed
	}

	if utf8.RuneCountInString(name) > MaxDisplayNameRunes {
		return fmt.Errorf("%w: more than %d characters", ErrDisplayNameTooLong, MaxDisplayNameRunes)
	}

	if len(name) > MaxDisplayNameBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrDisplayNameTooManyByte, MaxDisplayNameBytes)
	}

	normalized, err := NormalizeDisplayName(name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDisplayNameCharacters, err.Error())
	}

	if normalized == "" || !displayNamePattern.MatchString(normalized) {
		return ErrDisplayNameCharacters
	}

	return nil
}
