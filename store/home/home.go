package home

import (
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

var (
	ErrHomeExists   = errors.New("home already exists")
	ErrHomeNotFound = errors.New("home not found")
	ErrInvalidName  = errors.New("invalid home name")
)

type Position struct {
	X, Y, Z float64
}

// Home is a named teleport target owned by one player.
type Home struct {
	Name       string
	Position   Position
	Dimension  int32
	CreatedAt  time.Time
	ModifiedAt time.Time
}

func Make(name string, position Position, dimension int32) Home {
	return Home{Name: name, Position: position, Dimension: dimension}
}

func validateName(name string, maxLength int) error {
	if name == "" {
		return errors.WithMessage(ErrInvalidName, "name can't be empty")
	}
	if length := utf8.RuneCountInString(name); maxLength > 0 && length > maxLength {
		return errors.WithMessagef(ErrInvalidName, "name %q has %d characters, at most %d allowed", name, length, maxLength)
	}
	return nil
}
