// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxIdentityLen = 64
	MaxRoomNameLen = 64
)

var (
	ErrNameEmpty   = errors.New("name empty")
	ErrNameTooLong = errors.New("name too long")
	ErrRoomEmpty   = errors.New("room empty")
	ErrRoomTooLong = errors.New("room name too long")
)

// Identity is the stable participant key inside one room.
type Identity string

// SelfIdentity keys local tiles so they never collide with a remote identity's tiles.
const SelfIdentity Identity = "self"

// NormalizeName trims and validates a display name entered by the user.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameEmpty
	}
	if len(name) > MaxIdentityLen {
		return "", ErrNameTooLong
	}
	return name, nil
}
