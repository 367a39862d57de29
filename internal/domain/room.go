package domain

import "strings"

type RoomName string

// NormalizeRoom trims and validates a room name entered by the user.
func NormalizeRoom(room string) (RoomName, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return "", ErrRoomEmpty
	}
	if len(room) > MaxRoomNameLen {
		return "", ErrRoomTooLong
	}
	return RoomName(room), nil
}
