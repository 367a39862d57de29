package domain

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole maps anything but "teacher" to student.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleTeacher)) {
		return RoleTeacher
	}
	return RoleStudent
}

// MemberMeta is the JSON document peers carry in their metadata string.
type MemberMeta struct {
	Role *string `json:"role,omitempty"`
}

// RoleFromMetadata reads the role out of a peer metadata string.
// Empty or malformed metadata is a normal case and yields student.
func RoleFromMetadata(raw string) Role {
	if strings.TrimSpace(raw) == "" {
		return RoleStudent
	}
	var meta MemberMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil || meta.Role == nil {
		return RoleStudent
	}
	return ParseRole(*meta.Role)
}
