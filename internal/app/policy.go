package app

import (
	"strings"

	"github.com/dkeye/Classroom/internal/domain"
)

// Classify decides whether a publication belongs on a screen or a camera tile.
// The declared source wins; publications without a precise source fall back to
// the track name.
func Classify(pub domain.Publication) domain.Category {
	switch pub.Source {
	case domain.SourceScreenShare, domain.SourceScreenShareAudio:
		return domain.CategoryScreen
	}
	if strings.Contains(strings.ToLower(pub.TrackName), "screen") {
		return domain.CategoryScreen
	}
	return domain.CategoryCamera
}

// Policy gates locally originated media actions by role.
type Policy interface {
	CanPublish(role domain.Role, src domain.Source) bool
}

// ClassroomPolicy lets teachers and students publish camera, microphone and screen.
type ClassroomPolicy struct{}

func (ClassroomPolicy) CanPublish(role domain.Role, src domain.Source) bool {
	switch src {
	case domain.SourceCamera, domain.SourceMicrophone, domain.SourceScreenShare:
		return role == domain.RoleTeacher || role == domain.RoleStudent
	}
	return false
}
