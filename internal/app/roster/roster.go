// Package roster derives the participant list shown next to the tiles.
package roster

import (
	"github.com/dkeye/Classroom/internal/app"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

const (
	StatusOnCamera  = "on camera"
	StatusListening = "listening"
)

type Entry struct {
	Identity domain.Identity `json:"identity"`
	Role     domain.Role     `json:"role"`
	IsSelf   bool            `json:"is_self"`
	Status   string          `json:"status"`
}

// Project rebuilds the roster from the session. The local participant comes
// first, remote participants follow in arrival order. A nil session, or one
// that never reached the room, yields an empty roster.
func Project(s *core.Session) []Entry {
	if s == nil || s.State != core.StateConnected {
		return []Entry{}
	}
	out := make([]Entry, 0, 1+s.RemoteCount())
	out = append(out, Entry{
		Identity: s.LocalIdentity(),
		Role:     s.Role,
		IsSelf:   true,
		Status:   localStatus(s),
	})
	for _, p := range s.Remotes() {
		out = append(out, Entry{
			Identity: p.Identity,
			Role:     p.Role(),
			Status:   remoteStatus(p),
		})
	}
	return out
}

func localStatus(s *core.Session) string {
	for _, ps := range s.LocalPublications() {
		if onCamera(ps.Publication) {
			return StatusOnCamera
		}
	}
	return StatusListening
}

func remoteStatus(p *core.Participant) string {
	for _, ps := range p.Publications() {
		if onCamera(ps.Publication) {
			return StatusOnCamera
		}
	}
	return StatusListening
}

func onCamera(pub domain.Publication) bool {
	return pub.Kind == domain.KindVideo && !pub.Muted && app.Classify(pub) == domain.CategoryCamera
}
