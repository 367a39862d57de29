package core

import "github.com/dkeye/Classroom/internal/domain"

// MediaHandle is a received or locally captured track that can be shown on a surface.
type MediaHandle interface {
	TrackID() string
	Kind() domain.MediaKind
	// Detach stops delivering media to whatever surface holds the handle.
	Detach()
}
