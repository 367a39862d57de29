package core

import "github.com/dkeye/Classroom/internal/domain"

// Event is one notification emitted by a Transport.
type Event interface {
	EventName() string
}

type Connected struct{}

type Disconnected struct {
	Reason string
}

type ParticipantJoined struct {
	Identity     domain.Identity
	Metadata     string
	Publications []domain.Publication
}

type ParticipantLeft struct {
	Identity domain.Identity
}

type ParticipantMetadataChanged struct {
	Identity domain.Identity
	Metadata string
}

type TrackPublished struct {
	Publication domain.Publication
}

type TrackUnpublished struct {
	Publication domain.Publication
}

type TrackSubscribed struct {
	Publication domain.Publication
	Media       MediaHandle
}

type TrackUnsubscribed struct {
	Publication domain.Publication
	Media       MediaHandle
}

type TrackMuted struct {
	Publication domain.Publication
}

type TrackUnmuted struct {
	Publication domain.Publication
}

// DataReceived carries a data-channel payload. From is empty when the sender is unknown.
type DataReceived struct {
	From    domain.Identity
	Payload []byte
}

type LocalTrackPublished struct {
	Publication domain.Publication
	Media       MediaHandle
}

type LocalTrackUnpublished struct {
	Publication domain.Publication
}

func (Connected) EventName() string                  { return "connected" }
func (Disconnected) EventName() string               { return "disconnected" }
func (ParticipantJoined) EventName() string          { return "participant_joined" }
func (ParticipantLeft) EventName() string            { return "participant_left" }
func (ParticipantMetadataChanged) EventName() string { return "participant_metadata_changed" }
func (TrackPublished) EventName() string             { return "track_published" }
func (TrackUnpublished) EventName() string           { return "track_unpublished" }
func (TrackSubscribed) EventName() string            { return "track_subscribed" }
func (TrackUnsubscribed) EventName() string          { return "track_unsubscribed" }
func (TrackMuted) EventName() string                 { return "track_muted" }
func (TrackUnmuted) EventName() string               { return "track_unmuted" }
func (DataReceived) EventName() string               { return "data_received" }
func (LocalTrackPublished) EventName() string        { return "local_track_published" }
func (LocalTrackUnpublished) EventName() string      { return "local_track_unpublished" }
