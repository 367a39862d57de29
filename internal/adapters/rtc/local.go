package rtc

import (
	"fmt"
	"sync/atomic"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Capturer produces the local track for a media source. Device errors should
// wrap core.ErrPermissionDenied or core.ErrUnsupported where they apply.
type Capturer interface {
	Capture(src domain.Source, streamID string) (webrtc.TrackLocal, error)
}

// StaticCapturer hands out sample tracks the caller feeds; nothing is
// written to them unless a media pipeline is plugged in.
type StaticCapturer struct{}

func (StaticCapturer) Capture(src domain.Source, streamID string) (webrtc.TrackLocal, error) {
	var codec webrtc.RTPCodecCapability
	switch src {
	case domain.SourceMicrophone:
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	case domain.SourceCamera, domain.SourceScreenShare:
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	default:
		return nil, fmt.Errorf("%w: source %q", core.ErrUnsupported, src)
	}
	track, err := webrtc.NewTrackLocalStaticSample(codec, string(src)+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	return track, nil
}

// LocalTrack is the media handle of one published local track.
type LocalTrack struct {
	Track  webrtc.TrackLocal
	Sender *webrtc.RTPSender
	CID    string

	pub      domain.Publication
	detached atomic.Bool
}

func (l *LocalTrack) TrackID() string { return l.Track.ID() }

func (l *LocalTrack) Kind() domain.MediaKind { return kindOf(l.pub.Source) }

// Detach drops the local preview; the sender is removed on unpublish.
func (l *LocalTrack) Detach() { l.detached.Store(true) }

func (l *LocalTrack) Detached() bool { return l.detached.Load() }

func kindOf(src domain.Source) domain.MediaKind {
	if src == domain.SourceMicrophone || src == domain.SourceScreenShareAudio {
		return domain.KindAudio
	}
	return domain.KindVideo
}

func trackName(src domain.Source) string {
	switch src {
	case domain.SourceMicrophone:
		return "microphone"
	case domain.SourceScreenShare:
		return "screen"
	default:
		return "camera"
	}
}
