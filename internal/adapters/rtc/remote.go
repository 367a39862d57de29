package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Classroom/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDetached
)

// RemoteTrack is the media handle of one subscribed remote track. Its read
// loop keeps RTP flowing until the track ends or the handle is detached.
type RemoteTrack struct {
	Src *webrtc.TrackRemote

	sid    string
	kind   domain.MediaKind
	state  atomic.Int32
	cancel context.CancelFunc
	once   sync.Once

	packets atomic.Uint64
	bytes   atomic.Uint64
	lastSeq atomic.Uint32
}

func newRemoteTrack(sid string, src *webrtc.TrackRemote, cancel context.CancelFunc) *RemoteTrack {
	kind := domain.KindVideo
	if src != nil && src.Kind() == webrtc.RTPCodecTypeAudio {
		kind = domain.KindAudio
	}
	return &RemoteTrack{Src: src, sid: sid, kind: kind, cancel: cancel}
}

func (r *RemoteTrack) TrackID() string        { return r.sid }
func (r *RemoteTrack) Kind() domain.MediaKind { return r.kind }

func (r *RemoteTrack) State() TrackState { return TrackState(r.state.Load()) }

func (r *RemoteTrack) MarkOk() { r.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk)) }

func (r *RemoteTrack) MarkMuted() {
	r.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

// Detach stops the read loop; it is safe to call more than once.
func (r *RemoteTrack) Detach() {
	r.once.Do(func() {
		r.state.Store(int32(TrackStateDetached))
		if r.cancel != nil {
			r.cancel()
		}
	})
}

// Stats reports received packets and payload bytes.
func (r *RemoteTrack) Stats() (packets, bytes uint64) {
	return r.packets.Load(), r.bytes.Load()
}

// loop reads RTP from the source until ctx is done or the track ends.
// It reports true when the track ended on its own.
func (r *RemoteTrack) loop(ctx context.Context, logger *zerolog.Logger) bool {
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("remote track ctx done")
			return false
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			if r.State() == TrackStateDetached || ctx.Err() != nil {
				return false
			}
			logger.Info().Err(err).Msg("remote track read RTP stopped")
			return true
		}
		r.account(pkt)
	}
}

func (r *RemoteTrack) account(pkt *rtp.Packet) {
	if r.State() != TrackStateOk {
		return
	}
	r.packets.Add(1)
	r.bytes.Add(uint64(len(pkt.Payload)))
	r.lastSeq.Store(uint32(pkt.SequenceNumber))
}
