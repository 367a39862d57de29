package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	reliableLabel = "_reliable"
	lossyLabel    = "_lossy"
)

// PeerConnection wraps the single pion PeerConnection a room session uses
// for both publishing and subscribing.
type PeerConnection struct {
	pc     *webrtc.PeerConnection
	room   string
	cancel context.CancelFunc

	mu       sync.Mutex
	channels map[string]*webrtc.DataChannel

	onICE     func(webrtc.ICECandidateInit)
	onTrack   func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onData    func(label string, data []byte)
	onFailed  func(reason string)
	closeOnce sync.Once
}

func WebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

func NewPeerConnection(api *webrtc.API, cfg webrtc.Configuration, room string) (*PeerConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &PeerConnection{pc: pc, room: room, channels: make(map[string]*webrtc.DataChannel)}, nil
}

// Start installs the pion callbacks and opens the data channels. Callbacks
// must be registered before Start.
func (c *PeerConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "adapters.rtc").Str("room", c.room).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("room", c.room).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed && c.onFailed != nil {
			c.onFailed("peer connection failed")
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "adapters.rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(ctx, track, receiver)
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		c.bindChannel(dc)
	})

	ordered := true
	reliable, err := c.pc.CreateDataChannel(reliableLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return err
	}
	c.bindChannel(reliable)

	unordered := false
	var retransmits uint16
	lossy, err := c.pc.CreateDataChannel(lossyLabel, &webrtc.DataChannelInit{Ordered: &unordered, MaxRetransmits: &retransmits})
	if err != nil {
		return err
	}
	c.bindChannel(lossy)
	return nil
}

func (c *PeerConnection) bindChannel(dc *webrtc.DataChannel) {
	label := dc.Label()
	c.mu.Lock()
	if _, ok := c.channels[label]; !ok {
		c.channels[label] = dc
	}
	c.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.onData != nil {
			c.onData(label, msg.Data)
		}
	})
}

// Send writes to the reliable or lossy channel once it is open.
func (c *PeerConnection) Send(reliable bool, data []byte) error {
	label := lossyLabel
	if reliable {
		label = reliableLabel
	}
	c.mu.Lock()
	dc, ok := c.channels[label]
	c.mu.Unlock()
	if !ok || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.Send(data)
}

func (c *PeerConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

// CreateOffer starts a client-initiated renegotiation after publishing or
// unpublishing a local track.
func (c *PeerConnection) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete
	return c.pc.LocalDescription(), nil
}

func (c *PeerConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *PeerConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddLocalTrack attaches a local track and drains its RTCP until the sender stops.
func (c *PeerConnection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (c *PeerConnection) RemoveLocalTrack(sender *webrtc.RTPSender) error {
	return c.pc.RemoveTrack(sender)
}

func (c *PeerConnection) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "adapters.rtc").Str("room", c.room).Msg("close error")
		} else {
			log.Info().Str("module", "adapters.rtc").Str("room", c.room).Msg("closed")
		}
	})
}

func (c *PeerConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnTrack sets application-level callback for remote tracks.
func (c *PeerConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

func (c *PeerConnection) OnData(fn func(label string, data []byte)) { c.onData = fn }

// OnFailed fires when the peer connection can no longer recover.
func (c *PeerConnection) OnFailed(fn func(reason string)) { c.onFailed = fn }
