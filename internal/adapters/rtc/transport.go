// Package rtc is the media transport: websocket signaling plus one pion
// PeerConnection per room session.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ICEServers     []string
	PingPeriod     time.Duration
	ReadLimit      int64
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Capturer       Capturer
	LogLevel       zerolog.Level
}

// Transport implements core.Transport. Every callback it receives is queued
// and delivered to the handler by a single dispatcher goroutine.
type Transport struct {
	cfg     Config
	api     *webrtc.API
	handler core.EventHandler

	events    chan core.Event
	done      chan struct{}
	joined    chan struct{}
	joinOnce  sync.Once
	stopOnce  sync.Once
	connected atomic.Bool
	lost      atomic.Bool

	mu       sync.Mutex
	sig      *signalConn
	peer     *PeerConnection
	cancel   context.CancelFunc
	identity string
	pubs     map[string]domain.Publication
	remote   map[string]*RemoteTrack
	local    map[domain.Source]*LocalTrack
	acks     map[string]chan domain.Publication
}

// NewFactory returns a core.TransportFactory sharing one pion API.
func NewFactory(cfg Config) (core.TransportFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{}
	se.LoggerFactory = LoggerFactory{Level: cfg.LogLevel}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))
	return func(h core.EventHandler) core.Transport {
		return New(api, cfg, h)
	}, nil
}

func New(api *webrtc.API, cfg Config, h core.EventHandler) *Transport {
	if cfg.Capturer == nil {
		cfg.Capturer = StaticCapturer{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	return &Transport{
		cfg:     cfg,
		api:     api,
		handler: h,
		events:  make(chan core.Event, 64),
		done:    make(chan struct{}),
		joined:  make(chan struct{}),
		pubs:    make(map[string]domain.Publication),
		remote:  make(map[string]*RemoteTrack),
		local:   make(map[domain.Source]*LocalTrack),
		acks:    make(map[string]chan domain.Publication),
	}
}

// Connect dials signaling, waits for the room to accept us and sends the
// initial offer. ctx only bounds the handshake.
func (t *Transport) Connect(ctx context.Context, base, token string) error {
	target, err := SignalURL(base, token)
	if err != nil {
		return &core.TransportError{Op: "connect", Err: err}
	}
	sig, err := dialSignal(ctx, target, t.cfg.ReadLimit)
	if err != nil {
		return &core.TransportError{Op: "connect", Err: err}
	}
	host := base
	if u, err := url.Parse(base); err == nil {
		host = u.Host
	}
	peer, err := NewPeerConnection(t.api, WebRTCConfig(t.cfg.ICEServers), host)
	if err != nil {
		sig.Close()
		return &core.TransportError{Op: "connect", Err: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	peer.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := sig.sendJSON(wireMessage{Type: "candidate", Candidate: ci.Candidate, SDPMid: ci.SDPMid, SDPMLine: ci.SDPMLineIndex}); err != nil {
			log.Warn().Err(err).Str("module", "adapters.rtc").Msg("send candidate")
		}
	})
	peer.OnTrack(t.onTrack)
	peer.OnData(t.onData)
	peer.OnFailed(t.connectionLost)

	t.mu.Lock()
	t.sig, t.peer, t.cancel = sig, peer, cancel
	t.mu.Unlock()

	if err := peer.Start(runCtx); err != nil {
		t.shutdown()
		return &core.TransportError{Op: "connect", Err: err}
	}

	go t.dispatch()
	go sig.writePump(runCtx, t.cfg.PingPeriod)
	go func() {
		err := sig.readPump(t.handleFrame)
		t.connectionLost("signal closed: " + err.Error())
	}()

	timer := time.NewTimer(t.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-t.joined:
	case <-ctx.Done():
		t.shutdown()
		return &core.TransportError{Op: "connect", Err: ctx.Err()}
	case <-timer.C:
		t.shutdown()
		return &core.TransportError{Op: "connect", Err: errors.New("timed out waiting for room")}
	case <-t.done:
		return &core.TransportError{Op: "connect", Err: ErrClosed}
	}

	if err := t.negotiate(); err != nil {
		t.shutdown()
		return &core.TransportError{Op: "connect", Err: err}
	}
	t.connected.Store(true)
	log.Info().Str("module", "adapters.rtc").Str("host", host).Str("identity", t.Identity()).Msg("connected")
	return nil
}

// Disconnect is idempotent and never waits on the network.
func (t *Transport) Disconnect() {
	t.lost.Store(true)
	t.shutdown()
}

func (t *Transport) Identity() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.identity
}

func (t *Transport) SetCameraEnabled(ctx context.Context, on bool) error {
	return t.setSource(ctx, domain.SourceCamera, on)
}

func (t *Transport) SetMicrophoneEnabled(ctx context.Context, on bool) error {
	return t.setSource(ctx, domain.SourceMicrophone, on)
}

func (t *Transport) SetScreenShareEnabled(ctx context.Context, on bool) error {
	return t.setSource(ctx, domain.SourceScreenShare, on)
}

func (t *Transport) PublishData(_ context.Context, data []byte, reliable bool) error {
	t.mu.Lock()
	peer, from := t.peer, t.identity
	t.mu.Unlock()
	if peer == nil || t.closed() {
		return ErrClosed
	}
	b, err := json.Marshal(dataPacket{From: from, Payload: data})
	if err != nil {
		return err
	}
	return peer.Send(reliable, b)
}

func (t *Transport) setSource(ctx context.Context, src domain.Source, on bool) error {
	t.mu.Lock()
	peer, sig, lt, ident := t.peer, t.sig, t.local[src], t.identity
	t.mu.Unlock()
	if peer == nil || t.closed() {
		return ErrClosed
	}
	if !on {
		if lt == nil {
			return nil
		}
		return t.unpublish(src, lt)
	}
	if lt != nil {
		return nil
	}

	track, err := t.cfg.Capturer.Capture(src, ident)
	if err != nil {
		return err
	}
	sender, err := peer.AddLocalTrack(track)
	if err != nil {
		return err
	}
	cid := track.ID()
	ack := make(chan domain.Publication, 1)
	t.mu.Lock()
	t.acks[cid] = ack
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.acks, cid)
		t.mu.Unlock()
	}()

	rollback := func(err error) error {
		if rerr := peer.RemoveLocalTrack(sender); rerr != nil {
			log.Warn().Err(rerr).Str("module", "adapters.rtc").Str("source", string(src)).Msg("rollback publish")
		}
		return err
	}
	if err := sig.sendJSON(publishRequest{Type: "publish", CID: cid, Kind: kindOf(src), Source: src, Name: trackName(src)}); err != nil {
		return rollback(err)
	}
	if err := t.negotiate(); err != nil {
		return rollback(err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.PublishTimeout)
	defer cancel()
	var pub domain.Publication
	select {
	case pub = <-ack:
	case <-ctx.Done():
		return rollback(ctx.Err())
	case <-t.done:
		return ErrClosed
	}
	if pub.Source == domain.SourceUnknown {
		pub.Source = src
	}
	if pub.TrackName == "" {
		pub.TrackName = trackName(src)
	}
	pub.Kind = kindOf(src)

	lt = &LocalTrack{Track: track, Sender: sender, CID: cid, pub: pub}
	t.mu.Lock()
	t.local[src] = lt
	t.mu.Unlock()
	t.emit(core.LocalTrackPublished{Publication: pub, Media: lt})
	return nil
}

func (t *Transport) unpublish(src domain.Source, lt *LocalTrack) error {
	t.mu.Lock()
	peer, sig := t.peer, t.sig
	delete(t.local, src)
	t.mu.Unlock()
	if err := peer.RemoveLocalTrack(lt.Sender); err != nil {
		return err
	}
	if err := sig.sendJSON(unpublishRequest{Type: "unpublish", SID: lt.pub.SID}); err != nil {
		return err
	}
	if err := t.negotiate(); err != nil {
		return err
	}
	t.emit(core.LocalTrackUnpublished{Publication: lt.pub})
	return nil
}

func (t *Transport) negotiate() error {
	t.mu.Lock()
	peer, sig := t.peer, t.sig
	t.mu.Unlock()
	offer, err := peer.CreateOffer()
	if err != nil {
		return err
	}
	return sig.sendJSON(wireMessage{Type: "offer", SDP: offer.SDP})
}

func (t *Transport) handleFrame(data []byte) {
	var m wireMessage
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Str("module", "adapters.rtc").Msg("bad signal json")
		return
	}
	switch m.Type {
	case "joined":
		if m.Participant != nil {
			t.mu.Lock()
			t.identity = m.Participant.Identity
			t.mu.Unlock()
		}
		for _, p := range m.Participants {
			t.participantJoined(p)
		}
		t.joinOnce.Do(func() { close(t.joined) })
	case "participant_joined":
		if m.Participant != nil {
			t.participantJoined(*m.Participant)
		}
	case "participant_left":
		t.mu.Lock()
		for sid, p := range t.pubs {
			if string(p.Identity) == m.Identity {
				delete(t.pubs, sid)
				delete(t.remote, sid)
			}
		}
		t.mu.Unlock()
		t.emit(core.ParticipantLeft{Identity: domain.Identity(m.Identity)})
	case "participant_updated":
		t.emit(core.ParticipantMetadataChanged{Identity: domain.Identity(m.Identity), Metadata: m.Metadata})
	case "track_published":
		if m.Track == nil {
			return
		}
		if string(m.Track.Identity) == t.Identity() || m.CID != "" {
			t.ackPublish(m.CID, *m.Track)
			return
		}
		t.mu.Lock()
		t.pubs[m.Track.SID] = *m.Track
		t.mu.Unlock()
		t.emit(core.TrackPublished{Publication: *m.Track})
	case "track_unpublished":
		if m.Track == nil {
			return
		}
		t.mu.Lock()
		pub, ok := t.pubs[m.Track.SID]
		delete(t.pubs, m.Track.SID)
		delete(t.remote, m.Track.SID)
		t.mu.Unlock()
		if !ok {
			pub = *m.Track
		}
		t.emit(core.TrackUnpublished{Publication: pub})
	case "track_muted", "track_unmuted":
		if m.Track == nil {
			return
		}
		t.setMuted(*m.Track, m.Type == "track_muted")
	case "offer":
		t.applyOffer(m.SDP)
	case "answer":
		t.mu.Lock()
		peer := t.peer
		t.mu.Unlock()
		if err := peer.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}); err != nil {
			log.Error().Err(err).Str("module", "adapters.rtc").Msg("apply answer")
		}
	case "candidate":
		t.mu.Lock()
		peer := t.peer
		t.mu.Unlock()
		if err := peer.AddICECandidate(webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLine}); err != nil {
			log.Error().Err(err).Str("module", "adapters.rtc").Msg("add ice candidate")
		}
	case "leave":
		t.connectionLost("server closed the session: " + m.Reason)
	default:
		log.Debug().Str("module", "adapters.rtc").Str("type", m.Type).Msg("unknown signal ignored")
	}
}

func (t *Transport) participantJoined(p wireParticipant) {
	pubs := make([]domain.Publication, 0, len(p.Tracks))
	t.mu.Lock()
	for _, pub := range p.Tracks {
		pub.Identity = domain.Identity(p.Identity)
		t.pubs[pub.SID] = pub
		pubs = append(pubs, pub)
	}
	t.mu.Unlock()
	t.emit(core.ParticipantJoined{Identity: domain.Identity(p.Identity), Metadata: p.Metadata, Publications: pubs})
}

func (t *Transport) ackPublish(cid string, pub domain.Publication) {
	t.mu.Lock()
	ack, ok := t.acks[cid]
	t.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "adapters.rtc").Str("cid", cid).Msg("publish ack without request")
		return
	}
	select {
	case ack <- pub:
	default:
	}
}

func (t *Transport) setMuted(track domain.Publication, muted bool) {
	t.mu.Lock()
	pub, ok := t.pubs[track.SID]
	if !ok {
		pub = track
	}
	pub.Muted = muted
	t.pubs[pub.SID] = pub
	rt := t.remote[pub.SID]
	t.mu.Unlock()
	if rt != nil {
		if muted {
			rt.MarkMuted()
		} else {
			rt.MarkOk()
		}
	}
	if muted {
		t.emit(core.TrackMuted{Publication: pub})
	} else {
		t.emit(core.TrackUnmuted{Publication: pub})
	}
}

func (t *Transport) applyOffer(sdp string) {
	t.mu.Lock()
	peer, sig := t.peer, t.sig
	t.mu.Unlock()
	answer, err := peer.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Msg("apply offer")
		return
	}
	if err := sig.sendJSON(wireMessage{Type: "answer", SDP: answer.SDP}); err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Msg("send answer")
	}
}

func (t *Transport) onTrack(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	sid := track.ID()
	t.mu.Lock()
	pub, ok := t.pubs[sid]
	t.mu.Unlock()
	if !ok {
		pub = domain.Publication{SID: sid, Identity: domain.Identity(track.StreamID())}
	}
	trackCtx, cancel := context.WithCancel(ctx)
	rt := newRemoteTrack(sid, track, cancel)
	pub.Kind = rt.Kind()
	if pub.Muted {
		rt.MarkMuted()
	}
	t.mu.Lock()
	t.remote[sid] = rt
	t.mu.Unlock()
	t.emit(core.TrackSubscribed{Publication: pub, Media: rt})

	logger := log.With().Str("module", "adapters.rtc").Str("sid", sid).Logger()
	go func() {
		if !rt.loop(trackCtx, &logger) {
			return
		}
		t.mu.Lock()
		if t.remote[sid] == rt {
			delete(t.remote, sid)
		}
		t.mu.Unlock()
		t.emit(core.TrackUnsubscribed{Publication: pub, Media: rt})
	}()
}

func (t *Transport) onData(_ string, data []byte) {
	from := ""
	payload := data
	var pkt dataPacket
	if err := json.Unmarshal(data, &pkt); err == nil && pkt.Payload != nil {
		from, payload = pkt.From, pkt.Payload
	}
	t.emit(core.DataReceived{From: domain.Identity(from), Payload: payload})
}

func (t *Transport) emit(ev core.Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func (t *Transport) dispatch() {
	for {
		select {
		case <-t.done:
			return
		case ev := <-t.events:
			t.handler(ev)
			if _, ok := ev.(core.Disconnected); ok {
				t.shutdown()
				return
			}
		}
	}
}

// connectionLost reports an unrequested disconnect once. The dispatcher
// stops after delivering it.
func (t *Transport) connectionLost(reason string) {
	if !t.lost.CompareAndSwap(false, true) {
		return
	}
	log.Warn().Str("module", "adapters.rtc").Str("reason", reason).Msg("connection lost")
	if !t.connected.Load() {
		t.shutdown()
		return
	}
	t.emit(core.Disconnected{Reason: reason})
}

func (t *Transport) closed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Transport) shutdown() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		sig, peer, cancel := t.sig, t.peer, t.cancel
		remote := make([]*RemoteTrack, 0, len(t.remote))
		for _, rt := range t.remote {
			remote = append(remote, rt)
		}
		t.remote = make(map[string]*RemoteTrack)
		t.mu.Unlock()
		for _, rt := range remote {
			rt.Detach()
		}
		if cancel != nil {
			cancel()
		}
		if sig != nil {
			sig.Close()
		}
		if peer != nil {
			go peer.Close()
		}
	})
}
