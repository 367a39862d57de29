package rtc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) handle(ev core.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventName())
	}
	return out
}

func newTestTransport(t *testing.T) (*Transport, *recorder) {
	t.Helper()
	rec := &recorder{}
	tr := New(nil, Config{}, rec.handle)
	go tr.dispatch()
	t.Cleanup(tr.shutdown)
	return tr, rec
}

func frame(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestSignalURL(t *testing.T) {
	got, err := SignalURL("wss://media.example/", "a b")
	require.NoError(t, err)
	assert.Equal(t, "wss://media.example/rtc?access_token=a+b", got)

	got, err = SignalURL("http://localhost:7880", "tok")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:7880/rtc?access_token=tok", got)

	_, err = SignalURL("ftp://x", "tok")
	assert.Error(t, err)
}

func TestHandleFrameTranslatesRoomEvents(t *testing.T) {
	tr, rec := newTestTransport(t)

	tr.handleFrame(frame(t, wireMessage{
		Type:        "joined",
		Participant: &wireParticipant{Identity: "Ben"},
		Participants: []wireParticipant{{
			Identity: "Ana",
			Metadata: `{"role":"teacher"}`,
			Tracks:   []domain.Publication{{SID: "TR_1", Kind: domain.KindVideo, Source: domain.SourceCamera}},
		}},
	}))
	select {
	case <-tr.joined:
	default:
		t.Fatal("joined not signalled")
	}
	assert.Equal(t, "Ben", tr.Identity())

	tr.handleFrame(frame(t, wireMessage{Type: "track_muted", Track: &domain.Publication{SID: "TR_1"}}))
	tr.handleFrame(frame(t, wireMessage{Type: "participant_updated", Identity: "Ana", Metadata: `{"role":"student"}`}))
	tr.handleFrame(frame(t, wireMessage{Type: "track_unpublished", Track: &domain.Publication{SID: "TR_1"}}))
	tr.handleFrame(frame(t, wireMessage{Type: "participant_left", Identity: "Ana"}))
	tr.handleFrame([]byte(`{"type":"something_new"}`))
	tr.handleFrame([]byte(`not json`))

	want := []string{"participant_joined", "track_muted", "participant_metadata_changed", "track_unpublished", "participant_left"}
	require.Eventually(t, func() bool { return len(rec.names()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, rec.names())

	rec.mu.Lock()
	joined := rec.events[0].(core.ParticipantJoined)
	muted := rec.events[1].(core.TrackMuted)
	unpub := rec.events[3].(core.TrackUnpublished)
	rec.mu.Unlock()
	require.Len(t, joined.Publications, 1)
	assert.Equal(t, domain.Identity("Ana"), joined.Publications[0].Identity)
	assert.True(t, muted.Publication.Muted)
	assert.Equal(t, domain.Identity("Ana"), muted.Publication.Identity)
	assert.Equal(t, domain.SourceCamera, unpub.Publication.Source)
}

func TestPublishAckRoutedToRequest(t *testing.T) {
	tr, rec := newTestTransport(t)
	ack := make(chan domain.Publication, 1)
	tr.acks["cam-1"] = ack

	tr.handleFrame(frame(t, wireMessage{Type: "track_published", CID: "cam-1", Track: &domain.Publication{SID: "TR_9", Source: domain.SourceCamera}}))
	select {
	case pub := <-ack:
		assert.Equal(t, "TR_9", pub.SID)
	case <-time.After(time.Second):
		t.Fatal("ack not delivered")
	}
	assert.Empty(t, rec.names())
}

func TestOnDataUnwrapsPacket(t *testing.T) {
	tr, rec := newTestTransport(t)
	tr.onData(reliableLabel, frame(t, dataPacket{From: "Ana", Payload: []byte("hi")}))
	tr.onData(reliableLabel, []byte("plain"))

	require.Eventually(t, func() bool { return len(rec.names()) == 2 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	first := rec.events[0].(core.DataReceived)
	second := rec.events[1].(core.DataReceived)
	assert.Equal(t, domain.Identity("Ana"), first.From)
	assert.Equal(t, []byte("hi"), first.Payload)
	assert.Equal(t, domain.Identity(""), second.From)
	assert.Equal(t, []byte("plain"), second.Payload)
}

func TestConnectionLostDeliversDisconnectedOnce(t *testing.T) {
	tr, rec := newTestTransport(t)
	tr.connected.Store(true)

	tr.connectionLost("signal closed")
	tr.connectionLost("again")

	require.Eventually(t, tr.closed, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"disconnected"}, rec.names())

	tr.emit(core.ParticipantLeft{Identity: "Ana"})
	assert.Equal(t, []string{"disconnected"}, rec.names())
}

func TestDisconnectIsIdempotentAndSilent(t *testing.T) {
	tr, rec := newTestTransport(t)
	tr.connected.Store(true)
	tr.Disconnect()
	tr.Disconnect()
	tr.connectionLost("read error after close")
	assert.True(t, tr.closed())
	assert.Empty(t, rec.names())
	assert.ErrorIs(t, tr.PublishData(context.Background(), []byte("x"), true), ErrClosed)
}

func TestRemoteTrackDetachIdempotent(t *testing.T) {
	calls := 0
	rt := newRemoteTrack("TR_1", nil, func() { calls++ })
	rt.MarkMuted()
	assert.Equal(t, TrackStateMuted, rt.State())
	rt.MarkOk()
	assert.Equal(t, TrackStateOk, rt.State())
	rt.Detach()
	rt.Detach()
	rt.MarkOk()
	assert.Equal(t, TrackStateDetached, rt.State())
	assert.Equal(t, 1, calls)
	assert.Equal(t, domain.KindVideo, rt.Kind())
}

func TestStaticCapturer(t *testing.T) {
	track, err := StaticCapturer{}.Capture(domain.SourceMicrophone, "Ana")
	require.NoError(t, err)
	assert.Equal(t, "Ana", track.StreamID())
	assert.Equal(t, domain.KindAudio, kindOf(domain.SourceMicrophone))

	_, err = StaticCapturer{}.Capture(domain.SourceUnknown, "Ana")
	assert.ErrorIs(t, err, core.ErrUnsupported)
}
