package router

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Classroom/internal/app/chat"
	"github.com/dkeye/Classroom/internal/app/tiles"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMedia struct {
	id       string
	kind     domain.MediaKind
	detached int
}

func (f *fakeMedia) TrackID() string        { return f.id }
func (f *fakeMedia) Kind() domain.MediaKind { return f.kind }
func (f *fakeMedia) Detach()                { f.detached++ }

func video(id string) *fakeMedia { return &fakeMedia{id: id, kind: domain.KindVideo} }
func audio(id string) *fakeMedia { return &fakeMedia{id: id, kind: domain.KindAudio} }

func camPub(id domain.Identity, sid string) domain.Publication {
	return domain.Publication{SID: sid, Identity: id, Kind: domain.KindVideo, Source: domain.SourceCamera, TrackName: "camera"}
}

func setup(t *testing.T) (*Router, *core.Session) {
	t.Helper()
	r := New(tiles.NewRegistry(), tiles.NewSinks(), chat.NewLog())
	s := core.NewSession(context.Background(), 1, "algebra-1", "Ana", domain.RoleStudent)
	s.State = core.StateConnecting
	t.Cleanup(s.Cancel)
	r.Handle(s, core.Connected{})
	require.Equal(t, core.StateConnected, s.State)
	return r, s
}

func hasTile(r *Router, id domain.Identity, cat domain.Category) bool {
	_, ok := r.Tiles.Get(id, cat)
	return ok
}

func TestConnectedNote(t *testing.T) {
	r, s := setup(t)
	msgs := r.Chat.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].System)
	assert.Contains(t, msgs[0].Text, "You joined as student")

	r.Handle(s, core.Connected{})
	assert.Equal(t, 1, r.Chat.Len())
	require.Len(t, r.Roster(), 1)
	assert.True(t, r.Roster()[0].IsSelf)
}

func TestCameraTileInterleavings(t *testing.T) {
	pub := camPub("Ben", "TR_1")
	media := video("TR_1")
	muted := pub
	muted.Muted = true

	joined := core.ParticipantJoined{Identity: "Ben"}
	sub := core.TrackSubscribed{Publication: pub, Media: media}
	unsub := core.TrackUnsubscribed{Publication: pub, Media: media}
	mute := core.TrackMuted{Publication: muted}
	unmute := core.TrackUnmuted{Publication: pub}
	left := core.ParticipantLeft{Identity: "Ben"}
	joinedMuted := core.ParticipantJoined{Identity: "Ben", Publications: []domain.Publication{muted}}
	joinedLive := core.ParticipantJoined{Identity: "Ben", Publications: []domain.Publication{pub}}

	cases := []struct {
		name   string
		events []core.Event
		want   bool
	}{
		{"subscribed", []core.Event{joined, sub}, true},
		{"muted", []core.Event{joined, sub, mute}, false},
		{"unmuted", []core.Event{joined, sub, mute, unmute}, true},
		{"muted before subscribe", []core.Event{joined, mute, sub}, false},
		{"muted before subscribe then unmuted", []core.Event{joined, mute, sub, unmute}, true},
		{"unsubscribed", []core.Event{joined, sub, unsub}, false},
		{"unmute after unsubscribe", []core.Event{joined, sub, unsub, unmute}, false},
		{"left", []core.Event{joined, sub, left}, false},
		{"subscribe before join is ignored", []core.Event{sub, joined}, false},
		{"rejoin", []core.Event{joined, sub, left, joined}, false},
		{"duplicate subscribe", []core.Event{joined, sub, sub, joined}, true},
		{"resubscribe", []core.Event{joined, sub, unsub, sub}, true},
		{"double mute", []core.Event{joined, sub, mute, mute, unmute}, true},
		{"join re-announces muted", []core.Event{joined, sub, joinedMuted}, false},
		{"join re-announces unmuted", []core.Event{joined, sub, mute, joinedLive}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, s := setup(t)
			for _, ev := range tc.events {
				r.Handle(s, ev)
			}
			assert.Equal(t, tc.want, hasTile(r, "Ben", domain.CategoryCamera))
			if tc.want {
				assert.Equal(t, 1, r.Tiles.Len())
			} else {
				assert.Equal(t, 0, r.Tiles.Len())
			}
		})
	}
}

func TestReannouncedAsScreenMovesTile(t *testing.T) {
	cases := []struct {
		name string
		kind domain.MediaKind
	}{
		{"kind announced", domain.KindVideo},
		{"kind omitted", ""},
	}
	for _, tc := range cases {
		kind := tc.kind
		t.Run(tc.name, func(t *testing.T) {
			r, s := setup(t)
			r.Handle(s, core.ParticipantJoined{Identity: "Ben"})
			media := video("TR_9")
			r.Handle(s, core.TrackSubscribed{Publication: domain.Publication{SID: "TR_9", Identity: "Ben", Kind: domain.KindVideo}, Media: media})
			require.True(t, hasTile(r, "Ben", domain.CategoryCamera))

			screen := domain.Publication{SID: "TR_9", Identity: "Ben", Kind: kind, Source: domain.SourceScreenShare}
			r.Handle(s, core.TrackPublished{Publication: screen})
			tilesNow := r.Tiles.List()
			require.Len(t, tilesNow, 1)
			assert.Equal(t, domain.CategoryScreen, tilesNow[0].Category)
			assert.Equal(t, "TR_9", tilesNow[0].TrackID)
			assert.Equal(t, "Ben (screen)", tilesNow[0].Label)
			assert.Equal(t, "listening", r.Roster()[1].Status)

			r.Handle(s, core.TrackUnpublished{Publication: screen})
			assert.Equal(t, 0, r.Tiles.Len())
			assert.Equal(t, 1, media.detached)
		})
	}
}

func TestRejoinMutedKeepsRosterAndTilesInStep(t *testing.T) {
	r, s := setup(t)
	pub := camPub("Ben", "TR_1")
	r.Handle(s, core.ParticipantJoined{Identity: "Ben"})
	r.Handle(s, core.TrackSubscribed{Publication: pub, Media: video("TR_1")})
	require.Equal(t, "on camera", r.Roster()[1].Status)

	muted := pub
	muted.Muted = true
	r.Handle(s, core.ParticipantJoined{Identity: "Ben", Publications: []domain.Publication{muted}})
	assert.Equal(t, "listening", r.Roster()[1].Status)
	assert.False(t, hasTile(r, "Ben", domain.CategoryCamera))
}

func TestSubscribeForUnknownParticipantDetaches(t *testing.T) {
	r, s := setup(t)
	media := video("TR_1")
	r.Handle(s, core.TrackSubscribed{Publication: camPub("Ghost", "TR_1"), Media: media})
	assert.Equal(t, 1, media.detached)
	assert.Equal(t, 0, r.Tiles.Len())
}

func TestMuteUnmuteKeepsKey(t *testing.T) {
	r, s := setup(t)
	r.Handle(s, core.ParticipantJoined{Identity: "Ben", Metadata: `{"role":"teacher"}`})
	pub := camPub("Ben", "TR_1")
	r.Handle(s, core.TrackSubscribed{Publication: pub, Media: video("TR_1")})

	before := r.Tiles.List()
	require.Len(t, before, 1)
	assert.Equal(t, domain.RoleTeacher, before[0].Role)

	muted := pub
	muted.Muted = true
	r.Handle(s, core.TrackMuted{Publication: muted})
	assert.Empty(t, r.Tiles.List())

	r.Handle(s, core.TrackUnmuted{Publication: pub})
	after := r.Tiles.List()
	require.Len(t, after, 1)
	assert.Equal(t, before[0], after[0])
}

func TestNewerPublicationSurvivesOlderUnsubscribe(t *testing.T) {
	r, s := setup(t)
	r.Handle(s, core.ParticipantJoined{Identity: "Ben"})
	oldMedia, newMedia := video("TR_1"), video("TR_2")
	r.Handle(s, core.TrackSubscribed{Publication: camPub("Ben", "TR_1"), Media: oldMedia})
	r.Handle(s, core.TrackSubscribed{Publication: camPub("Ben", "TR_2"), Media: newMedia})

	tile, ok := r.Tiles.Get("Ben", domain.CategoryCamera)
	require.True(t, ok)
	assert.Equal(t, "TR_2", tile.Owner)
	assert.Equal(t, 1, r.Tiles.Len())

	r.Handle(s, core.TrackUnsubscribed{Publication: camPub("Ben", "TR_1"), Media: oldMedia})
	tile, ok = r.Tiles.Get("Ben", domain.CategoryCamera)
	require.True(t, ok)
	assert.Equal(t, "TR_2", tile.Owner)
	assert.Equal(t, 1, oldMedia.detached)
	assert.Equal(t, 0, newMedia.detached)

	r.Handle(s, core.TrackUnpublished{Publication: camPub("Ben", "TR_2")})
	assert.False(t, hasTile(r, "Ben", domain.CategoryCamera))
	assert.Equal(t, 1, newMedia.detached)
}

func TestScreenClassificationByName(t *testing.T) {
	r, s := setup(t)
	r.Handle(s, core.ParticipantJoined{Identity: "Ben"})
	pub := domain.Publication{SID: "TR_S", Identity: "Ben", Kind: domain.KindVideo, TrackName: "ScreenCapture-1"}
	r.Handle(s, core.TrackSubscribed{Publication: pub, Media: video("TR_S")})

	assert.False(t, hasTile(r, "Ben", domain.CategoryCamera))
	tile, ok := r.Tiles.Get("Ben", domain.CategoryScreen)
	require.True(t, ok)
	assert.Equal(t, "Ben (screen)", tile.Label)
	assert.Equal(t, "listening", r.Roster()[1].Status)
}

func TestAudioGoesToSink(t *testing.T) {
	r, s := setup(t)
	r.Handle(s, core.ParticipantJoined{Identity: "Ben"})
	pub := domain.Publication{SID: "TR_A", Identity: "Ben", Kind: domain.KindAudio, Source: domain.SourceMicrophone}
	m := audio("TR_A")
	r.Handle(s, core.TrackSubscribed{Publication: pub, Media: m})

	assert.Equal(t, 0, r.Tiles.Len())
	require.Len(t, r.Sinks.List(), 1)

	r.Handle(s, core.TrackUnsubscribed{Publication: pub, Media: m})
	assert.Empty(t, r.Sinks.List())
	assert.Equal(t, 1, m.detached)
}

func TestParticipantLeftCleansUp(t *testing.T) {
	r, s := setup(t)
	r.Handle(s, core.ParticipantJoined{Identity: "Ben"})
	cam, scr, mic := video("TR_1"), video("TR_2"), audio("TR_3")
	r.Handle(s, core.TrackSubscribed{Publication: camPub("Ben", "TR_1"), Media: cam})
	r.Handle(s, core.TrackSubscribed{Publication: domain.Publication{SID: "TR_2", Identity: "Ben", Kind: domain.KindVideo, Source: domain.SourceScreenShare}, Media: scr})
	r.Handle(s, core.TrackSubscribed{Publication: domain.Publication{SID: "TR_3", Identity: "Ben", Kind: domain.KindAudio}, Media: mic})
	require.Equal(t, 2, r.Tiles.Len())
	require.Len(t, r.Roster(), 2)

	r.Handle(s, core.ParticipantLeft{Identity: "Ben"})
	assert.Equal(t, 0, r.Tiles.Len())
	assert.Empty(t, r.Sinks.List())
	assert.Equal(t, 1, cam.detached)
	assert.Equal(t, 1, scr.detached)
	assert.Equal(t, 1, mic.detached)
	require.Len(t, r.Roster(), 1)

	msgs := r.Chat.Messages()
	assert.Equal(t, "Ben joined", msgs[1].Text)
	assert.Equal(t, "Ben left", msgs[len(msgs)-1].Text)

	r.Handle(s, core.ParticipantLeft{Identity: "Ben"})
	assert.Equal(t, len(msgs), r.Chat.Len())
}

func TestMetadataChangeRestyles(t *testing.T) {
	r, s := setup(t)
	r.Handle(s, core.ParticipantJoined{Identity: "Ben", Metadata: `{"role":"student"}`})
	r.Handle(s, core.TrackSubscribed{Publication: camPub("Ben", "TR_1"), Media: video("TR_1")})
	r.Handle(s, core.ParticipantMetadataChanged{Identity: "Ben", Metadata: `{"role":"teacher"}`})

	tile, ok := r.Tiles.Get("Ben", domain.CategoryCamera)
	require.True(t, ok)
	assert.Equal(t, domain.RoleTeacher, tile.Role)
	assert.Equal(t, domain.RoleTeacher, r.Roster()[1].Role)
}

func TestDataReceived(t *testing.T) {
	r, s := setup(t)
	fixed := time.UnixMilli(5000)
	r.now = func() time.Time { return fixed }

	env, err := chat.Encode("Ben", "hello", time.UnixMilli(1234))
	require.NoError(t, err)
	r.Handle(s, core.DataReceived{From: "Ben", Payload: env})
	r.Handle(s, core.DataReceived{From: "Cleo", Payload: []byte(`{"t":"chat","from":"","text":"old","ts":0}`)})
	r.Handle(s, core.DataReceived{Payload: []byte{'h', 0xff, 'i'}})

	msgs := r.Chat.Messages()[1:]
	require.Len(t, msgs, 3)
	assert.Equal(t, "Ben", msgs[0].From)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, int64(1234), msgs[0].At.UnixMilli())
	assert.False(t, msgs[0].Mine)

	assert.Equal(t, "Cleo", msgs[1].From)
	assert.Equal(t, fixed, msgs[1].At)

	assert.Equal(t, "unknown", msgs[2].From)
	assert.Equal(t, "h�i", msgs[2].Text)
}

func TestLocalTiles(t *testing.T) {
	r, s := setup(t)
	camMedia := video("L_CAM")
	cam := domain.Publication{SID: "TR_LC", Kind: domain.KindVideo, Source: domain.SourceCamera}
	scr := domain.Publication{SID: "TR_LS", Kind: domain.KindVideo, Source: domain.SourceScreenShare}
	r.Handle(s, core.LocalTrackPublished{Publication: cam, Media: camMedia})
	r.Handle(s, core.LocalTrackPublished{Publication: scr, Media: video("L_SCR")})

	tile, ok := r.Tiles.Get(domain.SelfIdentity, domain.CategoryLocalCamera)
	require.True(t, ok)
	assert.Equal(t, "Ana (me)", tile.Label)
	tile, ok = r.Tiles.Get(domain.SelfIdentity, domain.CategoryLocalScreen)
	require.True(t, ok)
	assert.Equal(t, "Ana (me) (screen)", tile.Label)
	assert.Equal(t, "on camera", r.Roster()[0].Status)

	r.Handle(s, core.LocalTrackUnpublished{Publication: cam})
	r.Handle(s, core.LocalTrackUnpublished{Publication: cam})
	assert.False(t, hasTile(r, domain.SelfIdentity, domain.CategoryLocalCamera))
	assert.Equal(t, 1, camMedia.detached)
	assert.Equal(t, "listening", r.Roster()[0].Status)
}

func TestDisconnectedClearsEverything(t *testing.T) {
	r, s := setup(t)
	r.Handle(s, core.ParticipantJoined{Identity: "Ben"})
	cam, mic, local := video("TR_1"), audio("TR_2"), video("L")
	r.Handle(s, core.TrackSubscribed{Publication: camPub("Ben", "TR_1"), Media: cam})
	r.Handle(s, core.TrackSubscribed{Publication: domain.Publication{SID: "TR_2", Identity: "Ben", Kind: domain.KindAudio}, Media: mic})
	r.Handle(s, core.LocalTrackPublished{Publication: domain.Publication{SID: "TR_L", Kind: domain.KindVideo, Source: domain.SourceCamera}, Media: local})
	s.Toggles.Screen = true

	r.Handle(s, core.Disconnected{Reason: "network"})
	assert.Equal(t, core.StateDisconnected, s.State)
	assert.Equal(t, 0, r.Tiles.Len())
	assert.Empty(t, r.Sinks.List())
	assert.Empty(t, r.Roster())
	assert.Equal(t, core.DefaultToggles(), s.Toggles)
	assert.Equal(t, 0, s.RemoteCount())
	assert.Equal(t, 1, cam.detached)
	assert.Equal(t, 1, mic.detached)
	assert.Equal(t, 1, local.detached)

	r.Handle(s, core.ParticipantJoined{Identity: "Cleo"})
	assert.Equal(t, 0, s.RemoteCount())
}

type strangeEvent struct{}

func (strangeEvent) EventName() string { return "strange" }

func TestUnknownEventIgnored(t *testing.T) {
	r, s := setup(t)
	r.Handle(s, strangeEvent{})
	r.Handle(nil, core.ParticipantJoined{Identity: "Ben"})
	r.Handle(s, core.TrackMuted{Publication: camPub("Nobody", "TR_X")})
	assert.Equal(t, 0, r.Tiles.Len())
	assert.Len(t, r.Roster(), 1)
}
