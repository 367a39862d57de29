// Package router turns transport events into tile, roster and chat updates.
package router

import (
	"fmt"
	"time"

	"github.com/dkeye/Classroom/internal/app"
	"github.com/dkeye/Classroom/internal/app/chat"
	"github.com/dkeye/Classroom/internal/app/roster"
	"github.com/dkeye/Classroom/internal/app/tiles"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Router is the session state machine. It is not threadsafe; callers deliver
// one event at a time and serialize it with every other session mutation.
type Router struct {
	Tiles *tiles.Registry
	Sinks *tiles.Sinks
	Chat  *chat.Log

	roster []roster.Entry
	now    func() time.Time
}

func New(t *tiles.Registry, s *tiles.Sinks, c *chat.Log) *Router {
	return &Router{Tiles: t, Sinks: s, Chat: c, roster: []roster.Entry{}, now: time.Now}
}

// Roster is the projection computed after the last state-changing event.
func (r *Router) Roster() []roster.Entry {
	return append([]roster.Entry(nil), r.roster...)
}

// Refresh rebuilds the roster from scratch.
func (r *Router) Refresh(s *core.Session) {
	r.roster = roster.Project(s)
}

// Handle applies one event to the session and the view.
func (r *Router) Handle(s *core.Session, ev core.Event) {
	if s == nil {
		return
	}
	if s.State != core.StateConnecting && s.State != core.StateConnected {
		log.Debug().Str("module", "app.router").Str("event", ev.EventName()).Str("state", s.State.String()).Msg("event for inactive session ignored")
		return
	}
	switch e := ev.(type) {
	case core.Connected:
		r.onConnected(s)
	case core.Disconnected:
		r.onDisconnected(s, e)
	case core.ParticipantJoined:
		r.onParticipantJoined(s, e)
	case core.ParticipantLeft:
		r.onParticipantLeft(s, e)
	case core.ParticipantMetadataChanged:
		r.onMetadataChanged(s, e)
	case core.TrackPublished:
		r.onTrackPublished(s, e)
	case core.TrackUnpublished:
		r.onTrackUnpublished(s, e)
	case core.TrackSubscribed:
		r.onTrackSubscribed(s, e)
	case core.TrackUnsubscribed:
		r.onTrackUnsubscribed(s, e)
	case core.TrackMuted:
		r.onTrackMuteChanged(s, e.Publication, true)
	case core.TrackUnmuted:
		r.onTrackMuteChanged(s, e.Publication, false)
	case core.DataReceived:
		r.onData(e)
	case core.LocalTrackPublished:
		r.onLocalPublished(s, e)
	case core.LocalTrackUnpublished:
		r.onLocalUnpublished(s, e)
	default:
		log.Warn().Str("module", "app.router").Str("event", ev.EventName()).Msg("unknown event ignored")
	}
}

func (r *Router) onConnected(s *core.Session) {
	if s.State == core.StateConnected {
		return
	}
	s.State = core.StateConnected
	r.Chat.System(fmt.Sprintf("You joined as %s. Camera/Mic enabled. Chat is enabled.", s.Role))
	log.Info().Str("module", "app.router").Str("room", string(s.Room)).Str("role", string(s.Role)).Msg("connected")
	r.Refresh(s)
}

func (r *Router) onDisconnected(s *core.Session, e core.Disconnected) {
	r.Teardown(s)
	s.State = core.StateDisconnected
	log.Info().Str("module", "app.router").Str("room", string(s.Room)).Str("reason", e.Reason).Msg("disconnected")
	r.Refresh(s)
}

// Teardown clears every tile and sink, detaches all media and resets local state.
// Sink media is owned by the remote publication it came from.
func (r *Router) Teardown(s *core.Session) {
	r.Tiles.Clear()
	if s == nil {
		for _, sink := range r.Sinks.Clear() {
			sink.Media.Detach()
		}
		return
	}
	r.Sinks.Clear()
	for _, p := range s.Remotes() {
		for _, ps := range p.Publications() {
			detach(ps)
		}
	}
	for _, ps := range s.LocalPublications() {
		detach(ps)
	}
	s.ClearRemotes()
	s.ResetLocal()
}

func (r *Router) onParticipantJoined(s *core.Session, e core.ParticipantJoined) {
	p, added := s.AddRemote(e.Identity, e.Metadata)
	for _, pub := range e.Publications {
		p.UpsertPublication(pub)
	}
	if added {
		r.Chat.System(fmt.Sprintf("%s joined", e.Identity))
	}
	r.reconcileAll(p)
	r.Refresh(s)
}

func (r *Router) onParticipantLeft(s *core.Session, e core.ParticipantLeft) {
	p, ok := s.RemoveRemote(e.Identity)
	if !ok {
		log.Debug().Str("module", "app.router").Str("identity", string(e.Identity)).Msg("leave for unknown participant")
		return
	}
	r.Tiles.Remove(e.Identity, domain.CategoryCamera)
	r.Tiles.Remove(e.Identity, domain.CategoryScreen)
	r.Sinks.RemoveIdentity(e.Identity)
	for _, ps := range p.Publications() {
		detach(ps)
	}
	r.Chat.System(fmt.Sprintf("%s left", e.Identity))
	r.Refresh(s)
}

func (r *Router) onMetadataChanged(s *core.Session, e core.ParticipantMetadataChanged) {
	p, ok := s.Remote(e.Identity)
	if !ok {
		return
	}
	p.Metadata = e.Metadata
	r.reconcileAll(p)
	r.Refresh(s)
}

func (r *Router) onTrackPublished(s *core.Session, e core.TrackPublished) {
	p, ok := r.participant(s, e.Publication.Identity, e)
	if !ok {
		return
	}
	p.UpsertPublication(e.Publication)
	r.reconcileAll(p)
	r.Refresh(s)
}

func (r *Router) onTrackUnpublished(s *core.Session, e core.TrackUnpublished) {
	p, ok := r.participant(s, e.Publication.Identity, e)
	if !ok {
		return
	}
	ps, ok := p.RemovePublication(e.Publication.SID)
	if !ok {
		return
	}
	if ps.Kind == domain.KindAudio && ps.Media != nil {
		r.Sinks.Remove(ps.Media.TrackID())
	}
	detach(ps)
	r.reconcileAll(p)
	r.Refresh(s)
}

func (r *Router) onTrackSubscribed(s *core.Session, e core.TrackSubscribed) {
	if e.Media == nil {
		return
	}
	p, ok := r.participant(s, e.Publication.Identity, e)
	if !ok {
		e.Media.Detach()
		return
	}
	ps, known := p.Publication(e.Publication.SID)
	if !known {
		ps = p.UpsertPublication(e.Publication)
	}
	if ps.Media != nil && ps.Media != e.Media {
		ps.Media.Detach()
	}
	ps.Subscribed = true
	ps.Media = e.Media
	if ps.Kind == "" {
		ps.Kind = e.Media.Kind()
	}

	if e.Media.Kind() == domain.KindAudio {
		r.Sinks.Add(p.Identity, e.Media)
		return
	}
	r.reconcileAll(p)
	r.Refresh(s)
}

func (r *Router) onTrackUnsubscribed(s *core.Session, e core.TrackUnsubscribed) {
	p, ok := r.participant(s, e.Publication.Identity, e)
	if !ok {
		if e.Media != nil {
			e.Media.Detach()
		}
		return
	}
	ps, known := p.Publication(e.Publication.SID)
	if !known {
		if e.Media != nil {
			r.Sinks.Remove(e.Media.TrackID())
			e.Media.Detach()
		}
		return
	}
	if ps.Kind == domain.KindAudio {
		if ps.Media != nil {
			r.Sinks.Remove(ps.Media.TrackID())
		}
		detach(ps)
		ps.Subscribed = false
		return
	}
	ps.Subscribed = false
	r.reconcileAll(p)
	held := ps.Media
	detach(ps)
	if e.Media != nil && e.Media != held {
		e.Media.Detach()
	}
	r.Refresh(s)
}

func (r *Router) onTrackMuteChanged(s *core.Session, pub domain.Publication, muted bool) {
	p, ok := s.Remote(pub.Identity)
	if !ok {
		return
	}
	ps, known := p.Publication(pub.SID)
	if !known {
		ps = p.UpsertPublication(pub)
	}
	ps.Muted = muted
	if ps.Kind == domain.KindVideo {
		r.reconcileAll(p)
	}
	r.Refresh(s)
}

func (r *Router) onData(e core.DataReceived) {
	sender := string(e.From)
	if sender == "" {
		sender = "unknown"
	}
	env, err := chat.Decode(e.Payload)
	if err != nil {
		r.Chat.Append(domain.ChatMessage{From: sender, Text: chat.Text(e.Payload), At: r.now()})
		return
	}
	from := env.From
	if from == "" {
		from = sender
	}
	at := r.now()
	if env.Timestamp > 0 {
		at = time.UnixMilli(env.Timestamp)
	}
	r.Chat.Append(domain.ChatMessage{From: from, Text: env.Text, At: at})
}

func (r *Router) onLocalPublished(s *core.Session, e core.LocalTrackPublished) {
	s.SetLocalPublication(e.Publication, e.Media)
	if e.Publication.Kind == domain.KindVideo {
		r.reconcileLocalAll(s)
	}
	r.Refresh(s)
}

func (r *Router) onLocalUnpublished(s *core.Session, e core.LocalTrackUnpublished) {
	ps, ok := s.RemoveLocalPublication(e.Publication.SID)
	if !ok {
		return
	}
	detach(ps)
	if ps.Kind == domain.KindVideo {
		r.reconcileLocalAll(s)
	}
	r.Refresh(s)
}

// reconcile re-derives the one tile of (participant, category) from the
// publication records: the most recently announced displayable video
// publication of that category wins; with none, the tile goes away.
func (r *Router) reconcile(p *core.Participant, cat domain.Category) {
	var winner *core.PublicationState
	for _, ps := range p.Publications() {
		if ps.Kind == domain.KindVideo && ps.Displayable() && app.Classify(ps.Publication) == cat {
			winner = ps
		}
	}
	if winner == nil {
		r.Tiles.Remove(p.Identity, cat)
		return
	}
	t := r.Tiles.Ensure(p.Identity, remoteLabel(p.Identity, cat), cat, p.Role())
	r.Tiles.Attach(t, winner.SID, winner.Media)
}

func (r *Router) reconcileLocal(s *core.Session, cat domain.Category) {
	var winner *core.PublicationState
	for _, ps := range s.LocalPublications() {
		if ps.Kind == domain.KindVideo && ps.Media != nil && !ps.Muted && app.Classify(ps.Publication).Local() == cat {
			winner = ps
		}
	}
	if winner == nil {
		r.Tiles.Remove(domain.SelfIdentity, cat)
		return
	}
	t := r.Tiles.Ensure(domain.SelfIdentity, localLabel(s.Name, cat), cat, s.Role)
	r.Tiles.Attach(t, winner.SID, winner.Media)
}

func (r *Router) reconcileLocalAll(s *core.Session) {
	r.reconcileLocal(s, domain.CategoryLocalCamera)
	r.reconcileLocal(s, domain.CategoryLocalScreen)
}

// reconcileAll re-derives both remote categories. A re-announcement may move
// a publication between categories or change its mute state.
func (r *Router) reconcileAll(p *core.Participant) {
	r.reconcile(p, domain.CategoryCamera)
	r.reconcile(p, domain.CategoryScreen)
}

func (r *Router) participant(s *core.Session, id domain.Identity, ev core.Event) (*core.Participant, bool) {
	p, ok := s.Remote(id)
	if !ok {
		log.Debug().Str("module", "app.router").Str("identity", string(id)).Str("event", ev.EventName()).Msg("event for unknown participant ignored")
	}
	return p, ok
}

func detach(ps *core.PublicationState) {
	if ps.Media != nil {
		ps.Media.Detach()
		ps.Media = nil
	}
}

func remoteLabel(id domain.Identity, cat domain.Category) string {
	if cat.IsScreen() {
		return string(id) + " (screen)"
	}
	return string(id)
}

func localLabel(name string, cat domain.Category) string {
	if cat.IsScreen() {
		return name + " (me) (screen)"
	}
	return name + " (me)"
}
