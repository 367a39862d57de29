package orch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join requests access, connects and publishes camera and microphone.
// A previous session is destroyed first. Late results of a join that was
// superseded by Leave or another Join are discarded with core.ErrSuperseded.
func (o *Orchestrator) Join(ctx context.Context, req core.JoinRequest) error {
	room, name, err := ValidateJoin(req)
	if err != nil {
		o.mu.Lock()
		o.status = "Room and Name are required"
		o.mu.Unlock()
		o.notify()
		return err
	}
	role := domain.ParseRole(string(req.Role))

	o.mu.Lock()
	prev := o.teardownLocked()
	o.gen++
	sess := core.NewSession(ctx, o.gen, room, name, role)
	sess.State = core.StateConnecting
	o.session = sess
	o.chat.Reset()
	o.status = "Requesting token..."
	o.mu.Unlock()
	if prev != nil {
		prev.Disconnect()
	}
	o.notify()
	log.Info().Str("module", "app.orch").Str("room", string(room)).Str("name", name).Str("role", string(role)).Uint64("gen", sess.Generation).Msg("join requested")

	grant, err := o.Joiner.RequestAccess(sess.Context(), core.JoinRequest{
		Room:       room,
		Name:       name,
		Role:       role,
		TeacherKey: strings.TrimSpace(req.TeacherKey),
	})

	o.mu.Lock()
	if o.session != sess {
		o.mu.Unlock()
		log.Info().Str("module", "app.orch").Uint64("gen", sess.Generation).Msg("stale join result dropped")
		return core.ErrSuperseded
	}
	if err != nil {
		o.dropLocked(sess)
		o.status = "API error: " + err.Error()
		o.mu.Unlock()
		o.notify()
		log.Error().Err(err).Str("module", "app.orch").Str("room", string(room)).Msg("join rejected")
		return err
	}
	sess.Role = grant.Role
	if grant.Name != "" {
		sess.Name = grant.Name
	}
	sess.URL = grant.URL
	sess.ExpiresAt = grant.ExpiresAt
	tr := o.Transports(o.handlerFor(sess))
	sess.Transport = tr
	o.status = "Connecting..."
	o.mu.Unlock()
	o.notify()
	if grant.Role != role {
		log.Warn().Str("module", "app.orch").Str("requested", string(role)).Str("granted", string(grant.Role)).Msg("role downgraded by join endpoint")
	}

	connErr := tr.Connect(sess.Context(), grant.URL, grant.Token)

	o.mu.Lock()
	if o.session != sess {
		o.mu.Unlock()
		tr.Disconnect()
		log.Info().Str("module", "app.orch").Uint64("gen", sess.Generation).Msg("stale connect result dropped")
		return core.ErrSuperseded
	}
	if connErr != nil {
		o.dropLocked(sess)
		o.status = "Connect error: " + connErr.Error()
		o.mu.Unlock()
		tr.Disconnect()
		o.notify()
		log.Error().Err(connErr).Str("module", "app.orch").Str("url", grant.URL).Msg("connect failed")
		var te *core.TransportError
		if !errors.As(connErr, &te) {
			connErr = &core.TransportError{Op: "connect", Err: connErr}
		}
		return connErr
	}
	o.router.Handle(sess, core.Connected{})
	o.status = "Connected"
	o.mu.Unlock()
	o.notify()

	// Every role publishes; failures become notes and leave the session connected.
	for _, src := range []domain.Source{domain.SourceCamera, domain.SourceMicrophone} {
		if err := o.setMedia(ctx, sess, src, true); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("source", string(src)).Msg("initial publish failed")
		}
	}
	return nil
}

// ValidateJoin normalizes room and name. It has no side effects; failures
// wrap core.ErrValidation.
func ValidateJoin(req core.JoinRequest) (domain.RoomName, string, error) {
	room, roomErr := domain.NormalizeRoom(string(req.Room))
	name, nameErr := domain.NormalizeName(req.Name)
	if roomErr != nil || nameErr != nil {
		return "", "", fmt.Errorf("%w: %w", core.ErrValidation, errors.Join(roomErr, nameErr))
	}
	return room, name, nil
}

// Leave disconnects and resets all local state. It is safe while a join is in flight.
func (o *Orchestrator) Leave() {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return
	}
	gen := o.session.Generation
	tr := o.teardownLocked()
	o.status = "Left room"
	o.mu.Unlock()
	if tr != nil {
		tr.Disconnect()
	}
	o.notify()
	log.Info().Str("module", "app.orch").Uint64("gen", gen).Msg("left room")
}

// handlerFor binds transport events to one session; events emitted after
// that session was replaced or destroyed are dropped.
func (o *Orchestrator) handlerFor(sess *core.Session) core.EventHandler {
	return func(ev core.Event) {
		o.mu.Lock()
		if o.session != sess {
			o.mu.Unlock()
			log.Debug().Str("module", "app.orch").Str("event", ev.EventName()).Uint64("gen", sess.Generation).Msg("event from stale transport dropped")
			return
		}
		o.router.Handle(sess, ev)
		if _, ok := ev.(core.Disconnected); ok {
			o.status = "Disconnected"
			o.dropLocked(sess)
		}
		o.mu.Unlock()
		o.notify()
	}
}
