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

var errNotAllowed = errors.New("not allowed for role")

func (o *Orchestrator) ToggleMic(ctx context.Context) error {
	return o.toggle(ctx, domain.SourceMicrophone)
}

func (o *Orchestrator) ToggleCam(ctx context.Context) error {
	return o.toggle(ctx, domain.SourceCamera)
}

// ToggleScreenShare requires a secure context; failures are reported as a
// note and the toggle reverts to off.
func (o *Orchestrator) ToggleScreenShare(ctx context.Context) error {
	return o.toggle(ctx, domain.SourceScreenShare)
}

// ToggleRemoteAudio mutes or unmutes every remote audio sink.
func (o *Orchestrator) ToggleRemoteAudio() bool {
	muted := !o.sinks.Muted()
	o.sinks.SetMuted(muted)
	o.notify()
	return muted
}

func (o *Orchestrator) toggle(ctx context.Context, src domain.Source) error {
	o.mu.Lock()
	sess := o.session
	if sess == nil || sess.State != core.StateConnected {
		o.mu.Unlock()
		return core.ErrNotConnected
	}
	desired := !toggleOf(sess.Toggles, src)
	o.mu.Unlock()
	return o.setMedia(ctx, sess, src, desired)
}

// setMedia issues one publish/unpublish request. Visible state changes only
// after the request settles.
func (o *Orchestrator) setMedia(ctx context.Context, sess *core.Session, src domain.Source, on bool) error {
	o.mu.Lock()
	if o.session != sess || sess.State != core.StateConnected {
		o.mu.Unlock()
		return core.ErrNotConnected
	}
	if on && !o.Policy.CanPublish(sess.Role, src) {
		o.mu.Unlock()
		return &core.MediaError{Source: src, Category: core.MediaPermissionDenied, Err: errNotAllowed}
	}
	if on && src == domain.SourceScreenShare && !o.secureLocked(sess) {
		merr := core.NewMediaError(src, fmt.Errorf("screen share requires a secure context: %w", core.ErrUnsupported))
		setToggle(&sess.Toggles, src, false)
		o.chat.System(mediaNote(merr))
		o.mu.Unlock()
		o.notify()
		return merr
	}
	if !sess.BeginRequest(src) {
		o.mu.Unlock()
		return core.ErrBusy
	}
	tr := sess.Transport
	o.mu.Unlock()
	o.notify()

	err := publish(ctx, tr, src, on)

	o.mu.Lock()
	sess.EndRequest(src)
	if o.session != sess {
		o.mu.Unlock()
		return core.ErrSuperseded
	}
	if err != nil {
		merr := core.NewMediaError(src, err)
		if on {
			setToggle(&sess.Toggles, src, false)
		}
		o.chat.System(mediaNote(merr))
		o.mu.Unlock()
		o.notify()
		log.Warn().Err(err).Str("module", "app.orch").Str("source", string(src)).Bool("on", on).Msg("media request failed")
		return merr
	}
	setToggle(&sess.Toggles, src, on)
	if !on {
		for _, ps := range sess.LocalPublications() {
			if ps.Source == src {
				o.router.Handle(sess, core.LocalTrackUnpublished{Publication: ps.Publication})
			}
		}
	}
	o.mu.Unlock()
	o.notify()
	return nil
}

func (o *Orchestrator) secureLocked(sess *core.Session) bool {
	if o.AllowInsecureScreenShare {
		return true
	}
	u := strings.ToLower(sess.URL)
	return strings.HasPrefix(u, "wss://") || strings.HasPrefix(u, "https://")
}

func publish(ctx context.Context, tr core.Transport, src domain.Source, on bool) error {
	switch src {
	case domain.SourceMicrophone:
		return tr.SetMicrophoneEnabled(ctx, on)
	case domain.SourceCamera:
		return tr.SetCameraEnabled(ctx, on)
	case domain.SourceScreenShare:
		return tr.SetScreenShareEnabled(ctx, on)
	}
	return fmt.Errorf("%w: source %q", core.ErrUnsupported, src)
}

func toggleOf(t core.LocalToggles, src domain.Source) bool {
	switch src {
	case domain.SourceMicrophone:
		return t.Mic
	case domain.SourceCamera:
		return t.Cam
	case domain.SourceScreenShare:
		return t.Screen
	}
	return false
}

func setToggle(t *core.LocalToggles, src domain.Source, on bool) {
	switch src {
	case domain.SourceMicrophone:
		t.Mic = on
	case domain.SourceCamera:
		t.Cam = on
	case domain.SourceScreenShare:
		t.Screen = on
	}
}

func mediaNote(err *core.MediaError) string {
	label := "Media"
	switch err.Source {
	case domain.SourceMicrophone:
		label = "Microphone"
	case domain.SourceCamera:
		label = "Camera"
	case domain.SourceScreenShare:
		label = "Screen share"
	}
	switch err.Category {
	case core.MediaPermissionDenied:
		return label + " failed: permission denied"
	case core.MediaUnsupported:
		return label + " failed: not supported here"
	default:
		return label + " failed"
	}
}
