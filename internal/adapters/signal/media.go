package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleToggle(
	ctx context.Context,
	conn *WsSignalConn,
	kind string,
) {
	var toggle func(context.Context) error
	switch kind {
	case "mic":
		toggle = ctl.Orch.ToggleMic
	case "cam":
		toggle = ctl.Orch.ToggleCam
	default:
		toggle = ctl.Orch.ToggleScreenShare
	}
	go func() {
		err := toggle(ctx)
		if err == nil || errors.Is(err, core.ErrSuperseded) {
			return
		}
		log.Info().Err(err).Str("module", "signal").Str("kind", kind).Msg("toggle failed")
		ctl.sendError(conn, err.Error())
	}()
}

func (ctl *SignalWSController) handleRemoteAudio() {
	muted := ctl.Orch.ToggleRemoteAudio()
	log.Debug().Str("module", "signal").Bool("muted", muted).Msg("remote audio toggled")
}
