package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type joinPayload struct {
	Type       string `json:"type"`
	Room       string `json:"room"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	TeacherKey string `json:"teacherKey,omitempty"`
}

// handleJoin runs the join in the background so a connect that never
// resolves leaves the socket free for leave.
func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	conn *WsSignalConn,
	data []byte,
) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	req := core.JoinRequest{
		Room:       domain.RoomName(p.Room),
		Name:       p.Name,
		Role:       domain.Role(p.Role),
		TeacherKey: p.TeacherKey,
	}
	go func() {
		err := ctl.Orch.Join(ctx, req)
		if err == nil || errors.Is(err, core.ErrSuperseded) {
			return
		}
		log.Info().Err(err).Str("module", "signal").Str("room", p.Room).Msg("join failed")
		ctl.sendError(conn, err.Error())
	}()
}

func (ctl *SignalWSController) handleLeave(sid string) {
	log.Info().Str("module", "signal").Str("sid", sid).Msg("leave")
	ctl.Orch.Leave()
}
