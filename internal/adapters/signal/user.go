package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleWhoAmI(
	conn *WsSignalConn,
) {
	v := ctl.Orch.View()
	resp := struct {
		Type   string          `json:"type"`
		WhoAmI string          `json:"whoami"`
		Room   domain.RoomName `json:"room,omitempty"`
		Role   domain.Role     `json:"role,omitempty"`
		State  string          `json:"state"`
	}{
		Type:   "whoami",
		WhoAmI: v.WhoAmI,
		Room:   v.Room,
		Role:   v.Role,
		State:  v.State,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleChat(
	ctx context.Context,
	sid string,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", sid).Msg("chat rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}
	go func() {
		if err := ctl.Orch.SendChat(ctx, p.Text); err != nil {
			ctl.sendError(conn, err.Error())
		}
	}()
}
