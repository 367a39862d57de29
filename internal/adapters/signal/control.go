package signal

import "time"

// handlePing answers keepalives with the server clock and the current
// session generation so a UI can detect that it missed a join.
func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, struct {
		Type       string `json:"type"`
		Time       int64  `json:"ts"`
		Generation uint64 `json:"generation"`
	}{
		Type:       "pong",
		Time:       time.Now().UnixMilli(),
		Generation: ctl.Orch.View().Generation,
	})
}
