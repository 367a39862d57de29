// Package signal is the UI websocket: actions in, view snapshots out.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/dkeye/Classroom/internal/app/orch"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter
	// ReadLimit caps a single client frame.
	ReadLimit int64
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RateLimiter, readLimit int64) *SignalWSController {
	return &SignalWSController{Orch: o, Limiter: limiter, ReadLimit: readLimit}
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

type WsSignalConn struct {
	id   string
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and streams views until the socket
// closes. Actions run with ctx, not the request context.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := c.GetString("client_token") + "/" + uuid.NewString()
	log.Info().Str("module", "signal").Str("sid", sid).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsSignalConn{
		id:   sid,
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	unsubscribe := ctl.Orch.Subscribe(func(v orch.View) {
		ctl.sendView(conn, v)
	})
	ctl.sendView(conn, ctl.Orch.View())

	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		defer unsubscribe()
		if ctl.Limiter != nil {
			defer ctl.Limiter.Forget(sid)
		}
		ctl.readPump(ctx, sid, conn)
	}()
}

func (ctl *SignalWSController) sendView(c *WsSignalConn, v orch.View) {
	ctl.sendJSON(c, struct {
		Type string    `json:"type"`
		View orch.View `json:"view"`
	}{Type: "view", View: v})
}
