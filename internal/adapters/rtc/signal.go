package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure   = errors.New("backpressure")
	ErrClosed         = errors.New("connection closed")
	ErrChannelNotOpen = errors.New("data channel not open")
)

// signalConn is the websocket leg to the media server. Writes go through a
// bounded queue drained by writePump.
var _ core.SignalConnection = (*signalConn)(nil)

type signalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

// SignalURL builds <base>/rtc?access_token=<token>.
func SignalURL(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/rtc")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("unsupported scheme " + u.Scheme)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func dialSignal(ctx context.Context, target string, readLimit int64) (*signalConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	if readLimit > 0 {
		ws.SetReadLimit(readLimit)
	}
	return &signalConn{conn: ws, send: make(chan core.Frame, 32)}, nil
}

func (c *signalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *signalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *signalConn) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.TrySend(b)
}

func (c *signalConn) writePump(ctx context.Context, pingPeriod time.Duration) {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "adapters.rtc").Msg("signal ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.rtc").Msg("signal set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.rtc").Msg("signal write error")
				return
			}
		}
	}
}

// readPump hands every frame to fn and returns the read error that ended it.
func (c *signalConn) readPump(fn func([]byte)) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		fn(data)
	}
}

// Wire messages exchanged with the media server.

type wireParticipant struct {
	Identity string               `json:"identity"`
	Metadata string               `json:"metadata,omitempty"`
	Tracks   []domain.Publication `json:"tracks,omitempty"`
}

type wireMessage struct {
	Type         string              `json:"type"`
	Participant  *wireParticipant    `json:"participant,omitempty"`
	Participants []wireParticipant   `json:"participants,omitempty"`
	Identity     string              `json:"identity,omitempty"`
	Metadata     string              `json:"metadata,omitempty"`
	Track        *domain.Publication `json:"track,omitempty"`
	CID          string              `json:"cid,omitempty"`
	SDP          string              `json:"sdp,omitempty"`
	Candidate    string              `json:"candidate,omitempty"`
	SDPMid       *string             `json:"sdpMid,omitempty"`
	SDPMLine     *uint16             `json:"sdpMLineIndex,omitempty"`
	Reason       string              `json:"reason,omitempty"`
}

type publishRequest struct {
	Type   string           `json:"type"`
	CID    string           `json:"cid"`
	Kind   domain.MediaKind `json:"kind"`
	Source domain.Source    `json:"source"`
	Name   string           `json:"name"`
}

type unpublishRequest struct {
	Type string `json:"type"`
	SID  string `json:"sid"`
}

// dataPacket is the data channel framing; from is filled by the server.
type dataPacket struct {
	From    string `json:"from,omitempty"`
	Payload []byte `json:"payload"`
}
