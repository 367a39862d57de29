// Package orch is the control surface: it owns the session and serializes
// user actions and transport events.
package orch

import (
	"sync"
	"time"

	"github.com/dkeye/Classroom/internal/app"
	"github.com/dkeye/Classroom/internal/app/chat"
	"github.com/dkeye/Classroom/internal/app/roster"
	"github.com/dkeye/Classroom/internal/app/router"
	"github.com/dkeye/Classroom/internal/app/tiles"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

type Orchestrator struct {
	Joiner     core.Joiner
	Transports core.TransportFactory
	Policy     app.Policy
	// AllowInsecureScreenShare lifts the secure-context requirement for plain ws:// rooms.
	AllowInsecureScreenShare bool

	mu      sync.Mutex
	gen     uint64
	session *core.Session
	status  string
	router  *router.Router
	tiles   *tiles.Registry
	sinks   *tiles.Sinks
	chat    *chat.Log
	now     func() time.Time

	obsMu     sync.RWMutex
	obsNext   uint64
	observers map[uint64]func(View)
}

func New(joiner core.Joiner, transports core.TransportFactory, policy app.Policy) *Orchestrator {
	t := tiles.NewRegistry()
	s := tiles.NewSinks()
	c := chat.NewLog()
	if policy == nil {
		policy = app.ClassroomPolicy{}
	}
	return &Orchestrator{
		Joiner:     joiner,
		Transports: transports,
		Policy:     policy,
		status:     "Idle",
		router:     router.New(t, s, c),
		tiles:      t,
		sinks:      s,
		chat:       c,
		now:        time.Now,
		observers:  make(map[uint64]func(View)),
	}
}

type Controls struct {
	JoinEnabled   bool   `json:"join_enabled"`
	LeaveEnabled  bool   `json:"leave_enabled"`
	MicLabel      string `json:"mic_label"`
	MicEnabled    bool   `json:"mic_enabled"`
	CamLabel      string `json:"cam_label"`
	CamEnabled    bool   `json:"cam_enabled"`
	ScreenLabel   string `json:"screen_label"`
	ScreenEnabled bool   `json:"screen_enabled"`
	AudioLabel    string `json:"audio_label"`
	ChatEnabled   bool   `json:"chat_enabled"`
}

// View is a consistent snapshot of everything a UI renders.
type View struct {
	State            string               `json:"state"`
	Status           string               `json:"status"`
	WhoAmI           string               `json:"whoami"`
	Room             domain.RoomName      `json:"room,omitempty"`
	Role             domain.Role          `json:"role,omitempty"`
	Generation       uint64               `json:"generation"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
	Controls         Controls             `json:"controls"`
	Tiles            []tiles.TileView     `json:"tiles"`
	AudioSinks       []tiles.SinkView     `json:"audio_sinks"`
	Roster           []roster.Entry       `json:"roster"`
	ParticipantCount int                  `json:"participant_count"`
	HintVisible      bool                 `json:"hint_visible"`
	Chat             []domain.ChatMessage `json:"chat"`
}

func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

func (o *Orchestrator) viewLocked() View {
	sess := o.session
	v := View{
		State:      core.StateIdle.String(),
		Status:     o.status,
		Controls:   o.controlsLocked(),
		Tiles:      o.tiles.List(),
		AudioSinks: o.sinks.List(),
		Roster:     o.router.Roster(),
		Chat:       o.chat.Messages(),
		Generation: o.gen,
	}
	v.HintVisible = true
	if sess != nil {
		v.State = sess.State.String()
		v.Room = sess.Room
		v.Role = sess.Role
		v.WhoAmI = sess.Name + " @ " + string(sess.Room) + " (" + string(sess.Role) + ")"
		if !sess.ExpiresAt.IsZero() {
			exp := sess.ExpiresAt
			v.ExpiresAt = &exp
		}
		if sess.State == core.StateConnected {
			v.ParticipantCount = 1 + sess.RemoteCount()
			v.HintVisible = sess.RemoteCount() == 0
		}
	}
	return v
}

func (o *Orchestrator) controlsLocked() Controls {
	sess := o.session
	toggles := core.DefaultToggles()
	if sess != nil {
		toggles = sess.Toggles
	}
	c := Controls{
		JoinEnabled: sess == nil || sess.State == core.StateConnecting,
		MicLabel:    onOff("Mic", toggles.Mic),
		CamLabel:    onOff("Cam", toggles.Cam),
		ScreenLabel: "Share Screen",
		AudioLabel:  "Mute remote audio",
	}
	if toggles.Screen {
		c.ScreenLabel = "Stop Share"
	}
	if o.sinks.Muted() {
		c.AudioLabel = "Unmute remote audio"
	}
	if sess == nil {
		return c
	}
	c.LeaveEnabled = true
	if sess.State != core.StateConnected {
		return c
	}
	c.ChatEnabled = true
	c.MicEnabled = o.Policy.CanPublish(sess.Role, domain.SourceMicrophone) && !sess.Pending(domain.SourceMicrophone)
	c.CamEnabled = o.Policy.CanPublish(sess.Role, domain.SourceCamera) && !sess.Pending(domain.SourceCamera)
	c.ScreenEnabled = o.Policy.CanPublish(sess.Role, domain.SourceScreenShare) && !sess.Pending(domain.SourceScreenShare)
	return c
}

func onOff(label string, on bool) string {
	if on {
		return label + ": ON"
	}
	return label + ": OFF"
}

// Subscribe registers fn to receive a snapshot after every state change.
func (o *Orchestrator) Subscribe(fn func(View)) (unsubscribe func()) {
	o.obsMu.Lock()
	id := o.obsNext
	o.obsNext++
	o.observers[id] = fn
	o.obsMu.Unlock()
	return func() {
		o.obsMu.Lock()
		delete(o.observers, id)
		o.obsMu.Unlock()
	}
}

// notify must be called without o.mu held.
func (o *Orchestrator) notify() {
	v := o.View()
	o.obsMu.RLock()
	fns := make([]func(View), 0, len(o.observers))
	for _, fn := range o.observers {
		fns = append(fns, fn)
	}
	o.obsMu.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}

// teardownLocked destroys the active session and returns its transport
// so the caller can disconnect it once the lock is released.
func (o *Orchestrator) teardownLocked() core.Transport {
	sess := o.session
	if sess == nil {
		return nil
	}
	o.router.Teardown(sess)
	sess.State = core.StateDisconnected
	o.dropLocked(sess)
	return sess.Transport
}

func (o *Orchestrator) dropLocked(sess *core.Session) {
	if o.session == sess {
		o.session = nil
	}
	sess.Cancel()
	o.router.Refresh(nil)
}
