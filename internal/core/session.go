package core

import (
	"context"
	"time"

	"github.com/dkeye/Classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "idle"
	}
}

// LocalToggles is the applied publish state of the local participant.
type LocalToggles struct {
	Mic    bool `json:"mic"`
	Cam    bool `json:"cam"`
	Screen bool `json:"screen"`
}

// DefaultToggles is what controls show before anything was published.
func DefaultToggles() LocalToggles {
	return LocalToggles{Mic: true, Cam: true}
}

// Session is one connection to a room. It is not threadsafe;
// the orchestrator serializes every access.
type Session struct {
	Generation    uint64
	Room          domain.RoomName
	Name          string
	RequestedRole domain.Role
	Role          domain.Role
	State         ConnState
	URL           string
	ExpiresAt     time.Time
	Transport     Transport
	Toggles       LocalToggles

	ctx     context.Context
	cancel  context.CancelFunc
	pending map[domain.Source]bool
	local   map[string]*PublicationState
	lorder  []string
	byID    map[domain.Identity]*Participant
	order   []domain.Identity
}

func NewSession(parent context.Context, gen uint64, room domain.RoomName, name string, role domain.Role) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		Generation:    gen,
		Room:          room,
		Name:          name,
		RequestedRole: role,
		Role:          role,
		State:         StateIdle,
		Toggles:       DefaultToggles(),
		ctx:           ctx,
		cancel:        cancel,
		pending:       make(map[domain.Source]bool),
		local:         make(map[string]*PublicationState),
		byID:          make(map[domain.Identity]*Participant),
	}
}

// Context is canceled when the session is torn down.
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) Cancel() { s.cancel() }

// LocalIdentity is the identity the transport knows us by.
func (s *Session) LocalIdentity() domain.Identity { return domain.Identity(s.Name) }

// AddRemote registers a remote participant. A duplicate join refreshes metadata only.
func (s *Session) AddRemote(id domain.Identity, metadata string) (*Participant, bool) {
	if p, ok := s.byID[id]; ok {
		p.Metadata = metadata
		return p, false
	}
	p := NewParticipant(id, metadata)
	s.byID[id] = p
	s.order = append(s.order, id)
	log.Debug().Str("module", "core.session").Str("identity", string(id)).Msg("participant added")
	return p, true
}

func (s *Session) RemoveRemote(id domain.Identity) (*Participant, bool) {
	p, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	log.Debug().Str("module", "core.session").Str("identity", string(id)).Msg("participant removed")
	return p, true
}

func (s *Session) Remote(id domain.Identity) (*Participant, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Remotes returns remote participants in arrival order.
func (s *Session) Remotes() []*Participant {
	out := make([]*Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *Session) RemoteCount() int { return len(s.order) }

// ClearRemotes forgets every remote participant.
func (s *Session) ClearRemotes() {
	s.byID = make(map[domain.Identity]*Participant)
	s.order = nil
}

// SetLocalPublication records a track this client published.
func (s *Session) SetLocalPublication(pub domain.Publication, media MediaHandle) *PublicationState {
	pub.Identity = s.LocalIdentity()
	if ps, ok := s.local[pub.SID]; ok {
		ps.Publication = pub
		ps.Media = media
		return ps
	}
	ps := &PublicationState{Publication: pub, Subscribed: true, Media: media}
	s.local[pub.SID] = ps
	s.lorder = append(s.lorder, pub.SID)
	return ps
}

func (s *Session) RemoveLocalPublication(sid string) (*PublicationState, bool) {
	ps, ok := s.local[sid]
	if !ok {
		return nil, false
	}
	delete(s.local, sid)
	for i, v := range s.lorder {
		if v == sid {
			s.lorder = append(s.lorder[:i], s.lorder[i+1:]...)
			break
		}
	}
	return ps, true
}

// LocalPublications returns local publications in publish order.
func (s *Session) LocalPublications() []*PublicationState {
	out := make([]*PublicationState, 0, len(s.lorder))
	for _, sid := range s.lorder {
		out = append(out, s.local[sid])
	}
	return out
}

// ResetLocal drops local publications and restores default toggles.
func (s *Session) ResetLocal() {
	s.local = make(map[string]*PublicationState)
	s.lorder = nil
	s.pending = make(map[domain.Source]bool)
	s.Toggles = DefaultToggles()
}

// BeginRequest marks src as in flight; false means a request is already pending.
func (s *Session) BeginRequest(src domain.Source) bool {
	if s.pending[src] {
		return false
	}
	s.pending[src] = true
	return true
}

func (s *Session) EndRequest(src domain.Source) {
	delete(s.pending, src)
}

func (s *Session) Pending(src domain.Source) bool { return s.pending[src] }
