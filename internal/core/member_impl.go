package core

import "github.com/dkeye/Classroom/internal/domain"

// PublicationState is the client's record of one remote publication.
type PublicationState struct {
	domain.Publication
	Subscribed bool
	Media      MediaHandle
}

// Displayable reports whether the publication has content to show.
func (p *PublicationState) Displayable() bool {
	return p.Subscribed && !p.Muted && p.Media != nil
}

// Participant is a remote peer as announced by explicit join events.
// Role is never cached; it is read from Metadata on each call.
type Participant struct {
	Identity domain.Identity
	Metadata string

	pubs  map[string]*PublicationState
	order []string
}

func NewParticipant(id domain.Identity, metadata string) *Participant {
	return &Participant{
		Identity: id,
		Metadata: metadata,
		pubs:     make(map[string]*PublicationState),
	}
}

func (p *Participant) Role() domain.Role {
	return domain.RoleFromMetadata(p.Metadata)
}

func (p *Participant) Publication(sid string) (*PublicationState, bool) {
	ps, ok := p.pubs[sid]
	return ps, ok
}

// UpsertPublication records announced publication fields and keeps subscription state.
func (p *Participant) UpsertPublication(pub domain.Publication) *PublicationState {
	pub.Identity = p.Identity
	if ps, ok := p.pubs[pub.SID]; ok {
		if pub.Kind == "" {
			pub.Kind = ps.Kind
		}
		ps.Publication = pub
		return ps
	}
	ps := &PublicationState{Publication: pub}
	p.pubs[pub.SID] = ps
	p.order = append(p.order, pub.SID)
	return ps
}

func (p *Participant) RemovePublication(sid string) (*PublicationState, bool) {
	ps, ok := p.pubs[sid]
	if !ok {
		return nil, false
	}
	delete(p.pubs, sid)
	for i, s := range p.order {
		if s == sid {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return ps, true
}

// Publications returns publications in announcement order.
func (p *Participant) Publications() []*PublicationState {
	out := make([]*PublicationState, 0, len(p.order))
	for _, sid := range p.order {
		out = append(out, p.pubs[sid])
	}
	return out
}
