package tiles

import (
	"sync"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

// Sink is a hidden, auto-playing audio output for one remote audio track.
type Sink struct {
	TrackID  string
	Identity domain.Identity
	Media    core.MediaHandle
}

type SinkView struct {
	TrackID  string          `json:"track_id"`
	Identity domain.Identity `json:"identity"`
	Muted    bool            `json:"muted"`
}

// Sinks holds audio sinks keyed by track. Muting applies to all of them.
type Sinks struct {
	mu    sync.RWMutex
	sinks map[string]*Sink
	order []string
	muted bool
}

func NewSinks() *Sinks {
	return &Sinks{sinks: make(map[string]*Sink)}
}

// Add attaches a sink for the track, replacing an older one for the same track.
func (s *Sinks) Add(id domain.Identity, m core.MediaHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid := m.TrackID()
	if _, ok := s.sinks[tid]; !ok {
		s.order = append(s.order, tid)
	}
	s.sinks[tid] = &Sink{TrackID: tid, Identity: id, Media: m}
}

func (s *Sinks) Remove(trackID string) (*Sink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(trackID)
}

func (s *Sinks) removeLocked(trackID string) (*Sink, bool) {
	sink, ok := s.sinks[trackID]
	if !ok {
		return nil, false
	}
	delete(s.sinks, trackID)
	for i, v := range s.order {
		if v == trackID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return sink, true
}

// RemoveIdentity drops every sink of one participant and returns them.
func (s *Sinks) RemoveIdentity(id domain.Identity) []*Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Sink
	for _, tid := range append([]string(nil), s.order...) {
		if s.sinks[tid].Identity != id {
			continue
		}
		if sink, ok := s.removeLocked(tid); ok {
			out = append(out, sink)
		}
	}
	return out
}

// Clear drops every sink and returns them so the caller can detach media.
func (s *Sinks) Clear() []*Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Sink, 0, len(s.order))
	for _, tid := range s.order {
		out = append(out, s.sinks[tid])
	}
	s.sinks = make(map[string]*Sink)
	s.order = nil
	return out
}

func (s *Sinks) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *Sinks) Muted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted
}

func (s *Sinks) List() []SinkView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SinkView, 0, len(s.order))
	for _, tid := range s.order {
		sink := s.sinks[tid]
		out = append(out, SinkView{TrackID: tid, Identity: sink.Identity, Muted: s.muted})
	}
	return out
}
