// Package tiles keeps the displayable surfaces of a room view.
package tiles

import (
	"sync"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type Key struct {
	Identity domain.Identity
	Category domain.Category
}

// Tile is a surface bound to exactly one (identity, category) pair.
type Tile struct {
	Key
	Label string
	Role  domain.Role
	// Owner is the SID of the publication currently shown.
	Owner string
	Media core.MediaHandle
}

// TileView is a read-only copy for rendering.
type TileView struct {
	Identity domain.Identity `json:"identity"`
	Category domain.Category `json:"category"`
	Label    string          `json:"label"`
	Role     domain.Role     `json:"role"`
	TrackID  string          `json:"track_id,omitempty"`
}

// Registry never holds two tiles for the same key.
type Registry struct {
	mu    sync.RWMutex
	tiles map[Key]*Tile
	order []Key
}

func NewRegistry() *Registry {
	return &Registry{tiles: make(map[Key]*Tile)}
}

// Ensure returns the tile for the key, creating it if needed.
// An existing tile only gets its label and role updated.
func (r *Registry) Ensure(id domain.Identity, label string, cat domain.Category, role domain.Role) *Tile {
	k := Key{Identity: id, Category: cat}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tiles[k]; ok {
		t.Label = label
		t.Role = role
		return t
	}
	t := &Tile{Key: k, Label: label, Role: role}
	r.tiles[k] = t
	r.order = append(r.order, k)
	log.Debug().Str("module", "app.tiles").Str("identity", string(id)).Str("category", string(cat)).Msg("tile created")
	return t
}

// Attach replaces whatever the tile shows with m, published under owner.
// A tile never shows two media at once.
func (r *Registry) Attach(t *Tile, owner string, m core.MediaHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Owner = owner
	t.Media = m
}

// Remove drops the tile if present. Media handles stay with their owners.
func (r *Registry) Remove(id domain.Identity, cat domain.Category) bool {
	k := Key{Identity: id, Category: cat}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(k)
}

func (r *Registry) removeLocked(k Key) bool {
	if _, ok := r.tiles[k]; !ok {
		return false
	}
	delete(r.tiles, k)
	for i, v := range r.order {
		if v == k {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Debug().Str("module", "app.tiles").Str("identity", string(k.Identity)).Str("category", string(k.Category)).Msg("tile removed")
	return true
}

// RemoveIdentity drops every tile of one participant.
func (r *Registry) RemoveIdentity(id domain.Identity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range append([]Key(nil), r.order...) {
		if k.Identity == id && r.removeLocked(k) {
			n++
		}
	}
	return n
}

func (r *Registry) Get(id domain.Identity, cat domain.Category) (*Tile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tiles[Key{Identity: id, Category: cat}]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tiles)
}

// List returns tiles in creation order.
func (r *Registry) List() []TileView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TileView, 0, len(r.order))
	for _, k := range r.order {
		t := r.tiles[k]
		v := TileView{Identity: k.Identity, Category: k.Category, Label: t.Label, Role: t.Role}
		if t.Media != nil {
			v.TrackID = t.Media.TrackID()
		}
		out = append(out, v)
	}
	return out
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiles = make(map[Key]*Tile)
	r.order = nil
}
