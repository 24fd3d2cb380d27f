package registry

import (
	"sync"

	"github.com/caredar/caredar/model"
)

// Registry is the authoritative connection id -> peer state map. It is the
// sole writer of peer state; every mutation goes through the four operations
// below, serialized by one mutex. Operations on unknown ids are silent no-ops
// since out-of-order delivery around a disconnect is an expected race.
type Registry struct {
	mx    *sync.Mutex
	peers map[string]*model.PeerState
}

func New() *Registry {
	return &Registry{
		mx:    &sync.Mutex{},
		peers: make(map[string]*model.PeerState),
	}
}

// Join creates or overwrites the entry for id with the full payload and
// returns the stored entry together with a snapshot of all other entries.
// Rejoin with the same id is idempotent: the new payload wins wholesale.
func (r *Registry) Join(id string, p model.JoinPayload) (model.PeerState, []model.PeerState) {
	r.mx.Lock()
	defer r.mx.Unlock()

	entry := &model.PeerState{
		ID:                 id,
		Name:               truncateName(p.Name),
		Location:           p.Location,
		Color:              p.Color,
		Role:               p.Role,
		NeedsCare:          p.NeedsCare,
		IsAcceptingHelp:    p.IsAcceptingHelp,
		AcceptingPatientID: p.AcceptingPatientID,
	}
	r.peers[id] = entry

	others := make([]model.PeerState, 0, len(r.peers)-1)
	for pid, peer := range r.peers {
		if pid != id {
			others = append(others, *peer)
		}
	}
	return *entry, others
}

// UpdateLocation replaces the location field only. Returns the full updated
// entry, or ok=false when the connection has not joined.
func (r *Registry) UpdateLocation(id string, loc *model.Location) (model.PeerState, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()

	entry, ok := r.peers[id]
	if !ok {
		return model.PeerState{}, false
	}
	entry.Location = loc
	return *entry, true
}

// UpdateStatus merges only the fields present in the update into the entry.
// Omitted fields keep their prior values.
func (r *Registry) UpdateStatus(id string, su model.StatusUpdate) (model.PeerState, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()

	entry, ok := r.peers[id]
	if !ok {
		return model.PeerState{}, false
	}
	if su.NeedsCare != nil {
		entry.NeedsCare = *su.NeedsCare
	}
	if su.IsAcceptingHelp != nil {
		entry.IsAcceptingHelp = *su.IsAcceptingHelp
	}
	if su.AcceptingPatientID.Present {
		entry.AcceptingPatientID = su.AcceptingPatientID.Value
	}
	return *entry, true
}

// Leave removes the entry if present and reports whether it existed.
func (r *Registry) Leave(id string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	_, ok := r.peers[id]
	delete(r.peers, id)
	return ok
}

// Snapshot returns a copy of every entry.
func (r *Registry) Snapshot() []model.PeerState {
	r.mx.Lock()
	defer r.mx.Unlock()

	out := make([]model.PeerState, 0, len(r.peers))
	for _, peer := range r.peers {
		out = append(out, *peer)
	}
	return out
}

func (r *Registry) Len() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.peers)
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= model.MaxNameLength {
		return name
	}
	return string(runes[:model.MaxNameLength])
}
