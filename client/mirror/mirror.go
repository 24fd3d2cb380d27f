// Package mirror caches the state of every other peer, fed by the server's
// snapshot-then-deltas protocol.
package mirror

import (
	"sync"

	"github.com/caredar/caredar/model"
)

// Mirror holds one entry per known peer, keyed by id, self excluded. Entries
// are replaced wholesale since the server always broadcasts full entries.
type Mirror struct {
	mx     sync.RWMutex
	selfID string
	peers  map[string]model.PeerState
}

func New() *Mirror {
	return &Mirror{
		peers: make(map[string]model.PeerState),
	}
}

// SetSelfID records the transport-assigned id so that self never enters the
// cache. Must be set before events are applied; a reconnect assigns a new id.
func (m *Mirror) SetSelfID(id string) {
	m.mx.Lock()
	m.selfID = id
	m.mx.Unlock()
}

// Reset replaces the whole cache with the snapshot contents.
func (m *Mirror) Reset(peers []model.PeerState) {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.peers = make(map[string]model.PeerState, len(peers))
	for _, p := range peers {
		if p.ID != m.selfID {
			m.peers[p.ID] = p
		}
	}
}

// Upsert inserts or replaces one peer entry.
func (m *Mirror) Upsert(p model.PeerState) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if p.ID == m.selfID {
		return
	}
	m.peers[p.ID] = p
}

// Remove drops the entry for id if present.
func (m *Mirror) Remove(id string) {
	m.mx.Lock()
	delete(m.peers, id)
	m.mx.Unlock()
}

// Peers returns a copy of all cached entries.
func (m *Mirror) Peers() []model.PeerState {
	m.mx.RLock()
	defer m.mx.RUnlock()

	out := make([]model.PeerState, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	return out
}

// Get returns the cached entry for id.
func (m *Mirror) Get(id string) (model.PeerState, bool) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	p, ok := m.peers[id]
	return p, ok
}

func (m *Mirror) Len() int {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return len(m.peers)
}
