package mirror

import (
	"testing"

	"github.com/caredar/caredar/model"
)

func TestResetExcludesSelf(t *testing.T) {
	m := New()
	m.SetSelfID("me")

	m.Reset([]model.PeerState{
		{ID: "me", Name: "self"},
		{ID: "a", Name: "a"},
		{ID: "b", Name: "b"},
	})
	if m.Len() != 2 {
		t.Fatalf("self must be excluded, got %d entries", m.Len())
	}
	if _, ok := m.Get("me"); ok {
		t.Errorf("self must not be cached")
	}
}

func TestUpsertReplacesWholesale(t *testing.T) {
	m := New()
	m.SetSelfID("me")

	m.Upsert(model.PeerState{ID: "a", Name: "a", NeedsCare: true})
	m.Upsert(model.PeerState{ID: "a", Name: "renamed"})

	p, ok := m.Get("a")
	if !ok {
		t.Fatalf("entry missing")
	}
	if p.Name != "renamed" || p.NeedsCare {
		t.Errorf("upsert must replace, not merge: %+v", p)
	}

	m.Upsert(model.PeerState{ID: "me"})
	if m.Len() != 1 {
		t.Errorf("upsert of self must be ignored")
	}
}

func TestRemove(t *testing.T) {
	m := New()
	m.Upsert(model.PeerState{ID: "a"})
	m.Remove("a")
	m.Remove("never-seen") // harmless

	if m.Len() != 0 {
		t.Errorf("expected empty mirror, got %d", m.Len())
	}
}
