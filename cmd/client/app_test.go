package main

import (
	"testing"

	"github.com/caredar/caredar/client/match"
	"github.com/caredar/caredar/client/tracker"
	"github.com/caredar/caredar/model"
)

func TestAutoAcceptTarget(t *testing.T) {
	doctor := model.PeerState{ID: "d1", Role: model.RoleDoctor}
	nearby := []match.Match{
		{Peer: model.PeerState{ID: "close"}, Distance: 10},
		{Peer: model.PeerState{ID: "far"}, Distance: 400},
	}

	target, ok := autoAcceptTarget(tracker.Update{Self: doctor, NearbyPatients: nearby})
	if !ok || target != "close" {
		t.Errorf("unassigned doctor should pick the closest patient, got %q ok=%v", target, ok)
	}

	// already assigned: leave the commitment alone
	pid := "close"
	assigned := doctor
	assigned.AcceptingPatientID = &pid
	if _, ok = autoAcceptTarget(tracker.Update{Self: assigned, NearbyPatients: nearby}); ok {
		t.Errorf("assigned doctor must not re-accept")
	}

	if _, ok = autoAcceptTarget(tracker.Update{Self: doctor}); ok {
		t.Errorf("nothing to accept with an empty nearby list")
	}

	patient := model.PeerState{ID: "p1", Role: model.RolePatient}
	if _, ok = autoAcceptTarget(tracker.Update{Self: patient, NearbyPatients: nearby}); ok {
		t.Errorf("patients never auto-accept")
	}
}
