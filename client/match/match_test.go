package match

import (
	"testing"

	"github.com/caredar/caredar/model"
)

// latitude offsets computed against the haversine on R=6371000:
// 0.0044966 deg ~ 499.999 m, 0.0045 deg ~ 500.377 m
const (
	latJustInside  = 0.0044966
	latJustOutside = 0.0045
)

func loc(lat, lng float64) *model.Location {
	return &model.Location{Lat: lat, Lng: lng}
}

func doctor(id string, l *model.Location) model.PeerState {
	return model.PeerState{ID: id, Name: id, Role: model.RoleDoctor, Location: l}
}

func patient(id string, l *model.Location, needsCare bool) model.PeerState {
	return model.PeerState{ID: id, Name: id, Role: model.RolePatient, Location: l, NeedsCare: needsCare}
}

func TestDoctorSeesPatientsInsideRadius(t *testing.T) {
	self := doctor("d1", loc(0, 0))
	peers := []model.PeerState{
		patient("in", loc(latJustInside, 0), true),
		patient("out", loc(latJustOutside, 0), true),
	}

	res := Compute(self, peers)
	if len(res.NearbyPatients) != 1 {
		t.Fatalf("expected 1 nearby patient, got %d", len(res.NearbyPatients))
	}
	if res.NearbyPatients[0].Peer.ID != "in" {
		t.Errorf("patient just inside the radius should match, got %q", res.NearbyPatients[0].Peer.ID)
	}
	if d := res.NearbyPatients[0].Distance; d <= 0 || d > NearbyRadiusMeters {
		t.Errorf("distance out of range: %v", d)
	}
	if len(res.IncomingDoctors) != 0 {
		t.Errorf("doctors have no incoming list")
	}
}

func TestDoctorIgnoresPatientsNotNeedingCare(t *testing.T) {
	self := doctor("d1", loc(0, 0))
	peers := []model.PeerState{
		patient("fine", loc(0.0001, 0), false), // well within radius
	}

	res := Compute(self, peers)
	if len(res.NearbyPatients) != 0 {
		t.Errorf("a patient with needsCare=false must never be nearby")
	}
}

func TestDoctorIgnoresPeersWithoutLocation(t *testing.T) {
	self := doctor("d1", loc(0, 0))
	peers := []model.PeerState{
		patient("noloc", nil, true),
		doctor("d2", loc(0.0001, 0)),
	}

	res := Compute(self, peers)
	if len(res.NearbyPatients) != 0 {
		t.Errorf("locationless patients and other doctors must not match, got %+v", res.NearbyPatients)
	}
}

func TestNoSelfLocationYieldsEmptyResult(t *testing.T) {
	self := doctor("d1", nil)
	res := Compute(self, []model.PeerState{patient("p1", loc(0, 0), true)})
	if len(res.NearbyPatients) != 0 || len(res.IncomingDoctors) != 0 {
		t.Errorf("no self location means nothing to compute")
	}
}

func TestPatientSeesCommittedDoctorRegardlessOfDistance(t *testing.T) {
	selfID := "p1"
	self := patient(selfID, loc(0, 0), true)

	far := doctor("d-far", loc(10, 10)) // ~1500 km away
	far.AcceptingPatientID = &selfID
	otherID := "p2"
	committed := doctor("d-other", loc(0.0001, 0))
	committed.AcceptingPatientID = &otherID
	uncommitted := doctor("d-idle", loc(0.0001, 0))

	res := Compute(self, []model.PeerState{far, committed, uncommitted})
	if len(res.IncomingDoctors) != 1 {
		t.Fatalf("expected exactly the committed doctor, got %d", len(res.IncomingDoctors))
	}
	if res.IncomingDoctors[0].Peer.ID != "d-far" {
		t.Errorf("committed doctor should be incoming with no radius cap")
	}
	if len(res.NearbyPatients) != 0 {
		t.Errorf("patients have no nearby list")
	}
}

func TestPatientNotNeedingCareSeesNoDoctors(t *testing.T) {
	selfID := "p1"
	self := patient(selfID, loc(0, 0), false)
	d := doctor("d1", loc(0.0001, 0))
	d.AcceptingPatientID = &selfID

	res := Compute(self, []model.PeerState{d})
	if len(res.IncomingDoctors) != 0 {
		t.Errorf("needsCare=false means no incoming doctors")
	}
}

func TestResultsOrderedByDistanceThenID(t *testing.T) {
	self := doctor("d1", loc(0, 0))
	peers := []model.PeerState{
		patient("b", loc(0.002, 0), true),
		patient("a", loc(0.002, 0), true), // same distance as b
		patient("near", loc(0.0001, 0), true),
	}

	res := Compute(self, peers)
	if len(res.NearbyPatients) != 3 {
		t.Fatalf("expected 3 nearby, got %d", len(res.NearbyPatients))
	}
	order := []string{"near", "a", "b"}
	for i, want := range order {
		if got := res.NearbyPatients[i].Peer.ID; got != want {
			t.Errorf("position %d: want %q, got %q", i, want, got)
		}
	}
}
