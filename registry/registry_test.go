package registry

import (
	"testing"

	"github.com/caredar/caredar/model"
)

func TestJoinLeaveCardinality(t *testing.T) {
	r := New()

	r.Join("a", model.JoinPayload{Name: "a", Role: model.RolePatient})
	r.Join("b", model.JoinPayload{Name: "b", Role: model.RoleDoctor})
	r.Join("c", model.JoinPayload{Name: "c", Role: model.RolePatient})
	if r.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", r.Len())
	}

	if !r.Leave("b") {
		t.Errorf("leave of present entry should report true")
	}
	if r.Leave("b") {
		t.Errorf("leave of absent entry should report false")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 entries after leave, got %d", r.Len())
	}
}

func TestRejoinIsIdempotent(t *testing.T) {
	r := New()

	r.Join("a", model.JoinPayload{Name: "first", Role: model.RolePatient, NeedsCare: true})
	entry, others := r.Join("a", model.JoinPayload{Name: "second", Role: model.RolePatient})

	if r.Len() != 1 {
		t.Fatalf("rejoin must not duplicate, got %d entries", r.Len())
	}
	if entry.Name != "second" {
		t.Errorf("second payload should win, got name %q", entry.Name)
	}
	if entry.NeedsCare {
		t.Errorf("rejoin overwrites wholesale, needsCare should be false")
	}
	if len(others) != 0 {
		t.Errorf("snapshot must exclude the joiner, got %d entries", len(others))
	}
}

func TestJoinSnapshotExcludesJoiner(t *testing.T) {
	r := New()

	r.Join("a", model.JoinPayload{Name: "a", Role: model.RoleDoctor})
	_, others := r.Join("b", model.JoinPayload{Name: "b", Role: model.RolePatient})

	if len(others) != 1 || others[0].ID != "a" {
		t.Fatalf("expected snapshot [a], got %+v", others)
	}
}

func TestUpdateStatusMergesPresentFieldsOnly(t *testing.T) {
	r := New()
	r.Join("a", model.JoinPayload{Name: "a", Role: model.RoleDoctor, IsAcceptingHelp: true})

	v := true
	entry, ok := r.UpdateStatus("a", model.StatusUpdate{NeedsCare: &v})
	if !ok {
		t.Fatalf("update of joined entry should succeed")
	}
	if !entry.NeedsCare {
		t.Errorf("needsCare should flip to true")
	}
	if !entry.IsAcceptingHelp {
		t.Errorf("omitted isAcceptingHelp must keep its prior value")
	}

	// present null clears the id
	pid := "p1"
	entry, _ = r.UpdateStatus("a", model.StatusUpdate{
		AcceptingPatientID: model.OptionalID{Present: true, Value: &pid},
	})
	if entry.AcceptingPatientID == nil || *entry.AcceptingPatientID != "p1" {
		t.Fatalf("acceptingPatientId should be set")
	}
	entry, _ = r.UpdateStatus("a", model.StatusUpdate{
		AcceptingPatientID: model.OptionalID{Present: true},
	})
	if entry.AcceptingPatientID != nil {
		t.Errorf("present null must clear acceptingPatientId")
	}
}

func TestUpdateLocationReplacesLocationOnly(t *testing.T) {
	r := New()
	r.Join("a", model.JoinPayload{Name: "a", Role: model.RolePatient, NeedsCare: true})

	entry, ok := r.UpdateLocation("a", &model.Location{Lat: 1, Lng: 2})
	if !ok {
		t.Fatalf("update of joined entry should succeed")
	}
	if entry.Location == nil || entry.Location.Lat != 1 || entry.Location.Lng != 2 {
		t.Errorf("location not replaced: %+v", entry.Location)
	}
	if !entry.NeedsCare {
		t.Errorf("location update must not touch status fields")
	}
}

func TestUnknownIDIsSilentNoOp(t *testing.T) {
	r := New()

	if _, ok := r.UpdateLocation("ghost", &model.Location{}); ok {
		t.Errorf("location update for unknown id should be a no-op")
	}
	v := true
	if _, ok := r.UpdateStatus("ghost", model.StatusUpdate{NeedsCare: &v}); ok {
		t.Errorf("status update for unknown id should be a no-op")
	}
	if r.Len() != 0 {
		t.Errorf("no-ops must not create entries")
	}
}

func TestJoinTruncatesLongNames(t *testing.T) {
	r := New()
	entry, _ := r.Join("a", model.JoinPayload{Name: "abcdefghijklmnopqrstuvwxyz", Role: model.RolePatient})
	if len([]rune(entry.Name)) != model.MaxNameLength {
		t.Errorf("name should be truncated to %d runes, got %q", model.MaxNameLength, entry.Name)
	}
}
