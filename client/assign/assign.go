// Package assign implements the doctor-side commitment to one patient.
package assign

import (
	"github.com/caredar/caredar/client/match"
)

// Machine has two states: unassigned (patientID == nil) and assigned to one
// patient. It holds no locks; the tracker serializes access.
type Machine struct {
	patientID *string
}

func New() *Machine {
	return &Machine{}
}

func (m *Machine) Assigned() bool {
	return m.patientID != nil
}

// PatientID returns the committed patient id, or nil when unassigned.
func (m *Machine) PatientID() *string {
	return m.patientID
}

// Assign commits to patientID.
func (m *Machine) Assign(patientID string) {
	id := patientID
	m.patientID = &id
}

// Clear drops the commitment.
func (m *Machine) Clear() {
	m.patientID = nil
}

// Invalidate clears the commitment if the committed patient is absent from
// the fresh nearby set (left, moved out of range, or no longer needs care).
// It must be called on every recompute so stale assignments never survive a
// state refresh. Reports whether the commitment was cleared.
func (m *Machine) Invalidate(nearby []match.Match) bool {
	if m.patientID == nil {
		return false
	}
	for _, nm := range nearby {
		if nm.Peer.ID == *m.patientID {
			return false
		}
	}
	m.patientID = nil
	return true
}
