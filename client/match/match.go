// Package match derives "nearby patients" and "incoming doctors" lists from
// self state plus the peer cache. Compute is a pure function and performs a
// full recompute every time; the input sets are small.
package match

import (
	"sort"

	"github.com/caredar/caredar/client/geo"
	"github.com/caredar/caredar/model"
)

// NearbyRadiusMeters is the doctor-visibility cutoff for flagging a patient
// as nearby. The boundary is inclusive.
const NearbyRadiusMeters = 500.0

type Match struct {
	Peer     model.PeerState
	Distance float64
}

type Result struct {
	NearbyPatients  []Match
	IncomingDoctors []Match
}

// Compute returns the match result for self against peers.
//
// A doctor sees every care-needing patient with a known location within the
// radius. A patient needing care sees every doctor committed to it via
// acceptingPatientId, with no radius cap. Results are ordered by ascending
// distance, ties broken by peer id, so output is deterministic.
func Compute(self model.PeerState, peers []model.PeerState) Result {
	var res Result
	if self.Location == nil {
		return res
	}

	switch self.Role {
	case model.RoleDoctor:
		for _, peer := range peers {
			if peer.Role != model.RolePatient || !peer.NeedsCare || peer.Location == nil {
				continue
			}
			d := geo.Distance(*self.Location, *peer.Location)
			if d <= NearbyRadiusMeters {
				res.NearbyPatients = append(res.NearbyPatients, Match{Peer: peer, Distance: d})
			}
		}
		sortMatches(res.NearbyPatients)

	case model.RolePatient:
		if !self.NeedsCare {
			return res
		}
		for _, peer := range peers {
			if peer.Role != model.RoleDoctor || peer.Location == nil {
				continue
			}
			if peer.AcceptingPatientID == nil || *peer.AcceptingPatientID != self.ID {
				continue
			}
			d := geo.Distance(*self.Location, *peer.Location)
			res.IncomingDoctors = append(res.IncomingDoctors, Match{Peer: peer, Distance: d})
		}
		sortMatches(res.IncomingDoctors)
	}
	return res
}

func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Peer.ID < matches[j].Peer.ID
	})
}
