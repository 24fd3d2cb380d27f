package model

import (
	"encoding/json"
	"errors"
)

// MaxNameLength is the upper bound for a peer's display name.
const MaxNameLength = 15

var ErrUnknownRole = errors.New("unknown role")

type Role string

const (
	RoleDoctor  Role = "Doctor"
	RolePatient Role = "Patient"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDoctor, RolePatient:
		return Role(s), nil
	}
	return "", ErrUnknownRole
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PeerState is one connected client's presence entry. ID is assigned by the
// transport and never reused while the connection is open.
type PeerState struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Location           *Location `json:"location"`
	Color              string    `json:"color"`
	Role               Role      `json:"userType"`
	NeedsCare          bool      `json:"needsCare"`
	IsAcceptingHelp    bool      `json:"isAcceptingHelp"`
	AcceptingPatientID *string   `json:"acceptingPatientId"`
}

// ConnIDHeader is the upgrade response header carrying the transport-assigned
// connection id back to the client.
const ConnIDHeader = "X-Conn-Id"

// Event types carried over the wire.
const (
	EventJoin           = "join"
	EventUpdateLocation = "update_location"
	EventUpdateStatus   = "update_status"
	EventSnapshot       = "snapshot"
	EventPeerJoined     = "peer_joined"
	EventPeerUpdated    = "peer_updated"
	EventPeerLeft       = "peer_left"
)

type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEvent(typ string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Payload: b}, nil
}

type JoinPayload struct {
	Name               string    `json:"name"`
	Location           *Location `json:"location"`
	Color              string    `json:"color"`
	Role               Role      `json:"userType"`
	NeedsCare          bool      `json:"needsCare"`
	IsAcceptingHelp    bool      `json:"isAcceptingHelp"`
	AcceptingPatientID *string   `json:"acceptingPatientId"`
}

type LocationPayload struct {
	Location *Location `json:"location"`
}

// OptionalID distinguishes "field omitted" from "field set to null" from
// "field set to an id". Value is nil when the sender wants the id cleared.
type OptionalID struct {
	Present bool
	Value   *string
}

// StatusUpdate is a partial status payload: only fields present on the wire
// are applied, so every field is tri-state.
type StatusUpdate struct {
	NeedsCare          *bool
	IsAcceptingHelp    *bool
	AcceptingPatientID OptionalID
}

func (su *StatusUpdate) UnmarshalJSON(b []byte) error {
	var aux struct {
		NeedsCare          *bool           `json:"needsCare"`
		IsAcceptingHelp    *bool           `json:"isAcceptingHelp"`
		AcceptingPatientID json.RawMessage `json:"acceptingPatientId"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	su.NeedsCare = aux.NeedsCare
	su.IsAcceptingHelp = aux.IsAcceptingHelp
	su.AcceptingPatientID = OptionalID{}
	if aux.AcceptingPatientID != nil {
		su.AcceptingPatientID.Present = true
		if err := json.Unmarshal(aux.AcceptingPatientID, &su.AcceptingPatientID.Value); err != nil {
			return err
		}
	}
	return nil
}

func (su StatusUpdate) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 3)
	if su.NeedsCare != nil {
		m["needsCare"] = *su.NeedsCare
	}
	if su.IsAcceptingHelp != nil {
		m["isAcceptingHelp"] = *su.IsAcceptingHelp
	}
	if su.AcceptingPatientID.Present {
		m["acceptingPatientId"] = su.AcceptingPatientID.Value
	}
	return json.Marshal(m)
}

type Wire struct {
	RX chan Event
	TX chan Event
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Event),
		TX: make(chan Event),
	}
}
