// Package tracker is the client runtime: it keeps one live connection to the
// tracking server, feeds the presence mirror from incoming events, publishes
// self state and recomputes proximity matches after every relevant change.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/caredar/caredar/client/assign"
	"github.com/caredar/caredar/client/match"
	"github.com/caredar/caredar/client/mirror"
	"github.com/caredar/caredar/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultRedialInterval    = 2 * time.Second
	defaultHandshakeTimeout  = 3 * time.Second
	defaultWriteDeadline     = 5 * time.Second
	defaultOutgoingQueueSize = 64
)

var (
	ErrNoConnID  = errors.New("server did not assign a connection id")
	ErrNotNearby = errors.New("patient is not in the nearby list")
	ErrWrongRole = errors.New("operation not valid for this role")
	ErrNotJoined = errors.New("not joined yet")
)

// Update is a consistent view of self plus the freshly recomputed match
// lists, delivered to the OnUpdate callback after every recompute.
type Update struct {
	Self            model.PeerState
	NearbyPatients  []match.Match
	IncomingDoctors []match.Match
}

type Config struct {
	Logger    *zerolog.Logger
	ServerURL string // ws://host:port/live
	Name      string
	Color     string
	Role      model.Role
	NeedsCare bool
	OnUpdate  func(Update)
}

type Tracker struct {
	logger   zerolog.Logger
	url      string
	onUpdate func(Update)

	mx        sync.Mutex
	self      model.PeerState
	joined    bool
	connected bool
	mirror    *mirror.Mirror
	machine   *assign.Machine
	nearby    []match.Match
	incoming  []match.Match

	tx chan model.Event
}

func New(cfg Config) *Tracker {
	return &Tracker{
		logger:   cfg.Logger.With().Str("component", "tracker").Logger(),
		url:      cfg.ServerURL,
		onUpdate: cfg.OnUpdate,
		self: model.PeerState{
			Name:      cfg.Name,
			Color:     cfg.Color,
			Role:      cfg.Role,
			NeedsCare: cfg.NeedsCare,
		},
		mirror:  mirror.New(),
		machine: assign.New(),
		tx:      make(chan model.Event, defaultOutgoingQueueSize),
	}
}

// Run dials the server and keeps the connection alive until ctx is done,
// redialing after transport loss. After a redial, if a join had succeeded
// before, the full current self state is replayed as a fresh join so the
// registry self-heals without persisting anything.
func (t *Tracker) Run(ctx context.Context) {
	for {
		if err := t.runConn(ctx); err != nil && ctx.Err() == nil {
			t.logger.Warn().Err(err).Msg("connection lost")
		}
		select {
		case <-ctx.Done():
			t.logger.Debug().Msg("tracker stopped")
			return
		case <-time.After(defaultRedialInterval):
		}
	}
}

func (t *Tracker) runConn(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return err
	}
	connID := resp.Header.Get(model.ConnIDHeader)
	if connID == "" {
		_ = conn.Close()
		return ErrNoConnID
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	t.logger.Debug().Str("connID", connID).Msg("connected")
	t.handleConnect(connID)
	defer t.handleDisconnect()

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		t.writeLoop(connCtx, conn)
		cancel()
		wg.Done()
	}()

	err = t.readLoop(conn)
	cancel()
	wg.Wait()
	return err
}

func (t *Tracker) readLoop(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev model.Event
		if err = json.Unmarshal(msg, &ev); err != nil {
			t.logger.Error().Err(err).Msg("failed to unmarshall incoming event")
			continue
		}
		t.handleEvent(ev)
	}
}

func (t *Tracker) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.tx:
			b, err := json.Marshal(&ev)
			if err != nil {
				t.logger.Error().Err(err).Msg("failed to marshall outgoing event")
				continue
			}
			if err = conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
				t.logger.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err = conn.WriteMessage(websocket.TextMessage, b); err != nil {
				t.logger.Error().Err(err).Msg("failed to write outgoing event")
				return
			}
		}
	}
}

func (t *Tracker) handleConnect(connID string) {
	t.mx.Lock()
	t.self.ID = connID
	t.mirror.SetSelfID(connID)
	t.connected = true
	rejoin := t.joined && t.self.Location != nil
	payload := joinPayloadOf(t.self)
	t.mx.Unlock()

	if rejoin {
		t.emit(model.EventJoin, payload)
		t.logger.Debug().Str("connID", connID).Msg("rejoined after reconnect")
	}
}

func (t *Tracker) handleDisconnect() {
	t.mx.Lock()
	t.connected = false
	t.mx.Unlock()
}

func (t *Tracker) handleEvent(ev model.Event) {
	switch ev.Type {
	case model.EventSnapshot:
		var peers []model.PeerState
		if err := json.Unmarshal(ev.Payload, &peers); err != nil {
			t.logger.Error().Err(err).Msg("malformed snapshot")
			return
		}
		t.mirror.Reset(peers)

	case model.EventPeerJoined, model.EventPeerUpdated:
		var peer model.PeerState
		if err := json.Unmarshal(ev.Payload, &peer); err != nil {
			t.logger.Error().Err(err).Str("type", ev.Type).Msg("malformed peer entry")
			return
		}
		t.mirror.Upsert(peer)

	case model.EventPeerLeft:
		var id string
		if err := json.Unmarshal(ev.Payload, &id); err != nil {
			t.logger.Error().Err(err).Msg("malformed peer_left")
			return
		}
		t.mirror.Remove(id)

	default:
		t.logger.Warn().Str("type", ev.Type).Msg("unknown event type")
		return
	}
	t.recompute()
}

// Join publishes the initial join with the first location fix. Joining twice
// is harmless; the server overwrites the entry.
func (t *Tracker) Join(loc model.Location) {
	t.mx.Lock()
	t.joined = true
	t.self.Location = &loc
	payload := joinPayloadOf(t.self)
	t.mx.Unlock()

	t.emit(model.EventJoin, payload)
	t.recompute()
}

// UpdateLocation publishes a fresh location fix.
func (t *Tracker) UpdateLocation(loc model.Location) error {
	t.mx.Lock()
	if !t.joined {
		t.mx.Unlock()
		return ErrNotJoined
	}
	t.self.Location = &loc
	t.mx.Unlock()

	t.emit(model.EventUpdateLocation, model.LocationPayload{Location: &loc})
	t.recompute()
	return nil
}

// SetNeedsCare toggles the patient's care flag and publishes the new status.
func (t *Tracker) SetNeedsCare(v bool) {
	t.mx.Lock()
	t.self.NeedsCare = v
	status := statusOf(t.self)
	t.mx.Unlock()

	t.emit(model.EventUpdateStatus, status)
	t.recompute()
}

// Accept commits the doctor to patientID. The patient must be in the current
// nearby list.
func (t *Tracker) Accept(patientID string) error {
	t.mx.Lock()
	if t.self.Role != model.RoleDoctor {
		t.mx.Unlock()
		return ErrWrongRole
	}
	var found bool
	for _, nm := range t.nearby {
		if nm.Peer.ID == patientID {
			found = true
			break
		}
	}
	if !found {
		t.mx.Unlock()
		return ErrNotNearby
	}
	t.machine.Assign(patientID)
	t.self.AcceptingPatientID = t.machine.PatientID()
	t.self.IsAcceptingHelp = true
	status := statusOf(t.self)
	t.mx.Unlock()

	t.emit(model.EventUpdateStatus, status)
	t.recompute()
	return nil
}

// ClearAssignment drops the doctor's commitment.
func (t *Tracker) ClearAssignment() {
	t.mx.Lock()
	t.machine.Clear()
	t.self.AcceptingPatientID = nil
	t.self.IsAcceptingHelp = false
	status := statusOf(t.self)
	t.mx.Unlock()

	t.emit(model.EventUpdateStatus, status)
	t.recompute()
}

// Track consumes fixes from src until ctx is done: the first fix joins, each
// later fix publishes a location update.
func (t *Tracker) Track(ctx context.Context, fixes <-chan model.Location) {
	for {
		select {
		case <-ctx.Done():
			return
		case loc, ok := <-fixes:
			if !ok {
				return
			}
			if t.Joined() {
				_ = t.UpdateLocation(loc)
			} else {
				t.Join(loc)
			}
		}
	}
}

func (t *Tracker) Self() model.PeerState {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.self
}

func (t *Tracker) Joined() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.joined
}

func (t *Tracker) Connected() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.connected
}

func (t *Tracker) NearbyPatients() []match.Match {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.nearby
}

func (t *Tracker) IncomingDoctors() []match.Match {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.incoming
}

// recompute rebuilds the match lists from scratch. The trigger set is
// explicit: peer set changes, self location, self role, needsCare and
// acceptingPatientId all funnel through here. A doctor whose committed
// patient fell out of the nearby set gets its assignment cleared and the
// cleared status published.
func (t *Tracker) recompute() {
	t.mx.Lock()
	res := match.Compute(t.self, t.mirror.Peers())
	t.nearby = res.NearbyPatients
	t.incoming = res.IncomingDoctors

	var status model.StatusUpdate
	var invalidated bool
	if t.self.Role == model.RoleDoctor && t.machine.Invalidate(res.NearbyPatients) {
		t.self.AcceptingPatientID = nil
		t.self.IsAcceptingHelp = false
		status = statusOf(t.self)
		invalidated = true
	}
	update := Update{
		Self:            t.self,
		NearbyPatients:  t.nearby,
		IncomingDoctors: t.incoming,
	}
	t.mx.Unlock()

	if invalidated {
		t.logger.Debug().Msg("assignment invalidated")
		t.emit(model.EventUpdateStatus, status)
	}
	if t.onUpdate != nil {
		t.onUpdate(update)
	}
}

// emit queues an outgoing event. Delivery is fire-and-forget: with no live
// connection the queue fills up and further events are dropped.
func (t *Tracker) emit(typ string, payload any) {
	ev, err := model.NewEvent(typ, payload)
	if err != nil {
		t.logger.Error().Err(err).Str("type", typ).Msg("failed to build event")
		return
	}
	select {
	case t.tx <- ev:
	default:
		t.logger.Warn().Str("type", typ).Msg("outgoing queue full, event dropped")
	}
}

func joinPayloadOf(self model.PeerState) model.JoinPayload {
	return model.JoinPayload{
		Name:               self.Name,
		Location:           self.Location,
		Color:              self.Color,
		Role:               self.Role,
		NeedsCare:          self.NeedsCare,
		IsAcceptingHelp:    self.IsAcceptingHelp,
		AcceptingPatientID: self.AcceptingPatientID,
	}
}

func statusOf(self model.PeerState) model.StatusUpdate {
	nc, ah := self.NeedsCare, self.IsAcceptingHelp
	return model.StatusUpdate{
		NeedsCare:          &nc,
		IsAcceptingHelp:    &ah,
		AcceptingPatientID: model.OptionalID{Present: true, Value: self.AcceptingPatientID},
	}
}
