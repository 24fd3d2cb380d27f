package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/caredar/caredar/model"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

const (
	defaultLeaveBroadcastTimeout = 5 * time.Second
)

type (
	// PresenceStore is the authoritative peer state map. All four mutating
	// operations are serialized by the store itself.
	PresenceStore interface {
		Join(connID string, p model.JoinPayload) (model.PeerState, []model.PeerState)
		UpdateLocation(connID string, loc *model.Location) (model.PeerState, bool)
		UpdateStatus(connID string, su model.StatusUpdate) (model.PeerState, bool)
		Leave(connID string) bool
		Snapshot() []model.PeerState
	}

	Broadcaster interface {
		Connect(connID string, wire model.Wire)
		Disconnect(connID string)
		Send(ctx context.Context, connID string, ev model.Event) bool
		Broadcast(ctx context.Context, ev model.Event, except string)
	}

	Service struct {
		store  PresenceStore
		hub    Broadcaster
		logger zerolog.Logger
	}

	Config struct {
		PresenceStore PresenceStore
		Broadcaster   Broadcaster
		Logger        *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:  cfg.PresenceStore,
		hub:    cfg.Broadcaster,
		logger: cfg.Logger.With().Str("component", "presence").Logger(),
	}
}

// CreateSession attaches a freshly upgraded connection and starts consuming
// its inbound events. The connection is not visible to other peers until its
// join event arrives.
func (svc *Service) CreateSession(ctx context.Context, connID string, wire model.Wire) error {
	svc.hub.Connect(connID, wire)
	svc.logger.Debug().Str("connID", connID).Msg("session created")

	go svc.consume(ctx, connID, wire.RX)
	return nil
}

// DeleteSession detaches the connection, drops its registry entry and tells
// every remaining peer it left. peer_left goes out even for connections that
// never joined; recipients treat an unknown id as a no-op.
//
// The broadcast runs on its own detached context: the caller's context is
// torn down right after the session close returns, and other peers' mirrors
// would keep the dead entry forever if the broadcast died with it.
func (svc *Service) DeleteSession(_ context.Context, connID string) error {
	svc.hub.Disconnect(connID)
	svc.store.Leave(connID)
	svc.logger.Debug().Str("connID", connID).Msg("session deleted")

	ev, err := model.NewEvent(model.EventPeerLeft, connID)
	if err != nil {
		return err
	}
	go func() {
		bCtx, cancel := context.WithTimeout(context.Background(), defaultLeaveBroadcastTimeout)
		defer cancel()
		svc.hub.Broadcast(bCtx, ev, connID)
	}()
	return nil
}

// ListPeers returns the current registry contents.
func (svc *Service) ListPeers() []model.PeerState {
	return svc.store.Snapshot()
}

func (svc *Service) consume(ctx context.Context, connID string, rx <-chan model.Event) {
	logger := svc.logger.With().Str("connID", connID).Logger()

ConsumeLoop:
	for {
		select {
		case <-ctx.Done():
			break ConsumeLoop
		case ev, ok := <-rx:
			if !ok {
				break ConsumeLoop
			}
			switch ev.Type {
			case model.EventJoin:
				svc.handleJoin(ctx, connID, ev.Payload, &logger)
			case model.EventUpdateLocation:
				svc.handleUpdateLocation(ctx, connID, ev.Payload, &logger)
			case model.EventUpdateStatus:
				svc.handleUpdateStatus(ctx, connID, ev.Payload, &logger)
			default:
				logger.Warn().Str("type", ev.Type).Msg("unknown event type")
			}
		}
	}
}

func (svc *Service) handleJoin(ctx context.Context, connID string, payload json.RawMessage, logger *zerolog.Logger) {
	var p model.JoinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		logger.Error().Err(err).Msg("malformed join payload")
		return
	}
	if _, err := model.ParseRole(string(p.Role)); err != nil {
		logger.Warn().Str("role", string(p.Role)).Msg("join with unknown role dropped")
		return
	}

	entry, others := svc.store.Join(connID, p)
	logger.Debug().Str("name", entry.Name).Str("role", string(entry.Role)).Msg("peer joined")
	if e := svc.logger.Trace(); e.Enabled() {
		e.Str("entry", spew.Sdump(entry)).Msg("registry entry")
	}

	snapshot, err := model.NewEvent(model.EventSnapshot, others)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build snapshot")
		return
	}
	svc.hub.Send(ctx, connID, snapshot)

	joined, err := model.NewEvent(model.EventPeerJoined, entry)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build peer_joined")
		return
	}
	svc.hub.Broadcast(ctx, joined, connID)
}

func (svc *Service) handleUpdateLocation(ctx context.Context, connID string, payload json.RawMessage, logger *zerolog.Logger) {
	var p model.LocationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		logger.Error().Err(err).Msg("malformed location payload")
		return
	}

	entry, ok := svc.store.UpdateLocation(connID, p.Location)
	if !ok {
		// location update raced a disconnect or arrived before join
		logger.Debug().Msg("location update for unknown peer dropped")
		return
	}
	svc.broadcastUpdated(ctx, entry, logger)
}

func (svc *Service) handleUpdateStatus(ctx context.Context, connID string, payload json.RawMessage, logger *zerolog.Logger) {
	var su model.StatusUpdate
	if err := json.Unmarshal(payload, &su); err != nil {
		logger.Error().Err(err).Msg("malformed status payload")
		return
	}

	entry, ok := svc.store.UpdateStatus(connID, su)
	if !ok {
		logger.Debug().Msg("status update for unknown peer dropped")
		return
	}
	svc.broadcastUpdated(ctx, entry, logger)
}

func (svc *Service) broadcastUpdated(ctx context.Context, entry model.PeerState, logger *zerolog.Logger) {
	ev, err := model.NewEvent(model.EventPeerUpdated, entry)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build peer_updated")
		return
	}
	svc.hub.Broadcast(ctx, ev, entry.ID)
}
