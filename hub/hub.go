package hub

import (
	"context"
	"sync"
	"time"

	"github.com/caredar/caredar/model"
	"github.com/rs/zerolog"
)

const (
	defaultSendTimeout = time.Second
)

// Hub tracks the wire of every open connection and fans broadcast events out
// to them. Delivery is best-effort: a recipient that does not drain its TX
// channel within the send timeout simply misses the event.
type Hub struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	wires  map[string]model.Wire
}

func New(logger *zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "hub").Logger(),
		mx:     &sync.RWMutex{},
		wires:  make(map[string]model.Wire),
	}
}

func (h *Hub) Connect(connID string, wire model.Wire) {
	h.mx.Lock()
	h.wires[connID] = wire
	h.mx.Unlock()
	h.logger.Debug().Str("connID", connID).Msg("connection attached")
}

func (h *Hub) Disconnect(connID string) {
	h.mx.Lock()
	delete(h.wires, connID)
	h.mx.Unlock()
	h.logger.Debug().Str("connID", connID).Msg("connection detached")
}

// Send delivers an event to a single connection.
func (h *Hub) Send(ctx context.Context, connID string, ev model.Event) bool {
	h.mx.RLock()
	wire, ok := h.wires[connID]
	h.mx.RUnlock()

	if !ok {
		h.logger.Debug().
			Str("connID", connID).
			Str("type", ev.Type).
			Msg("cannot send, connection not found")
		return false
	}
	sent, _ := send(ctx, ev, connID, wire.TX, &h.logger)
	return sent
}

// Broadcast delivers an event to every connection except the one named by
// except. Pass an empty except to reach everyone.
func (h *Hub) Broadcast(ctx context.Context, ev model.Event, except string) {
	h.mx.RLock()
	wires := make(map[string]model.Wire, len(h.wires))
	for id, wire := range h.wires {
		wires[id] = wire
	}
	h.mx.RUnlock()

	var sent bool
	for id, wire := range wires {
		if id == except {
			continue
		}
		evSent, canceled := send(ctx, ev, id, wire.TX, &h.logger)
		if canceled {
			return
		}
		if evSent {
			sent = true
		}
	}
	if !sent {
		h.logger.Debug().
			Str("type", ev.Type).
			Str("except", except).
			Msg("broadcast did not reach anyone")
	}
}

func send(ctx context.Context, ev model.Event, dst string, tx chan<- model.Event, logger *zerolog.Logger) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultSendTimeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Str("dst", dst).Str("type", ev.Type).Msg("dead connection")
	case tx <- ev:
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
