package _switch

import (
	"sync"

	"github.com/adwski/room-relay/backend/model"
	"github.com/rs/zerolog"
)

type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]model.Wire),
	}
}

func (sw *Switch) Connect(endpoint string, wire model.Wire) {
	sw.mx.Lock()
	sw.fwd[endpoint] = wire
	sw.mx.Unlock()

	sw.logger.Debug().
		Str("endpoint", endpoint).
		Msg("endpoint connected")
}

func (sw *Switch) Disconnect(endpoint string) {
	sw.mx.Lock()
	delete(sw.fwd, endpoint)
	sw.mx.Unlock()

	sw.logger.Debug().
		Str("endpoint", endpoint).
		Msg("endpoint disconnected")
}

// Broadcast queues frame for every endpoint and returns how many accepted it.
// It never blocks: an endpoint with a full queue is kicked instead.
func (sw *Switch) Broadcast(frame []byte, endpoints []string) int {
	var sent int

	sw.mx.RLock()
	defer sw.mx.RUnlock()

	for _, dst := range endpoints {
		wire, ok := sw.fwd[dst]
		if !ok {
			sw.logger.Debug().Str("dst", dst).Msg("cannot forward, dst not found")
			continue
		}
		if send(frame, wire, dst, &sw.logger) {
			sent++
		}
	}
	return sent
}

func send(frame []byte, wire model.Wire, dst string, logger *zerolog.Logger) bool {
	select {
	case wire.TX <- frame:
		logger.Trace().Str("dst", dst).Msg("frame is queued")
		return true
	default:
		logger.Error().Str("dst", dst).Msg("slow endpoint, disconnecting")
		if wire.Kick != nil {
			wire.Kick()
		}
		return false
	}
}
