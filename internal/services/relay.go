package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
	"github.com/jimmy058910/replitballgame-sub015/internal/tournament"
)

// finalSnapshotTTL keeps a finished match's closing state readable for a
// while after its worker is gone.
const finalSnapshotTTL = 15 * time.Minute

// EventRelay bridges the in-process bus to the websocket hub. It listens on
// the aggregate topics, re-addresses each event to its per-entity hub topic,
// and follows match starts by pumping that match's tick stream until it
// completes. Completed matches leave a cached snapshot behind for the
// enhanced-data endpoint.
type EventRelay struct {
	bus   *events.Bus
	hub   *WebSocketHub
	cache *CacheService
	log   *logrus.Logger

	mu    sync.Mutex
	pumps map[uint]context.CancelFunc
}

func NewEventRelay(bus *events.Bus, hub *WebSocketHub, cache *CacheService, log *logrus.Logger) *EventRelay {
	return &EventRelay{
		bus:   bus,
		hub:   hub,
		cache: cache,
		log:   log,
		pumps: make(map[uint]context.CancelFunc),
	}
}

// Run consumes the aggregate topics until the context ends. Call it in its
// own goroutine.
func (r *EventRelay) Run(ctx context.Context) {
	lifecycle := r.bus.Subscribe(events.MatchLifecycleAllTopic, 256)
	tournaments := r.bus.Subscribe(events.TournamentStateAllTopic, 256)
	phases := r.bus.Subscribe(events.SeasonPhaseTopic, 64)
	defer func() {
		lifecycle.Close()
		tournaments.Close()
		phases.Close()
		r.stopAllPumps()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-lifecycle.C:
			if !ok {
				return
			}
			r.handleLifecycle(ctx, ev)
		case ev, ok := <-tournaments.C:
			if !ok {
				return
			}
			if payload, ok := ev.Payload.(tournament.StatePayload); ok {
				r.hub.Broadcast(events.TournamentTopic(payload.TournamentID), ev.Type, payload)
			}
		case ev, ok := <-phases.C:
			if !ok {
				return
			}
			r.hub.Broadcast(events.SeasonPhaseTopic, ev.Type, ev.Payload)
		}
	}
}

func (r *EventRelay) handleLifecycle(ctx context.Context, ev events.Event) {
	payload, ok := ev.Payload.(sim.LifecyclePayload)
	if !ok {
		return
	}
	r.hub.Broadcast(events.MatchLifecycleTopic(payload.MatchID), ev.Type, payload)

	switch ev.Type {
	case events.TypeMatchStarted:
		r.startTickPump(ctx, payload.MatchID)
	case events.TypeMatchCompleted:
		r.stopTickPump(payload.MatchID)
		if err := r.cache.SetWithRetry(ctx, LiveMatchCacheKey(payload.MatchID), payload, finalSnapshotTTL, 3); err != nil {
			r.log.WithError(err).WithField("match_id", payload.MatchID).Warn("Could not cache final match snapshot")
		}
	}
}

// startTickPump follows one live match's tick topic and forwards every
// envelope to the hub with per-client playback annotations.
func (r *EventRelay) startTickPump(parent context.Context, matchID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pumps[matchID]; exists {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	r.pumps[matchID] = cancel

	go func() {
		sub := r.bus.Subscribe(events.MatchTickTopic(matchID), 256)
		defer sub.Close()
		topic := events.MatchTickTopic(matchID)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if env, ok := ev.Payload.(sim.TickEnvelope); ok {
					r.hub.BroadcastTick(topic, env)
				}
			}
		}
	}()
}

func (r *EventRelay) stopTickPump(matchID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.pumps[matchID]; ok {
		cancel()
		delete(r.pumps, matchID)
	}
}

func (r *EventRelay) stopAllPumps() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cancel := range r.pumps {
		cancel()
		delete(r.pumps, id)
	}
}
