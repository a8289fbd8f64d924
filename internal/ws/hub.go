// Package ws implements the real-time fanout channel: a websocket hub that
// broadcasts named events to every connected observer and replays current
// state to each observer at connection time.
//
// Delivery contract (matching the socket.io channel it replaces):
//   - Broadcast is best-effort: no acknowledgment, no retry, no persistence
//     of missed events. A slow consumer whose queue fills is disconnected.
//   - A newly connected observer receives one replay of every non-empty
//     cache slot, using the same event names as live broadcasts, before any
//     later broadcast. Register and broadcast are serialized on the hub's
//     run loop, which is what makes that ordering hold.
//   - An observer that reconnects gets a fresh full replay, never a
//     gap-filled history.
//
// Wire format: one JSON object per message, {"event": <name>, "data": ...}.
package ws

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Event names shared by broadcast and connect-time replay. These are part of
// the external contract with the dashboard clients.
const (
	EventLocationUpdate    = "locationUpdate"
	EventQrDataUpdate      = "qrDataUpdate"
	EventFetchLastLocation = "fetchLastLocation"
	EventFetchLastQr       = "fetchLastQr"
)

var (
	// wsObservers gauges the number of currently connected observers.
	wsObservers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_observers",
		Help: "Current number of connected websocket observers.",
	})

	// wsBroadcasts counts broadcast messages by event name.
	wsBroadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_broadcasts_total",
			Help: "Total number of broadcast messages by event.",
		},
		[]string{"event"},
	)

	// wsDropped counts observers disconnected because their send queue
	// filled up (slow consumers).
	wsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_slow_consumers_dropped_total",
		Help: "Total number of observers dropped for not keeping up.",
	})
)

func init() {
	prometheus.MustRegister(wsObservers, wsBroadcasts, wsDropped)
}

// Event is a named payload delivered over the channel.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ReplaySource supplies the events unicast to an observer at connection
// time: one event per non-empty cache slot, in any order.
type ReplaySource interface {
	ReplayEvents() []Event
}

// Hub owns the observer set. All membership changes and broadcasts are
// funneled through channels onto a single run loop, so the clients map is
// never accessed concurrently and replay ordering is deterministic.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound

	// done is closed when Run exits, so senders blocked on the channels
	// above (connection pumps, broadcasters) unblock during shutdown.
	done chan struct{}

	clients map[*Client]bool
	replay  ReplaySource
	log     zerolog.Logger
}

// outbound is a pre-encoded frame queued for fanout.
type outbound struct {
	event string
	frame []byte
}

// NewHub returns a hub that replays events from src on connect. Call Run
// before registering clients.
func NewHub(src ReplaySource, log zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		replay:     src,
		log:        log.With().Str("component", "ws").Logger(),
	}
}

// Run processes registration, unregistration, and broadcast requests until
// ctx is canceled, then closes every remaining observer queue. It must run
// on its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			wsObservers.Set(float64(len(h.clients)))
			h.log.Info().Str("observer_id", c.id).Int("observers", len(h.clients)).Msg("observer connected")

			// Replay current state to this observer only. Enqueued before
			// the loop services any later broadcast, so the observer never
			// sees an update ahead of its catch-up.
			if h.replay != nil {
				for _, ev := range h.replay.ReplayEvents() {
					frame, err := json.Marshal(ev)
					if err != nil {
						h.log.Error().Err(err).Str("event", ev.Event).Msg("encode replay event")
						continue
					}
					if !c.enqueue(frame) {
						h.drop(c)
						break
					}
				}
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Info().Str("observer_id", c.id).Int("observers", len(h.clients)).Msg("observer disconnected")
			}

		case msg := <-h.broadcast:
			wsBroadcasts.WithLabelValues(msg.event).Inc()
			for c := range h.clients {
				if !c.enqueue(msg.frame) {
					wsDropped.Inc()
					h.drop(c)
					h.log.Warn().Str("observer_id", c.id).Msg("dropping slow observer")
				}
			}
		}
	}
}

// Broadcast queues an event for delivery to every connected observer. The
// payload is encoded once, up front; an unencodable payload is logged and
// dropped rather than propagated. After the hub shuts down, Broadcast
// discards the event instead of blocking.
func (h *Hub) Broadcast(event string, data any) {
	frame, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode broadcast event")
		return
	}
	select {
	case h.broadcast <- outbound{event: event, frame: frame}:
	case <-h.done:
	}
}

// forget unregisters c, or returns immediately when the hub has already shut
// down (everything was dropped on the way out).
func (h *Hub) forget(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// drop removes c from the observer set and closes its send queue, which in
// turn terminates its write pump.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	wsObservers.Set(float64(len(h.clients)))
}
