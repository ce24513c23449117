package messaging

import (
	"context"

	"lapor-service/internal/model"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Subscriber receives live report events. Admins see every event, other users
// only events on reports they filed.
type Subscriber struct {
	ActorID uuid.UUID
	Admin   bool
	Events  chan ReportEvent
}

func (s *Subscriber) wants(event ReportEvent) bool {
	return s.Admin || event.ReporterID == s.ActorID
}

// ActivityHub fans report events out to stream subscribers. All state lives in
// the Run goroutine; slow subscribers miss events instead of blocking the hub.
type ActivityHub struct {
	clients    map[*Subscriber]struct{}
	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan ReportEvent
	stopped    chan struct{}
	logger     *charmLog.Logger
}

func NewActivityHub(logger *charmLog.Logger) *ActivityHub {
	return &ActivityHub{
		clients:    make(map[*Subscriber]struct{}),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		broadcast:  make(chan ReportEvent, 100),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx is cancelled, then closes every subscriber channel.
func (h *ActivityHub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Events)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Debug("stream subscriber registered", "actor_id", client.ActorID, "admin", client.Admin)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Events)
				h.logger.Debug("stream subscriber unregistered", "actor_id", client.ActorID)
			}

		case event := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(event) {
					continue
				}
				select {
				case client.Events <- event:
				default:
					// channel full, skip
				}
			}
		}
	}
}

// Subscribe registers actor for live events. After the hub stops the returned
// channel is already closed.
func (h *ActivityHub) Subscribe(actor model.Actor) *Subscriber {
	client := &Subscriber{
		ActorID: actor.ID,
		Admin:   actor.IsAdmin(),
		Events:  make(chan ReportEvent, 16),
	}
	select {
	case h.register <- client:
	case <-h.stopped:
		close(client.Events)
	}
	return client
}

func (h *ActivityHub) Unsubscribe(client *Subscriber) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

func (h *ActivityHub) Publish(ctx context.Context, event ReportEvent) error {
	select {
	case h.broadcast <- event:
		return nil
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
