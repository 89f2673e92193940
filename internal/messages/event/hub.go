// Package event provides the in-process hub that fans message changes out to
// live observers, keyed by ticket id.
package event

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the default per-subscriber channel buffer.
	DefaultBufferSize = 64
)

// Type identifies the event category published by the hub.
type Type string

const (
	// TypeMessageCreated is emitted after a message is persisted successfully.
	TypeMessageCreated Type = "message_created"
	// TypeMessageUpdated is emitted after a stored message changes, e.g. on
	// a delivery-ack update.
	TypeMessageUpdated Type = "message_updated"
)

// Event is the payload emitted to subscribers of one ticket.
type Event struct {
	Type     Type            `json:"type"`
	TicketID string          `json:"ticket_id"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Publisher publishes events to subscribers.
type Publisher interface {
	Publish(event Event)
}

// Subscriber subscribes to ticket-scoped events.
type Subscriber interface {
	Subscribe(ticketID string, buffer int) (string, <-chan Event, func())
}

// Hub is an in-process pub/sub dispatcher for ticket-scoped message events.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[string]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[string]map[string]chan Event{},
	}
}

// Publish broadcasts one event to all subscribers of the same ticket.
// Slow subscribers are dropped in a non-blocking way.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	ticketID := strings.TrimSpace(event.TicketID)
	if ticketID == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.streams[ticketID] {
		select {
		case ch <- event:
		default:
			// Drop if receiver is slow to avoid blocking the ingestion path.
		}
	}
}

// Subscribe registers one subscriber under a ticket id.
// It returns a stream ID, read-only event channel, and a cancel function.
func (h *Hub) Subscribe(ticketID string, buffer int) (string, <-chan Event, func()) {
	if h == nil {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	streamID := uuid.NewString()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	streams, ok := h.streams[ticketID]
	if !ok {
		streams = map[string]chan Event{}
		h.streams[ticketID] = streams
	}
	streams[streamID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			streams := h.streams[ticketID]
			if streams != nil {
				if current, ok := streams[streamID]; ok {
					delete(streams, streamID)
					close(current)
				}
				if len(streams) == 0 {
					delete(h.streams, ticketID)
				}
			}
			h.mu.Unlock()
		})
	}

	return streamID, ch, cancel
}
