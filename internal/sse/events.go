// Package sse streams live projections to clients as Server-Sent Events.
// Each connection drives its own projection: a reader's book views or an
// author's draft session.
package sse

import (
	"time"

	"github.com/booknestapp/booknest-server/internal/service"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventConnected is the first event of every connection.
	EventConnected EventType = "connected"
	// EventViews carries the reader's current book views.
	EventViews EventType = "views"
	// EventDraft carries the author's current draft session state.
	EventDraft EventType = "draft"
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// ConnectedEventData is the data payload for connected events.
type ConnectedEventData struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewConnectedEvent creates the greeting for a new client.
func NewConnectedEvent(clientID string) Event {
	return Event{
		Type:      EventConnected,
		Timestamp: time.Now(),
		Data: ConnectedEventData{
			ClientID: clientID,
			Message:  "SSE connection established",
		},
	}
}

// NewViewsEvent creates a book views event.
func NewViewsEvent(views service.BookViews) Event {
	return Event{
		Type:      EventViews,
		Timestamp: time.Now(),
		Data:      views,
	}
}

// NewDraftEvent creates a draft state event.
func NewDraftEvent(state service.DraftState) Event {
	return Event{
		Type:      EventDraft,
		Timestamp: time.Now(),
		Data:      state,
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Timestamp: now,
		Data:      HeartbeatEventData{ServerTime: now},
	}
}
