// Package server defines the JSON envelope used for every message pushed to a
// client. Responses are self-describing: {data, event, status} plus a
// human-readable message on errors.
package server

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/cardhouse/roomhub/internal/logger"
)

// Status reports whether the enveloped operation succeeded.
type Status string

// Envelope statuses.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Event identifies which operation an envelope belongs to.
type Event string

// Envelope events.
const (
	EventCreateRoom  Event = "create_room"
	EventEnterRoom   Event = "enter_room"
	EventGetRoomList Event = "get_room_list"
	EventMessage     Event = "message"
	EventCardsInfo   Event = "cards_info"
	EventSetName     Event = "set_name"
	EventUnknown     Event = "unknown"
)

// Envelope is the uniform response shape for every client-visible push.
type Envelope struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Event   Event           `json:"event"`
	Status  Status          `json:"status"`
	Message string          `json:"message,omitempty"`
}

// RoomInfo is the client-visible snapshot of one room.
type RoomInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Num  int       `json:"num"`
}

// RoomInfoList is the payload of a room-list envelope.
type RoomInfoList struct {
	Rooms []RoomInfo `json:"rooms"`
}

// TextMessage is the payload of a relayed chat message.
type TextMessage struct {
	Message string `json:"message"`
}

// CardInfoList wraps a card payload pushed by the record subsystem. Card
// fields are opaque here; their schema belongs to the record subsystem.
type CardInfoList struct {
	Cards []json.RawMessage `json:"cards"`
}

// MarshalEnvelope wraps data in an envelope and returns the JSON bytes.
func MarshalEnvelope(data interface{}, event Event, status Status) []byte {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			logger.ErrorF("Failed to marshal envelope data for event %s: %v", event, err)
			return ErrorEnvelope(event, "internal encoding error")
		}
		raw = encoded
	}

	payload, err := json.Marshal(Envelope{
		Data:   raw,
		Event:  event,
		Status: status,
	})
	if err != nil {
		logger.ErrorF("Failed to marshal envelope for event %s: %v", event, err)
		return ErrorEnvelope(event, "internal encoding error")
	}
	return payload
}

// ErrorEnvelope builds an error envelope with a human-readable message.
func ErrorEnvelope(event Event, message string) []byte {
	payload, err := json.Marshal(Envelope{
		Event:   event,
		Status:  StatusError,
		Message: message,
	})
	if err != nil {
		// Envelope has no marshal-unfriendly fields; this cannot happen.
		return []byte(`{"event":"unknown","status":"error"}`)
	}
	return payload
}

// MessagePayload builds the envelope for a relayed chat message.
func MessagePayload(text string) []byte {
	return MarshalEnvelope(TextMessage{Message: text}, EventMessage, StatusOK)
}
