package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound is the closed set of client-to-server realtime messages.
// Parsing produces exactly one of the variants below; anything else is
// an UnknownTypeError.
type Inbound interface {
	inbound()
}

type Ping struct{}

type JoinRoom struct {
	RoomID string `json:"room_id"`
}

type LeaveRoom struct {
	RoomID string `json:"room_id"`
}

type SubscribeEvent struct {
	EventID string `json:"event_id"`
}

type UnsubscribeEvent struct {
	EventID string `json:"event_id"`
}

type ClientMessage struct {
	TargetType string `json:"target_type"` // "room" or "user"
	TargetID   string `json:"target_id"`
	Content    string `json:"content"`
}

func (Ping) inbound()             {}
func (JoinRoom) inbound()         {}
func (LeaveRoom) inbound()        {}
func (SubscribeEvent) inbound()   {}
func (UnsubscribeEvent) inbound() {}
func (ClientMessage) inbound()    {}

type UnknownTypeError struct {
	Type string
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.Type)
}

// ParseInbound decodes one wire message ({"type": ..., ...}) into its
// tagged variant.
func ParseInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	decode := func(v Inbound) (Inbound, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("malformed %s message: %w", envelope.Type, err)
		}
		return v, nil
	}

	switch envelope.Type {
	case "ping":
		return Ping{}, nil
	case "join_room":
		return decode(&JoinRoom{})
	case "leave_room":
		return decode(&LeaveRoom{})
	case "subscribe_event":
		return decode(&SubscribeEvent{})
	case "unsubscribe_event":
		return decode(&UnsubscribeEvent{})
	case "send_message":
		return decode(&ClientMessage{})
	default:
		return nil, UnknownTypeError{Type: envelope.Type}
	}
}

// Dispatcher applies inbound messages against the registry on behalf of
// one connection and produces the direct reply to write back, if any.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

func (d *Dispatcher) Handle(connID, userID string, msg Inbound) map[string]any {
	switch m := msg.(type) {
	case Ping:
		return map[string]any{
			"type":      "pong",
			"timestamp": timestamp(),
		}

	case *JoinRoom:
		if m.RoomID == "" {
			return errorMessage("room_id is required")
		}
		d.registry.JoinRoom(connID, m.RoomID)
		return map[string]any{
			"type":      "room_joined",
			"room_id":   m.RoomID,
			"timestamp": timestamp(),
		}

	case *LeaveRoom:
		if m.RoomID == "" {
			return errorMessage("room_id is required")
		}
		d.registry.LeaveRoom(connID, m.RoomID)
		return map[string]any{
			"type":      "room_left",
			"room_id":   m.RoomID,
			"timestamp": timestamp(),
		}

	case *SubscribeEvent:
		if m.EventID == "" {
			return errorMessage("event_id is required")
		}
		d.registry.JoinRoom(connID, EventRoom(m.EventID))
		return map[string]any{
			"type":      "event_subscribed",
			"event_id":  m.EventID,
			"timestamp": timestamp(),
		}

	case *UnsubscribeEvent:
		if m.EventID == "" {
			return errorMessage("event_id is required")
		}
		d.registry.LeaveRoom(connID, EventRoom(m.EventID))
		return map[string]any{
			"type":      "event_unsubscribed",
			"event_id":  m.EventID,
			"timestamp": timestamp(),
		}

	case *ClientMessage:
		// Only authenticated sessions may address other users.
		if userID == "" {
			return errorMessage("authentication required")
		}
		if m.TargetID == "" || m.Content == "" {
			return errorMessage("target_id and content are required")
		}
		switch m.TargetType {
		case "room":
			d.registry.SendToRoom(m.TargetID, map[string]any{
				"type":      "room_message",
				"room_id":   m.TargetID,
				"sender_id": userID,
				"content":   m.Content,
				"timestamp": timestamp(),
			})
		case "user":
			d.registry.SendToUser(m.TargetID, map[string]any{
				"type":      "personal_message",
				"sender_id": userID,
				"content":   m.Content,
				"timestamp": timestamp(),
			})
		default:
			return errorMessage("target_type must be room or user")
		}
		return nil
	}

	// Unreachable for messages produced by ParseInbound.
	return errorMessage("unsupported message")
}

func errorMessage(msg string) map[string]any {
	return map[string]any{
		"type":      "error",
		"message":   msg,
		"timestamp": timestamp(),
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
