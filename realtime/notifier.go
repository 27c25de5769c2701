package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	pubnub "github.com/pubnub/go"

	"tikit/utils"
)

// Notifier fans event updates out to room subscribers. Local delivery
// goes through the in-process registry; the same update also rides a
// PubNub channel so sibling instances can reach subscribers connected
// to them. PubNub publishes sit behind a circuit breaker so a dead
// fan-out layer cannot stall redemptions.
type Notifier struct {
	registry *Registry
	pn       *pubnub.PubNub
	breaker  *utils.CircuitBreaker
	topic    string
	originID string
}

func NewNotifier(registry *Registry, pn *pubnub.PubNub, topic string) *Notifier {
	originID, _ := utils.GenerateCode(8)
	return &Notifier{
		registry: registry,
		pn:       pn,
		breaker:  utils.NewCircuitBreaker("pubnub-publish"),
		topic:    topic,
		originID: originID,
	}
}

// NotifyEventUpdate pushes an event_update message into the event's
// room, locally and across instances.
func (n *Notifier) NotifyEventUpdate(eventID, updateType string, data map[string]any) {
	message := map[string]any{
		"type":        "event_update",
		"event_id":    eventID,
		"update_type": updateType,
		"data":        data,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	n.registry.SendToRoom(EventRoom(eventID), message)
	n.publish(map[string]any{
		"origin":   n.originID,
		"event_id": eventID,
		"message":  message,
	})
}

// NotifyUser pushes a message to every live connection of one user,
// locally and via the user's PubNub channel.
func (n *Notifier) NotifyUser(userID string, message map[string]any) {
	n.registry.SendToUser(userID, message)

	if n.pn == nil {
		return
	}
	err := n.breaker.Execute(func() error {
		_, _, err := n.pn.Publish().
			Channel("user-" + userID).
			Message(message).
			Execute()
		return err
	})
	if err != nil {
		log.Printf("PubNub user notify failed for %s: %v", userID, err)
	}
}

func (n *Notifier) publish(envelope map[string]any) {
	if n.pn == nil {
		return
	}
	err := n.breaker.Execute(func() error {
		_, _, err := n.pn.Publish().
			Channel(n.topic).
			Message(envelope).
			Execute()
		return err
	})
	if err != nil {
		log.Printf("PubNub event publish failed: %v", err)
	}
}

// Listen re-injects event updates published by sibling instances into
// the local registry. Messages carrying this instance's origin id were
// already delivered locally and are skipped.
func (n *Notifier) Listen(ctx context.Context) {
	if n.pn == nil {
		return
	}

	listener := pubnub.NewListener()
	n.pn.AddListener(listener)
	n.pn.Subscribe().
		Channels([]string{n.topic}).
		Execute()

	for {
		select {
		case <-ctx.Done():
			n.pn.Unsubscribe().Channels([]string{n.topic}).Execute()
			return
		case message := <-listener.Message:
			n.handleRemote(message)
		}
	}
}

func (n *Notifier) handleRemote(message *pubnub.PNMessage) {
	data, ok := message.Message.(map[string]interface{})
	if !ok {
		return
	}

	var envelope struct {
		Origin  string         `json:"origin"`
		EventID string         `json:"event_id"`
		Message map[string]any `json:"message"`
	}
	raw, _ := json.Marshal(data)
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Printf("Error parsing remote event update: %v", err)
		return
	}

	if envelope.Origin == n.originID || envelope.EventID == "" {
		return
	}
	n.registry.SendToRoom(EventRoom(envelope.EventID), envelope.Message)
}
