package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInbound_AllVariants(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Inbound
	}{
		{"ping", `{"type":"ping"}`, Ping{}},
		{"join_room", `{"type":"join_room","room_id":"event_1"}`, &JoinRoom{RoomID: "event_1"}},
		{"leave_room", `{"type":"leave_room","room_id":"event_1"}`, &LeaveRoom{RoomID: "event_1"}},
		{"subscribe_event", `{"type":"subscribe_event","event_id":"ev1"}`, &SubscribeEvent{EventID: "ev1"}},
		{"unsubscribe_event", `{"type":"unsubscribe_event","event_id":"ev1"}`, &UnsubscribeEvent{EventID: "ev1"}},
		{"send_message", `{"type":"send_message","target_type":"room","target_id":"event_1","content":"hi"}`,
			&ClientMessage{TargetType: "room", TargetID: "event_1", Content: "hi"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseInbound([]byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseInbound_UnknownType(t *testing.T) {
	_, err := ParseInbound([]byte(`{"type":"teleport"}`))

	require.Error(t, err)
	var unknown UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "teleport", unknown.Type)
}

func TestParseInbound_MalformedJSON(t *testing.T) {
	_, err := ParseInbound([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestDispatcher_PingPong(t *testing.T) {
	d := NewDispatcher(NewRegistry())

	reply := d.Handle("conn-1", "", Ping{})

	require.NotNil(t, reply)
	assert.Equal(t, "pong", reply["type"])
}

func TestDispatcher_SubscribeEventJoinsEventRoom(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	conn := &fakeConn{}
	registry.Register("conn-1", "user-1", conn)

	reply := d.Handle("conn-1", "user-1", &SubscribeEvent{EventID: "ev1"})
	require.NotNil(t, reply)
	assert.Equal(t, "event_subscribed", reply["type"])

	delivered := registry.SendToRoom(EventRoom("ev1"), "update")
	assert.Equal(t, 1, delivered)
}

func TestDispatcher_UnsubscribeEventLeavesRoom(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	registry.Register("conn-1", "user-1", &fakeConn{})

	d.Handle("conn-1", "user-1", &SubscribeEvent{EventID: "ev1"})
	reply := d.Handle("conn-1", "user-1", &UnsubscribeEvent{EventID: "ev1"})

	require.NotNil(t, reply)
	assert.Equal(t, "event_unsubscribed", reply["type"])
	assert.Equal(t, 0, registry.SendToRoom(EventRoom("ev1"), "update"))
}

func TestDispatcher_SendMessageRequiresAuth(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	registry.Register("conn-1", "", &fakeConn{})

	reply := d.Handle("conn-1", "", &ClientMessage{TargetType: "room", TargetID: "r", Content: "hi"})

	require.NotNil(t, reply)
	assert.Equal(t, "error", reply["type"])
}

func TestDispatcher_SendMessageToRoom(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	sender := &fakeConn{}
	member := &fakeConn{}
	registry.Register("conn-1", "user-1", sender)
	registry.Register("conn-2", "user-2", member)
	registry.JoinRoom("conn-2", "lobby")

	reply := d.Handle("conn-1", "user-1", &ClientMessage{TargetType: "room", TargetID: "lobby", Content: "hi"})

	assert.Nil(t, reply)
	require.Equal(t, 1, member.count())
	delivered := member.messages[0].(map[string]any)
	assert.Equal(t, "room_message", delivered["type"])
	assert.Equal(t, "user-1", delivered["sender_id"])
}

func TestDispatcher_SendMessageToUser(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	recipient := &fakeConn{}
	registry.Register("conn-1", "user-1", &fakeConn{})
	registry.Register("conn-2", "user-2", recipient)

	reply := d.Handle("conn-1", "user-1", &ClientMessage{TargetType: "user", TargetID: "user-2", Content: "hi"})

	assert.Nil(t, reply)
	require.Equal(t, 1, recipient.count())
	delivered := recipient.messages[0].(map[string]any)
	assert.Equal(t, "personal_message", delivered["type"])
}

func TestDispatcher_JoinRoomMissingID(t *testing.T) {
	d := NewDispatcher(NewRegistry())

	reply := d.Handle("conn-1", "", &JoinRoom{})

	require.NotNil(t, reply)
	assert.Equal(t, "error", reply["type"])
}
