package realtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records delivered messages and can be told to fail writes.
type fakeConn struct {
	mu       sync.Mutex
	messages []any
	failWith error
	closed   bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.messages = append(c.messages, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func TestRegistry_RegisterAndSendToUser(t *testing.T) {
	registry := NewRegistry()
	phone := &fakeConn{}
	laptop := &fakeConn{}

	registry.Register("conn-1", "user-1", phone)
	registry.Register("conn-2", "user-1", laptop)

	delivered := registry.SendToUser("user-1", map[string]any{"type": "notification"})

	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, phone.count())
	assert.Equal(t, 1, laptop.count())
}

func TestRegistry_SendToUnknownUserIsNoop(t *testing.T) {
	registry := NewRegistry()

	delivered := registry.SendToUser("ghost", map[string]any{"type": "notification"})

	assert.Equal(t, 0, delivered)
}

func TestRegistry_ReRegisterReplacesEntry(t *testing.T) {
	registry := NewRegistry()
	old := &fakeConn{}
	replacement := &fakeConn{}

	registry.Register("conn-1", "user-1", old)
	registry.Register("conn-1", "user-1", replacement)

	assert.True(t, old.closed)
	assert.Equal(t, 1, registry.Stats().Connections)

	registry.SendToUser("user-1", "hello")
	assert.Equal(t, 0, old.count())
	assert.Equal(t, 1, replacement.count())
}

func TestRegistry_RoomScoping(t *testing.T) {
	registry := NewRegistry()
	inRoom := &fakeConn{}
	outOfRoom := &fakeConn{}

	registry.Register("conn-1", "", inRoom)
	registry.Register("conn-2", "", outOfRoom)
	registry.JoinRoom("conn-1", "event_42")

	delivered := registry.SendToRoom("event_42", "update")

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, inRoom.count())
	assert.Equal(t, 0, outOfRoom.count())
}

func TestRegistry_LeaveRoomStopsDelivery(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Register("conn-1", "", conn)
	registry.JoinRoom("conn-1", "event_42")
	registry.SendToRoom("event_42", "first")
	registry.LeaveRoom("conn-1", "event_42")
	registry.SendToRoom("event_42", "second")

	assert.Equal(t, 1, conn.count())
}

func TestRegistry_JoinRoomIdempotent(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Register("conn-1", "", conn)
	registry.JoinRoom("conn-1", "event_42")
	registry.JoinRoom("conn-1", "event_42")

	delivered := registry.SendToRoom("event_42", "once")
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, conn.count())
}

func TestRegistry_EmptyRoomIsRemoved(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Register("conn-1", "", conn)
	registry.JoinRoom("conn-1", "event_42")
	require.Equal(t, 1, registry.Stats().Rooms)

	registry.LeaveRoom("conn-1", "event_42")
	assert.Equal(t, 0, registry.Stats().Rooms)
}

func TestRegistry_UnregisterCleansEverything(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Register("conn-1", "user-1", conn)
	registry.JoinRoom("conn-1", "event_42")
	registry.Unregister("conn-1")

	stats := registry.Stats()
	assert.Equal(t, 0, stats.Connections)
	assert.Equal(t, 0, stats.Users)
	assert.Equal(t, 0, stats.Rooms)
	assert.True(t, conn.closed)

	assert.Equal(t, 0, registry.SendToUser("user-1", "gone"))
	assert.Equal(t, 0, registry.SendToRoom("event_42", "gone"))
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	registry := NewRegistry()
	registry.Unregister("never-registered")
	assert.Equal(t, 0, registry.Stats().Connections)
}

func TestRegistry_FailedDeliveryEvictsConnection(t *testing.T) {
	registry := NewRegistry()
	healthy := &fakeConn{}
	broken := &fakeConn{failWith: errors.New("use of closed network connection")}

	registry.Register("conn-1", "", healthy)
	registry.Register("conn-2", "", broken)
	registry.JoinRoom("conn-1", "event_42")
	registry.JoinRoom("conn-2", "event_42")

	delivered := registry.SendToRoom("event_42", "update")

	// The broken member never blocks the healthy one.
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, healthy.count())

	// The broken connection was implicitly unregistered.
	stats := registry.Stats()
	assert.Equal(t, 1, stats.Connections)
	assert.True(t, broken.closed)
}

func TestRegistry_Broadcast(t *testing.T) {
	registry := NewRegistry()
	a := &fakeConn{}
	b := &fakeConn{}

	registry.Register("conn-1", "user-1", a)
	registry.Register("conn-2", "", b)

	delivered := registry.Broadcast("announcement")

	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a'+n%26)) + "-conn"
			registry.Register(id, "user-shared", &fakeConn{})
			registry.JoinRoom(id, "event_42")
			registry.SendToRoom("event_42", "ping")
			registry.LeaveRoom(id, "event_42")
			registry.Unregister(id)
		}(i)
	}
	wg.Wait()

	stats := registry.Stats()
	assert.Equal(t, 0, stats.Connections)
	assert.Equal(t, 0, stats.Rooms)
}
