package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubConn struct {
	mu     sync.Mutex
	frames []frame
	fail   bool
	closed bool
}

func (c *stubConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("write failed")
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		names = append(names, f.Event)
	}
	return names
}

func newTestHub() *Hub {
	return NewHub(zap.NewNop().Sugar())
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := newTestHub()
	conn := &stubConn{}
	client := hub.Register(conn, ConnInfo{ConnID: "c1", UserID: 2})

	hub.Join(client, "chat:10")
	assert.Equal(t, 1, hub.RoomSize("chat:10"))

	hub.Leave(client, "chat:10")
	assert.Equal(t, 0, hub.RoomSize("chat:10"))
}

func TestHubUnregisterLeavesEveryRoom(t *testing.T) {
	hub := newTestHub()
	conn := &stubConn{}
	client := hub.Register(conn, ConnInfo{ConnID: "c1", UserID: 2})
	hub.Join(client, "chat:10")
	hub.Join(client, "user:2")

	hub.Unregister(client)
	assert.Equal(t, 0, hub.RoomSize("chat:10"))
	assert.Equal(t, 0, hub.RoomSize("user:2"))
	assert.False(t, hub.UserInRoom(2, "chat:10"))
}

func TestHubJoinUserJoinsEveryConnection(t *testing.T) {
	hub := newTestHub()
	first := &stubConn{}
	second := &stubConn{}
	hub.Register(first, ConnInfo{ConnID: "c1", UserID: 2})
	hub.Register(second, ConnInfo{ConnID: "c2", UserID: 2})

	hub.JoinUser(2, "chat:10")
	assert.Equal(t, 2, hub.RoomSize("chat:10"))
	assert.True(t, hub.UserInRoom(2, "chat:10"))
}

func TestHubJoinUserWithoutConnections(t *testing.T) {
	hub := newTestHub()
	hub.JoinUser(9, "chat:10")
	assert.Equal(t, 0, hub.RoomSize("chat:10"))
}

func TestHubEmitReachesRoomMembers(t *testing.T) {
	hub := newTestHub()
	member := &stubConn{}
	outsider := &stubConn{}
	memberClient := hub.Register(member, ConnInfo{ConnID: "c1", UserID: 2})
	hub.Register(outsider, ConnInfo{ConnID: "c2", UserID: 5})
	hub.Join(memberClient, "chat:10")

	hub.Emit("chat:10", "new_message", map[string]int{"message_id": 42})

	require.Equal(t, []string{"new_message"}, member.events())
	assert.Empty(t, outsider.events())
}

func TestHubEmitExceptUserSkipsTypist(t *testing.T) {
	hub := newTestHub()
	typist := &stubConn{}
	reader := &stubConn{}
	typistClient := hub.Register(typist, ConnInfo{ConnID: "c1", UserID: 2})
	readerClient := hub.Register(reader, ConnInfo{ConnID: "c2", UserID: 5})
	hub.Join(typistClient, "chat:10")
	hub.Join(readerClient, "chat:10")

	hub.EmitExceptUser("chat:10", 2, "typing", map[string]bool{"is_typing": true})

	assert.Empty(t, typist.events())
	assert.Equal(t, []string{"typing"}, reader.events())
}

func TestHubEmitDropsFailedConnection(t *testing.T) {
	hub := newTestHub()
	broken := &stubConn{fail: true}
	healthy := &stubConn{}
	brokenClient := hub.Register(broken, ConnInfo{ConnID: "c1", UserID: 2})
	healthyClient := hub.Register(healthy, ConnInfo{ConnID: "c2", UserID: 5})
	hub.Join(brokenClient, "chat:10")
	hub.Join(healthyClient, "chat:10")

	hub.Emit("chat:10", "new_message", map[string]int{"message_id": 42})

	assert.True(t, broken.closed)
	assert.Equal(t, 1, hub.RoomSize("chat:10"))
	assert.Equal(t, []string{"new_message"}, healthy.events())
}

func TestClientAckCarriesID(t *testing.T) {
	conn := &stubConn{}
	client := &Client{Info: ConnInfo{ConnID: "c1", UserID: 2}, ws: conn}

	require.NoError(t, client.Ack(7, map[string]bool{"ok": true}))
	require.Len(t, conn.frames, 1)
	require.NotNil(t, conn.frames[0].AckID)
	assert.Equal(t, int64(7), *conn.frames[0].AckID)
	assert.Equal(t, "ack", conn.frames[0].Event)
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "user:2", RoomForUser(2))
	assert.Equal(t, "chat:10", RoomForChat(10))
}
