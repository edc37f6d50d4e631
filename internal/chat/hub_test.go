// internal/chat/hub_test.go
package chat

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestClient(hub *Hub, groupID uuid.UUID) *Client {
	return &Client{
		hub:     hub,
		send:    make(chan []byte, 4),
		groupID: groupID,
		userID:  uuid.New(),
	}
}

func recvOrTimeout(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestBroadcastReachesAllRoomSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	groupID := uuid.New()
	a := newTestClient(hub, groupID)
	b := newTestClient(hub, groupID)
	hub.register <- a
	hub.register <- b
	waitFor(t, func() bool { return hub.Subscribers(groupID) == 2 })

	hub.Broadcast(groupID, []byte("hello"))

	assert.Equal(t, []byte("hello"), recvOrTimeout(t, a.send))
	assert.Equal(t, []byte("hello"), recvOrTimeout(t, b.send))
}

func TestBroadcastIsRoomScoped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	groupA := uuid.New()
	groupB := uuid.New()
	inA := newTestClient(hub, groupA)
	inB := newTestClient(hub, groupB)
	hub.register <- inA
	hub.register <- inB
	waitFor(t, func() bool { return hub.Subscribers(groupA) == 1 && hub.Subscribers(groupB) == 1 })

	hub.Broadcast(groupA, []byte("only for A"))

	assert.Equal(t, []byte("only for A"), recvOrTimeout(t, inA.send))

	select {
	case msg := <-inB.send:
		t.Fatalf("client in another room received %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesSendAndEmptiesRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	groupID := uuid.New()
	client := newTestClient(hub, groupID)
	hub.register <- client
	waitFor(t, func() bool { return hub.Subscribers(groupID) == 1 })

	hub.unregister <- client
	waitFor(t, func() bool { return hub.Subscribers(groupID) == 0 })

	_, open := <-client.send
	assert.False(t, open, "send channel should be closed after unregister")
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	groupID := uuid.New()
	slow := &Client{
		hub:     hub,
		send:    make(chan []byte), // unbuffered and never read
		groupID: groupID,
		userID:  uuid.New(),
	}
	healthy := newTestClient(hub, groupID)
	hub.register <- slow
	hub.register <- healthy
	waitFor(t, func() bool { return hub.Subscribers(groupID) == 2 })

	hub.Broadcast(groupID, []byte("ping"))

	assert.Equal(t, []byte("ping"), recvOrTimeout(t, healthy.send))
	waitFor(t, func() bool { return hub.Subscribers(groupID) == 1 })
}
