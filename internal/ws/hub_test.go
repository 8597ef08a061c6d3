package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The registry tests drive the hub without a database or real sockets:
// repositories stay nil and clients carry a nil connection, which Close
// tolerates.

func startTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil, nil, nil, nil, Settings{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

func TestHubRegisterAndPush(t *testing.T) {
	hub, _ := startTestHub(t)

	c := NewClient(hub, nil, "u1")
	hub.Register(c)

	require.Eventually(t, func() bool { return hub.IsOnline("u1") }, time.Second, 5*time.Millisecond)

	out := OutgoingMessage{Type: EventTyping, Payload: TypingPayload{ConversationID: "c1", UserID: "u2"}}
	assert.True(t, hub.Push("u1", out))

	select {
	case got := <-c.send:
		assert.Equal(t, EventTyping, got.Type)
	case <-time.After(time.Second):
		t.Fatal("message did not reach the client buffer")
	}
}

func TestHubPushOffline(t *testing.T) {
	hub, _ := startTestHub(t)
	assert.False(t, hub.Push("nobody", OutgoingMessage{Type: EventTyping}))
}

func TestHubConnectionReplacement(t *testing.T) {
	hub, _ := startTestHub(t)

	c1 := NewClient(hub, nil, "u1")
	hub.Register(c1)
	require.Eventually(t, func() bool { return hub.IsOnline("u1") }, time.Second, 5*time.Millisecond)

	c2 := NewClient(hub, nil, "u1")
	hub.Register(c2)

	// The old connection is closed once the new one takes over.
	select {
	case <-c1.done:
	case <-time.After(time.Second):
		t.Fatal("replaced connection was not closed")
	}
	assert.Equal(t, 1, hub.ConnectedCount())

	require.True(t, hub.Push("u1", OutgoingMessage{Type: EventTyping}))
	select {
	case <-c2.send:
	case <-time.After(time.Second):
		t.Fatal("message did not reach the replacement connection")
	}
	assert.Empty(t, c2.send)
	assert.Empty(t, c1.send, "old connection must not receive anything")
}

func TestHubStaleUnregister(t *testing.T) {
	hub, _ := startTestHub(t)

	c1 := NewClient(hub, nil, "u1")
	hub.Register(c1)
	require.Eventually(t, func() bool { return hub.IsOnline("u1") }, time.Second, 5*time.Millisecond)

	c2 := NewClient(hub, nil, "u1")
	hub.Register(c2)
	select {
	case <-c1.done:
	case <-time.After(time.Second):
		t.Fatal("replaced connection was not closed")
	}

	// The replaced connection's readPump still fires Unregister on exit;
	// that must not evict the live connection.
	hub.Unregister(c1)
	require.Eventually(t, func() bool {
		return hub.Push("u1", OutgoingMessage{Type: EventTyping})
	}, time.Second, 5*time.Millisecond)
}

func TestHubUnregister(t *testing.T) {
	hub, _ := startTestHub(t)

	c := NewClient(hub, nil, "u1")
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.IsOnline("u1") }, time.Second, 5*time.Millisecond)

	hub.Unregister(c)
	require.Eventually(t, func() bool { return !hub.IsOnline("u1") }, time.Second, 5*time.Millisecond)
	assert.False(t, hub.Push("u1", OutgoingMessage{Type: EventTyping}))
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, cancel := startTestHub(t)

	c := NewClient(hub, nil, "u1")
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.IsOnline("u1") }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("client was not closed on shutdown")
	}
	assert.False(t, hub.Push("u1", OutgoingMessage{Type: EventTyping}))
}

func TestHubBackpressureClosesSlowClient(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil, Settings{SendBufferSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c := NewClient(hub, nil, "slow")
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.IsOnline("slow") }, time.Second, 5*time.Millisecond)

	// First message fills the buffer, second one overflows and closes.
	assert.True(t, hub.Push("slow", OutgoingMessage{Type: EventTyping}))
	assert.False(t, hub.Push("slow", OutgoingMessage{Type: EventTyping}))
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("slow client was not closed")
	}
}
