package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/testutil"
)

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == want },
		time.Second, 5*time.Millisecond, "hub never reached %d clients", want)
}

func receive(t *testing.T, client *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-client.send:
		require.True(t, ok, "client channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("client did not receive message")
		return nil
	}
}

func TestFormatSSE(t *testing.T) {
	assert.Equal(t, "data: {\"type\":\"heartbeat\"}\n\n", string(FormatSSE([]byte(`{"type":"heartbeat"}`))))
	assert.Equal(t, "data: \n\n", string(FormatSSE(nil)))
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub("room:r1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	client := NewClient(hub, "g_1", 8)
	require.True(t, hub.Register(client))
	waitForClients(t, hub, 1)

	hub.Broadcast([]byte(`{"type":"new_message"}`))
	assert.Equal(t, `{"type":"new_message"}`, string(receive(t, client)))
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub("room:r1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	client := NewClient(hub, "g_1", 8)
	hub.Register(client)
	waitForClients(t, hub, 1)

	hub.Unregister(client)
	waitForClients(t, hub, 0)

	_, ok := <-client.send
	assert.False(t, ok, "send channel should be closed after unregister")

	// A second unregister must not close the channel twice
	hub.Unregister(client)
}

func TestHub_BroadcastToMultipleClients(t *testing.T) {
	hub := NewHub("room:r1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	clients := []*Client{
		NewClient(hub, "g_1", 8),
		NewClient(hub, "g_2", 8),
		NewClient(hub, "g_3", 8),
	}
	for _, c := range clients {
		hub.Register(c)
	}
	waitForClients(t, hub, 3)

	hub.Broadcast([]byte("update"))
	for _, c := range clients {
		assert.Equal(t, "update", string(receive(t, c)))
	}
}

func TestHub_DropsWhenClientBufferFull(t *testing.T) {
	hub := NewHub("room:r1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	slow := NewClient(hub, "g_slow", 1)
	fast := NewClient(hub, "g_fast", 8)
	hub.Register(slow)
	hub.Register(fast)
	waitForClients(t, hub, 2)

	hub.Broadcast([]byte("one"))
	hub.Broadcast([]byte("two"))

	assert.Equal(t, "one", string(receive(t, fast)))
	assert.Equal(t, "two", string(receive(t, fast)))
	assert.Equal(t, "one", string(receive(t, slow)))
	select {
	case msg := <-slow.send:
		t.Fatalf("slow client should have dropped the second frame, got %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub("room:r1", testutil.NopLogger())
	go hub.Run()

	client := NewClient(hub, "g_1", 8)
	hub.Register(client)
	waitForClients(t, hub, 1)

	hub.Close()
	hub.Close()

	select {
	case _, ok := <-client.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("client channel was not closed")
	}

	assert.False(t, hub.Register(NewClient(hub, "g_2", 8)), "register after close should fail")
	// Unregister after close returns immediately
	hub.Unregister(client)
}

func TestHubManager_GetOrCreateHub(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()

	hub1 := manager.GetOrCreateHub("room:a")
	require.NotNil(t, hub1)
	assert.Same(t, hub1, manager.GetOrCreateHub("room:a"))
	assert.NotSame(t, hub1, manager.GetOrCreateHub("room:b"))
	assert.Equal(t, "room:a", hub1.Topic())
}

func TestHubManager_GetHub(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()

	assert.Nil(t, manager.GetHub("room:missing"))

	created := manager.GetOrCreateHub("room:a")
	assert.Same(t, created, manager.GetHub("room:a"))
}

func TestHubManager_RemoveHub(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())

	manager.GetOrCreateHub("room:a")
	manager.RemoveHub("room:a")
	assert.Nil(t, manager.GetHub("room:a"))

	// Removing a missing hub should not panic
	manager.RemoveHub("room:missing")
}

func TestHubManager_CleanupEmptyHubs(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()

	manager.GetOrCreateHub("room:empty")
	active := manager.GetOrCreateHub("room:active")
	active.Register(NewClient(active, "g_1", 8))
	waitForClients(t, active, 1)

	assert.Equal(t, 1, manager.CleanupEmptyHubs())
	assert.Nil(t, manager.GetHub("room:empty"))
	assert.NotNil(t, manager.GetHub("room:active"))
}

func TestHubManager_Deliver(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()

	// No hub, no panic
	manager.Deliver("room:nobody", []byte("x"))

	hub := manager.GetOrCreateHub("user:g_1")
	client := NewClient(hub, "g_1", 8)
	hub.Register(client)
	waitForClients(t, hub, 1)

	manager.Deliver("user:g_1", []byte("hello"))
	assert.Equal(t, "hello", string(receive(t, client)))
}

func TestHub_EvictClosesOnlyThatIdentity(t *testing.T) {
	hub := NewHub("room:r1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	bob := NewClient(hub, "g_bob", 8)
	bobTab := NewClient(hub, "g_bob", 8)
	alice := NewClient(hub, "g_alice", 8)
	for _, c := range []*Client{bob, bobTab, alice} {
		require.True(t, hub.Register(c))
	}
	waitForClients(t, hub, 3)

	hub.Evict("g_bob")
	assert.Equal(t, 1, hub.ClientCount())

	for _, c := range []*Client{bob, bobTab} {
		_, ok := <-c.send
		assert.False(t, ok, "evicted client channel should be closed")
	}

	hub.Broadcast([]byte(`{"type":"new_message"}`))
	assert.Equal(t, `{"type":"new_message"}`, string(receive(t, alice)))

	// Unregistering an evicted client must not close its channel twice
	hub.Unregister(bob)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubManager_EvictWithoutHubIsNoop(t *testing.T) {
	m := NewHubManager(testutil.NopLogger())
	defer m.Close()

	m.Evict("room:nobody", "g_1")
	assert.Nil(t, m.GetHub("room:nobody"))
}
