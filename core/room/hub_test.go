package room

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestConn(hub *Hub, userID int64, username string) *Conn {
	return &Conn{
		Hub:      hub,
		Send:     make(chan []byte, 16),
		UserID:   userID,
		Username: username,
	}
}

func recvMessage(t *testing.T, c *Conn) *WSMessage {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid outbound message: %v", err)
		}
		return &msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func waitConnected(t *testing.T, hub *Hub, userID int64, want bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.IsConnected(userID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("IsConnected(%d) never became %v", userID, want)
}

func TestHubRegisterAndPresence(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	conn := newTestConn(hub, 1, "alice")
	hub.Register(conn)
	waitConnected(t, hub, 1, true)

	hub.Unregister(conn)
	waitConnected(t, hub, 1, false)
}

func TestHubBroadcastScopedToRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	inside := newTestConn(hub, 1, "alice")
	outside := newTestConn(hub, 2, "bob")
	hub.Register(inside)
	hub.Register(outside)
	waitConnected(t, hub, 1, true)
	waitConnected(t, hub, 2, true)

	hub.JoinRoom("100001", 1)

	hub.Broadcast("100001", &WSMessage{Type: EvtQueueUpdated, GroupID: "100001"}, 0)

	msg := recvMessage(t, inside)
	if msg.Type != EvtQueueUpdated {
		t.Fatalf("unexpected message type %s", msg.Type)
	}

	select {
	case <-outside.Send:
		t.Fatal("user outside the room must not receive the broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	first := newTestConn(hub, 1, "alice")
	second := newTestConn(hub, 2, "bob")
	hub.Register(first)
	hub.Register(second)
	waitConnected(t, hub, 1, true)
	waitConnected(t, hub, 2, true)
	hub.JoinRoom("100001", 1)
	hub.JoinRoom("100001", 2)

	hub.Broadcast("100001", &WSMessage{Type: EvtMemberJoined}, 2)

	if msg := recvMessage(t, first); msg.Type != EvtMemberJoined {
		t.Fatalf("unexpected message type %s", msg.Type)
	}
	select {
	case <-second.Send:
		t.Fatal("excluded user must not receive the broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSendToUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	conn := newTestConn(hub, 1, "alice")
	hub.Register(conn)
	waitConnected(t, hub, 1, true)

	if err := hub.SendToUser(1, &WSMessage{Type: EvtQueueError}); err != nil {
		t.Fatalf("SendToUser failed: %v", err)
	}
	if msg := recvMessage(t, conn); msg.Type != EvtQueueError {
		t.Fatalf("unexpected message type %s", msg.Type)
	}

	if err := hub.SendToUser(99, &WSMessage{Type: EvtQueueError}); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestHubReconnectReplacesOldConn(t *testing.T) {
	hub := NewHub()
	onDisconnect := make(chan int64, 4)
	hub.OnDisconnect(func(userID int64) { onDisconnect <- userID })
	go hub.Run()
	defer hub.Stop()

	old := newTestConn(hub, 1, "alice")
	hub.Register(old)
	waitConnected(t, hub, 1, true)
	hub.JoinRoom("100001", 1)

	// 同一用户的新连接顶掉旧连接
	replacement := newTestConn(hub, 1, "alice")
	hub.Register(replacement)

	// 被顶掉的旧连接注销时不触发断开回调
	hub.Unregister(old)
	select {
	case userID := <-onDisconnect:
		t.Fatalf("unexpected disconnect callback for user %d", userID)
	case <-time.After(50 * time.Millisecond):
	}
	waitConnected(t, hub, 1, true)

	// 真正的断开才会触发
	hub.Unregister(replacement)
	select {
	case userID := <-onDisconnect:
		if userID != 1 {
			t.Fatalf("unexpected user %d", userID)
		}
	case <-time.After(time.Second):
		t.Fatal("disconnect callback never fired")
	}
}

func TestHubDropRoomStopsDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	conn := newTestConn(hub, 1, "alice")
	hub.Register(conn)
	waitConnected(t, hub, 1, true)
	hub.JoinRoom("100001", 1)

	hub.DropRoom("100001")
	hub.Broadcast("100001", &WSMessage{Type: EvtGroupEnded}, 0)

	select {
	case <-conn.Send:
		t.Fatal("dropped room must not deliver broadcasts")
	case <-time.After(50 * time.Millisecond):
	}
}
