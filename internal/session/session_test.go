package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"notecollab/internal/models"
)

type frameCapture struct {
	mu     sync.Mutex
	frames []models.WSFrame
}

func newFrameCapture() *frameCapture { return &frameCapture{} }

func (c *frameCapture) hook(frame models.WSFrame) {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
}

func (c *frameCapture) list() []models.WSFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WSFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

func testUser(id string) models.User {
	return models.User{ID: id, Name: "user-" + id, Avatar: id + ".png"}
}

func TestClientSendWithHook(t *testing.T) {
	client := NewClient(nil, testUser("u1"))
	capture := newFrameCapture()
	client.SetSendHook(capture.hook)

	client.Send(models.WSFrame{Type: "ping"})

	got := capture.list()
	if len(got) != 1 || got[0].Type != "ping" {
		t.Fatalf("expected frame captured, got %#v", got)
	}
}

func TestClientSendDropsWhenQueueFull(t *testing.T) {
	client := NewClient(nil, testUser("u1"))

	// No pump is draining; the queue must absorb sendBuffer frames and then
	// drop silently instead of blocking.
	for i := 0; i < sendBuffer*2; i++ {
		client.Send(models.WSFrame{Type: "noop"})
	}
	if got := len(client.send); got != sendBuffer {
		t.Fatalf("expected queue capped at %d, got %d", sendBuffer, got)
	}
}

func TestClientSendAfterCloseDoesNotPanic(t *testing.T) {
	client := NewClient(nil, testUser("u1"))
	client.Close()
	client.Close()
	client.Send(models.WSFrame{Type: "noop"})
}

func TestClientWritePumpDeliversInOrder(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan models.WSFrame, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var frame models.WSFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			received <- frame
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	client := NewClient(conn, testUser("u1"))
	go client.WritePump()
	defer client.Close()

	client.Send(models.WSFrame{Type: "first"})
	client.Send(models.WSFrame{Type: "second"})

	for _, want := range []string{"first", "second"} {
		select {
		case frame := <-received:
			if frame.Type != want {
				t.Fatalf("expected %q, got %#v", want, frame)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestRoomJoinLeaveAndPresence(t *testing.T) {
	room := NewRoom("n1")
	if room.Size() != 0 {
		t.Fatalf("expected empty room")
	}

	c1 := NewClient(nil, testUser("u1"))
	c2 := NewClient(nil, testUser("u2"))
	room.Join(c1)
	room.Join(c2)
	if room.Size() != 2 {
		t.Fatalf("expected 2 members, got %d", room.Size())
	}

	presence := room.Presence()
	if len(presence) != 2 {
		t.Fatalf("expected 2 presence entries, got %d", len(presence))
	}
	for _, entry := range presence {
		if entry.JoinedAt.IsZero() {
			t.Fatalf("presence entry missing join time: %#v", entry)
		}
	}

	if left := room.Leave(c1); left != 1 {
		t.Fatalf("expected 1 member after leave, got %d", left)
	}
	if left := room.Leave(c2); left != 0 {
		t.Fatalf("expected empty room, got %d", left)
	}
}

func TestRoomBroadcastSkipsSender(t *testing.T) {
	room := NewRoom("n1")
	sender := NewClient(nil, testUser("u1"))
	other := NewClient(nil, testUser("u2"))

	senderFrames := newFrameCapture()
	otherFrames := newFrameCapture()
	sender.SetSendHook(senderFrames.hook)
	other.SetSendHook(otherFrames.hook)

	room.Join(sender)
	room.Join(other)

	room.Broadcast(sender, models.WSFrame{Type: "content-changed"})
	if got := senderFrames.list(); len(got) != 0 {
		t.Fatalf("sender should not receive its own broadcast, got %#v", got)
	}
	if got := otherFrames.list(); len(got) != 1 || got[0].Type != "content-changed" {
		t.Fatalf("expected broadcast at other member, got %#v", got)
	}

	room.BroadcastAll(models.WSFrame{Type: "note-saved"})
	if got := senderFrames.list(); len(got) != 1 || got[0].Type != "note-saved" {
		t.Fatalf("expected note-saved at sender, got %#v", got)
	}
	if got := otherFrames.list(); len(got) != 2 {
		t.Fatalf("expected 2 frames at other member, got %#v", got)
	}
}

func TestRegistryJoinCreatesRoomAndReportsPresence(t *testing.T) {
	reg := NewRegistry()
	c1 := NewClient(nil, testUser("u1"))

	room, presence, prev := reg.Join(c1, "n1")
	if prev != nil {
		t.Fatalf("first join should have no previous room")
	}
	if room.ID != "n1" || len(presence) != 1 || presence[0].User.ID != "u1" {
		t.Fatalf("unexpected join result: %#v", presence)
	}

	if got := reg.Presence("n1"); len(got) != 1 {
		t.Fatalf("expected presence of 1, got %d", len(got))
	}
	if got := reg.Presence("missing"); len(got) != 0 {
		t.Fatalf("expected empty presence for unknown room, got %d", len(got))
	}
}

func TestRegistrySingleRoomPerConnection(t *testing.T) {
	reg := NewRegistry()
	c1 := NewClient(nil, testUser("u1"))

	first, _, _ := reg.Join(c1, "n1")
	second, _, prev := reg.Join(c1, "n2")

	if prev == nil || prev.ID != "n1" {
		t.Fatalf("expected previous room n1, got %#v", prev)
	}
	if first.Size() != 0 {
		t.Fatalf("connection should have been removed from n1")
	}
	if second.Size() != 1 {
		t.Fatalf("connection should be in n2")
	}
	if noteID, ok := reg.RoomOf(c1.ID); !ok || noteID != "n2" {
		t.Fatalf("expected current room n2, got %q ok=%v", noteID, ok)
	}
}

func TestRegistryRejoinSameRoomIsNotASwitch(t *testing.T) {
	reg := NewRegistry()
	c1 := NewClient(nil, testUser("u1"))

	reg.Join(c1, "n1")
	room, presence, prev := reg.Join(c1, "n1")
	if prev != nil {
		t.Fatalf("rejoining the same room should not report a switch")
	}
	if room.Size() != 1 || len(presence) != 1 {
		t.Fatalf("expected single presence entry, got %d", len(presence))
	}
}

func TestRegistryLeave(t *testing.T) {
	reg := NewRegistry()
	c1 := NewClient(nil, testUser("u1"))
	c2 := NewClient(nil, testUser("u2"))

	reg.Join(c1, "n1")
	reg.Join(c2, "n1")

	room, ok := reg.Leave(c1)
	if !ok || room.ID != "n1" {
		t.Fatalf("expected leave from n1, got ok=%v", ok)
	}
	if room.Size() != 1 {
		t.Fatalf("expected 1 remaining member, got %d", room.Size())
	}
	if _, ok := reg.RoomOf(c1.ID); ok {
		t.Fatalf("left connection should have no current room")
	}

	if _, ok := reg.Leave(c1); ok {
		t.Fatalf("second leave should be a no-op")
	}
}

func TestRegistrySweepRemovesOnlyEmptyRooms(t *testing.T) {
	reg := NewRegistry()
	c1 := NewClient(nil, testUser("u1"))
	c2 := NewClient(nil, testUser("u2"))

	reg.Join(c1, "n1")
	reg.Join(c2, "n2")
	reg.Leave(c1)

	// n1 is empty but must survive until the sweep.
	if reg.RoomCount() != 2 {
		t.Fatalf("emptied room should stay registered, got %d rooms", reg.RoomCount())
	}

	if removed := reg.Sweep(); removed != 1 {
		t.Fatalf("expected 1 room swept, got %d", removed)
	}
	if reg.RoomCount() != 1 {
		t.Fatalf("expected 1 room left, got %d", reg.RoomCount())
	}
	if _, ok := reg.Room("n2"); !ok {
		t.Fatalf("occupied room must survive the sweep")
	}
}

func TestRegistryJanitorLoop(t *testing.T) {
	reg := NewRegistry()
	c1 := NewClient(nil, testUser("u1"))
	reg.Join(c1, "n1")
	reg.Leave(c1)

	swept := make(chan int, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.RunJanitor(ctx, 10*time.Millisecond, func(removed, remaining int) {
		select {
		case swept <- removed:
		default:
		}
	})

	select {
	case removed := <-swept:
		if removed != 1 {
			t.Fatalf("expected janitor to sweep 1 room, got %d", removed)
		}
	case <-time.After(time.Second):
		t.Fatalf("janitor never swept")
	}
	if reg.RoomCount() != 0 {
		t.Fatalf("expected no rooms after sweep, got %d", reg.RoomCount())
	}
}
