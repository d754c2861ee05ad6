package server

import (
	"encoding/json"
	"testing"
)

// newTestClient builds a client wired to the hub without a network
// connection; command handling and delivery only touch the send channel.
func newTestClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	c := NewClient(nil, hub, "test-client")
	id, err := hub.Connect(c.send)
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	c.id = id
	return c
}

func recvEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	payload := recvPayload(t, c.send)
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("payload is not an envelope: %v (%s)", err, payload)
	}
	return env
}

// TestCreateCommandEntersRoom verifies /create makes the creator a member of
// the new room, so its bare text relays immediately without a /join.
func TestCreateCommandEntersRoom(t *testing.T) {
	hub := startHub(t)
	creator := newTestClient(t, hub)
	other := newTestClient(t, hub)

	creator.handleText("/create Main")
	env := recvEnvelope(t, creator)
	if env.Event != EventCreateRoom || env.Status != StatusOK {
		t.Fatalf("create envelope = %+v", env)
	}

	var info RoomInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatal(err)
	}
	if info.Num != 1 {
		t.Errorf("member count after create = %d, want 1", info.Num)
	}
	if creator.room != info.ID {
		t.Errorf("creator current room = %s, want %s", creator.room, info.ID)
	}

	other.handleText("/join " + info.ID.String())
	if env := recvEnvelope(t, other); env.Event != EventEnterRoom || env.Status != StatusOK {
		t.Fatalf("join envelope = %+v", env)
	}
	recvPayload(t, creator.send) // join notice

	creator.handleText("hello")
	env = recvEnvelope(t, other)
	if env.Event != EventMessage {
		t.Fatalf("relayed envelope = %+v", env)
	}
	var text TextMessage
	if err := json.Unmarshal(env.Data, &text); err != nil {
		t.Fatal(err)
	}
	if text.Message != "hello" {
		t.Errorf("relayed text = %q, want %q", text.Message, "hello")
	}
	expectSilence(t, creator.send)
}

// TestNameCommandAcknowledged verifies /name answers with an envelope like
// every other command, and that the name prefixes relayed text.
func TestNameCommandAcknowledged(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(t, hub)

	c.handleText("/name alice")
	env := recvEnvelope(t, c)
	if env.Event != EventSetName || env.Status != StatusOK {
		t.Fatalf("name envelope = %+v", env)
	}
	if c.name != "alice" {
		t.Errorf("client name = %q, want alice", c.name)
	}

	c.handleText("/name")
	env = recvEnvelope(t, c)
	if env.Event != EventSetName || env.Status != StatusError {
		t.Fatalf("empty name envelope = %+v", env)
	}
}

// TestUnknownCommand verifies unrecognized slash commands answer with an
// error envelope instead of being relayed as text.
func TestUnknownCommand(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(t, hub)

	c.handleText("/frobnicate now")
	env := recvEnvelope(t, c)
	if env.Event != EventUnknown || env.Status != StatusError {
		t.Fatalf("unknown command envelope = %+v", env)
	}
}
