package server

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

// TestRoomTableCreate verifies creation, the room-id-equals-owner policy,
// creator membership, and duplicate rejection by name and by owner.
func TestRoomTableCreate(t *testing.T) {
	table := newRoomTable()
	owner := uuid.New()

	info, err := table.create(owner, "Main")
	if err != nil {
		t.Fatalf("create returned error: %v", err)
	}
	if info.ID != owner {
		t.Errorf("room id = %s, want owner id %s", info.ID, owner)
	}
	if info.Name != "Main" || info.Num != 1 {
		t.Errorf("unexpected snapshot: %+v", info)
	}
	if !table.isMember(owner, owner) {
		t.Error("creator is not a member of its own room")
	}

	if _, err := table.create(uuid.New(), "Main"); !errors.Is(err, ErrRoomExists) {
		t.Errorf("duplicate name: got %v, want ErrRoomExists", err)
	}
	if _, err := table.create(owner, "Other"); !errors.Is(err, ErrRoomExists) {
		t.Errorf("duplicate owner: got %v, want ErrRoomExists", err)
	}
}

// TestRoomTableJoin verifies membership insertion and the not-found error.
func TestRoomTableJoin(t *testing.T) {
	table := newRoomTable()
	owner := uuid.New()
	if _, err := table.create(owner, "Main"); err != nil {
		t.Fatalf("create returned error: %v", err)
	}

	member := uuid.New()
	info, err := table.join(owner, member)
	if err != nil {
		t.Fatalf("join returned error: %v", err)
	}
	if info.Num != 2 {
		t.Errorf("member count = %d, want 2", info.Num)
	}

	if _, err := table.join(uuid.New(), member); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("absent room: got %v, want ErrRoomNotFound", err)
	}
}

// TestRoomTableLeaveAll verifies that leaving every room removes emptied
// rooms from the table and its name index in the same operation.
func TestRoomTableLeaveAll(t *testing.T) {
	table := newRoomTable()
	ownerA := uuid.New()
	ownerB := uuid.New()
	member := uuid.New()

	if _, err := table.create(ownerA, "solo"); err != nil {
		t.Fatal(err)
	}
	if _, err := table.create(ownerB, "shared"); err != nil {
		t.Fatal(err)
	}
	if _, err := table.join(ownerB, member); err != nil {
		t.Fatal(err)
	}

	// ownerA was solo's only member, so leaving destroys the room.
	emptied := table.leaveAll(ownerA)
	if len(emptied) != 1 || emptied[0] != ownerA {
		t.Errorf("emptied = %v, want [%s]", emptied, ownerA)
	}

	rooms := table.list()
	if len(rooms) != 1 {
		t.Fatalf("room count = %d, want 1", len(rooms))
	}
	if rooms[0].ID != ownerB || rooms[0].Num != 2 {
		t.Errorf("remaining room = %+v, want shared with 2 members", rooms[0])
	}

	// The name is free again once the room is gone.
	if _, err := table.create(uuid.New(), "solo"); err != nil {
		t.Errorf("recreating emptied room name failed: %v", err)
	}

	// A room that still has members after the departure survives.
	if emptied := table.leaveAll(member); emptied != nil {
		t.Errorf("leaveAll(member) emptied %v, shared still has its owner", emptied)
	}

	// A session with no memberships empties nothing.
	if emptied := table.leaveAll(uuid.New()); emptied != nil {
		t.Errorf("leaveAll for stranger = %v, want nil", emptied)
	}
}

// TestRoomTableBroadcastTarget verifies the sender is excluded and absent
// rooms yield no targets.
func TestRoomTableBroadcastTarget(t *testing.T) {
	table := newRoomTable()
	sender := uuid.New()
	receiver := uuid.New()

	if _, err := table.create(sender, "Main"); err != nil {
		t.Fatal(err)
	}
	if _, err := table.join(sender, receiver); err != nil {
		t.Fatal(err)
	}

	targets := table.broadcastTarget(sender, sender)
	if len(targets) != 1 || targets[0] != receiver {
		t.Errorf("targets = %v, want [%s]", targets, receiver)
	}

	if targets := table.broadcastTarget(uuid.New(), sender); targets != nil {
		t.Errorf("targets for absent room = %v, want nil", targets)
	}
}
