package hub

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pokersync/backend/internal/engine"
	"github.com/pokersync/backend/internal/room"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, clockwork.NewRealClock(), zap.NewNop())
}

func ensure(t *testing.T, h *Hub, id string, creator engine.User) *room.Room {
	t.Helper()
	reply := make(chan *room.Room, 1)
	h.Inbox() <- EnsureRoom{ID: id, Creator: creator, Reply: reply}
	select {
	case rm := <-reply:
		return rm
	case <-time.After(time.Second):
		t.Fatalf("timed out ensuring room %q", id)
		return nil // unreachable
	}
}

func get(t *testing.T, h *Hub, id string) *room.Room {
	t.Helper()
	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{ID: id, Reply: reply}
	select {
	case rm := <-reply:
		return rm
	case <-time.After(time.Second):
		t.Fatalf("timed out getting room %q", id)
		return nil // unreachable
	}
}

func TestHub_EnsureThenGet_SamePointer(t *testing.T) {
	h := newTestHub(t)
	creator := engine.User{ID: "a", Name: "a", Role: engine.RoleAdmin}

	rm1 := ensure(t, h, "ROOM1", creator)
	rm2 := get(t, h, "ROOM1")

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_ConcurrentFirstJoinsShareOneRoom(t *testing.T) {
	h := newTestHub(t)

	results := make(chan *room.Room, 2)
	for _, id := range []string{"a", "b"} {
		go func(uid string) {
			reply := make(chan *room.Room, 1)
			h.Inbox() <- EnsureRoom{
				ID:      "RACE",
				Creator: engine.User{ID: uid, Name: uid, Role: engine.RoleAdmin},
				Reply:   reply,
			}
			results <- <-reply
		}(id)
	}

	rm1 := <-results
	rm2 := <-results
	if rm1 != rm2 {
		t.Fatalf("two racing first-joins created divergent rooms")
	}
}

func TestHub_GetUnknownRoomIsNil(t *testing.T) {
	h := newTestHub(t)
	assert.Nil(t, get(t, h, "NOPE"))
}

func TestHub_EmptiedRoomIsRemoved_FreshJoinStartsClean(t *testing.T) {
	h := newTestHub(t)
	adminUser := engine.User{ID: "a", Name: "a", Role: engine.RoleAdmin}
	adminUser.VotingOptions = []float64{1, 2, 3}

	rm := ensure(t, h, "ROOM1", adminUser)

	out := make(chan room.Outbound, 16)
	rm.Inbox() <- room.Join{User: adminUser, Outbox: out}
	rm.Inbox() <- room.Leave{UserID: "a", Outbox: out}

	// The empty room must drop out of the registry.
	require.Eventually(t, func() bool {
		return get(t, h, "ROOM1") == nil
	}, time.Second, 10*time.Millisecond)

	// A rejoin creates a brand-new room with default state: no seeded
	// deck, no leaked votes.
	est := engine.User{ID: "b", Name: "b", Role: engine.RoleEstimator}
	rm2 := ensure(t, h, "ROOM1", est)
	require.NotNil(t, rm2)
	if rm2 == rm {
		t.Fatalf("expected a fresh room after removal")
	}

	reply := make(chan room.View, 1)
	rm2.Inbox() <- room.GetState{Reply: reply}
	view := <-reply
	assert.Equal(t, engine.DefaultDeck, view.State.VotingOptions)
	assert.Empty(t, view.State.Users)
	assert.False(t, view.State.Revealed)
}

func TestHub_Shutdown_StopsRooms(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New(ctx, clockwork.NewRealClock(), zap.NewNop())

	adminUser := engine.User{ID: "a", Name: "a", Role: engine.RoleAdmin}
	rm := ensure(t, h, "ROOM1", adminUser)

	out := make(chan room.Outbound, 16)
	rm.Inbox() <- room.Join{User: adminUser, Outbox: out}

	h.Inbox() <- ShutdownHub{}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return // room closed the outbox
			}
		case <-deadline:
			t.Fatalf("room outbox not closed after hub shutdown")
		}
	}
}
