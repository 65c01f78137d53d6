package hub

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pokersync/backend/internal/engine"
	"github.com/pokersync/backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

// EnsureRoom replies with the live room for ID, creating it from Creator's
// join payload if absent. Creation is atomic: two racing first-joins both
// observe one room, because the loop serializes them.
type EnsureRoom struct {
	ID      string
	Creator engine.User // seeds name/deck only when creation happens
	Reply   chan *room.Room
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room // nil when absent
}

// RoomEmptied unlists a room whose last user left. The pointer is compared so
// a notification from an already-replaced room cannot unlist its successor.
type RoomEmptied struct {
	ID   string
	Room *room.Room
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RoomEmptied) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Hub is the process-wide room registry. Rooms are created lazily on first
// join and unlisted the moment they empty; nothing survives a restart.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	clock  clockwork.Clock
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, clock clockwork.Clock, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		clock:  clock,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the registry loop has stopped; requests sent after
// that are never answered.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if rm := h.rooms[msg.ID]; rm != nil {
					msg.Reply <- rm
					break
				}
				state := engine.NewState(msg.ID, msg.Creator, h.clock.Now())
				rm := room.New(h.ctx, state, h.clock,
					h.log.With(zap.String("room", msg.ID)), h.emptied)
				h.rooms[msg.ID] = rm
				h.log.Info("room created", zap.String("room", msg.ID))
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case RoomEmptied:
				if h.rooms[msg.ID] != msg.Room {
					break
				}
				delete(h.rooms, msg.ID)
				msg.Room.Inbox() <- room.Shutdown{}
				h.log.Info("room removed", zap.String("room", msg.ID))

			case ShutdownHub:
				for _, rm := range h.rooms {
					rm.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

// emptied runs on the room's loop goroutine; hand-off only, no state touched.
func (h *Hub) emptied(rm *room.Room) {
	select {
	case h.inbox <- RoomEmptied{ID: rm.ID(), Room: rm}:
	case <-h.ctx.Done():
	}
}
