package room

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pokersync/backend/internal/engine"
)

type Msg interface{ isRoomMsg() }

// Join registers a client outbox and adds (or re-adds) the user. The joiner
// receives the post-join snapshot like everyone else.
type Join struct {
	User   engine.User
	Outbox chan Outbound
}

func (Join) isRoomMsg() {}

// Leave unbinds the connection and removes the user. Sent explicitly or by
// the session layer on disconnect. Outbox, when set, identifies the
// connection: a disconnect from a binding that a reconnect already replaced
// is ignored instead of evicting the fresh one.
type Leave struct {
	UserID string
	Outbox chan Outbound
}

func (Leave) isRoomMsg() {}

type FromClient struct {
	Cmd engine.Command
}

func (FromClient) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// Timer fires re-enter the loop as messages so every mutation stays on the
// actor goroutine. The generation lets a fire that raced a reset be dropped.
type countdownDone struct{ gen uint64 }

func (countdownDone) isRoomMsg() {}

type roundExpired struct{ gen uint64 }

func (roundExpired) isRoomMsg() {}

// Outbound is one server-to-client notification. KindRoomUpdated carries the
// full snapshot; the rest are lightweight hints for one-shot animations.
type Outbound struct {
	Kind    string
	Version int
	Room    *engine.State
	User    *engine.User
	UserID  string
}

const (
	KindRoomUpdated      = "roomUpdated"
	KindUserJoined       = "userJoined"
	KindUserLeft         = "userLeft"
	KindCountdownStarted = "countdownStarted"
	KindVotingStarted    = "votingStarted"
	KindVotingEnded      = "votingEnded"
	KindVotesRevealed    = "votesRevealed"
	KindVotesReset       = "votesReset"
)

type View struct {
	Version    int
	NumClients int
	Now        time.Time // the room's clock, for deriving remaining time
	State      engine.State
}

// countdownDelay gates the Countdown -> Voting transition (the 3-2-1 ritual).
const countdownDelay = 3 * time.Second

// Room is an actor owning one voting session. All state mutation happens on
// its loop goroutine; other rooms never contend with it.
type Room struct {
	id      string
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Outbound

	countdownGen uint64
	roundGen     uint64

	clock   clockwork.Clock
	log     *zap.Logger
	onEmpty func(*Room)

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts the room actor. onEmpty is invoked from the loop when the last
// user leaves; the registry uses it to unlist the room before shutting it
// down.
func New(parent context.Context, initial engine.State, clock clockwork.Clock, log *zap.Logger, onEmpty func(*Room)) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:      initial.ID,
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan Outbound),
		clock:   clock,
		log:     log,
		onEmpty: onEmpty,
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room actor has stopped. Messages still in its
// inbox at that point are never processed.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				if old, ok := r.clients[msg.User.ID]; ok {
					close(old) // reconnect replaces the binding
				}
				r.clients[msg.User.ID] = msg.Outbox
				r.apply(engine.Command{Type: engine.CmdJoin, User: msg.User})

			case Leave:
				ch, ok := r.clients[msg.UserID]
				if ok && msg.Outbox != nil && ch != msg.Outbox {
					break // stale disconnect; a reconnect took over
				}
				if ok {
					close(ch)
					delete(r.clients, msg.UserID)
				}
				r.apply(engine.Command{Type: engine.CmdLeave, UserID: msg.UserID})

			case FromClient:
				r.apply(msg.Cmd)

			case countdownDone:
				if msg.gen != r.countdownGen {
					break // stale fire from a cancelled countdown
				}
				r.apply(engine.Command{Type: engine.CmdBeginRound})

			case roundExpired:
				if msg.gen != r.roundGen {
					break
				}
				if !r.state.IsVoting {
					break // explicit reveal or reset won the race
				}
				r.apply(engine.Command{Type: engine.CmdRevealVotes})

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					Now:        r.clock.Now(),
					State:      r.state,
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// apply runs one transition and, on success, broadcasts hint signals followed
// by the full snapshot. Rejected commands are dropped per the best-effort
// policy: membership is inherently racy with disconnects.
func (r *Room) apply(cmd engine.Command) {
	wasVoting := r.state.IsVoting
	wasCounting := r.state.Countdown

	events, next, err := engine.Apply(r.state, cmd, r.clock.Now())
	if err != nil {
		r.log.Debug("command dropped",
			zap.String("cmd", string(cmd.Type)),
			zap.Error(err))
		return
	}
	r.state = next
	r.version++

	// Invalidate in-flight timers whose phase just ended, whatever ended
	// it (reveal, reset, disable, auto-reveal).
	if wasCounting && !next.Countdown {
		r.countdownGen++
	}
	if wasVoting && !next.IsVoting {
		r.roundGen++
	}

	emptied := false
	for _, evt := range events {
		switch evt.Type {
		case engine.EvtCountdownStarted:
			r.armCountdown()
		case engine.EvtVotingStarted:
			r.armRoundTimer()
		case engine.EvtRoomEmptied:
			emptied = true
		}
		if kind, ok := hintKind(evt.Type); ok {
			r.broadcast(Outbound{Kind: kind, Version: r.version, User: cloneUser(evt.User), UserID: evt.UserID})
		}
	}

	snap := r.state
	r.broadcast(Outbound{Kind: KindRoomUpdated, Version: r.version, Room: &snap})

	if emptied {
		r.log.Info("room emptied")
		r.onEmpty(r)
	}
}

func hintKind(t engine.EventType) (string, bool) {
	switch t {
	case engine.EvtUserJoined:
		return KindUserJoined, true
	case engine.EvtUserLeft:
		return KindUserLeft, true
	case engine.EvtCountdownStarted:
		return KindCountdownStarted, true
	case engine.EvtVotingStarted:
		return KindVotingStarted, true
	case engine.EvtVotingEnded:
		return KindVotingEnded, true
	case engine.EvtVotesRevealed:
		return KindVotesRevealed, true
	case engine.EvtVotesReset:
		return KindVotesReset, true
	default:
		return "", false
	}
}

func cloneUser(u engine.User) *engine.User {
	if u.ID == "" {
		return nil
	}
	c := u
	return &c
}

func (r *Room) broadcast(out Outbound) {
	for id, ch := range r.clients {
		select {
		case ch <- out:
			// ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(r.clients, id)
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()

	// Messages already queued behind the shutdown are never processed; a
	// Join among them holds an outbox some session writer is draining, so
	// close it. Joins sent after this drain are covered by the session
	// layer watching Done.
	for {
		select {
		case m := <-r.inbox:
			if j, ok := m.(Join); ok {
				close(j.Outbox)
			}
		default:
			return
		}
	}
}
