package engine

import (
	"errors"
	"slices"
	"time"
)

var ErrRoomDisabled = errors.New("room disabled")
var ErrNotVoting = errors.New("voting not open")
var ErrUserNotFound = errors.New("user not found")
var ErrNotEstimator = errors.New("only estimators vote")
var ErrVoteNotInDeck = errors.New("vote not in deck")
var ErrCountdownActive = errors.New("countdown already running")
var ErrNoCountdown = errors.New("no countdown pending")
var ErrInvalidDuration = errors.New("invalid timer duration")
var ErrEmptyDeck = errors.New("deck must not be empty")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleEstimator Role = "estimator"
	RoleObserver  Role = "observer"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleEstimator, RoleObserver:
		return Role(s), true
	default:
		return "", false
	}
}

// User is one participant in a room. RoomName and VotingOptions are advisory
// fields carried from the join payload; an admin's VotingOptions may seed a
// brand-new room's deck.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	Vote          *float64  `json:"vote"`
	HasVoted      bool      `json:"hasVoted"`
	RoomName      string    `json:"roomName,omitempty"`
	VotingOptions []float64 `json:"votingOptions,omitempty"`
}

type State struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CreatedAt      time.Time  `json:"createdAt"`
	Users          []User     `json:"users"`
	IsVoting       bool       `json:"isVoting"`
	Countdown      bool       `json:"countdown"`
	Revealed       bool       `json:"revealed"`
	TimerStartedAt *time.Time `json:"timerStartedAt"`
	TimerDuration  int        `json:"timerDuration"` // seconds
	VotingOptions  []float64  `json:"votingOptions"`
	Enabled        bool       `json:"enabled"`
}

var DefaultDeck = []float64{1, 2, 3, 5, 8, 13, 21}

const DefaultTimerDuration = 15 // seconds

const DefaultRoomName = "Planning Poker Room"

// NewState builds the initial state for a room created by its first joiner.
// The joiner is not yet a member; CmdJoin adds them.
func NewState(id string, creator User, now time.Time) State {
	name := creator.RoomName
	if name == "" {
		name = DefaultRoomName
	}

	deck := DefaultDeck
	if creator.Role == RoleAdmin && len(creator.VotingOptions) > 0 {
		deck = creator.VotingOptions
	}

	return State{
		ID:            id,
		Name:          name,
		CreatedAt:     now,
		Users:         []User{},
		TimerDuration: DefaultTimerDuration,
		VotingOptions: slices.Clone(deck),
		Enabled:       true,
	}
}

type CommandType string

const (
	CmdJoin        CommandType = "Join"
	CmdLeave       CommandType = "Leave"
	CmdStartVoting CommandType = "StartVoting"
	CmdBeginRound  CommandType = "BeginRound" // countdown completion
	CmdEndVoting   CommandType = "EndVoting"
	CmdSubmitVote  CommandType = "SubmitVote"
	CmdRevealVotes CommandType = "RevealVotes"
	CmdResetVotes  CommandType = "ResetVotes"
	CmdSetTimer    CommandType = "SetTimer"
	CmdSetDeck     CommandType = "SetDeck"
	CmdSetEnabled  CommandType = "SetEnabled"
)

type Command struct {
	Type     CommandType
	User     User // Join
	UserID   string
	Vote     float64
	Duration int
	Options  []float64
	Enabled  bool
}

type EventType string

const (
	EvtUserJoined       EventType = "UserJoined"
	EvtUserLeft         EventType = "UserLeft"
	EvtCountdownStarted EventType = "CountdownStarted"
	EvtVotingStarted    EventType = "VotingStarted"
	EvtVotingEnded      EventType = "VotingEnded"
	EvtVotesRevealed    EventType = "VotesRevealed"
	EvtVotesReset       EventType = "VotesReset"
	EvtRoomEmptied      EventType = "RoomEmptied"
)

type Event struct {
	Type   EventType
	User   User
	UserID string
}

// Apply validates cmd against s and returns the events it produced plus the
// next state. On error the returned state is s unchanged; the caller is
// expected to drop the command without broadcasting.
func Apply(s State, cmd Command, now time.Time) ([]Event, State, error) {
	next := s.clone()

	switch cmd.Type {
	case CmdJoin:
		// An id already present is a reconnect: replace the record in
		// place so seat order is preserved.
		if i := indexOf(next.Users, cmd.User.ID); i >= 0 {
			next.Users[i] = cmd.User
		} else {
			next.Users = append(next.Users, cmd.User)
		}
		return []Event{{Type: EvtUserJoined, User: cmd.User}}, next, nil

	case CmdLeave:
		i := indexOf(next.Users, cmd.UserID)
		if i < 0 {
			return nil, s, ErrUserNotFound
		}
		next.Users = slices.Delete(next.Users, i, i+1)
		events := []Event{{Type: EvtUserLeft, UserID: cmd.UserID}}
		if len(next.Users) == 0 {
			events = append(events, Event{Type: EvtRoomEmptied})
		}
		return events, next, nil

	case CmdStartVoting:
		if !s.Enabled {
			return nil, s, ErrRoomDisabled
		}
		if s.Countdown {
			return nil, s, ErrCountdownActive
		}
		next.Countdown = true
		return []Event{{Type: EvtCountdownStarted}}, next, nil

	case CmdBeginRound:
		if !s.Countdown {
			return nil, s, ErrNoCountdown
		}
		next.Countdown = false
		if !s.Enabled {
			// Disabled mid-countdown: settle back to idle.
			return nil, next, nil
		}
		next.IsVoting = true
		next.Revealed = false
		next.TimerStartedAt = &now
		return []Event{{Type: EvtVotingStarted}}, next, nil

	case CmdSubmitVote:
		if !s.Enabled {
			return nil, s, ErrRoomDisabled
		}
		if !s.IsVoting {
			return nil, s, ErrNotVoting
		}
		i := indexOf(next.Users, cmd.UserID)
		if i < 0 {
			return nil, s, ErrUserNotFound
		}
		if next.Users[i].Role != RoleEstimator {
			return nil, s, ErrNotEstimator
		}
		if !slices.Contains(next.VotingOptions, cmd.Vote) {
			return nil, s, ErrVoteNotInDeck
		}
		v := cmd.Vote
		next.Users[i].Vote = &v
		next.Users[i].HasVoted = true

		// Auto-reveal: the moment every estimator has voted, the room
		// reveals itself. A room with zero estimators never does.
		if allEstimatorsVoted(next.Users) {
			next.IsVoting = false
			next.TimerStartedAt = nil
			next.Revealed = true
		}
		return nil, next, nil

	case CmdRevealVotes:
		next.Revealed = true
		next.IsVoting = false
		next.Countdown = false // a reveal mid-countdown cancels the round
		next.TimerStartedAt = nil
		return []Event{{Type: EvtVotesRevealed}}, next, nil

	case CmdEndVoting:
		next.IsVoting = false
		next.Countdown = false
		next.TimerStartedAt = nil
		return []Event{{Type: EvtVotingEnded}}, next, nil

	case CmdResetVotes:
		for i := range next.Users {
			next.Users[i].Vote = nil
			next.Users[i].HasVoted = false
		}
		next.Revealed = false
		next.IsVoting = false
		next.Countdown = false
		next.TimerStartedAt = nil
		return []Event{{Type: EvtVotesReset}}, next, nil

	case CmdSetTimer:
		if cmd.Duration <= 0 {
			return nil, s, ErrInvalidDuration
		}
		next.TimerDuration = cmd.Duration
		return nil, next, nil

	case CmdSetDeck:
		if len(cmd.Options) == 0 {
			return nil, s, ErrEmptyDeck
		}
		// Votes already cast against the old deck stay as-is; clients
		// clear their own vote when the deck changes.
		next.VotingOptions = slices.Clone(cmd.Options)
		return nil, next, nil

	case CmdSetEnabled:
		next.Enabled = cmd.Enabled
		if !cmd.Enabled {
			next.Countdown = false
		}
		return nil, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func indexOf(users []User, id string) int {
	return slices.IndexFunc(users, func(u User) bool { return u.ID == id })
}

func allEstimatorsVoted(users []User) bool {
	n := 0
	for _, u := range users {
		if u.Role != RoleEstimator {
			continue
		}
		n++
		if !u.HasVoted {
			return false
		}
	}
	return n > 0
}
