package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pokersync/backend/internal/engine"
	"github.com/pokersync/backend/internal/hub"
	"github.com/pokersync/backend/internal/room"
	"github.com/pokersync/backend/internal/types"
)

// Handler upgrades the connection, binds it to one (room, user) pair for its
// lifetime, and pumps messages between the socket and the room actor.
// Disconnect is the leave signal; there is no other cancellation.
func Handler(h *hub.Hub, origins []string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, roomID, ok := userFromQuery(r)
		if !ok {
			http.Error(w, "missing or invalid join parameters", http.StatusBadRequest)
			return
		}

		reply := make(chan *room.Room, 1)
		select {
		case h.Inbox() <- hub.EnsureRoom{ID: roomID, Creator: user, Reply: reply}:
		case <-h.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		case <-r.Context().Done():
			return
		}

		var rm *room.Room
		select {
		case rm = <-reply:
		case <-h.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		case <-r.Context().Done():
			return
		}
		if rm == nil {
			http.Error(w, "room unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: hostPatterns(origins),
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := log.With(zap.String("room", roomID), zap.String("user", user.ID))
		log.Info("session opened", zap.String("role", string(user.Role)))

		out := make(chan room.Outbound, 8)
		rm.Inbox() <- room.Join{User: user, Outbox: out}
		defer func() {
			rm.Inbox() <- room.Leave{UserID: user.ID, Outbox: out}
			log.Info("session closed")
		}()

		// Writer goroutine: drains the outbox until the room closes it
		// (shutdown, slow-client drop, or reconnect takeover) or the
		// room actor stops outright, whichever comes first. A Join that
		// lands in a dead room's inbox is never processed and its
		// outbox never closes, so the outbox alone must not be the
		// writer's only exit. Closing the connection on the way out
		// forces the reader loop to unblock too.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer conn.Close(websocket.StatusGoingAway, "room closed")
			for {
				select {
				case o, ok := <-out:
					if !ok {
						return
					}
					payload, err := json.Marshal(toServerMessage(o))
					if err != nil {
						continue
					}
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				case <-rm.Done():
					return
				case <-writeCtx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Clean close, going-away, or transport drop: the
				// deferred Leave handles all of them the same way.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			if cm.Type == "leaveRoom" {
				return
			}

			cmd, ok := toCommand(cm, user)
			if !ok {
				writeError(r.Context(), conn, "unknown or unauthorized type")
				continue
			}

			rm.Inbox() <- room.FromClient{Cmd: cmd}
		}
	}
}

// userFromQuery parses the join payload: room id, display name, role, and the
// advisory roomName/deck fields an admin may use to seed a new room. A uid
// parameter marks a reconnect and keeps the previous identity.
func userFromQuery(r *http.Request) (engine.User, string, bool) {
	q := r.URL.Query()

	roomID := q.Get("room")
	name := q.Get("name")
	if roomID == "" || name == "" {
		return engine.User{}, "", false
	}

	role, ok := engine.ParseRole(q.Get("role"))
	if !ok {
		return engine.User{}, "", false
	}

	id := q.Get("uid")
	if id == "" {
		id = uuid.NewString()
	}

	user := engine.User{
		ID:       id,
		Name:     name,
		Role:     role,
		RoomName: q.Get("roomName"),
	}

	if deck := q.Get("deck"); deck != "" && role == engine.RoleAdmin {
		opts, err := parseDeck(deck)
		if err != nil {
			return engine.User{}, "", false
		}
		user.VotingOptions = opts
	}

	return user, roomID, true
}

// hostPatterns converts configured origins ("http://localhost:3000") into the
// host-only patterns websocket.AcceptOptions matches against.
func hostPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "http://")
		o = strings.TrimPrefix(o, "https://")
		out = append(out, o)
	}
	return out
}

func parseDeck(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	opts := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		opts = append(opts, v)
	}
	return opts, nil
}

// toCommand translates a wire message into an engine command. Room controls
// require the bound user to be the admin; the engine itself only checks
// state, not identity.
func toCommand(m types.ClientMessage, user engine.User) (engine.Command, bool) {
	admin := user.Role == engine.RoleAdmin

	switch m.Type {
	case "submitVote":
		return engine.Command{Type: engine.CmdSubmitVote, UserID: user.ID, Vote: m.Vote}, true
	case "startVoting":
		return engine.Command{Type: engine.CmdStartVoting}, admin
	case "endVoting":
		return engine.Command{Type: engine.CmdEndVoting}, admin
	case "revealVotes":
		return engine.Command{Type: engine.CmdRevealVotes}, admin
	case "resetVotes":
		return engine.Command{Type: engine.CmdResetVotes}, admin
	case "setTimer", "updateTimer":
		return engine.Command{Type: engine.CmdSetTimer, Duration: m.Duration}, admin
	case "updateVotingOptions":
		return engine.Command{Type: engine.CmdSetDeck, Options: m.Options}, admin
	case "toggleRoomEnabled":
		return engine.Command{Type: engine.CmdSetEnabled, Enabled: m.Enabled}, admin
	default:
		return engine.Command{}, false
	}
}

func toServerMessage(o room.Outbound) types.ServerMessage {
	return types.ServerMessage{
		Type:    o.Kind,
		Version: o.Version,
		Room:    o.Room,
		User:    o.User,
		UserID:  o.UserID,
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "error", Error: msg})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
