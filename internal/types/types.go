package types

import "github.com/pokersync/backend/internal/engine"

// ClientMessage is one inbound event. The acting user is always the
// connection's bound user; messages never name other users.
type ClientMessage struct {
	Type     string    `json:"type"`
	Vote     float64   `json:"vote,omitempty"`
	Duration int       `json:"duration,omitempty"`
	Options  []float64 `json:"options,omitempty"`
	Enabled  bool      `json:"enabled"`
}

// ServerMessage is one outbound notification: "roomUpdated" carries the full
// snapshot, the remaining kinds are one-shot hints, "error" reports a
// malformed frame back to its sender only.
type ServerMessage struct {
	Type    string        `json:"type"`
	Version int           `json:"version,omitempty"`
	Room    *engine.State `json:"room,omitempty"`
	User    *engine.User  `json:"user,omitempty"`
	UserID  string        `json:"userId,omitempty"`
	Error   string        `json:"error,omitempty"`
}
