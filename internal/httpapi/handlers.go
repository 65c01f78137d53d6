package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pokersync/backend/internal/engine"
	"github.com/pokersync/backend/internal/hub"
	"github.com/pokersync/backend/internal/room"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// lookupRoom asks the registry for a room, bailing out if the registry has
// stopped or the request is gone. The bool reports whether a reply arrived.
func lookupRoom(h *hub.Hub, r *http.Request, id string) (*room.Room, bool) {
	reply := make(chan *room.Room, 1)
	select {
	case h.Inbox() <- hub.GetRoom{ID: id, Reply: reply}:
	case <-h.Done():
		return nil, false
	case <-r.Context().Done():
		return nil, false
	}
	select {
	case rm := <-reply:
		return rm, true
	case <-h.Done():
		return nil, false
	case <-r.Context().Done():
		return nil, false
	}
}

// NewRoomCode hands out a share code that no live room is using. The room
// itself is created lazily when the first participant joins over /ws.
func NewRoomCode(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			rm, ok := lookupRoom(h, r, c)
			if !ok {
				http.Error(w, "server shutting down", http.StatusServiceUnavailable)
				return
			}
			if rm == nil {
				code = c
				break
			}
			log.Warn("collision on room code, regenerating")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

type roomStateResponse struct {
	engine.State
	RemainingSeconds int `json:"remainingSeconds"`
	NumClients       int `json:"numClients"`
}

// RoomState returns the current snapshot of a live room. The remaining time
// is derived on demand from the stored start/duration pair.
func RoomState(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rm, ok := lookupRoom(h, r, id)
		if !ok {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		// The room can be torn down between lookup and query; its Done
		// channel is the bail-out, never a bare blocking receive.
		viewReply := make(chan room.View, 1)
		select {
		case rm.Inbox() <- room.GetState{Reply: viewReply}:
		case <-rm.Done():
			http.Error(w, "room not found", http.StatusNotFound)
			return
		case <-r.Context().Done():
			return
		}

		var view room.View
		select {
		case view = <-viewReply:
		case <-rm.Done():
			http.Error(w, "room not found", http.StatusNotFound)
			return
		case <-r.Context().Done():
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(roomStateResponse{
			State:            view.State,
			RemainingSeconds: engine.RemainingSeconds(view.State, view.Now),
			NumClients:       view.NumClients,
		})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
