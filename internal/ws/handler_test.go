package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pokersync/backend/internal/engine"
	"github.com/pokersync/backend/internal/hub"
	"github.com/pokersync/backend/internal/types"
)

func TestUserFromQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?room=R1&name=Ann&role=admin&roomName=Sprint%2042&deck=0.5,1,2,3", nil)

	user, roomID, ok := userFromQuery(r)
	require.True(t, ok)
	assert.Equal(t, "R1", roomID)
	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, engine.RoleAdmin, user.Role)
	assert.Equal(t, "Sprint 42", user.RoomName)
	assert.Equal(t, []float64{0.5, 1, 2, 3}, user.VotingOptions)
	assert.NotEmpty(t, user.ID, "a fresh id is minted when uid is absent")
}

func TestUserFromQuery_ReconnectKeepsID(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?room=R1&name=Bob&role=estimator&uid=abc-123", nil)

	user, _, ok := userFromQuery(r)
	require.True(t, ok)
	assert.Equal(t, "abc-123", user.ID)
}

func TestUserFromQuery_DeckIgnoredForNonAdmin(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?room=R1&name=Bob&role=estimator&deck=1,2", nil)

	user, _, ok := userFromQuery(r)
	require.True(t, ok)
	assert.Nil(t, user.VotingOptions)
}

func TestUserFromQuery_Invalid(t *testing.T) {
	for _, url := range []string{
		"/ws?name=Ann&role=admin",           // no room
		"/ws?room=R1&role=admin",            // no name
		"/ws?room=R1&name=Ann&role=king",    // bad role
		"/ws?room=R1&name=Ann",              // missing role
		"/ws?room=R1&name=Ann&role=admin&deck=1,x", // bad deck
	} {
		r := httptest.NewRequest("GET", url, nil)
		_, _, ok := userFromQuery(r)
		assert.False(t, ok, "expected rejection for %s", url)
	}
}

func TestToCommand_EstimatorCanOnlyVote(t *testing.T) {
	est := engine.User{ID: "b", Role: engine.RoleEstimator}

	cmd, ok := toCommand(types.ClientMessage{Type: "submitVote", Vote: 5}, est)
	require.True(t, ok)
	assert.Equal(t, engine.CmdSubmitVote, cmd.Type)
	assert.Equal(t, "b", cmd.UserID, "the acting user is always the bound user")
	assert.Equal(t, 5.0, cmd.Vote)

	for _, typ := range []string{
		"startVoting", "endVoting", "revealVotes", "resetVotes",
		"setTimer", "updateTimer", "updateVotingOptions", "toggleRoomEnabled",
	} {
		_, ok := toCommand(types.ClientMessage{Type: typ}, est)
		assert.False(t, ok, "estimator must not drive %s", typ)
	}
}

func TestToCommand_AdminControls(t *testing.T) {
	adm := engine.User{ID: "a", Role: engine.RoleAdmin}

	cmd, ok := toCommand(types.ClientMessage{Type: "setTimer", Duration: 30}, adm)
	require.True(t, ok)
	assert.Equal(t, engine.CmdSetTimer, cmd.Type)
	assert.Equal(t, 30, cmd.Duration)

	// updateTimer is the historical alias.
	cmd, ok = toCommand(types.ClientMessage{Type: "updateTimer", Duration: 45}, adm)
	require.True(t, ok)
	assert.Equal(t, engine.CmdSetTimer, cmd.Type)

	cmd, ok = toCommand(types.ClientMessage{Type: "updateVotingOptions", Options: []float64{1, 2}}, adm)
	require.True(t, ok)
	assert.Equal(t, engine.CmdSetDeck, cmd.Type)
	assert.Equal(t, []float64{1, 2}, cmd.Options)

	cmd, ok = toCommand(types.ClientMessage{Type: "toggleRoomEnabled", Enabled: false}, adm)
	require.True(t, ok)
	assert.Equal(t, engine.CmdSetEnabled, cmd.Type)
	assert.False(t, cmd.Enabled)

	_, ok = toCommand(types.ClientMessage{Type: "danceParty"}, adm)
	assert.False(t, ok)
}

func TestHandler_StoppedHubReturns503(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := hub.New(ctx, clockwork.NewRealClock(), zap.NewNop())

	h.Inbox() <- hub.ShutdownHub{}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}

	handler := Handler(h, []string{"http://localhost:3000"}, zap.NewNop())

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest("GET", "/ws?room=R1&name=Ann&role=admin", nil))
		done <- rec
	}()

	select {
	case rec := <-done:
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	case <-time.After(time.Second):
		t.Fatalf("handler blocked on a stopped registry")
	}
}
