package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/match3-backend/internal/engine"
	"github.com/DoyleJ11/match3-backend/internal/hub"
	"github.com/DoyleJ11/match3-backend/internal/store"
	"github.com/DoyleJ11/match3-backend/internal/timer"
	"github.com/DoyleJ11/match3-backend/internal/types"
)

func newServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemory()
	h := hub.NewHub(ctx, hub.Deps{
		Timers:   timer.NewCoordinator(nil, time.Second),
		Store:    st,
		Defaults: engine.Config{Rows: 8, Cols: 8, LobbyTimeoutSec: 120, TargetScore: 1000},
	})
	srv := httptest.NewServer(SetupRoutes(Deps{Hub: h, Store: st}))
	t.Cleanup(srv.Close)
	return srv, st
}

func createSession(t *testing.T, srv *httptest.Server, body string) (*http.Response, types.CreateSessionResponse) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/sessions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out types.CreateSessionResponse
	if resp.StatusCode == http.StatusCreated {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestCreateGetDeleteSession(t *testing.T) {
	srv, _ := newServer(t)

	resp, created := createSession(t, srv, `{"mode":"time_attack","theme":"gems","max_players":3,"duration_minutes":2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, created.ID, 6)
	assert.Equal(t, engine.ModeTimeAttack, created.Config.Mode)
	assert.Equal(t, 8, created.Config.Rows)

	get, err := http.Get(srv.URL + "/sessions/" + created.ID)
	require.NoError(t, err)
	var view struct {
		ID    string       `json:"id"`
		Phase engine.Phase `json:"phase"`
	}
	require.NoError(t, json.NewDecoder(get.Body).Decode(&view))
	get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, created.ID, view.ID)
	assert.Equal(t, engine.PhaseWaiting, view.Phase)

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/"+created.ID, nil)
		del, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		del.Body.Close()
		assert.Equal(t, http.StatusNoContent, del.StatusCode)
	}

	gone, err := http.Get(srv.URL + "/sessions/" + created.ID)
	require.NoError(t, err)
	gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestCreateSession_RejectsBadInput(t *testing.T) {
	srv, _ := newServer(t)

	cases := map[string]string{
		"bad json":            `{"mode":`,
		"unknown mode":        `{"mode":"zen","max_players":2}`,
		"too many players":    `{"mode":"score_attack","max_players":9}`,
		"time without length": `{"mode":"time_attack","max_players":2}`,
		"unknown theme":       `{"mode":"score_attack","max_players":2,"theme":"neon"}`,
		"unknown field":       `{"mode":"score_attack","max_players":2,"colour":"red"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, _ := createSession(t, srv, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRanking(t *testing.T) {
	srv, st := newServer(t)
	require.NoError(t, st.RecordFinalResults(context.Background(), "S1", []store.FinalResult{
		{PlayerID: "1", Nickname: "alice", Score: 30, IsWinner: true},
		{PlayerID: "2", Nickname: "bob", Score: 10},
	}))

	resp, err := http.Get(srv.URL + "/ranking?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []store.RankingRow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Nickname)

	bad, err := http.Get(srv.URL + "/ranking?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + session
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, v))
}

// readUntil reads frames until one of type typ arrives.
func readUntil(t *testing.T, c *websocket.Conn, typ string) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var msg types.ServerMessage
		require.NoError(t, wsjson.Read(ctx, c, &msg), "waiting for %s", typ)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestWebsocket_JoinStartAndErrors(t *testing.T) {
	srv, _ := newServer(t)
	_, created := createSession(t, srv, `{"mode":"score_attack","max_players":2}`)

	a := dial(t, srv, created.ID)
	send(t, a, map[string]any{"type": "start"})
	early := readUntil(t, a, types.MsgError)
	assert.Equal(t, engine.ErrPlayerNotFound.Code, early.Code)

	send(t, a, map[string]any{"type": "join", "nickname": "alice"})
	joined := readUntil(t, a, types.MsgJoined)
	require.NotNil(t, joined.You)
	assert.Equal(t, "alice", joined.You.Nickname)
	assert.True(t, joined.You.Host)

	b := dial(t, srv, created.ID)
	send(t, b, map[string]any{"type": "join", "nickname": "ALICE"})
	taken := readUntil(t, b, types.MsgError)
	assert.Equal(t, engine.ErrNicknameTaken.Code, taken.Code)

	send(t, b, map[string]any{"type": "join", "nickname": "bob"})
	readUntil(t, b, types.MsgJoined)

	started := readUntil(t, a, string(engine.EvtSessionStarted))
	require.NotNil(t, started.Board)
	assert.Equal(t, 8, started.Board.Rows)
	for _, row := range started.Board.Cells {
		for _, cell := range row {
			assert.Equal(t, types.CellFree, cell.State)
		}
	}

	send(t, a, map[string]any{"type": "confirm_match"})
	noSel := readUntil(t, a, types.MsgError)
	assert.Equal(t, engine.ErrNoSelection.Code, noSel.Code)

	send(t, a, map[string]any{"type": "select_cell", "row": 99, "col": 0})
	oob := readUntil(t, a, types.MsgError)
	assert.Equal(t, engine.ErrOutOfBounds.Code, oob.Code)

	send(t, a, map[string]any{"type": "select_cell"})
	missing := readUntil(t, a, types.MsgError)
	assert.Equal(t, engine.ErrInvalidInput.Code, missing.Code)
}

func TestWebsocket_UnknownSession(t *testing.T) {
	srv, _ := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=NOPE00"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusOf(engine.ErrCellLocked))
	assert.Equal(t, http.StatusNotFound, statusOf(engine.ErrSessionNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(engine.ErrPersistence))
	assert.Equal(t, http.StatusInternalServerError, statusOf(bytes.ErrTooLarge))
}
