package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"card-party/internal/config"
	"card-party/internal/eventbus"
	"card-party/internal/registry"
	"card-party/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *registry.Service) {
	t.Helper()
	mem := store.NewMemory()
	cfg := config.GameConfig{
		Countdown:       time.Hour,
		Inactivity:      time.Hour,
		PollTimeout:     time.Second,
		InternalPoll:    time.Second,
		IdleUnloadAfter: time.Hour,
	}
	svc := registry.New(mem, eventbus.New(time.Second), nil, cfg, zerolog.Nop())
	t.Cleanup(svc.Close)
	srv := httptest.NewServer(NewRouter(svc, mem))
	t.Cleanup(srv.Close)
	return srv, svc
}

func postAction(t *testing.T, srv *httptest.Server, body map[string]any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/v1/actions", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "ok", out["status"])
}

func TestActionCreateAndView(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := postAction(t, srv, map[string]any{"action": "create", "player_id": "owner"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gameID := out["game_id"].(string)
	require.NotEmpty(t, gameID)

	viewResp, err := http.Get(srv.URL + "/api/v1/games/" + gameID + "?player_id=owner")
	require.NoError(t, err)
	defer viewResp.Body.Close()
	require.Equal(t, http.StatusOK, viewResp.StatusCode)
	var snap map[string]any
	require.NoError(t, json.NewDecoder(viewResp.Body).Decode(&snap))
	require.Equal(t, gameID, snap["game_id"])
	require.Equal(t, "create", snap["state"])
	seats := snap["players"].([]any)
	require.Len(t, seats, 1)
	require.Len(t, seats[0].(map[string]any)["hand"].([]any), 7)

	// A stranger's view hides the hand and the bank.
	otherResp, err := http.Get(srv.URL + "/api/v1/games/" + gameID + "?player_id=stranger")
	require.NoError(t, err)
	defer otherResp.Body.Close()
	var otherSnap map[string]any
	require.NoError(t, json.NewDecoder(otherResp.Body).Decode(&otherSnap))
	otherSeat := otherSnap["players"].([]any)[0].(map[string]any)
	require.Nil(t, otherSeat["hand"])
	require.Nil(t, otherSnap["bank"])
}

func TestActionWarningAndFault(t *testing.T) {
	srv, _ := newTestServer(t)

	// Unloaded game is a recoverable warning.
	resp, out := postAction(t, srv, map[string]any{"action": "participate", "game_id": "missing", "player_id": "p"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errObj := out["error"].(map[string]any)
	require.Equal(t, "GAME_NOT_LOADED", errObj["code"])
	require.Equal(t, "missing", errObj["data"].(map[string]any)["game_id"])

	// A missing required field is a programmer fault.
	resp, out = postAction(t, srv, map[string]any{"action": "pick", "game_id": "g", "player_id": "p"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	errObj = out["error"].(map[string]any)
	require.Equal(t, "PANIC", errObj["code"])
	require.Contains(t, errObj["data"], "card")
}

func TestMissingGameView(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/games/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "GAME_DOES_NOT_EXIST", out["error"].(map[string]any)["code"])
}

func TestPollEndpoint(t *testing.T) {
	srv, svc := newTestServer(t)
	_, out := postAction(t, srv, map[string]any{"action": "create", "player_id": "owner"})
	gameID := out["game_id"].(string)

	// A stale last-known returns immediately with the current stamp.
	resp, err := http.Get(srv.URL + "/api/v1/poll?types=game&game_id=" + gameID + "&modified=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	var res map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Equal(t, false, res["timed_out"])
	modified := int64(res["modified"].(float64))
	require.Greater(t, modified, int64(0))

	// An up-to-date poll waits; a concurrent action wakes it.
	type pollOut struct {
		res map[string]any
		err error
	}
	done := make(chan pollOut, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/api/v1/poll?types=game&game_id=" + gameID + "&modified=" + strconv.FormatInt(modified, 10))
		if err != nil {
			done <- pollOut{err: err}
			return
		}
		defer resp.Body.Close()
		var r map[string]any
		err = json.NewDecoder(resp.Body).Decode(&r)
		done <- pollOut{res: r, err: err}
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = svc.Dispatch(context.Background(), &registry.Request{
		Action: registry.ActionParticipate, GameID: gameID, PlayerID: "alice",
	})
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, false, r.res["timed_out"])
		require.Greater(t, int64(r.res["modified"].(float64)), modified)
	case <-time.After(3 * time.Second):
		t.Fatal("poll request never resolved")
	}
}
