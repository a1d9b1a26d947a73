package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"card-party/internal/game"
	"card-party/internal/store"
	"card-party/internal/testutil"
)

func TestGameLifecycle(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, err := st.CreateGame(ctx, "owner", game.EncodeCards([]int{1, 2, 3, 4, 5, 6, 7}), game.EncodeCards([]int{8, 9, 10}), "")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	if err := st.AddPlayer(ctx, id, "alice", ""); err != nil {
		t.Fatalf("add player: %v", err)
	}
	hands := map[string]string{
		"owner": game.EncodeCards([]int{11, 12, 13, 14, 15, 16, 17}),
		"alice": game.EncodeCards([]int{18, 19, 20, 21, 22, 23, 24}),
	}
	if err := st.SaveDeal(ctx, id, game.EncodeCards([]int{25, 26}), hands, game.EncodeCard(5)); err != nil {
		t.Fatalf("save deal: %v", err)
	}
	if err := st.SaveSentence(ctx, id, "a sentence", game.StateInvitation); err != nil {
		t.Fatalf("save sentence: %v", err)
	}
	if err := st.SavePick(ctx, id, "alice", game.EncodeCard(18)); err != nil {
		t.Fatalf("save pick: %v", err)
	}
	if err := st.SaveVoting(ctx, id, game.EncodeCards([]int{5, 18}), hands, nil); err != nil {
		t.Fatalf("save voting: %v", err)
	}
	if err := st.SaveVote(ctx, id, "alice", game.EncodeCard(5)); err != nil {
		t.Fatalf("save vote: %v", err)
	}
	if err := st.CompleteGame(ctx, id, []string{"owner", "alice"}, map[string]int{"owner": 5, "alice": 5}); err != nil {
		t.Fatalf("complete game: %v", err)
	}

	rec, err := st.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if rec.State != game.StateComplete {
		t.Fatalf("state = %s, want %s", rec.State, game.StateComplete)
	}
	if rec.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if len(rec.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(rec.Players))
	}
	if rec.Players[0].PlayerID != "owner" || !rec.Players[0].Win {
		t.Fatalf("owner row = %+v", rec.Players[0])
	}
	if game.DecodeCard(rec.Players[1].Vote) != 5 {
		t.Fatalf("alice vote = %q", rec.Players[1].Vote)
	}

	p, err := st.GetPlayer(ctx, "alice")
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if p.Score != 5 || p.ScorePrev != 0 {
		t.Fatalf("alice score = %d prev = %d", p.Score, p.ScorePrev)
	}
	// Any first point reaches level 2, so the jump from 0 to 5 is one levelup.
	if p.Levelups != 1 {
		t.Fatalf("alice levelups = %d, want 1", p.Levelups)
	}
}

func TestAddPlayerCapUnderConcurrency(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, err := st.CreateGame(ctx, "owner", "", "", "")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.AddPlayer(ctx, id, fmt.Sprintf("p%d", i), "")
		}(i)
	}
	wg.Wait()

	full := 0
	for _, err := range errs {
		if errors.Is(err, game.ErrGameFull) {
			full++
		} else if err != nil {
			t.Fatalf("add player: %v", err)
		}
	}
	// Owner plus five joins fill the table; the rest must lose the race.
	if full != 5 {
		t.Fatalf("GAME_FULL count = %d, want 5", full)
	}
	rec, err := st.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if len(rec.Players) != game.NPlayers {
		t.Fatalf("roster = %d, want %d", len(rec.Players), game.NPlayers)
	}
}

func TestInvitationsClearedOnJoinAndCancel(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, err := st.CreateGame(ctx, "owner", "", "", "")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if err := st.AddInvitations(ctx, id, []string{"alice", "bob"}); err != nil {
		t.Fatalf("invite: %v", err)
	}
	// Duplicates are tolerated.
	if err := st.AddInvitations(ctx, id, []string{"alice"}); err != nil {
		t.Fatalf("re-invite: %v", err)
	}
	if err := st.AddPlayer(ctx, id, "alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	rec, err := st.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if len(rec.Invited) != 1 || rec.Invited[0] != "bob" {
		t.Fatalf("invited = %v, want [bob]", rec.Invited)
	}

	if err := st.CancelGame(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	rec, err = st.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if rec.State != game.StateCanceled || len(rec.Invited) != 0 {
		t.Fatalf("after cancel state=%s invited=%v", rec.State, rec.Invited)
	}
}

func TestListUnfinishedGameIDs(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	live, err := st.CreateGame(ctx, "owner", "", "", "")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	done, err := st.CreateGame(ctx, "owner", "", "", "")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if err := st.CompleteGame(ctx, done, nil, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	ids, err := st.ListUnfinishedGameIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != live {
		t.Fatalf("unfinished = %v, want [%s]", ids, live)
	}
}

func TestCompleteGameLevelups(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, err := st.CreateGame(ctx, "owner", "", "", "")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	// 20 points jumps from level 1 past level 2 (any point) and the level-3
	// threshold at 18, so two levelups are recorded at once.
	if err := st.CompleteGame(ctx, id, []string{"owner"}, map[string]int{"owner": 20}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	p, err := st.GetPlayer(ctx, "owner")
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if p.Score != 20 || p.Levelups != 2 {
		t.Fatalf("score = %d levelups = %d, want 20 and 2", p.Score, p.Levelups)
	}
}

func TestAppendEvent(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, err := st.CreateGame(ctx, "owner", "", "", "")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if err := st.AppendEvent(ctx, "owner", id, "pick", map[string]any{"card": 7}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := st.AppendEvent(ctx, "", "", "start", nil); err != nil {
		t.Fatalf("append bare event: %v", err)
	}

	var n int
	if err := st.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM event_log`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("event rows = %d, want 2", n)
	}
}

var _ game.Store = (*store.Store)(nil)
var _ game.Store = (*store.Memory)(nil)
