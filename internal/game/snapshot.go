package game

import "strconv"

// VoteHidden is the placeholder a filtered view reports for a vote that was
// cast but may not be revealed to the viewer yet. An empty string means no
// vote at all.
const VoteHidden = "hidden"

// Seat is one roster entry in a filtered view.
type Seat struct {
	PlayerID string `json:"player_id"`
	Hand     []int  `json:"hand,omitempty"`
	Picked   bool   `json:"picked"`
	Pick     int    `json:"pick,omitempty"`
	Vote     string `json:"vote"`
	Win      bool   `json:"win,omitempty"`
}

// Snapshot is a game view filtered by viewer identity. Non-owners never see
// other players' hands, the bank, or votes before completion.
type Snapshot struct {
	GameID    string   `json:"game_id"`
	OwnerID   string   `json:"owner_id"`
	State     string   `json:"state"`
	Sentence  string   `json:"sentence,omitempty"`
	Players   []Seat   `json:"players"`
	Invited   []string `json:"invited,omitempty"`
	Board     []int    `json:"board,omitempty"`
	Bank      []int    `json:"bank,omitempty"`
	BankCount int      `json:"bank_count"`
	Countdown bool     `json:"countdown"`
	Ready     bool     `json:"ready"`
	Modified  int64    `json:"modified"`
}

// SnapshotFor serializes the game for viewerID. The owner sees everything;
// players see their own hand and vote; votes of others stay redacted until
// the game completes. Completed games reveal all votes and picks.
func (g *Game) SnapshotFor(viewerID string) *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	isOwner := viewerID == g.ownerID
	complete := g.state == StateComplete

	s := &Snapshot{
		GameID:    g.id,
		OwnerID:   g.ownerID,
		State:     string(g.state),
		Sentence:  g.sentence,
		BankCount: len(g.bank),
		Countdown: g.countdownOn,
		Ready:     g.readyLocked(),
		Modified:  g.Pollable.Modified(),
	}
	if isOwner {
		s.Bank = append([]int{}, g.bank...)
	}
	if g.state == StateVote || complete {
		s.Board = append([]int{}, g.board...)
	}
	for id := range g.invited {
		s.Invited = append(s.Invited, id)
	}

	for _, p := range g.players {
		seat := Seat{PlayerID: p}
		if isOwner || p == viewerID {
			seat.Hand = append([]int{}, g.hands[p]...)
		}
		if pick, ok := g.picks[p]; ok {
			seat.Picked = true
			if isOwner || p == viewerID || complete {
				seat.Pick = pick
			}
		}
		if vote, ok := g.votes[p]; ok {
			if isOwner || p == viewerID || complete {
				seat.Vote = strconv.Itoa(vote)
			} else {
				seat.Vote = VoteHidden
			}
		}
		seat.Win = g.wins[p]
		s.Players = append(s.Players, seat)
	}
	return s
}
