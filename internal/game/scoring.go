package game

// scoreLocked runs the completion scoring over the current picks and votes.
// The owner's pick is the winner card; voters who matched it are guessers,
// the rest failed. Requires g.mu held.
func (g *Game) scoreLocked() *ScoreSummary {
	winnerCard := g.ownerCard

	type ballot struct {
		playerID string
		vote     int
	}
	var guessed, failed []ballot
	for _, p := range g.players {
		if p == g.ownerID {
			continue
		}
		v, ok := g.votes[p]
		if !ok {
			continue
		}
		if v == winnerCard {
			guessed = append(guessed, ballot{p, v})
		} else {
			failed = append(failed, ballot{p, v})
		}
	}

	deltas := map[string]int{}
	var winners []string
	if len(guessed) > 0 && len(failed) > 0 {
		// The interesting case: some but not all found the owner's card.
		deltas[g.ownerID] = PointsGMWon + PointsGMFailed*len(failed)
		winners = append(winners, g.ownerID)
		for _, b := range guessed {
			deltas[b.playerID] += PointsPWon
			winners = append(winners, b.playerID)
		}
		for _, b := range failed {
			deltas[b.playerID] += PointsPLost
		}
	} else {
		// Everyone guessed right, or nobody did: the owner lost the round
		// and every voter wins.
		deltas[g.ownerID] = PointsGMLost
		for _, b := range guessed {
			deltas[b.playerID] += PointsPWon
			winners = append(winners, b.playerID)
		}
		for _, b := range failed {
			deltas[b.playerID] += PointsPWon
			winners = append(winners, b.playerID)
		}
	}

	// Decoy bonus, additive on top of the base scores: a failed voter who
	// landed on another player's pick rewards that player.
	for _, b := range failed {
		for _, p := range g.players {
			if p == b.playerID || p == g.ownerID {
				continue
			}
			if pick, ok := g.picks[p]; ok && pick == b.vote {
				deltas[p] += PointsPFailed
			}
		}
	}

	return &ScoreSummary{WinnerCard: winnerCard, Winners: winners, Deltas: deltas}
}
