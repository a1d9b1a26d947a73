package registry

import "fmt"

// ActionType is the closed set of dispatchable actions.
type ActionType string

const (
	ActionCreate       ActionType = "create"
	ActionSetCard      ActionType = "set_card"
	ActionSetSentence  ActionType = "set_sentence"
	ActionParticipate  ActionType = "participate"
	ActionInvite       ActionType = "invite"
	ActionLeave        ActionType = "leave"
	ActionPick         ActionType = "pick"
	ActionVoting       ActionType = "voting"
	ActionVote         ActionType = "vote"
	ActionComplete     ActionType = "complete"
	ActionSetCountdown ActionType = "set_countdown"
)

// Request is one parsed action with its named fields. Unused fields stay at
// their zero value; required fields per action are checked before any
// mutation begins.
type Request struct {
	Action         ActionType `json:"action"`
	GameID         string     `json:"game_id"`
	PlayerID       string     `json:"player_id"`
	PreviousGameID string     `json:"previous_game_id,omitempty"`
	Sentence       string     `json:"sentence,omitempty"`
	Card           int        `json:"card,omitempty"`
	Duration       int        `json:"duration,omitempty"`
	PlayerIDs      []string   `json:"player_ids,omitempty"`
}

type fieldCheck struct {
	name string
	ok   func(*Request) bool
}

var (
	needGameID    = fieldCheck{"game_id", func(r *Request) bool { return r.GameID != "" }}
	needPlayerID  = fieldCheck{"player_id", func(r *Request) bool { return r.PlayerID != "" }}
	needSentence  = fieldCheck{"sentence", func(r *Request) bool { return r.Sentence != "" }}
	needCard      = fieldCheck{"card", func(r *Request) bool { return r.Card != 0 }}
	needDuration  = fieldCheck{"duration", func(r *Request) bool { return r.Duration > 0 }}
	needPlayerIDs = fieldCheck{"player_ids", func(r *Request) bool { return len(r.PlayerIDs) > 0 }}
)

// requiredFields is the per-action validation table. A missing entry means
// the action itself is unknown.
var requiredFields = map[ActionType][]fieldCheck{
	ActionCreate:       {needPlayerID},
	ActionSetCard:      {needGameID, needPlayerID, needCard},
	ActionSetSentence:  {needGameID, needPlayerID, needSentence},
	ActionParticipate:  {needGameID, needPlayerID},
	ActionInvite:       {needGameID, needPlayerID, needPlayerIDs},
	ActionLeave:        {needGameID, needPlayerIDs},
	ActionPick:         {needGameID, needPlayerID, needCard},
	ActionVoting:       {needGameID, needPlayerID},
	ActionVote:         {needGameID, needPlayerID, needCard},
	ActionComplete:     {needGameID, needPlayerID},
	ActionSetCountdown: {needGameID, needDuration},
}

// validate fails fast on an unknown action or a missing required field,
// naming both. These are programmer faults, not game warnings.
func (r *Request) validate() error {
	checks, ok := requiredFields[r.Action]
	if !ok {
		return fmt.Errorf("unknown action %q", r.Action)
	}
	for _, c := range checks {
		if !c.ok(r) {
			return fmt.Errorf("action %s: missing required field %s", r.Action, c.name)
		}
	}
	return nil
}
