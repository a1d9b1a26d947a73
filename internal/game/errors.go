package game

import "fmt"

// Warning codes for expected game-flow conditions. These reach clients as
// {error:{code,data}} so they can recover; anything else is a fault.
const (
	CodeGameFull                     = "GAME_FULL"
	CodeGameDoesNotExist             = "GAME_DOES_NOT_EXIST"
	CodeGameNotLoaded                = "GAME_NOT_LOADED"
	CodePlayerNotInGame              = "PLAYER_NOT_IN_GAME"
	CodeCardNotSet                   = "CARD_NOT_SET"
	CodeWrongStateForSettingCard     = "WRONG_STATE_FOR_SETTING_CARD"
	CodeWrongStateForSettingSentence = "WRONG_STATE_FOR_SETTING_SENTENCE"
	CodeWrongStateForParticipating   = "WRONG_STATE_FOR_PARTICIPATING"
	CodeWrongStateForInviting        = "WRONG_STATE_FOR_INVITING"
	CodeWrongStateForPicking         = "WRONG_STATE_FOR_PICKING"
	CodeWrongStateForStartingVote    = "WRONG_STATE_FOR_STARTING_VOTE"
	CodeWrongStateForVoting          = "WRONG_STATE_FOR_VOTING"
	CodeWrongStateForCompleting      = "WRONG_STATE_FOR_COMPLETING"
)

// Warning is the recoverable error kind: a machine-readable code plus
// structured data for client-side recovery. Everything that is not a Warning
// is treated as a programmer fault at the dispatch boundary.
type Warning struct {
	Code string
	Data map[string]any
}

func (w *Warning) Error() string {
	return w.Code
}

func warn(code string, data map[string]any) *Warning {
	return &Warning{Code: code, Data: data}
}

func warnState(code string, state State) *Warning {
	return warn(code, map[string]any{"state": string(state)})
}

func faultNotOwner(action, playerID, ownerID string) error {
	return fmt.Errorf("%s: player %s is not the owner (owner %s)", action, playerID, ownerID)
}

func faultOwnerForbidden(action, ownerID string) error {
	return fmt.Errorf("%s: not available to the owner %s", action, ownerID)
}
