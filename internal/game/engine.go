// internal/game/engine.go
//
// A deliberately small engine collaborator: two bots per side race along a
// corridor, scoring a point each time they reach the far end. The
// orchestrator only depends on the session.Engine contract; swapping in a
// full rules engine touches nothing else.

package game

import (
	"encoding/json"
	"fmt"
)

// Width is the corridor length in cells.
const Width = 16

type state struct {
	Round     int      `json:"round"`
	Positions [2]int   `json:"positions"`
	Scores    [2]int   `json:"scores"`
	Teams     []string `json:"teams"`
}

// Engine drives one corridor duel.
type Engine struct {
	rounds int
	st     state
}

// New builds an engine for the given round limit.
func New(rounds int, teams []string) *Engine {
	e := &Engine{rounds: rounds}
	e.st.Teams = teams
	e.st.Positions = [2]int{0, 0}
	return e
}

// Round reports the next round to be played, starting at zero.
func (e *Engine) Round() int { return e.st.Round }

// State serializes the current game state for competitor clients and the
// broadcast payload.
func (e *Engine) State() json.RawMessage {
	data, err := json.Marshal(e.st)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// Apply plays one round with the given move tokens. An empty or unknown
// token keeps the bot in place. The match is done once the round limit is
// reached.
func (e *Engine) Apply(moves [2]string) (json.RawMessage, bool, error) {
	if e.st.Round >= e.rounds {
		return nil, true, fmt.Errorf("game: round %d past the limit %d", e.st.Round, e.rounds)
	}
	for side, move := range moves {
		switch move {
		case "east":
			e.st.Positions[side]++
		case "west":
			if e.st.Positions[side] > 0 {
				e.st.Positions[side]--
			}
		case "north", "south", "stop", "":
			// Corridor: vertical moves and stops hold position.
		}
		if e.st.Positions[side] >= Width {
			e.st.Scores[side]++
			e.st.Positions[side] = 0
		}
	}
	e.st.Round++
	return e.State(), e.st.Round >= e.rounds, nil
}
