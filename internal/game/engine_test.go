package game

import (
	"encoding/json"
	"testing"
)

func decodeState(t *testing.T, raw json.RawMessage) state {
	t.Helper()
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func TestRoundsAdvanceToLimit(t *testing.T) {
	e := New(3, []string{"Alphas", "Betas"})
	for i := 0; i < 3; i++ {
		if e.Round() != i {
			t.Fatalf("round = %d, want %d", e.Round(), i)
		}
		payload, done, err := e.Apply([2]string{"stop", "stop"})
		if err != nil {
			t.Fatalf("apply round %d: %v", i, err)
		}
		if wantDone := i == 2; done != wantDone {
			t.Fatalf("round %d done = %v", i, done)
		}
		st := decodeState(t, payload)
		if st.Round != i+1 {
			t.Fatalf("payload round = %d, want %d", st.Round, i+1)
		}
	}
	if _, done, err := e.Apply([2]string{"stop", "stop"}); err == nil || !done {
		t.Fatalf("apply past limit: done=%v err=%v", done, err)
	}
}

func TestMovementAndScoring(t *testing.T) {
	e := New(Width+3, []string{"Alphas", "Betas"})

	// Side 0 marches east every round; side 1 tries to back off the left wall.
	var st state
	for i := 0; i < Width; i++ {
		payload, _, err := e.Apply([2]string{"east", "west"})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		st = decodeState(t, payload)
	}
	if st.Scores[0] != 1 {
		t.Fatalf("side 0 score = %d, want 1", st.Scores[0])
	}
	if st.Positions[0] != 0 {
		t.Fatalf("side 0 position = %d, want reset to 0", st.Positions[0])
	}
	if st.Positions[1] != 0 || st.Scores[1] != 0 {
		t.Fatalf("side 1 moved off the wall: pos=%d score=%d", st.Positions[1], st.Scores[1])
	}
}

func TestUnknownTokenHoldsPosition(t *testing.T) {
	e := New(5, []string{"Alphas", "Betas"})
	payload, _, err := e.Apply([2]string{"teleport", "north"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	st := decodeState(t, payload)
	if st.Positions != [2]int{0, 0} {
		t.Fatalf("positions = %v, want origin", st.Positions)
	}
}

func TestStateCarriesTeams(t *testing.T) {
	e := New(1, []string{"The Stoppings", "The Eagers"})
	st := decodeState(t, e.State())
	if len(st.Teams) != 2 || st.Teams[0] != "The Stoppings" || st.Teams[1] != "The Eagers" {
		t.Fatalf("teams = %v", st.Teams)
	}
}
