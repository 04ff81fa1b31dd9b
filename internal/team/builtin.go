package team

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/sahilm/fuzzy"
)

// RandomID is the reserved identifier that picks a builtin player uniformly.
const RandomID = "random"

// Move tokens understood by the engine collaborator. An empty token means
// "stay put" and is also what a timed-out side is treated as having played.
const (
	MoveStop  = "stop"
	MoveNorth = "north"
	MoveSouth = "south"
	MoveEast  = "east"
	MoveWest  = "west"
)

var compass = []string{MoveNorth, MoveSouth, MoveEast, MoveWest}

type builtinPlayer struct {
	id      string
	display string
	build   func(rng *rand.Rand) Mover
}

// Demo players shipped with the orchestrator. The team name is derived from
// the first player's display name.
var builtins = []builtinPlayer{
	{
		id:      "stopping",
		display: "StoppingPlayer",
		build: func(*rand.Rand) Mover {
			return func(int, json.RawMessage) (string, error) { return MoveStop, nil }
		},
	},
	{
		id:      "wandering",
		display: "WanderingPlayer",
		build: func(rng *rand.Rand) Mover {
			return func(int, json.RawMessage) (string, error) {
				return compass[rng.Intn(len(compass))], nil
			}
		},
	},
	{
		id:      "eager",
		display: "EagerPlayer",
		build: func(*rand.Rand) Mover {
			return func(int, json.RawMessage) (string, error) { return MoveEast, nil }
		},
	},
}

// BuiltinIDs lists the known builtin player identifiers.
func BuiltinIDs() []string {
	ids := make([]string, len(builtins))
	for i, b := range builtins {
		ids[i] = b.id
	}
	return ids
}

func lookupBuiltin(id string) (builtinPlayer, error) {
	for _, b := range builtins {
		if b.id == id {
			return b, nil
		}
	}
	msg := fmt.Sprintf("unknown builtin player %q", id)
	if matches := fuzzy.Find(id, BuiltinIDs()); len(matches) > 0 {
		msg = fmt.Sprintf("%s (did you mean %q?)", msg, matches[0].Str)
	}
	return builtinPlayer{}, fmt.Errorf("%s", msg)
}

// builtinTeam composes one or two comma-separated builtin identifiers into a
// Team. A single identifier fills both slots; "random" is substituted with a
// uniformly chosen concrete player before duplication, so both slots agree.
func builtinTeam(spec string, rng *rand.Rand) (*Team, error) {
	parts := strings.Split(spec, ",")
	if len(parts) > 2 {
		return nil, fmt.Errorf("at most two players per team, got %d", len(parts))
	}
	players := make([]builtinPlayer, 0, 2)
	for _, part := range parts {
		id := strings.TrimSpace(part)
		if id == RandomID {
			players = append(players, builtins[rng.Intn(len(builtins))])
			continue
		}
		b, err := lookupBuiltin(id)
		if err != nil {
			return nil, err
		}
		players = append(players, b)
	}
	if len(players) == 1 {
		players = append(players, players[0])
	}
	return &Team{
		Name:   "The " + players[0].display + "s",
		Movers: [2]Mover{players[0].build(rng), players[1].build(rng)},
	}, nil
}
