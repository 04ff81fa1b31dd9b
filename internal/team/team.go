// internal/team/team.go
//
// A Team is a named competitor: two movers that pick one move token each per
// request. Teams are immutable once resolved; a name that fails validation
// aborts match setup before anything is spawned.

package team

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxNameLength bounds team names on the wire and in viewers.
const MaxNameLength = 25

var (
	// ErrLoad is the uniform category for every team-loading failure:
	// missing files, bad plugin modules, missing factories, invalid names.
	ErrLoad = errors.New("team: load failed")
	// ErrBadName marks a team name violating the naming rules.
	ErrBadName = errors.New("team: invalid name")
)

// Mover decides one move for the given round from the engine's opaque state.
type Mover func(round int, state json.RawMessage) (string, error)

// Team is an immutable competitor with one mover per bot slot.
type Team struct {
	Name   string
	Movers [2]Mover
}

// Resolution is the outcome of resolving a team specification: either a
// local Team, or a remote competitor that will dial into a bind address.
type Resolution struct {
	Team *Team
	// Remote is set when the spec named a transport address. No local Team
	// exists; the match listens on Bind and waits for the remote to dial in.
	Remote bool
	Bind   string
}

// ValidateName enforces the team naming rules: 1-25 characters, ASCII
// letters, digits and spaces only, and at least one non-blank character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrBadName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %q longer than %d characters", ErrBadName, name, MaxNameLength)
	}
	blank := true
	for _, r := range name {
		if r == ' ' {
			continue
		}
		if r > 127 || !isAlnum(byte(r)) {
			return fmt.Errorf("%w: %q contains forbidden character %q", ErrBadName, name, r)
		}
		blank = false
	}
	if blank {
		return fmt.Errorf("%w: %q is all blank", ErrBadName, name)
	}
	return nil
}

func isAlnum(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return false
}
