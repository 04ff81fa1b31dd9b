// internal/config/config.go
//
// Match configuration mirrors .arena/match.yaml layered over built-in
// defaults. Validation runs before anything binds or spawns; a bad flag
// combination never gets as far as a live process.

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that must abort match setup.
var ErrInvalid = errors.New("config: invalid")

const defaultMatchYAML = `# arena match configuration
rounds: 300
move_timeout_ms: 3000
max_timeouts: 5
publish_bind: ws://*:0
control_bind: ws://*:0
broadcast: true
`

// File models the on-disk yaml schema.
type File struct {
	Rounds        int    `yaml:"rounds"`
	MoveTimeoutMS int    `yaml:"move_timeout_ms"`
	MaxTimeouts   int    `yaml:"max_timeouts"`
	Seed          int64  `yaml:"seed"`
	PublishBind   string `yaml:"publish_bind"`
	ControlBind   string `yaml:"control_bind"`
	Broadcast     *bool  `yaml:"broadcast"`
	Viewers       int    `yaml:"viewers"`
}

// Match is the resolved runtime configuration for one match.
type Match struct {
	Rounds      int
	MoveTimeout time.Duration
	MaxTimeouts int
	Seed        int64
	PublishBind string
	ControlBind string
	Broadcast   bool
	Viewers     int
}

// Default returns the built-in configuration.
func Default() Match {
	m, err := fromYAML([]byte(defaultMatchYAML))
	if err != nil {
		panic(fmt.Sprintf("config: defaults: %v", err))
	}
	return m
}

// Load reads path and layers it over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Match, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Match{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal([]byte(defaultMatchYAML), &f); err != nil {
		return Match{}, fmt.Errorf("config: defaults: %w", err)
	}
	// A second unmarshal into the same struct only touches keys the file sets.
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Match{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fromFile(f), nil
}

func fromYAML(data []byte) (Match, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Match{}, err
	}
	return fromFile(f), nil
}

func fromFile(f File) Match {
	m := Match{
		Rounds:      f.Rounds,
		MoveTimeout: time.Duration(f.MoveTimeoutMS) * time.Millisecond,
		MaxTimeouts: f.MaxTimeouts,
		Seed:        f.Seed,
		PublishBind: f.PublishBind,
		ControlBind: f.ControlBind,
		Viewers:     f.Viewers,
		Broadcast:   true,
	}
	if f.Broadcast != nil {
		m.Broadcast = *f.Broadcast
	}
	return m
}

// Validate rejects configurations that cannot produce a sound match.
func (m Match) Validate() error {
	if m.Rounds <= 0 {
		return fmt.Errorf("%w: rounds must be positive, got %d", ErrInvalid, m.Rounds)
	}
	if m.MoveTimeout <= 0 {
		return fmt.Errorf("%w: move timeout must be positive, got %s", ErrInvalid, m.MoveTimeout)
	}
	if m.MaxTimeouts <= 0 {
		return fmt.Errorf("%w: max timeouts must be positive, got %d", ErrInvalid, m.MaxTimeouts)
	}
	if m.Viewers < 0 {
		return fmt.Errorf("%w: viewers must not be negative, got %d", ErrInvalid, m.Viewers)
	}
	if m.Viewers > 0 && !m.Broadcast {
		return fmt.Errorf("%w: viewers requested with broadcast disabled", ErrInvalid)
	}
	return nil
}
