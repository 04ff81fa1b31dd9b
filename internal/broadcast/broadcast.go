// internal/broadcast/broadcast.go
//
// Snapshots are the atomic unit of broadcast: one action-tagged, opaque
// payload per completed round, totally ordered within a match. The publisher
// is the single writer for its channel; it serializes each snapshot once and
// can tee the exact wire bytes into a replay recorder.

package broadcast

import (
	"encoding/json"
	"fmt"
)

// Action tags understood by subscribers.
const (
	// ActionObserve carries one round's game state.
	ActionObserve = "observe"
	// ActionMatchOver closes the stream and carries the match outcome.
	ActionMatchOver = "match-over"
)

// Snapshot is one broadcast message: an action tag, the round it belongs to,
// and the engine's opaque payload.
type Snapshot struct {
	Action  string          `json:"action"`
	Round   int             `json:"round"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Sink consumes snapshots in publish order. The live publisher, the replay
// engine's target, and test collectors all satisfy it.
type Sink interface {
	Publish(Snapshot) error
}

// Wire is the transport half the publisher writes to.
type Wire interface {
	PublishRaw(frame []byte) error
	Addr() string
}

// Recorder persists raw snapshot frames, typically replay.Recorder.
type Recorder interface {
	Append(frame []byte) error
}

// Publisher serializes snapshots onto a wire and optionally records them.
type Publisher struct {
	wire Wire
	rec  Recorder
}

// Option customizes publisher construction.
type Option func(*Publisher)

// WithRecorder tees every published frame into rec.
func WithRecorder(rec Recorder) Option {
	return func(p *Publisher) {
		if rec != nil {
			p.rec = rec
		}
	}
}

// New builds a publisher over the given wire.
func New(wire Wire, opts ...Option) *Publisher {
	p := &Publisher{wire: wire}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Addr reports the concrete connect address subscribers dial.
func (p *Publisher) Addr() string { return p.wire.Addr() }

// Publish serializes the snapshot and sends it. The recorder, when present,
// receives the identical bytes that went over the wire, so a recorded match
// replays bit-for-bit.
func (p *Publisher) Publish(s Snapshot) error {
	frame, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("broadcast: encode snapshot: %w", err)
	}
	if err := p.wire.PublishRaw(frame); err != nil {
		return fmt.Errorf("broadcast: publish: %w", err)
	}
	if p.rec != nil {
		if err := p.rec.Append(frame); err != nil {
			return fmt.Errorf("broadcast: record: %w", err)
		}
	}
	return nil
}

// NewRecording returns a Sink that persists snapshots without any wire
// attached, for matches that record but do not broadcast. Frames are
// serialized exactly as the live publisher would send them, so the log
// replays identically either way.
func NewRecording(rec Recorder) Sink { return recordOnly{rec: rec} }

type recordOnly struct{ rec Recorder }

func (r recordOnly) Publish(s Snapshot) error {
	frame, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("broadcast: encode snapshot: %w", err)
	}
	if err := r.rec.Append(frame); err != nil {
		return fmt.Errorf("broadcast: record: %w", err)
	}
	return nil
}

// Discard is a Sink that drops everything; used when broadcasting is
// disabled for a match.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(Snapshot) error { return nil }
