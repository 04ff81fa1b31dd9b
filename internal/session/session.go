// internal/session/session.go
//
// MatchSession is the aggregate root: two team slots, one broadcast sink, an
// optional control gate, and the round loop with its timeout accounting. One
// coordinating goroutine owns the session; competitor clients and viewers
// run as separate processes reached only through channels. Teardown of
// spawned processes belongs to the supervisor held by the caller and runs
// unconditionally, whatever path ended the match.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arenalab/arena/internal/broadcast"
	"github.com/arenalab/arena/internal/control"
)

// ErrInterrupted reports an external interruption: a signal, a cancelled
// context, or a detached controller. It is teardown's trigger, not a match
// failure.
var ErrInterrupted = errors.New("session: interrupted")

// Match results.
const (
	ResultCompleted    = "completed"
	ResultDisqualified = "teamDisqualified"
	ResultInterrupted  = "interrupted"
)

// ReasonTimeout tags a disqualification caused by exhausted move timeouts.
const ReasonTimeout = "timeout"

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Engine is the external game-rule collaborator. Its payloads are opaque to
// the orchestrator.
type Engine interface {
	// Round reports the next round to be played.
	Round() int
	// State serializes the current game state for movers and snapshots.
	State() json.RawMessage
	// Apply plays one round and reports the new payload and whether the
	// match is decided.
	Apply(moves [2]string) (payload json.RawMessage, done bool, err error)
}

// Outcome is how a match ended. It doubles as the match-over payload.
// Winner and Loser are side indexes, set only for a disqualification;
// pointers keep side 0 distinguishable from "no winner" on the wire.
type Outcome struct {
	Result string   `json:"result"`
	Reason string   `json:"reason,omitempty"`
	Winner *int     `json:"winner,omitempty"`
	Loser  *int     `json:"loser,omitempty"`
	Rounds int      `json:"rounds"`
	Teams  []string `json:"teams"`
}

// Slot binds one side of the match to its mover client.
type Slot struct {
	Name   string
	Client MoverClient
}

// Config carries the per-match knobs the session needs.
type Config struct {
	ID          string
	Rounds      int
	MoveTimeout time.Duration
	MaxTimeouts int
}

// Session drives one live match.
type Session struct {
	cfg    Config
	slots  [2]Slot
	engine Engine
	sink   broadcast.Sink
	ctrl   *control.Server
	logger Logger

	timeouts [2]int
}

// Option customizes session construction.
type Option func(*Session)

// WithControl gates round advancement on an attached controller.
func WithControl(srv *control.Server) Option {
	return func(s *Session) { s.ctrl = srv }
}

// WithLogger routes session diagnostics to logger.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New assembles a session. The sink must never be nil; pass
// broadcast.Discard when broadcasting is disabled.
func New(cfg Config, slots [2]Slot, engine Engine, sink broadcast.Sink, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		slots:  slots,
		engine: engine,
		sink:   sink,
		logger: nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run plays the match to its conclusion. Snapshots go out strictly in round
// order, one per completed round, with a closing match-over message. The
// returned error is non-nil only for interruptions and engine faults; a
// disqualification is a concluded match, not an error.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	for {
		round := s.engine.Round()
		if round >= s.cfg.Rounds {
			return s.conclude(Outcome{Result: ResultCompleted, Rounds: round})
		}
		if s.ctrl != nil {
			directive, err := s.ctrl.Await(ctx, round)
			if err != nil {
				return s.interrupted(round, err)
			}
			if directive == control.DirectiveExit {
				s.logger.Printf("session %s: controller ended the match at round %d", s.cfg.ID, round)
				return s.conclude(Outcome{Result: ResultCompleted, Rounds: round})
			}
		} else if ctx.Err() != nil {
			return s.interrupted(round, ctx.Err())
		}

		state := s.engine.State()
		var moves [2]string
		for side := range s.slots {
			move, err := s.requestMove(ctx, side, round, state)
			if err != nil {
				if ctx.Err() != nil {
					return s.interrupted(round, ctx.Err())
				}
				s.timeouts[side]++
				s.logger.Printf("session %s: %s failed to move at round %d (%d/%d): %v",
					s.cfg.ID, s.slots[side].Name, round, s.timeouts[side], s.cfg.MaxTimeouts, err)
				if s.timeouts[side] >= s.cfg.MaxTimeouts {
					winner, loser := 1-side, side
					return s.conclude(Outcome{
						Result: ResultDisqualified,
						Reason: ReasonTimeout,
						Winner: &winner,
						Loser:  &loser,
						Rounds: round,
					})
				}
				move = ""
			}
			moves[side] = move
		}

		payload, done, err := s.engine.Apply(moves)
		if err != nil {
			return Outcome{}, fmt.Errorf("session %s: engine: %w", s.cfg.ID, err)
		}
		if err := s.sink.Publish(broadcast.Snapshot{
			Action:  broadcast.ActionObserve,
			Round:   round,
			Payload: payload,
		}); err != nil {
			return Outcome{}, err
		}
		if done {
			return s.conclude(Outcome{Result: ResultCompleted, Rounds: s.engine.Round()})
		}
	}
}

func (s *Session) requestMove(ctx context.Context, side, round int, state json.RawMessage) (string, error) {
	mctx, cancel := context.WithTimeout(ctx, s.cfg.MoveTimeout)
	defer cancel()
	return s.slots[side].Client.RequestMove(mctx, MoveRequest{
		Round: round,
		Bot:   round % 2,
		State: state,
	})
}

func (s *Session) conclude(out Outcome) (Outcome, error) {
	out.Teams = []string{s.slots[0].Name, s.slots[1].Name}
	payload, err := json.Marshal(out)
	if err != nil {
		return out, fmt.Errorf("session %s: encode outcome: %w", s.cfg.ID, err)
	}
	if err := s.sink.Publish(broadcast.Snapshot{
		Action:  broadcast.ActionMatchOver,
		Round:   out.Rounds,
		Payload: payload,
	}); err != nil {
		return out, err
	}
	s.logger.Printf("session %s: %s after %d rounds", s.cfg.ID, out.Result, out.Rounds)
	return out, nil
}

func (s *Session) interrupted(round int, cause error) (Outcome, error) {
	s.logger.Printf("session %s: interrupted at round %d: %v", s.cfg.ID, round, cause)
	out := Outcome{
		Result: ResultInterrupted,
		Rounds: round,
		Teams:  []string{s.slots[0].Name, s.slots[1].Name},
	}
	return out, fmt.Errorf("%w: %w", ErrInterrupted, cause)
}
