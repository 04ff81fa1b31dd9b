// internal/control/control.go
//
// The control channel lets exactly one external controller drive match
// progression over a request/reply endpoint. The server starts paused: each
// round the session calls Await, which blocks until the controller grants
// advancement. "play" switches to free running, "pause" gates again, "step"
// grants a single round, "exit-match" ends the match. A controller that
// disconnects while the match is waiting is a fatal interruption.

package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arenalab/arena/internal/channel"
)

// Command tokens exchanged over the wire.
const (
	CmdStep  = "step"
	CmdPlay  = "play"
	CmdPause = "pause"
	CmdExit  = "exit-match"
)

// ErrDetached reports the controller dropping while the match was gated on
// its next command.
var ErrDetached = errors.New("control: controller detached")

// Directive is Await's verdict for the current round.
type Directive int

const (
	// DirectiveAdvance lets the session play the next round.
	DirectiveAdvance Directive = iota
	// DirectiveExit ends the match at the controller's request.
	DirectiveExit
)

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type command struct {
	Cmd string `json:"cmd"`
}

type ack struct {
	OK    bool   `json:"ok"`
	Round int    `json:"round"`
	Error string `json:"error,omitempty"`
}

// Server applies controller commands to the match-driving state machine.
// It is driven solely by the session goroutine through Await.
type Server struct {
	rs     *channel.ReplyServer
	logger Logger

	playing bool
	round   int
}

// NewServer wraps a bound reply server. The match starts paused.
func NewServer(rs *channel.ReplyServer, logger Logger) *Server {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Server{rs: rs, logger: logger}
}

// Addr reports the concrete connect address for the controller.
func (s *Server) Addr() string { return s.rs.Addr() }

// Await gates one round. When free running it drains any pending command
// without blocking; when paused it blocks until the controller grants
// advancement, the controller detaches, or the context is cancelled.
func (s *Server) Await(ctx context.Context, round int) (Directive, error) {
	s.round = round
	for {
		if s.playing {
			select {
			case req := <-s.rs.Requests():
				if d, decided := s.apply(req); decided {
					return d, nil
				}
			case <-s.rs.Disconnects():
				// Not waiting on the controller; keep playing.
				s.logger.Printf("control: controller detached while playing")
			case <-ctx.Done():
				return 0, ctx.Err()
			default:
				return DirectiveAdvance, nil
			}
			continue
		}
		select {
		case req := <-s.rs.Requests():
			if d, decided := s.apply(req); decided {
				return d, nil
			}
		case <-s.rs.Disconnects():
			return 0, ErrDetached
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// apply handles one command and reports whether Await is decided.
func (s *Server) apply(req channel.Request) (Directive, bool) {
	var cmd command
	if err := json.Unmarshal(req.Data, &cmd); err != nil {
		req.Reply(encodeAck(ack{Round: s.round, Error: fmt.Sprintf("bad command: %v", err)}))
		return 0, false
	}
	s.logger.Printf("control: %s at round %d", cmd.Cmd, s.round)
	switch cmd.Cmd {
	case CmdPause:
		s.playing = false
		req.Reply(encodeAck(ack{OK: true, Round: s.round}))
		return 0, false
	case CmdPlay:
		s.playing = true
		req.Reply(encodeAck(ack{OK: true, Round: s.round}))
		return DirectiveAdvance, true
	case CmdStep:
		s.playing = false
		req.Reply(encodeAck(ack{OK: true, Round: s.round}))
		return DirectiveAdvance, true
	case CmdExit:
		req.Reply(encodeAck(ack{OK: true, Round: s.round}))
		return DirectiveExit, true
	default:
		req.Reply(encodeAck(ack{Round: s.round, Error: fmt.Sprintf("unknown command %q", cmd.Cmd)}))
		return 0, false
	}
}

func encodeAck(a ack) []byte {
	data, err := json.Marshal(a)
	if err != nil {
		return []byte(`{"ok":false}`)
	}
	return data
}

// Client is a controller-side handle used to drive a remote match.
type Client struct {
	rc *channel.RequestClient
}

// Dial connects to a match's control endpoint.
func Dial(addr string) (*Client, error) {
	rc, err := channel.OpenRequestClient(addr)
	if err != nil {
		return nil, err
	}
	return &Client{rc: rc}, nil
}

// Send issues one command token and returns the acknowledged round number.
func (c *Client) Send(ctx context.Context, cmd string) (int, error) {
	req, err := json.Marshal(command{Cmd: cmd})
	if err != nil {
		return 0, err
	}
	resp, err := c.rc.Request(ctx, req)
	if err != nil {
		return 0, err
	}
	var a ack
	if err := json.Unmarshal(resp, &a); err != nil {
		return 0, fmt.Errorf("control: decode ack: %w", err)
	}
	if !a.OK {
		return a.Round, fmt.Errorf("control: %s rejected: %s", cmd, a.Error)
	}
	return a.Round, nil
}

// Close hangs up on the match host.
func (c *Client) Close() error { return c.rc.Close() }
