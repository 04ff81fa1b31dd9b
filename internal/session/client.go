// internal/session/client.go
//
// Mover clients hide where a team's decision logic runs. The peer client
// talks to an isolated competitor process over the peer channel; the local
// client calls movers in-process and exists for standalone debugging, where
// isolation is deliberately traded for direct debuggability.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arenalab/arena/internal/channel"
	"github.com/arenalab/arena/internal/team"
)

// Peer request types.
const (
	// PeerHello asks a competitor client for its team name.
	PeerHello = "hello"
	// PeerMove asks for one move.
	PeerMove = "move"
)

// MoveRequest travels host -> competitor client.
type MoveRequest struct {
	Type  string          `json:"type"`
	Round int             `json:"round"`
	Bot   int             `json:"bot"`
	State json.RawMessage `json:"state,omitempty"`
}

// MoveReply travels competitor client -> host.
type MoveReply struct {
	Name  string `json:"name,omitempty"`
	Move  string `json:"move,omitempty"`
	Error string `json:"error,omitempty"`
}

// MoverClient obtains moves for one side of the match.
type MoverClient interface {
	RequestMove(ctx context.Context, req MoveRequest) (string, error)
	Close() error
}

// PeerClient drives a competitor process that dialed into the host.
type PeerClient struct {
	peer *channel.Peer
}

// NewPeerClient wraps an accepted peer connection.
func NewPeerClient(peer *channel.Peer) *PeerClient {
	return &PeerClient{peer: peer}
}

func (c *PeerClient) roundTrip(ctx context.Context, req MoveRequest) (MoveReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return MoveReply{}, err
	}
	resp, err := c.peer.Request(ctx, data)
	if err != nil {
		return MoveReply{}, err
	}
	var reply MoveReply
	if err := json.Unmarshal(resp, &reply); err != nil {
		return MoveReply{}, fmt.Errorf("session: decode reply: %w", err)
	}
	if reply.Error != "" {
		return MoveReply{}, errors.New(reply.Error)
	}
	return reply, nil
}

// Hello asks the competitor for its team name so the host can validate it.
func (c *PeerClient) Hello(ctx context.Context) (string, error) {
	reply, err := c.roundTrip(ctx, MoveRequest{Type: PeerHello})
	if err != nil {
		return "", err
	}
	if err := team.ValidateName(reply.Name); err != nil {
		return "", err
	}
	return reply.Name, nil
}

// RequestMove asks the competitor for one move.
func (c *PeerClient) RequestMove(ctx context.Context, req MoveRequest) (string, error) {
	req.Type = PeerMove
	reply, err := c.roundTrip(ctx, req)
	if err != nil {
		return "", err
	}
	return reply.Move, nil
}

// Close hangs up on the competitor.
func (c *PeerClient) Close() error { return c.peer.Close() }

// LocalClient runs a team's movers in-process (standalone mode).
type LocalClient struct {
	team *team.Team
}

// NewLocalClient wraps a resolved local team.
func NewLocalClient(t *team.Team) *LocalClient {
	return &LocalClient{team: t}
}

// RequestMove calls the mover for the requested bot slot directly. The
// context's deadline still applies so a runaway mover counts as a timeout.
func (c *LocalClient) RequestMove(ctx context.Context, req MoveRequest) (string, error) {
	type result struct {
		move string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		move, err := c.team.Movers[req.Bot%2](req.Round, req.State)
		done <- result{move: move, err: err}
	}()
	select {
	case r := <-done:
		return r.move, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close is a no-op for in-process teams.
func (c *LocalClient) Close() error { return nil }

// ServeTeam answers host requests for a resolved local team over a dialed
// peer connection. Competitor client processes call this after dialing in.
func ServeTeam(ctx context.Context, conn *channel.PeerConn, t *team.Team) error {
	return conn.Serve(ctx, func(data []byte) ([]byte, error) {
		var req MoveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return json.Marshal(MoveReply{Error: fmt.Sprintf("bad request: %v", err)})
		}
		switch req.Type {
		case PeerHello:
			return json.Marshal(MoveReply{Name: t.Name})
		case PeerMove:
			move, err := t.Movers[req.Bot%2](req.Round, req.State)
			if err != nil {
				return json.Marshal(MoveReply{Error: err.Error()})
			}
			return json.Marshal(MoveReply{Move: move})
		default:
			return json.Marshal(MoveReply{Error: fmt.Sprintf("unknown request %q", req.Type)})
		}
	})
}
