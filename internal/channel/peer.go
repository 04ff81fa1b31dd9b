// internal/channel/peer.go
//
// Peer channels invert the usual request/reply direction: the host binds a
// listener, a helper process dials in, and from then on the host issues
// requests over the connection the helper opened. Each request carries a
// sequence id so a reply that arrives after its request already timed out is
// discarded instead of being mistaken for the next round's answer.

package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type peerEnvelope struct {
	ID   uint64          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// PeerListener accepts inbound peer connections on a bind address.
type PeerListener struct {
	addr  string
	srv   *http.Server
	conns chan *websocket.Conn
}

// OpenPeerListener binds a peer endpoint for one helper to dial into.
func OpenPeerListener(bind string) (*PeerListener, error) {
	ln, addr, err := bindListener(bind)
	if err != nil {
		return nil, err
	}
	l := &PeerListener{
		addr:  addr,
		conns: make(chan *websocket.Conn, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleDial)
	l.srv = &http.Server{Handler: mux}
	go l.srv.Serve(ln)
	return l, nil
}

// Addr reports the concrete connect address the peer must dial.
func (l *PeerListener) Addr() string { return l.addr }

func (l *PeerListener) handleDial(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	select {
	case l.conns <- conn:
	default:
		conn.Close()
	}
}

// Accept blocks until a peer dials in or the context is cancelled.
func (l *PeerListener) Accept(ctx context.Context) (*Peer, error) {
	select {
	case conn := <-l.conns:
		p := &Peer{
			conn:    conn,
			replies: make(chan peerEnvelope, 16),
			done:    make(chan struct{}),
		}
		go p.readLoop()
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting peers.
func (l *PeerListener) Close() error { return l.srv.Close() }

// Peer is the host side of an accepted peer connection. A dedicated read
// pump delivers replies, so a request that times out leaves the connection
// healthy for the next round; its late reply is matched by id and dropped.
type Peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
	seq  uint64

	replies chan peerEnvelope
	done    chan struct{}
	readErr error
}

func (p *Peer) readLoop() {
	for {
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			p.readErr = err
			close(p.done)
			return
		}
		var env peerEnvelope
		if err := json.Unmarshal(frame, &env); err != nil {
			p.readErr = fmt.Errorf("channel: peer reply: %w", err)
			close(p.done)
			return
		}
		select {
		case p.replies <- env:
		case <-p.done:
			return
		}
	}
}

// Request sends req and blocks for the matching reply, the context's end,
// or the peer going away.
func (p *Peer) Request(ctx context.Context, req []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := p.seq
	frame, err := json.Marshal(peerEnvelope{ID: id, Data: req})
	if err != nil {
		return nil, err
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return nil, err
	}
	for {
		select {
		case env := <-p.replies:
			if env.ID < id {
				continue // stale reply from a request that already timed out
			}
			if env.ID != id {
				return nil, fmt.Errorf("channel: peer reply id %d, want %d", env.ID, id)
			}
			return env.Data, nil
		case <-p.done:
			return nil, p.readErr
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close hangs up on the peer.
func (p *Peer) Close() error { return p.conn.Close() }

// PeerConn is the helper side of a peer channel: it dials the host and then
// serves the host's requests.
type PeerConn struct {
	conn *websocket.Conn
}

// DialPeer connects to a host's peer listener.
func DialPeer(addr string) (*PeerConn, error) {
	if _, _, err := splitAddress(addr); err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, err
	}
	return &PeerConn{conn: conn}, nil
}

// Serve answers host requests with handler until the connection closes or
// the context is cancelled. Application-level failures belong in the reply
// payload the handler builds; a handler error ends the serve loop, and Serve
// itself otherwise only fails on transport problems.
func (c *PeerConn) Serve(ctx context.Context, handler func([]byte) ([]byte, error)) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var env peerEnvelope
		if err := json.Unmarshal(frame, &env); err != nil {
			return fmt.Errorf("channel: peer request: %w", err)
		}
		resp, err := handler(env.Data)
		if err != nil {
			return err
		}
		out, err := json.Marshal(peerEnvelope{ID: env.ID, Data: resp})
		if err != nil {
			return err
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return err
		}
	}
}

// Close hangs up on the host.
func (c *PeerConn) Close() error { return c.conn.Close() }
