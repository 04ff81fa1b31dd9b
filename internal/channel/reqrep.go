package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Request is one inbound command awaiting a reply. The server-side consumer
// must call Reply exactly once; the connection handler blocks until it does.
type Request struct {
	Data  []byte
	reply chan<- []byte
}

// Reply sends the response frame back to the requesting client.
func (r Request) Reply(data []byte) {
	r.reply <- data
}

// ReplyServer is a request/reply endpoint serving one client at a time.
// Inbound requests surface on Requests; a dropped client surfaces on
// Disconnects so the consumer can decide whether that is fatal.
type ReplyServer struct {
	addr string
	srv  *http.Server
	done chan struct{}

	requests    chan Request
	disconnects chan struct{}

	mu   sync.Mutex
	busy bool
}

// OpenReplyServer binds the request/reply endpoint.
func OpenReplyServer(bind string) (*ReplyServer, error) {
	ln, addr, err := bindListener(bind)
	if err != nil {
		return nil, err
	}
	s := &ReplyServer{
		addr:        addr,
		done:        make(chan struct{}),
		requests:    make(chan Request),
		disconnects: make(chan struct{}, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleClient)
	s.srv = &http.Server{Handler: mux}
	go s.srv.Serve(ln)
	return s, nil
}

// Addr reports the concrete connect address for the controller client.
func (s *ReplyServer) Addr() string { return s.addr }

// Requests delivers inbound commands.
func (s *ReplyServer) Requests() <-chan Request { return s.requests }

// Disconnects fires once per client that attached and then went away.
func (s *ReplyServer) Disconnects() <-chan struct{} { return s.disconnects }

func (s *ReplyServer) handleClient(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		http.Error(w, "controller already attached", http.StatusConflict)
		return
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case s.disconnects <- struct{}{}:
			default:
			}
			return
		}
		reply := make(chan []byte, 1)
		select {
		case s.requests <- Request{Data: data, reply: reply}:
		case <-s.done:
			return
		}
		select {
		case resp := <-reply:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close shuts the endpoint down and unblocks any pending handler.
func (s *ReplyServer) Close() error {
	close(s.done)
	return s.srv.Close()
}

// RequestClient is the dialing half of a request/reply channel.
type RequestClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// OpenRequestClient dials a reply server.
func OpenRequestClient(addr string) (*RequestClient, error) {
	if _, _, err := splitAddress(addr); err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, fmt.Errorf("channel: %s: another controller is attached", addr)
		}
		return nil, err
	}
	return &RequestClient{conn: conn}, nil
}

// Request sends one command and blocks for its reply. Deadlines come from
// the context; requests on one client never interleave.
func (c *RequestClient) Request(ctx context.Context, req []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return nil, err
	}
	c.conn.SetReadDeadline(deadline)
	_, resp, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Close hangs up on the server.
func (c *RequestClient) Close() error { return c.conn.Close() }
