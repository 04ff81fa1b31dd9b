package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single publish write per subscriber. A subscriber
	// that cannot keep up within this window is dropped, not waited on.
	writeWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Publisher is a one-to-many broadcast endpoint. Delivery is fire-and-forget
// and at-most-once per subscriber connection: there is no acknowledgment and
// no replay for late joiners. The zero-subscriber state is valid.
type Publisher struct {
	addr string
	srv  *http.Server

	mu     sync.Mutex
	subs   map[*websocket.Conn]struct{}
	closed bool
}

// OpenPublisher binds the broadcast endpoint. The returned publisher's Addr
// is the concrete connect address, resolved after the bind succeeded.
func OpenPublisher(bind string) (*Publisher, error) {
	ln, addr, err := bindListener(bind)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		addr: addr,
		subs: map[*websocket.Conn]struct{}{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", p.handleSubscribe)
	p.srv = &http.Server{Handler: mux}
	go p.srv.Serve(ln)
	return p, nil
}

// Addr reports the concrete connect address subscribers dial.
func (p *Publisher) Addr() string { return p.addr }

func (p *Publisher) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.subs[conn] = struct{}{}
	p.mu.Unlock()

	// Subscribers never send payloads; the read loop only notices the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		p.drop(conn)
	}()
}

func (p *Publisher) drop(conn *websocket.Conn) {
	p.mu.Lock()
	delete(p.subs, conn)
	p.mu.Unlock()
	conn.Close()
}

// SubscriberCount reports how many connections are currently attached.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Publish marshals v and broadcasts it.
func (p *Publisher) Publish(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.PublishRaw(frame)
}

// PublishRaw broadcasts an already-serialized frame to every subscriber.
// The publisher is the single writer for its channel; a failed or slow
// subscriber write drops that subscriber and never fails the publish.
func (p *Publisher) PublishRaw(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for conn := range p.subs {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			delete(p.subs, conn)
			conn.Close()
		}
	}
	return nil
}

// Close tears the endpoint down and disconnects every subscriber.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	for conn := range p.subs {
		conn.Close()
		delete(p.subs, conn)
	}
	p.mu.Unlock()
	return p.srv.Close()
}

// Subscriber consumes frames from a Publisher it dialed. A subscriber only
// sees frames published after it attached.
type Subscriber struct {
	conn *websocket.Conn
}

// OpenSubscriber dials a publisher's concrete connect address.
func OpenSubscriber(addr string) (*Subscriber, error) {
	if _, _, err := splitAddress(addr); err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, err
	}
	return &Subscriber{conn: conn}, nil
}

// Next blocks until the next frame arrives, the context is cancelled, or the
// publisher goes away.
func (s *Subscriber) Next(ctx context.Context) ([]byte, error) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)
	_, frame, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return frame, nil
}

// Close detaches from the publisher.
func (s *Subscriber) Close() error { return s.conn.Close() }
