// Package tcpbus is a concrete, self-contained bus.Conn implementation:
// a TCP server speaking newline-delimited JSON frames, offering
// subject-based publish, queue-group subscribe, and request/reply with
// inbox subjects. It is grounded on the teacher's own broker transport
// (JSON-RPC over TCP with per-connection encoder/decoder) generalized
// from topics/pipes to a uniform subject model so it satisfies the
// bus.Conn contract the runtime assumes. It is intended for local
// development, the test suite, and the hollywood CLI's dev/test
// commands; production deployments may substitute any other bus.Conn.
package tcpbus

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// frame is the wire message exchanged between client and server.
type frame struct {
	Type    string `json:"type"`    // publish | subscribe | queue_subscribe | deliver
	Subject string `json:"subject"`
	Group   string `json:"group,omitempty"`
	Reply   string `json:"reply,omitempty"`
	Data    []byte `json:"data,omitempty"`
}

type subscriber struct {
	conn    net.Conn
	enc     *json.Encoder
	subject string
	group   string // empty for plain (fan-out) subscribe
	mux     sync.Mutex
}

func (s *subscriber) deliver(f frame) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.enc.Encode(f)
}

// Server is the in-process broker: it accepts connections and routes
// publish frames to subscribers of the same subject, honoring
// queue-group load balancing via round robin.
type Server struct {
	addr     string
	listener net.Listener

	mux   sync.Mutex
	subs  map[string][]*subscriber // subject -> fan-out subscribers
	qsubs map[string][]*subscriber // subject -> queue-group subscribers (round robin)
	next  map[string]int           // subject -> next queue subscriber index
}

// NewServer creates a broker bound to addr (host:port, or ":0" for an
// ephemeral port).
func NewServer(addr string) *Server {
	return &Server{
		addr:  addr,
		subs:  make(map[string][]*subscriber),
		qsubs: make(map[string][]*subscriber),
		next:  make(map[string]int),
	}
}

// Start listens and begins accepting connections in the background. It
// returns once the listener is bound so Addr() is valid immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcpbus: listen: %w", err)
	}
	s.listener = ln
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address, valid after Start succeeds.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting new connections. Connections already accepted,
// and their subscriptions, stay open until the client side closes them.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	var mine []*subscriber
	defer func() {
		conn.Close()
		s.mux.Lock()
		for _, sub := range mine {
			s.removeLocked(sub)
		}
		s.mux.Unlock()
	}()

	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			return
		}
		switch f.Type {
		case "publish":
			s.publish(f)
		case "subscribe":
			sub := &subscriber{conn: conn, enc: enc, subject: f.Subject}
			s.mux.Lock()
			s.subs[f.Subject] = append(s.subs[f.Subject], sub)
			s.mux.Unlock()
			mine = append(mine, sub)
		case "queue_subscribe":
			sub := &subscriber{conn: conn, enc: enc, subject: f.Subject, group: f.Group}
			s.mux.Lock()
			s.qsubs[f.Subject] = append(s.qsubs[f.Subject], sub)
			s.mux.Unlock()
			mine = append(mine, sub)
		default:
			log.Printf("tcpbus: server: unknown frame type %q", f.Type)
		}
	}
}

func (s *Server) removeLocked(sub *subscriber) {
	filter := func(list []*subscriber) []*subscriber {
		out := list[:0]
		for _, x := range list {
			if x != sub {
				out = append(out, x)
			}
		}
		return out
	}
	s.subs[sub.subject] = filter(s.subs[sub.subject])
	s.qsubs[sub.subject] = filter(s.qsubs[sub.subject])
}

func (s *Server) publish(f frame) {
	s.mux.Lock()
	fanout := append([]*subscriber(nil), s.subs[f.Subject]...)
	queued := s.qsubs[f.Subject]
	var chosen *subscriber
	if len(queued) > 0 {
		i := s.next[f.Subject] % len(queued)
		s.next[f.Subject] = i + 1
		chosen = queued[i]
	}
	s.mux.Unlock()

	deliver := frame{Type: "deliver", Subject: f.Subject, Reply: f.Reply, Data: f.Data}
	for _, sub := range fanout {
		if err := sub.deliver(deliver); err != nil {
			log.Printf("tcpbus: server: deliver to fan-out subscriber of %q: %v", f.Subject, err)
		}
	}
	if chosen != nil {
		if err := chosen.deliver(deliver); err != nil {
			log.Printf("tcpbus: server: deliver to queue subscriber of %q: %v", f.Subject, err)
		}
	}
}

// defaultRequestTimeout matches the teacher's default pipe-receive
// timeout (internal/broker/service.go's handleReceivePipe).
const defaultRequestTimeout = 5 * time.Second
