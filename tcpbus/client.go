package tcpbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grippy/hollywood/bus"
)

// Conn is a bus.Conn backed by a single TCP connection to a Server. It
// mirrors the teacher's BrokerClient: one background goroutine reads
// every inbound frame and routes it to the right subscription channel
// or the right pending-inbox waiter, keyed by subject (grounded on
// internal/client/broker.go's messageListener).
type Conn struct {
	conn   net.Conn
	enc    *json.Encoder
	encMux sync.Mutex

	closed atomic.Bool

	mux  sync.Mutex
	subs map[string][]chan bus.Msg // subject -> subscriber channels

	inboxMux sync.Mutex
	inboxes  map[string]chan bus.Msg // reply subject -> waiter
	inboxSeq int64
}

// Dial connects to a tcpbus Server at addr.
func Dial(addr string) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcpbus: dial: %w", err)
	}
	c := &Conn{
		conn:    nc,
		enc:     json.NewEncoder(nc),
		subs:    make(map[string][]chan bus.Msg),
		inboxes: make(map[string]chan bus.Msg),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	dec := json.NewDecoder(c.conn)
	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			return
		}
		if f.Type != "deliver" {
			continue
		}
		msg := bus.Msg{Subject: f.Subject, Reply: f.Reply, Data: f.Data}

		c.inboxMux.Lock()
		waiter, ok := c.inboxes[f.Subject]
		c.inboxMux.Unlock()
		if ok {
			select {
			case waiter <- msg:
			default:
				log.Printf("tcpbus: client: inbox %q channel full, dropping reply", f.Subject)
			}
			continue
		}

		c.mux.Lock()
		chans := append([]chan bus.Msg(nil), c.subs[f.Subject]...)
		c.mux.Unlock()
		for _, ch := range chans {
			select {
			case ch <- msg:
			default:
				log.Printf("tcpbus: client: subscriber channel for %q full, dropping message", f.Subject)
			}
		}
	}
}

func (c *Conn) send(f frame) error {
	if c.closed.Load() {
		return bus.ErrClosed
	}
	c.encMux.Lock()
	defer c.encMux.Unlock()
	return c.enc.Encode(f)
}

// Publish implements bus.Conn.
func (c *Conn) Publish(subject string, data []byte) error {
	return c.send(frame{Type: "publish", Subject: subject, Data: data})
}

// PublishRequest implements bus.Conn.
func (c *Conn) PublishRequest(subject, replyTo string, data []byte) error {
	return c.send(frame{Type: "publish", Subject: subject, Reply: replyTo, Data: data})
}

// Subscribe implements bus.Conn (fan-out / Publish mode).
func (c *Conn) Subscribe(subject string) (*bus.Subscription, error) {
	ch := make(chan bus.Msg, 100)
	c.mux.Lock()
	c.subs[subject] = append(c.subs[subject], ch)
	c.mux.Unlock()
	if err := c.send(frame{Type: "subscribe", Subject: subject}); err != nil {
		return nil, err
	}
	return &bus.Subscription{
		C:           ch,
		Unsubscribe: func() { c.removeSub(subject, ch) },
	}, nil
}

// QueueSubscribe implements bus.Conn (load-balanced / Queue mode).
func (c *Conn) QueueSubscribe(subject, group string) (*bus.Subscription, error) {
	ch := make(chan bus.Msg, 100)
	c.mux.Lock()
	c.subs[subject] = append(c.subs[subject], ch)
	c.mux.Unlock()
	if err := c.send(frame{Type: "queue_subscribe", Subject: subject, Group: group}); err != nil {
		return nil, err
	}
	return &bus.Subscription{
		C:           ch,
		Unsubscribe: func() { c.removeSub(subject, ch) },
	}, nil
}

func (c *Conn) removeSub(subject string, ch chan bus.Msg) {
	c.mux.Lock()
	defer c.mux.Unlock()
	list := c.subs[subject]
	out := list[:0]
	for _, x := range list {
		if x != ch {
			out = append(out, x)
		}
	}
	c.subs[subject] = out
}

// Request implements bus.Conn: it publishes to subject with a fresh
// inbox subject and blocks for a reply, honoring ctx and timeout.
func (c *Conn) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (bus.Msg, error) {
	inbox := fmt.Sprintf("_inbox.%s.%d", c.conn.LocalAddr(), atomic.AddInt64(&c.inboxSeq, 1))
	waiter := make(chan bus.Msg, 1)

	c.inboxMux.Lock()
	c.inboxes[inbox] = waiter
	c.inboxMux.Unlock()
	defer func() {
		c.inboxMux.Lock()
		delete(c.inboxes, inbox)
		c.inboxMux.Unlock()
	}()

	if err := c.send(frame{Type: "subscribe", Subject: inbox}); err != nil {
		return bus.Msg{}, err
	}
	if err := c.PublishRequest(subject, inbox, data); err != nil {
		return bus.Msg{}, err
	}

	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case msg := <-waiter:
		return msg, nil
	case <-deadline.C:
		return bus.Msg{}, bus.ErrTimeout
	case <-ctx.Done():
		return bus.Msg{}, ctx.Err()
	}
}

// Close implements bus.Conn.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// Dialer dials tcpbus Servers, implementing bus.Dialer. The uri is the
// server's host:port address (no scheme).
type Dialer struct{}

// Dial implements bus.Dialer.
func (Dialer) Dial(uri string) (bus.Conn, error) {
	return Dial(uri)
}
