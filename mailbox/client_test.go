package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/grippy/hollywood/bus"
	"github.com/grippy/hollywood/envelope"
	"github.com/grippy/hollywood/tcpbus"
)

func newLoopback(t *testing.T) (*tcpbus.Server, *Client, bus.Conn) {
	t.Helper()
	s := tcpbus.NewServer("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	respConn, err := tcpbus.Dial(s.Addr())
	if err != nil {
		t.Fatalf("dial responder: %v", err)
	}
	t.Cleanup(func() { respConn.Close() })

	clientConn, err := tcpbus.Dial(s.Addr())
	if err != nil {
		t.Fatalf("dial client: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	return s, NewClient(clientConn), respConn
}

func TestRequestHelloRoundTrip(t *testing.T) {
	_, client, responder := newLoopback(t)

	sub, err := responder.QueueSubscribe("hollywood://demo@X/v1.0::XMsg/v1.0", "hollywood://demo@X/v1.0::XMsg/v1.0")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	go func() {
		msg := <-sub.C
		req, _ := envelope.Decode(msg.Data)
		reply := envelope.NewResponse(req.ID, req.MsgVersion, json.RawMessage(`{"ack":true}`))
		raw, _ := reply.Encode()
		responder.Publish(msg.Reply, raw)
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	reply, err := client.Request(ctx, "hollywood://demo@X/v1.0::XMsg/v1.0", "v1.0", json.RawMessage(`{"hello":true}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if string(reply) != `{"ack":true}` {
		t.Fatalf("unexpected reply: %s", reply)
	}
}

func TestRequestErrorSurface(t *testing.T) {
	_, client, responder := newLoopback(t)

	sub, err := responder.QueueSubscribe("errsubj", "errsubj")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	go func() {
		msg := <-sub.C
		req, _ := envelope.Decode(msg.Data)
		reply := envelope.NewErrorResponse(req.ID, req.MsgVersion, "boom")
		raw, _ := reply.Encode()
		responder.Publish(msg.Reply, raw)
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = client.Request(ctx, "errsubj", "v1.0", json.RawMessage(`{}`))
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	_, client, _ := newLoopback(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := client.RequestTimeout(ctx, "nobody-home", "v1.0", json.RawMessage(`{}`), 100*time.Millisecond)
	if !errors.Is(err, bus.ErrTimeout) {
		t.Fatalf("expected bus.ErrTimeout, got %v", err)
	}
}
