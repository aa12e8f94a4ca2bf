package mailbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/grippy/hollywood/addr"
	"github.com/grippy/hollywood/tcpbus"
)

type boundActor struct{}

func (boundActor) ActorKind() addr.ActorKind { return addr.ActorKind{Type: "X", Version: "v1.0"} }
func (boundActor) DispatchTypes() []addr.MessageKind {
	return []addr.MessageKind{{Type: "XMsg", Version: "v1.0"}}
}

type xMsg struct{}

func TestNewMailboxRejectsUndeclaredMessage(t *testing.T) {
	client := NewClient(nil)
	_, err := NewMailbox[boundActor, xMsg](client, "demo", boundActor{}, addr.MessageKind{Type: "Other", Version: "v1.0"}, addr.Queue())
	if err == nil {
		t.Fatal("expected ErrUnsupportedMessage for undeclared message kind")
	}
}

func TestMailboxSendBindingCheck(t *testing.T) {
	s := tcpbus.NewServer("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	conn, err := tcpbus.Dial(s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	client := NewClient(conn)
	mb, err := NewMailbox[boundActor, xMsg](client, "demo", boundActor{}, addr.MessageKind{Type: "XMsg", Version: "v1.0"}, addr.Queue())
	if err != nil {
		t.Fatalf("new mailbox: %v", err)
	}
	if mb.Subject() != "hollywood://demo@X/v1.0::XMsg/v1.0" {
		t.Fatalf("unexpected subject: %s", mb.Subject())
	}

	if err := mb.Send("v9.9", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected binding mismatch error for wrong version")
	}
	if err := mb.Send("v1.0", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestMailboxRequestTimeoutPropagates(t *testing.T) {
	s := tcpbus.NewServer("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()
	conn, err := tcpbus.Dial(s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	client := NewClient(conn)
	mb, err := NewMailbox[boundActor, xMsg](client, "demo", boundActor{}, addr.MessageKind{Type: "XMsg", Version: "v1.0"}, addr.Queue())
	if err != nil {
		t.Fatalf("new mailbox: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = mb.RequestTimeout(ctx, "v1.0", json.RawMessage(`{}`), 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error with nobody subscribed")
	}
}
